package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/session"
	"nifty-market-alerts/internal/storage"
)

const quoteBoardPath = "/api/market-data-pre-open"

// MarketOptions parameterise the quote-board fetcher.
type MarketOptions struct {
	BaseURL   string
	QueryKey  string
	UserAgent string
	Timeout   time.Duration
}

// Market fetches the instrument quote board, carrying session material
// acquired through the session manager.
type Market struct {
	opts     MarketOptions
	sessions *session.Manager
	logger   zerolog.Logger
	client   *http.Client
	baseURL  string
}

// NewMarket constructs a quote-board fetcher.
func NewMarket(opts MarketOptions, sessions *session.Manager, logger zerolog.Logger) *Market {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")

	return &Market{
		opts:     opts,
		sessions: sessions,
		logger:   logger.With().Str("component", "market_fetcher").Logger(),
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// a redirect off the API path is the source bouncing the session
				return http.ErrUseLastResponse
			},
		},
		baseURL: baseURL,
	}
}

// FetchQuotes issues the data request and classifies the response.
// An authentication rejection invalidates the session and retries the whole
// fetch once against a fresh context; a second rejection is a failed outcome
// with reason "auth". Latency covers the full sequence including session work.
func (m *Market) FetchQuotes(ctx context.Context) Result {
	started := time.Now()

	result := m.fetchOnce(ctx)
	if result.authRejected {
		m.logger.Warn().Msg("session rejected by source; re-acquiring and retrying once")
		m.sessions.Invalidate()
		result = m.fetchOnce(ctx)
		if result.authRejected {
			result.outcome = Result{Success: false, Error: "auth"}
		}
	}

	outcome := result.outcome
	outcome.Latency = time.Since(started)
	return outcome
}

type fetchAttempt struct {
	outcome      Result
	authRejected bool
}

func (m *Market) fetchOnce(ctx context.Context) fetchAttempt {
	sess, err := m.sessions.Ensure(ctx)
	if err != nil {
		return fetchAttempt{outcome: Result{Success: false, Error: "auth"}}
	}

	endpoint := fmt.Sprintf("%s%s?key=%s", m.baseURL, quoteBoardPath, m.opts.QueryKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fetchAttempt{outcome: Result{Success: false, Error: err.Error()}}
	}

	req.Header.Set("User-Agent", sess.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Referer", m.baseURL+"/")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	if sess.Cookies != "" {
		req.Header.Set("Cookie", sess.Cookies)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fetchAttempt{outcome: Result{Success: false, Error: err.Error()}}
	}
	defer resp.Body.Close()

	if isAuthRejection(resp.StatusCode) {
		return fetchAttempt{authRejected: true}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fetchAttempt{outcome: Result{Success: false, Error: err.Error()}}
	}

	if resp.StatusCode != http.StatusOK {
		return fetchAttempt{outcome: Result{
			Success: false,
			Error:   fmt.Sprintf("source status %d: %s", resp.StatusCode, truncate(payload, 200)),
		}}
	}

	var board boardResponse
	if err := json.Unmarshal(payload, &board); err != nil {
		return fetchAttempt{outcome: Result{Success: false, Error: fmt.Sprintf("parse payload: %v", err)}}
	}

	samples := make([]storage.Sample, 0, len(board.Data))
	for _, row := range board.Data {
		samples = append(samples, storage.Sample{
			Symbol:        row.Metadata.Symbol,
			CompanyName:   row.Metadata.CompanyName,
			LastPrice:     row.Metadata.LastPrice,
			Change:        row.Metadata.Change,
			PChange:       row.Metadata.PChange,
			PreviousClose: row.Metadata.PreviousClose,
			Open:          row.Metadata.Open,
			DayHigh:       row.Metadata.DayHigh,
			DayLow:        row.Metadata.DayLow,
			TradedVolume:  row.Metadata.TotalTradedVolume,
			TradedValue:   row.Metadata.TotalTradedValue,
		})
	}

	// empty board is a reachable source with no rows, not a failure
	return fetchAttempt{outcome: Result{
		Samples:      samples,
		IndexPChange: indexPChange(board, samples),
		Success:      true,
	}}
}

// indexPChange prefers the source's own index row when the board carries one
// and otherwise falls back to the mean percent change of the sample set.
func indexPChange(board boardResponse, samples []storage.Sample) decimal.Decimal {
	if !board.Index.PChange.IsZero() {
		return board.Index.PChange
	}
	if len(samples) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, sample := range samples {
		sum = sum.Add(sample.PChange)
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples))))
}

func isAuthRejection(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden,
		http.StatusFound, http.StatusMovedPermanently, http.StatusSeeOther:
		return true
	}
	return false
}

func truncate(payload []byte, max int) string {
	s := strings.TrimSpace(string(payload))
	if len(s) > max {
		return s[:max]
	}
	return s
}

type boardResponse struct {
	Data []struct {
		Metadata struct {
			Symbol            string          `json:"symbol"`
			CompanyName       string          `json:"companyName"`
			LastPrice         decimal.Decimal `json:"lastPrice"`
			Change            decimal.Decimal `json:"change"`
			PChange           decimal.Decimal `json:"pChange"`
			PreviousClose     decimal.Decimal `json:"previousClose"`
			Open              decimal.Decimal `json:"open"`
			DayHigh           decimal.Decimal `json:"dayHigh"`
			DayLow            decimal.Decimal `json:"dayLow"`
			TotalTradedVolume int64           `json:"totalTradedVolume"`
			TotalTradedValue  decimal.Decimal `json:"totalTradedValue"`
		} `json:"metadata"`
	} `json:"data"`
	Index struct {
		Value   decimal.Decimal `json:"value"`
		Change  decimal.Decimal `json:"change"`
		PChange decimal.Decimal `json:"pChange"`
	} `json:"niftyIndex"`
}

var _ QuoteFetcher = (*Market)(nil)

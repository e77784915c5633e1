package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"nifty-market-alerts/internal/session"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestMarket(baseURL string) *Market {
	sessions := session.NewManager(session.Options{
		BaseURL:     baseURL,
		UserAgent:   "test-agent",
		MaxAttempts: 2,
		BackoffStep: time.Millisecond,
		Timeout:     time.Second,
	}, noopLogger())

	return NewMarket(MarketOptions{
		BaseURL:   baseURL,
		QueryKey:  "NIFTY",
		UserAgent: "test-agent",
		Timeout:   time.Second,
	}, sessions, noopLogger())
}

const boardPayload = `{
  "data": [
    {"metadata": {"symbol": "RELIANCE", "companyName": "Reliance Industries", "lastPrice": 2900.5, "change": 17.4, "pChange": 0.6, "previousClose": 2883.1, "open": 2885, "dayHigh": 2910, "dayLow": 2880, "totalTradedVolume": 120000, "totalTradedValue": 348060000}},
    {"metadata": {"symbol": "TCS", "companyName": "Tata Consultancy Services", "lastPrice": 3800, "change": -30.7, "pChange": -0.8, "previousClose": 3830.7, "open": 3825, "dayHigh": 3840, "dayLow": 3795, "totalTradedVolume": 80000, "totalTradedValue": 304000000}}
  ],
  "niftyIndex": {"value": 22150.3, "change": 93.1, "pChange": 0.42}
}`

func bootstrapThenBoard(t *testing.T, board func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: "abc"})
	})
	mux.HandleFunc("/api/market-data-pre-open", board)
	return httptest.NewServer(mux)
}

func TestFetchQuotesSuccess(t *testing.T) {
	var gotCookie, gotKey string
	srv := bootstrapThenBoard(t, func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, boardPayload)
	})
	defer srv.Close()

	result := newTestMarket(srv.URL).FetchQuotes(context.Background())

	if !result.Success {
		t.Fatalf("成功响应不应失败: %s", result.Error)
	}
	if len(result.Samples) != 2 {
		t.Fatalf("期望 2 条样本, 实际 %d", len(result.Samples))
	}
	if result.Samples[0].Symbol != "RELIANCE" || !result.Samples[0].PChange.Equal(decimal.RequireFromString("0.6")) {
		t.Fatalf("首条样本解析错误: %+v", result.Samples[0])
	}
	if !result.IndexPChange.Equal(decimal.RequireFromString("0.42")) {
		t.Fatalf("应优先使用指数行 pChange, 实际 %s", result.IndexPChange)
	}
	if result.Latency <= 0 {
		t.Fatal("延迟应被记录")
	}
	if gotCookie == "" || !strings.Contains(gotCookie, "nsit=abc") {
		t.Fatalf("数据请求应携带会话 Cookie, 实际 %q", gotCookie)
	}
	if gotKey != "NIFTY" {
		t.Fatalf("查询键应透传, 实际 %q", gotKey)
	}
}

func TestFetchQuotesEmptyBoard(t *testing.T) {
	srv := bootstrapThenBoard(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data": []}`)
	})
	defer srv.Close()

	result := newTestMarket(srv.URL).FetchQuotes(context.Background())

	if !result.Success {
		t.Fatalf("空行情板应视为成功: %s", result.Error)
	}
	if len(result.Samples) != 0 {
		t.Fatalf("期望 0 条样本, 实际 %d", len(result.Samples))
	}
	if !result.IndexPChange.IsZero() {
		t.Fatalf("无样本时指数变动应为 0, 实际 %s", result.IndexPChange)
	}
}

func TestFetchQuotesSourceError(t *testing.T) {
	srv := bootstrapThenBoard(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "upstream exploded")
	})
	defer srv.Close()

	result := newTestMarket(srv.URL).FetchQuotes(context.Background())

	if result.Success {
		t.Fatal("HTTP 500 应视为失败")
	}
	if result.Error == "" || !strings.Contains(result.Error, "source status 500") {
		t.Fatalf("失败原因应包含状态码, 实际 %q", result.Error)
	}
	if len(result.Samples) != 0 {
		t.Fatal("失败结果不应携带样本")
	}
}

func TestFetchQuotesAuthRetryOnce(t *testing.T) {
	bootstraps := 0
	dataCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		bootstraps++
		http.SetCookie(w, &http.Cookie{Name: "nsit", Value: fmt.Sprintf("v%d", bootstraps)})
	})
	mux.HandleFunc("/api/market-data-pre-open", func(w http.ResponseWriter, r *http.Request) {
		dataCalls++
		if dataCalls == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, boardPayload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	result := newTestMarket(srv.URL).FetchQuotes(context.Background())

	if !result.Success {
		t.Fatalf("重建会话后重试应成功: %s", result.Error)
	}
	if bootstraps != 2 {
		t.Fatalf("401 应触发一次会话重建, 实际引导 %d 次", bootstraps)
	}
	if dataCalls != 2 {
		t.Fatalf("期望 2 次数据请求, 实际 %d", dataCalls)
	}
}

func TestFetchQuotesPersistentAuthRejection(t *testing.T) {
	srv := bootstrapThenBoard(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	defer srv.Close()

	result := newTestMarket(srv.URL).FetchQuotes(context.Background())

	if result.Success {
		t.Fatal("持续 403 应视为失败")
	}
	if result.Error != "auth" {
		t.Fatalf("二次拒绝的失败原因应为 auth, 实际 %q", result.Error)
	}
}

func TestFetchQuotesUnreachableSource(t *testing.T) {
	m := newTestMarket("http://127.0.0.1:1")

	result := m.FetchQuotes(context.Background())

	if result.Success {
		t.Fatal("源不可达应视为失败")
	}
	if result.Error == "" {
		t.Fatal("失败结果必须携带原因")
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrAuthFailed signals that a session could not be established within the
// bounded retry policy.
var ErrAuthFailed = errors.New("session: bootstrap failed after bounded retries")

// Context carries the authentication material attached to data requests.
// It lives only for the process lifetime and is rebuilt on demand.
type Context struct {
	Cookies    string
	UserAgent  string
	AcquiredAt time.Time
}

// Options parameterise the session manager.
type Options struct {
	BaseURL       string
	BootstrapPath string
	UserAgent     string
	MaxAttempts   int
	BackoffStep   time.Duration
	Timeout       time.Duration
}

// Manager owns the current session context. The fetcher reads contexts
// through Ensure and reports rejections through Invalidate; acquisition is
// serialised so at most one bootstrap sequence runs at a time.
type Manager struct {
	opts   Options
	logger zerolog.Logger
	client *http.Client

	mu      sync.Mutex
	current Context
	valid   bool
}

// NewManager constructs a session manager.
func NewManager(opts Options, logger zerolog.Logger) *Manager {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.BackoffStep <= 0 {
		opts.BackoffStep = 5 * time.Second
	}
	if opts.BootstrapPath == "" {
		opts.BootstrapPath = "/"
	}

	return &Manager{
		opts:   opts,
		logger: logger.With().Str("component", "session_manager").Logger(),
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Ensure returns a session context presumed valid, acquiring a fresh one if
// the last-issued context was invalidated or never established.
func (m *Manager) Ensure(ctx context.Context) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		return m.current, nil
	}

	var lastErr error
	for attempt := 1; attempt <= m.opts.MaxAttempts; attempt++ {
		acquired, err := m.bootstrap(ctx)
		if err == nil {
			m.current = acquired
			m.valid = true
			m.logger.Info().Int("attempt", attempt).Msg("session established")
			return m.current, nil
		}
		lastErr = err
		m.logger.Warn().Err(err).Int("attempt", attempt).Msg("session bootstrap failed")

		if attempt == m.opts.MaxAttempts {
			break
		}
		// attempt n backs off n x step before the next try
		if waitErr := sleepCtx(ctx, time.Duration(attempt)*m.opts.BackoffStep); waitErr != nil {
			return Context{}, waitErr
		}
	}

	return Context{}, fmt.Errorf("%w: %v", ErrAuthFailed, lastErr)
}

// Invalidate marks the current context as expired so the next Ensure
// performs a fresh acquisition.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.valid {
		m.logger.Debug().Time("acquired_at", m.current.AcquiredAt).Msg("session invalidated")
	}
	m.valid = false
}

func (m *Manager) bootstrap(ctx context.Context) (Context, error) {
	url := strings.TrimRight(m.opts.BaseURL, "/") + m.opts.BootstrapPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Context{}, fmt.Errorf("create bootstrap request: %w", err)
	}
	req.Header.Set("User-Agent", m.opts.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := m.client.Do(req)
	if err != nil {
		return Context{}, fmt.Errorf("bootstrap request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Context{}, fmt.Errorf("bootstrap status %d", resp.StatusCode)
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return Context{}, errors.New("no session cookies issued")
	}

	pairs := make([]string, 0, len(cookies))
	for _, cookie := range cookies {
		pairs = append(pairs, cookie.Name+"="+cookie.Value)
	}

	return Context{
		Cookies:    strings.Join(pairs, "; "),
		UserAgent:  m.opts.UserAgent,
		AcquiredAt: time.Now().UTC(),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

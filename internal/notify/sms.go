package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var nonDigits = regexp.MustCompile(`\D`)

// SMSOptions carry gateway connectivity for the SMS channel.
type SMSOptions struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// SMSChannel 通过 HTTP 网关发送短信，仅携带纯文本正文。
type SMSChannel struct {
	opts   SMSOptions
	logger zerolog.Logger
	client *http.Client
}

// NewSMSChannel constructs the SMS gateway channel.
func NewSMSChannel(opts SMSOptions, logger zerolog.Logger) *SMSChannel {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &SMSChannel{
		opts:   opts,
		logger: logger.With().Str("component", "sms_channel").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Name returns the channel identifier.
func (s *SMSChannel) Name() string { return "sms" }

// Send posts the plain-text body to the gateway for one phone number.
func (s *SMSChannel) Send(ctx context.Context, recipient string, msg Message) error {
	phone := nonDigits.ReplaceAllString(recipient, "")
	if len(phone) < 10 {
		return fmt.Errorf("invalid phone number %q", recipient)
	}

	payload := map[string]string{
		"to":      phone,
		"message": msg.Text,
		"api_key": s.opts.APIKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.APIURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway status %d", resp.StatusCode)
	}

	var result struct {
		Success bool `json:"success"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.Success {
			return fmt.Errorf("sms gateway returned success=false")
		}
	}

	s.logger.Debug().Str("to", maskPhone(phone)).Msg("sms accepted by gateway")
	return nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

var _ Channel = (*SMSChannel)(nil)

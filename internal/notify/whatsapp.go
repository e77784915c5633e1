package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// WhatsAppOptions carry Cloud API connectivity for the chat channel.
type WhatsAppOptions struct {
	APIURL        string
	PhoneNumberID string
	AccessToken   string
	Timeout       time.Duration
}

// WhatsAppChannel delivers alerts through the WhatsApp Cloud API.
type WhatsAppChannel struct {
	opts   WhatsAppOptions
	logger zerolog.Logger
	client *http.Client
}

// NewWhatsAppChannel constructs the chat-message channel.
func NewWhatsAppChannel(opts WhatsAppOptions, logger zerolog.Logger) *WhatsAppChannel {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &WhatsAppChannel{
		opts:   opts,
		logger: logger.With().Str("component", "whatsapp_channel").Logger(),
		client: &http.Client{Timeout: opts.Timeout},
	}
}

// Name returns the channel identifier.
func (w *WhatsAppChannel) Name() string { return "whatsapp" }

// Send posts the plain-text body to one phone number.
func (w *WhatsAppChannel) Send(ctx context.Context, recipient string, msg Message) error {
	phone := nonDigits.ReplaceAllString(recipient, "")
	if len(phone) < 10 {
		return fmt.Errorf("invalid phone number %q", recipient)
	}

	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                phone,
		"type":              "text",
		"text": map[string]interface{}{
			"preview_url": false,
			"body":        msg.Text,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal whatsapp payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(w.opts.APIURL, "/"), w.opts.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create whatsapp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.opts.AccessToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp api status %d", resp.StatusCode)
	}

	w.logger.Debug().Str("to", maskPhone(phone)).Msg("whatsapp message accepted")
	return nil
}

var _ Channel = (*WhatsAppChannel)(nil)

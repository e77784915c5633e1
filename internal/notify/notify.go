package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Message is a rendered notification body. Channels pick the variant they
// can carry: plain text everywhere, HTML where the transport supports it.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Channel delivers a message to a single recipient address.
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient string, msg Message) error
}

// Attempt records one delivery try. Ephemeral: used for logs only, never
// persisted, and never allowed to mutate the already-written poll record.
type Attempt struct {
	Recipient string
	Channel   string
	Delivered bool
	Err       error
}

type target struct {
	channel   Channel
	recipient string
}

// Dispatcher fans a message out to a fixed recipient set, one delivery task
// per recipient and channel. Failures are isolated per task and aggregated;
// Dispatch never returns an error.
type Dispatcher struct {
	targets []target
	logger  zerolog.Logger
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher(logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Register attaches a recipient list to a channel.
func (d *Dispatcher) Register(channel Channel, recipients []string) {
	for _, recipient := range recipients {
		d.targets = append(d.targets, target{channel: channel, recipient: recipient})
	}
}

// TargetCount reports the number of registered recipient/channel pairs.
func (d *Dispatcher) TargetCount() int {
	return len(d.targets)
}

// Dispatch 并发地向每个收件人投递，单个失败不影响其他投递。
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) []Attempt {
	attempts := make([]Attempt, len(d.targets))

	var wg sync.WaitGroup
	for i, tgt := range d.targets {
		wg.Add(1)
		go func(i int, tgt target) {
			defer wg.Done()

			err := tgt.channel.Send(ctx, tgt.recipient, msg)
			attempts[i] = Attempt{
				Recipient: tgt.recipient,
				Channel:   tgt.channel.Name(),
				Delivered: err == nil,
				Err:       err,
			}

			if err != nil {
				d.logger.Error().Err(err).
					Str("channel", tgt.channel.Name()).
					Str("recipient", tgt.recipient).
					Msg("delivery failed")
				return
			}
			d.logger.Info().
				Str("channel", tgt.channel.Name()).
				Str("recipient", tgt.recipient).
				Msg("delivered")
		}(i, tgt)
	}
	wg.Wait()

	return attempts
}

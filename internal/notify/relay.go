package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/ports"
)

// Publisher sends updates over Redis pub/sub so any API process can deliver
// them to its own websocket clients.
type Publisher struct {
	client  redis.UniversalClient
	channel string
	log     *slog.Logger
}

var _ ports.Notifier = (*Publisher)(nil)

func NewPublisher(client redis.UniversalClient, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, channel: channel, log: logger}
}

// EmitUpdate publishes e. Failures are logged; nothing is retried.
func (p *Publisher) EmitUpdate(ctx context.Context, e *model.Extraction) {
	if e == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		p.log.Warn("notify.publish.encode_failed", "extraction_id", e.ID, "error", err)
		return
	}
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		p.log.Warn("notify.publish_failed", "extraction_id", e.ID, "error", err)
	}
}

// Relay subscribes to the update channel and hands every message to a local
// notifier, usually the Hub.
type Relay struct {
	client  redis.UniversalClient
	channel string
	target  ports.Notifier
	log     *slog.Logger
}

func NewRelay(client redis.UniversalClient, channel string, target ports.Notifier, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, channel: channel, target: target, log: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info("notify.relay.subscribed", "channel", r.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription %s closed", r.channel)
			}
			var e model.Extraction
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				r.log.Warn("notify.relay.decode_failed", "error", err)
				continue
			}
			r.target.EmitUpdate(ctx, &e)
		}
	}
}

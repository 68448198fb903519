package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"
)

// ValkeyBridge is the multi-instance Transport: events are published to a
// Valkey channel per room and every instance relays what it receives to
// its local hub.
type ValkeyBridge struct {
	client valkey.Client
	prefix string
	local  *Hub
	log    *zap.Logger

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewValkeyBridge creates a bridge publishing on prefix+room channels.
func NewValkeyBridge(client valkey.Client, prefix string, local *Hub, log *zap.Logger) *ValkeyBridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &ValkeyBridge{
		client:     client,
		prefix:     prefix,
		local:      local,
		log:        log,
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// DialValkey connects to a single Valkey address.
func DialValkey(addr string) (valkey.Client, error) {
	return valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
}

// Publish implements Transport.
func (b *ValkeyBridge) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	cmd := b.client.B().Publish().Channel(b.prefix + ev.Room).Message(valkey.BinaryString(raw)).Build()
	return b.client.Do(ctx, cmd).Error()
}

// Run relays subscribed messages to the local hub until ctx is cancelled.
// A dropped subscription is re-established with exponential backoff.
func (b *ValkeyBridge) Run(ctx context.Context) error {
	return b.resubscribe(ctx, b.subscribe)
}

func (b *ValkeyBridge) subscribe(ctx context.Context) error {
	sub := b.client.B().Psubscribe().Pattern(b.prefix + "*").Build()
	return b.client.Receive(ctx, sub, func(msg valkey.PubSubMessage) {
		room := strings.TrimPrefix(msg.Channel, b.prefix)
		b.local.Relay(room, []byte(msg.Message))
	})
}

func (b *ValkeyBridge) resubscribe(ctx context.Context, subscribe func(context.Context) error) error {
	backoff := b.minBackoff
	for {
		started := time.Now()
		err := subscribe(ctx)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil
		}
		if time.Since(started) > b.maxBackoff {
			backoff = b.minBackoff
		}
		b.log.Warn("valkey: subscription ended, retrying", zap.Error(err), zap.Duration("backoff", backoff))

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		backoff *= 2
		if backoff > b.maxBackoff {
			backoff = b.maxBackoff
		}
	}
}

// Close releases the Valkey client.
func (b *ValkeyBridge) Close() { b.client.Close() }

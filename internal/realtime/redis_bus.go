package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultRedisChannel = "educircle-events"

// RedisBusConfig configures the redis pub/sub transport.
type RedisBusConfig struct {
	Address    string
	Channel    string
	Dispatcher *Dispatcher
	Logger     *zap.Logger
}

// RedisBus publishes events to a redis channel and forwards every message
// received on that channel to the local dispatcher.
type RedisBus struct {
	client     *goredis.Client
	channel    string
	dispatcher *Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

func NewRedisBus(ctx context.Context, cfg RedisBusConfig) (*RedisBus, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errors.New("realtime: redis address required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("realtime: dispatcher required")
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = defaultRedisChannel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        address,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("realtime: redis ping: %w", err)
	}

	return &RedisBus{
		client:     client,
		channel:    channel,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		clock:      time.Now,
	}, nil
}

func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(stamp(event, b.clock))
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

// Start subscribes to the channel and forwards messages until ctx is done.
func (b *RedisBus) Start(ctx context.Context) error {
	subscription := b.client.Subscribe(ctx, b.channel)
	if _, err := subscription.Receive(ctx); err != nil {
		_ = subscription.Close()
		return fmt.Errorf("realtime: redis subscribe: %w", err)
	}

	go func() {
		defer subscription.Close()
		messages := subscription.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case message, ok := <-messages:
				if !ok || message == nil {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
					b.logger.Warn("bad realtime payload", zap.Error(err))
					continue
				}
				b.dispatcher.Publish(event)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

package report

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers a finished report.
type Publisher interface {
	Publish(ctx context.Context, r *Report) error
}

// Redis key and channel defaults.
const (
	DefaultChannel    = "adchecklist:runs"
	DefaultLastKey    = "adchecklist:run:last"
	DefaultHistoryKey = "adchecklist:run:history"
	DefaultHistoryLen = 50
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	// Channel receives every published report. Defaults to DefaultChannel.
	Channel string

	// Prefix namespaces the last-run and history keys, e.g. per engagement.
	Prefix string

	// HistoryLen bounds the kept report history. Defaults to DefaultHistoryLen.
	HistoryLen int
}

// RedisPublisher publishes reports on a pub/sub channel and keeps the last
// report and a bounded history in Redis.
type RedisPublisher struct {
	client     *redis.Client
	channel    string
	lastKey    string
	historyKey string
	historyLen int64
}

// NewRedisPublisher connects to Redis.
func NewRedisPublisher(opts RedisOptions) (*RedisPublisher, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 5 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.HistoryLen <= 0 {
		opts.HistoryLen = DefaultHistoryLen
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisPublisher{
		client:     client,
		channel:    opts.Channel,
		lastKey:    opts.Prefix + DefaultLastKey,
		historyKey: opts.Prefix + DefaultHistoryKey,
		historyLen: int64(opts.HistoryLen),
	}, nil
}

// Publish stores r as the last report, prepends it to the history and sends
// it on the channel.
func (p *RedisPublisher) Publish(ctx context.Context, r *Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.lastKey, data, 0)
	pipe.LPush(ctx, p.historyKey, data)
	pipe.LTrim(ctx, p.historyKey, 0, p.historyLen-1)
	pipe.Publish(ctx, p.channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish report %s: %w", r.RunID, err)
	}
	return nil
}

// Last returns the most recently published report, or nil if none exists.
func (p *RedisPublisher) Last(ctx context.Context) (*Report, error) {
	data, err := p.client.Get(ctx, p.lastKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last report: %w", err)
	}

	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}
	return &r, nil
}

// History returns up to n most recent reports, newest first.
func (p *RedisPublisher) History(ctx context.Context, n int) ([]*Report, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := p.client.LRange(ctx, p.historyKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read report history: %w", err)
	}

	out := make([]*Report, 0, len(items))
	for _, item := range items {
		var r Report
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			// Skip entries written by an incompatible version.
			continue
		}
		out = append(out, &r)
	}
	return out, nil
}

// Subscribe delivers reports published after the subscription is confirmed
// until ctx is cancelled.
func (p *RedisPublisher) Subscribe(ctx context.Context) (<-chan *Report, error) {
	pubsub := p.client.Subscribe(ctx, p.channel)

	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", p.channel, err)
	}

	out := make(chan *Report)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var r Report
				if err := json.Unmarshal([]byte(msg.Payload), &r); err != nil {
					continue
				}
				select {
				case out <- &r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

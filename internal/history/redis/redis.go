package redis

import (
	"context"
	"encoding/json"
	"fmt"

	backend "github.com/redis/go-redis/v9"

	"github.com/loykin/toystudio/internal/history"
)

const (
	DefaultKey    = "toystudio:history"
	DefaultMaxLen = 10000
	pageSize      = 500
)

// Sink keeps events as JSON documents in a capped Redis list, newest at the head.
type Sink struct {
	client *backend.Client
	key    string
	maxLen int64
}

type Option func(*Sink)

// WithKey sets the list key.
func WithKey(key string) Option {
	return func(s *Sink) {
		if key != "" {
			s.key = key
		}
	}
}

// WithMaxLen caps the number of retained events.
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		if n > 0 {
			s.maxLen = n
		}
	}
}

// New parses a redis:// or rediss:// URL. A "key" query parameter overrides the list key.
func New(dsn string, opts ...Option) (*Sink, error) {
	u, key, err := splitKey(dsn)
	if err != nil {
		return nil, err
	}
	o, err := backend.ParseURL(u)
	if err != nil {
		return nil, fmt.Errorf("parse redis DSN: %w", err)
	}
	return NewFromClient(backend.NewClient(o), append([]Option{WithKey(key)}, opts...)...), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Sink {
	s := &Sink{client: client, key: DefaultKey, maxLen: DefaultMaxLen}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, b)
	pipe.LTrim(ctx, s.key, 0, s.maxLen-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Query walks the list from the head until the limit is satisfied.
func (s *Sink) Query(ctx context.Context, f history.Filter) ([]history.Event, error) {
	limit := f.EffectiveLimit()
	out := make([]history.Event, 0, limit)
	for start := int64(0); len(out) < limit; start += pageSize {
		items, err := s.client.LRange(ctx, s.key, start, start+pageSize-1).Result()
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			var e history.Event
			if err := json.Unmarshal([]byte(it), &e); err != nil {
				return nil, fmt.Errorf("decode history entry: %w", err)
			}
			if f.Product != "" && e.Product != f.Product {
				continue
			}
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
		if len(items) < pageSize {
			break
		}
	}
	return out, nil
}

func (s *Sink) Close() error { return s.client.Close() }

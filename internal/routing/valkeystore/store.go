// Package valkeystore implements a shared directions cache on Valkey.
package valkeystore

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/breatheroute/cleanroute/internal/routing"
)

const defaultKeyPrefix = "cleanroute:directions:"

// Config holds configuration for the Valkey store.
type Config struct {
	// Addr is the Valkey address (host:port).
	Addr string

	// KeyPrefix namespaces cache keys (default: "cleanroute:directions:").
	KeyPrefix string
}

// Store implements routing.CacheStore using Valkey.
type Store struct {
	client valkey.Client
	prefix string
}

// New connects to Valkey and returns a store.
func New(cfg Config) (*Store, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{cfg.Addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client valkey.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Get implements routing.CacheStore.
func (s *Store) Get(ctx context.Context, key string) (*routing.CachedDirections, bool, error) {
	cmd := s.client.Do(ctx, s.client.B().Get().Key(s.prefix+key).Build())
	if err := cmd.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	b, err := cmd.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	entry, err := routing.UnmarshalCached(b)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set implements routing.CacheStore.
func (s *Store) Set(ctx context.Context, key string, entry *routing.CachedDirections, retention time.Duration) error {
	b, err := routing.MarshalCached(entry)
	if err != nil {
		return fmt.Errorf("encode cached directions: %w", err)
	}
	if retention < time.Second {
		retention = time.Second
	}
	cmd := s.client.Do(ctx,
		s.client.B().Set().Key(s.prefix+key).Value(valkey.BinaryString(b)).Ex(retention).Build(),
	)
	if err := cmd.Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close releases the client.
func (s *Store) Close() {
	s.client.Close()
}

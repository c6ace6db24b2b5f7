// Package redisstore persists persona narration state in Redis so that a
// restarted narrator resumes each persona's history, last line and penalty.
//
// Each persona is stored as a JSON document under "<prefix>state:<name>" and
// its name is added to the set "<prefix>personas".
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/MrWong99/narrator/internal/narration"
)

// DefaultPrefix is the key prefix used when none is configured.
const DefaultPrefix = "narrator:"

// Store is a narration.StateStore backed by Redis. It is safe for concurrent
// use.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a [Store].
type Option func(*Store)

// WithPrefix overrides [DefaultPrefix].
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// New wraps an existing client. The caller owns the client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultPrefix}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Dial connects to the Redis server at addr and verifies the connection.
// The returned store owns the client; call [Store.Close] when done.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: ping %s: %w", addr, err)
	}
	return New(client, opts...), nil
}

func (s *Store) stateKey(persona string) string { return s.prefix + "state:" + persona }
func (s *Store) indexKey() string               { return s.prefix + "personas" }

// LoadState returns the stored state of persona. The boolean is false when
// nothing was stored.
func (s *Store) LoadState(ctx context.Context, persona string) (narration.State, bool, error) {
	raw, err := s.client.Get(ctx, s.stateKey(persona)).Bytes()
	if errors.Is(err, redis.Nil) {
		return narration.State{}, false, nil
	}
	if err != nil {
		return narration.State{}, false, fmt.Errorf("redisstore: load %q: %w", persona, err)
	}
	var st narration.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return narration.State{}, false, fmt.Errorf("redisstore: decode %q: %w", persona, err)
	}
	return st, true, nil
}

// SaveState stores st for persona.
func (s *Store) SaveState(ctx context.Context, persona string, st narration.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redisstore: encode %q: %w", persona, err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.stateKey(persona), raw, 0)
		pipe.SAdd(ctx, s.indexKey(), persona)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: save %q: %w", persona, err)
	}
	return nil
}

// Delete removes the stored state of persona.
func (s *Store) Delete(ctx context.Context, persona string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.stateKey(persona))
		pipe.SRem(ctx, s.indexKey(), persona)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: delete %q: %w", persona, err)
	}
	return nil
}

// Personas returns the names with stored state, sorted.
func (s *Store) Personas(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list personas: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

// Ping checks the connection. It satisfies the health checker signature.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ narration.StateStore = (*Store)(nil)

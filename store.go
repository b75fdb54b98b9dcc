/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store persists room state keyed by room token.
type Store interface {
	// Create fails with ErrConflict if the token is already in use.
	Create(ctx context.Context, s *RoomState) error
	// Load fails with ErrNotFound if the token is unknown.
	Load(ctx context.Context, token string) (*RoomState, error)
	Save(ctx context.Context, s *RoomState) error
}

func encodeState(s *RoomState) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encoding room %s: %w", s.RoomToken, err)
	}
	return data, nil
}

func decodeState(token string, data []byte) (*RoomState, error) {
	var s RoomState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding room %s: %w", token, err)
	}

	if s.Players == nil {
		s.Players = []Player{}
	}
	if s.Decisions == nil {
		s.Decisions = make(map[string]Decision)
	}
	if s.History == nil {
		s.History = newEventLog(historyCapacity)
	}

	return &s, nil
}

// memoryStore keeps encoded snapshots so callers never share state with it.
type memoryStore struct {
	mu    sync.RWMutex
	rooms map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		rooms: make(map[string][]byte),
	}
}

func (m *memoryStore) Create(_ context.Context, s *RoomState) error {
	data, err := encodeState(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[s.RoomToken]; exists {
		return conflictf("room %s already exists", s.RoomToken)
	}
	m.rooms[s.RoomToken] = data

	return nil
}

func (m *memoryStore) Load(_ context.Context, token string) (*RoomState, error) {
	m.mu.RLock()
	data, ok := m.rooms[token]
	m.mu.RUnlock()

	if !ok {
		return nil, notFoundf("room %s not found", token)
	}

	return decodeState(token, data)
}

func (m *memoryStore) Save(_ context.Context, s *RoomState) error {
	data, err := encodeState(s)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.rooms[s.RoomToken] = data

	return nil
}

const redisKeyPrefix = "pushluck:room:"

type redisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func newRedisStore(cfg *Config) (*redisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
		DB:       cfg.redisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.redisAddr, err)
	}

	return &redisStore{rdb: rdb, ttl: cfg.redisTTL}, nil
}

func (r *redisStore) Create(ctx context.Context, s *RoomState) error {
	data, err := encodeState(s)
	if err != nil {
		return err
	}

	ok, err := r.rdb.SetNX(ctx, redisKeyPrefix+s.RoomToken, data, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create room %s in Redis: %w", s.RoomToken, err)
	}
	if !ok {
		return conflictf("room %s already exists", s.RoomToken)
	}

	return nil
}

func (r *redisStore) Load(ctx context.Context, token string) (*RoomState, error) {
	data, err := r.rdb.Get(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, notFoundf("room %s not found", token)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room %s from Redis: %w", token, err)
	}

	return decodeState(token, data)
}

func (r *redisStore) Save(ctx context.Context, s *RoomState) error {
	data, err := encodeState(s)
	if err != nil {
		return err
	}

	if err := r.rdb.Set(ctx, redisKeyPrefix+s.RoomToken, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save room %s to Redis: %w", s.RoomToken, err)
	}

	return nil
}

func (r *redisStore) Close() error {
	return r.rdb.Close()
}

func newStore(cfg *Config) (Store, func() error, error) {
	if cfg.redisAddr == "" {
		return newMemoryStore(), func() error { return nil }, nil
	}

	rs, err := newRedisStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	return rs, rs.Close, nil
}

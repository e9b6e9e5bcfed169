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

// ErrRunNotFound is returned when no finished run is stored under an ID.
var ErrRunNotFound = errors.New("run not found")

// ReportStore keeps finished runs so their reports can be downloaded later.
type ReportStore interface {
	Save(ctx context.Context, run *SendRun) error
	Get(ctx context.Context, id string) (*SendRun, error)
}

type memoryReportStore struct {
	mu   sync.RWMutex
	runs map[string]*SendRun
}

func NewMemoryReportStore() ReportStore {
	return &memoryReportStore{runs: make(map[string]*SendRun)}
}

func (s *memoryReportStore) Save(_ context.Context, run *SendRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *memoryReportStore) Get(_ context.Context, id string) (*SendRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	return run, nil
}

// RedisReportStore stores runs as JSON under "run:<id>" with a TTL.
type RedisReportStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisReportStore(rdb *redis.Client, ttl time.Duration) *RedisReportStore {
	return &RedisReportStore{rdb: rdb, ttl: ttl}
}

func runKey(id string) string { return "run:" + id }

func (s *RedisReportStore) Save(ctx context.Context, run *SendRun) error {
	b, err := json.Marshal(run)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, runKey(run.ID), b, s.ttl).Err()
}

func (s *RedisReportStore) Get(ctx context.Context, id string) (*SendRun, error) {
	b, err := s.rdb.Get(ctx, runKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	var run SendRun
	if err := json.Unmarshal(b, &run); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &run, nil
}

// NewReportStore picks Redis when an address is configured, memory otherwise.
func NewReportStore(ctx context.Context, cfg RedisConfig) (ReportStore, func() error, error) {
	if cfg.Addr == "" {
		return NewMemoryReportStore(), func() error { return nil }, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	return NewRedisReportStore(rdb, ttl), rdb.Close, nil
}

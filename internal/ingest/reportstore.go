package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"villageops/internal/platform/redis"
	"villageops/pkg/domain"
	"villageops/pkg/platform/sentinel"
)

// ReportStore keeps batch reports queryable after the import returns.
type ReportStore interface {
	Save(ctx context.Context, result *BatchResult) error
	Find(ctx context.Context, batchID domain.BatchID) (*BatchResult, error)
}

// RedisReportStore keeps reports in Redis with a TTL. Reports are operational
// convenience data; the audit trail and the entities themselves are the
// durable record, so expiry is acceptable.
type RedisReportStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisReportStore creates a report store over the shared Redis client.
func NewRedisReportStore(client *redis.Client, ttl time.Duration) *RedisReportStore {
	return &RedisReportStore{client: client, ttl: ttl}
}

func reportKey(batchID domain.BatchID) string {
	return "villageops:import:" + batchID.String()
}

func (s *RedisReportStore) Save(ctx context.Context, result *BatchResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal import report: %w", err)
	}
	if err := s.client.Set(ctx, reportKey(result.BatchID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store import report: %w", err)
	}
	return nil
}

func (s *RedisReportStore) Find(ctx context.Context, batchID domain.BatchID) (*BatchResult, error) {
	payload, err := s.client.Get(ctx, reportKey(batchID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load import report: %w", err)
	}
	var result BatchResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal import report: %w", err)
	}
	return &result, nil
}

// InMemoryReportStore keeps reports in a map. Used in tests and when Redis is
// not configured.
type InMemoryReportStore struct {
	mu      sync.Mutex
	reports map[domain.BatchID]*BatchResult
}

// NewInMemoryReportStore creates an empty in-memory report store.
func NewInMemoryReportStore() *InMemoryReportStore {
	return &InMemoryReportStore{reports: make(map[domain.BatchID]*BatchResult)}
}

func (s *InMemoryReportStore) Save(_ context.Context, result *BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *result
	s.reports[result.BatchID] = &copied
	return nil
}

func (s *InMemoryReportStore) Find(_ context.Context, batchID domain.BatchID) (*BatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.reports[batchID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *result
	return &copied, nil
}

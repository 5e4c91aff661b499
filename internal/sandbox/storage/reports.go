package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ReportStore counts tracking reports per slot and ad.
type ReportStore interface {
	Record(ctx context.Context, slotID, adID string) error
	Count(ctx context.Context, slotID, adID string) (int64, error)
}

func reportKey(slotID, adID string) string { return "report:" + slotID + ":" + adID }

type MemoryReports struct {
	mu     sync.RWMutex
	counts map[string]int64
}

func NewMemoryReports() *MemoryReports {
	return &MemoryReports{counts: make(map[string]int64)}
}

func (m *MemoryReports) Record(_ context.Context, slotID, adID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[reportKey(slotID, adID)]++
	return nil
}

func (m *MemoryReports) Count(_ context.Context, slotID, adID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counts[reportKey(slotID, adID)], nil
}

type RedisReports struct {
	client *redis.Client
}

func NewRedisReports(addr string) *RedisReports {
	return &RedisReports{
		client: redis.NewClient(&redis.Options{Addr: addr}),
	}
}

func (r *RedisReports) Record(ctx context.Context, slotID, adID string) error {
	return r.client.Incr(ctx, reportKey(slotID, adID)).Err()
}

func (r *RedisReports) Count(ctx context.Context, slotID, adID string) (int64, error) {
	n, err := r.client.Get(ctx, reportKey(slotID, adID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func (r *RedisReports) Close() error { return r.client.Close() }

package store

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/pkg/metrics"
)

// BreakerSettings 是熔断参数，零值字段使用默认值。
type BreakerSettings struct {
	// ConsecutiveFailures 连续失败多少次后熔断，默认 5
	ConsecutiveFailures uint32
	// Timeout 熔断后多久进入半开状态，默认 30s
	Timeout time.Duration
	// MaxRequests 半开状态允许的探测请求数，默认 1
	MaxRequests uint32
}

// BreakerStore 为远程 KeyValueStore（通常是 Redis）加熔断：后端持续失败时快速返回
// UNAVAILABLE，避免每次估计都等待网络超时。key 不存在（ErrStoreNotFound）不计为失败。
type BreakerStore struct {
	inner core.KeyValueStore
	cb    *gobreaker.CircuitBreaker[any]
}

// NewBreakerStore 用熔断器包装 inner。
func NewBreakerStore(inner core.KeyValueStore, s BreakerSettings) *BreakerStore {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}

	name := inner.Name()
	metrics.StoreBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: s.MaxRequests,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("store", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("store circuit breaker state changed")
			metrics.StoreBreakerState.WithLabelValues(name).Set(float64(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || core.IsStoreNotFound(err) || errors.Is(err, context.Canceled)
		},
	})
	return &BreakerStore{inner: inner, cb: cb}
}

// State 返回熔断器当前状态（closed / half-open / open）。
func (b *BreakerStore) State() string { return b.cb.State().String() }

func (b *BreakerStore) Name() string { return b.inner.Name() }

func (b *BreakerStore) execute(fn func() (any, error)) (any, error) {
	out, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.StoreBreakerRejected.WithLabelValues(b.inner.Name()).Inc()
		return nil, core.NewDomainError(core.ModuleStore, core.ErrorCodeUnavailable, "store: "+b.inner.Name()+": "+err.Error())
	}
	return out, err
}

func (b *BreakerStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.execute(func() (any, error) { return b.inner.Get(ctx, key) })
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (b *BreakerStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.Set(ctx, key, value, ttl...) })
	return err
}

func (b *BreakerStore) Delete(ctx context.Context, key string) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.Delete(ctx, key) })
	return err
}

func (b *BreakerStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	out, err := b.execute(func() (any, error) { return b.inner.HGet(ctx, key, field) })
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

func (b *BreakerStore) HSet(ctx context.Context, key, field string, value []byte) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.HSet(ctx, key, field, value) })
	return err
}

func (b *BreakerStore) HDel(ctx context.Context, key, field string) error {
	_, err := b.execute(func() (any, error) { return nil, b.inner.HDel(ctx, key, field) })
	return err
}

func (b *BreakerStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	out, err := b.execute(func() (any, error) { return b.inner.HGetAll(ctx, key) })
	if err != nil {
		return nil, err
	}
	return out.(map[string][]byte), nil
}

func (b *BreakerStore) Close() error { return b.inner.Close() }

var _ core.KeyValueStore = (*BreakerStore)(nil)

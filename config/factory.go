package config

import (
	"context"
	"fmt"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/model"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/store"
)

// OpenStore 按 cfg.Backend 创建 KeyValueStore；redis 后端在 cfg.Breaker 为 true 时包一层熔断。
func OpenStore(cfg StoreConfig) (core.KeyValueStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "redis":
		rs, err := store.NewRedisStore(cfg.Addr, cfg.DB)
		if err != nil {
			return nil, err
		}
		if cfg.Breaker {
			return store.NewBreakerStore(rs, store.BreakerSettings{}), nil
		}
		return rs, nil
	case "badger":
		return store.NewBadgerStore(cfg.Path)
	}
	return nil, core.InvalidInputf(core.ModuleConfig, "config: unknown store backend %q", cfg.Backend)
}

// OpenDataModel 打开存储后端并返回其上的 StoreDataModel；调用方负责 Close。
// 打开后会读取一次用户注册表，确认后端可用。
func OpenDataModel(ctx context.Context, cfg StoreConfig) (*model.StoreDataModel, error) {
	kv, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	var opts []model.StoreOption
	if cfg.MaxPreference > cfg.MinPreference {
		opts = append(opts, model.WithStoreBounds(cfg.MinPreference, cfg.MaxPreference))
	}
	m := model.NewStoreDataModel(kv, cfg.KeyPrefix, opts...)

	n, err := m.NumUsers(ctx)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("open data model: %w", err)
	}
	logging.Info().
		Str("backend", kv.Name()).
		Str("key_prefix", m.KeyPrefix).
		Int("users", n).
		Msg("data model opened")
	return m, nil
}

package filter

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/goccy/go-json"

	"github.com/rushteam/cfkit/core"
)

// BlacklistFilter 是黑名单过滤器，过滤掉黑名单中的物品。
// 黑名单来自内存列表 ItemIDs，以及 Store 中 Key 下保存的 JSON 数组（可选）。
type BlacklistFilter struct {
	// ItemIDs 是内存中的黑名单物品 ID 列表
	ItemIDs []string

	// Store 用于从存储中读取黑名单（可选）
	Store core.Store

	// Key 是 Store 中的黑名单 key（可选）
	Key string

	once sync.Once
	set  map[string]struct{}
}

// NewBlacklistFilter 创建一个黑名单过滤器。
func NewBlacklistFilter(itemIDs []string, s core.Store, key string) *BlacklistFilter {
	return &BlacklistFilter{ItemIDs: itemIDs, Store: s, Key: key}
}

func (f *BlacklistFilter) Name() string {
	return "filter.blacklist"
}

func (f *BlacklistFilter) ShouldFilter(
	ctx context.Context,
	_ *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}

	f.once.Do(func() {
		f.set = make(map[string]struct{}, len(f.ItemIDs))
		for _, id := range f.ItemIDs {
			f.set[id] = struct{}{}
		}
	})
	if _, ok := f.set[item.ID]; ok {
		return true, nil
	}

	// Store 中的黑名单可能随时更新，每次读取
	if f.Store != nil && f.Key != "" {
		ids, err := loadIDs(ctx, f.Store, f.Key)
		if err != nil {
			return false, err
		}
		return slices.Contains(ids, item.ID), nil
	}

	return false, nil
}

// loadIDs 读取 key 下的 JSON 字符串数组，key 不存在时返回空。
func loadIDs(ctx context.Context, s core.Store, key string) ([]string, error) {
	data, err := s.Get(ctx, key)
	if core.IsStoreNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode id list %s: %w", key, err)
	}
	return ids, nil
}

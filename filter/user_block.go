package filter

import (
	"context"
	"slices"

	"github.com/rushteam/cfkit/core"
)

// UserBlockFilter 过滤掉用户自己屏蔽的物品（"不感兴趣"）。
// 屏蔽列表保存在 {KeyPrefix}:{userID} 下，值为物品 ID 的 JSON 数组。
type UserBlockFilter struct {
	Store core.Store

	// KeyPrefix 默认 "cf:blocked"
	KeyPrefix string
}

func (f *UserBlockFilter) Name() string {
	return "filter.user_block"
}

func (f *UserBlockFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil || rctx.UserID == "" || f.Store == nil {
		return false, nil
	}
	prefix := f.KeyPrefix
	if prefix == "" {
		prefix = "cf:blocked"
	}
	ids, err := loadIDs(ctx, f.Store, prefix+":"+rctx.UserID)
	if err != nil {
		return false, err
	}
	return slices.Contains(ids, item.ID), nil
}

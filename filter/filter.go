// Package filter 提供 Pipeline 的过滤节点：剔除用户已评分、已曝光、黑名单中的物品，或按表达式过滤。
package filter

import (
	"context"

	"github.com/rushteam/cfkit/core"
)

// Filter 判断一个候选物品是否应该被移除（返回 true 表示移除）。
type Filter interface {
	Name() string
	ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)
}

// FilterFunc 把普通函数适配为 Filter，Name 固定为 "filter.func"。
type FilterFunc func(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error)

func (f FilterFunc) Name() string { return "filter.func" }

func (f FilterFunc) ShouldFilter(ctx context.Context, rctx *core.RecommendContext, item *core.Item) (bool, error) {
	return f(ctx, rctx, item)
}

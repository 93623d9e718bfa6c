package filter

import (
	"context"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/dsl"
)

// ExprFilter 用 CEL 表达式过滤，表达式为 true 的物品被移除，语法见 dsl.Eval。
// 例如：label.cf_algo == "popular" && item.score < 3.0
type ExprFilter struct {
	Expr string
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil {
		return true, nil
	}
	return dsl.NewEval(item, rctx).Evaluate(f.Expr)
}

// Package recall 把推荐器接入 Pipeline：每个召回源产出一组带分数和标签的候选物品，
// Fanout 并发执行多个召回源并合并结果。
package recall

import (
	"context"

	"github.com/rushteam/cfkit/core"
)

// Source 表示一个可复用的召回源（usercf / itemcf / slopeone / popular）。
// 可以把它理解为“可并发 fan-out 的策略单元”。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error)
}

// 标签键
const (
	LabelRecallSource   = "recall_source"
	LabelRecallPriority = "recall_priority"
	LabelCFAlgo         = "cf_algo"
)

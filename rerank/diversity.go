package rerank

import (
	"context"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
)

// Diversity 是一个按标签打散的 ReRank 节点：同一标签值最多保留 MaxPerValue 个物品，
// 按输入顺序保留先出现的。默认按 cf_algo 打散，避免结果被单一算法占满。
// 标签值来源优先级：
//   - label[LabelKey] 的第一个取值（多个召回源合并时为优先级最高的来源）
//   - meta[LabelKey] (string)
//
// 没有该标签的物品总是保留。
type Diversity struct {
	LabelKey    string // 默认 "cf_algo"
	MaxPerValue int    // 默认 1
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	_ *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 {
		return items, nil
	}

	key := n.LabelKey
	if key == "" {
		key = "cf_algo"
	}
	limit := n.MaxPerValue
	if limit <= 0 {
		limit = 1
	}

	seen := make(map[string]int, 8)
	out := make([]*core.Item, 0, len(items))

	for _, it := range items {
		if it == nil {
			continue
		}

		value := ""
		if lbl, ok := it.Labels[key]; ok {
			value = lbl.Primary()
		}
		if value == "" && it.Meta != nil {
			if s, ok := it.Meta[key].(string); ok {
				value = s
			}
		}

		if value == "" {
			out = append(out, it)
			continue
		}
		if seen[value] >= limit {
			continue
		}
		seen[value]++
		out = append(out, it)
	}

	return out, nil
}

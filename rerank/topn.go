package rerank

import (
	"context"
	"fmt"
	"sort"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
	"github.com/rushteam/cfkit/pkg/dsl"
)

// TopNNode 是一个 Top-N 节点：可选地用 CEL 表达式过滤，按 Score 降序稳定排序后截取前 N 个。
// 通常放在召回（Fanout）之后，作为 Pipeline 的最后一步。
//
// 示例：
//
//	pipeline := &pipeline.Pipeline{
//	    Nodes: []pipeline.Node{
//	        &recall.Fanout{...},
//	        &rerank.TopNNode{N: 20, Filter: `item.score >= 3.0`},
//	    },
//	}
type TopNNode struct {
	// N 要保留的物品数量，≤ 0 时只排序不截断
	N int

	// Filter 可选的过滤表达式，返回 false 的物品被丢弃，语法见 dsl.Eval
	Filter string
}

func (n *TopNNode) Name() string {
	return "rerank.topn"
}

func (n *TopNNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *TopNNode) Process(
	_ context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	out := make([]*core.Item, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		if n.Filter != "" {
			keep, err := dsl.NewEval(it, rctx).Evaluate(n.Filter)
			if err != nil {
				return nil, fmt.Errorf("rerank.topn filter: %w", err)
			}
			if !keep {
				continue
			}
		}
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n.N > 0 && len(out) > n.N {
		out = out[:n.N]
	}
	return out, nil
}

package filter

import (
	"context"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
	"github.com/rushteam/cfkit/pkg/logging"
)

// FilterNode 是过滤 Node，可以组合多个过滤器进行过滤。
// 如果任何一个过滤器返回 true，该物品就会被过滤掉。
// 过滤器出错时记录日志并视为不过滤，不中断流程。
type FilterNode struct {
	Filters []Filter
}

func (n *FilterNode) Name() string {
	return "filter"
}

func (n *FilterNode) Kind() pipeline.Kind {
	return pipeline.KindFilter
}

func (n *FilterNode) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(n.Filters) == 0 || len(items) == 0 {
		return items, nil
	}

	out := make([]*core.Item, 0, len(items))
	filtered := make(map[string]int, len(n.Filters))

	for _, item := range items {
		if item == nil {
			continue
		}

		reason := ""
		for _, f := range n.Filters {
			ok, err := f.ShouldFilter(ctx, rctx, item)
			if err != nil {
				logging.Warn().Err(err).Str("filter", f.Name()).Str("item_id", item.ID).Msg("filter failed")
				continue
			}
			if ok {
				reason = f.Name()
				break
			}
		}
		if reason != "" {
			filtered[reason]++
			continue
		}
		out = append(out, item)
	}

	if len(filtered) > 0 {
		ev := logging.Debug().Int("in", len(items)).Int("out", len(out))
		for name, count := range filtered {
			ev = ev.Int(name, count)
		}
		ev.Msg("items filtered")
	}
	return out, nil
}

var _ pipeline.Node = (*FilterNode)(nil)

package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/logging"
)

// Pipeline 把推荐逻辑拆成可组合的 Node 链：召回 → 过滤 → 重排。
type Pipeline struct {
	Name  string
	Nodes []Node
}

// Run 依次执行各个 Node，上一个 Node 的输出是下一个 Node 的输入。
// 每次执行分配一个 run_id，同一次执行的节点日志可以据此关联。
func (p *Pipeline) Run(
	ctx context.Context,
	rctx *core.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	runID := uuid.NewString()
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if err != nil {
			logging.Warn().Err(err).Str("run_id", runID).Str("node", node.Name()).Msg("node failed")
			return nil, err
		}
		logging.Debug().
			Str("run_id", runID).
			Str("pipeline", p.Name).
			Str("node", node.Name()).
			Str("kind", string(node.Kind())).
			Int("in", len(cur)).
			Int("out", len(next)).
			Dur("took", time.Since(start)).
			Msg("node processed")
		cur = next
	}
	return cur, nil
}

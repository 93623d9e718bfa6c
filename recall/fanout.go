package recall

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/pkg/metrics"
	"github.com/rushteam/cfkit/pkg/utils"
)

// Fanout 是一个 Recall Node：并发执行多个召回源，并合并结果。
// 支持超时、限流、优先级合并策略。
//
// 单个召回源失败或超时不会中断其它召回源，只记录日志和 recall_source_errors_total。
type Fanout struct {
	Sources       []Source
	Dedup         bool
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	MergeStrategy MergeStrategy // 为空时使用 FirstMergeStrategy
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	var (
		mu        sync.Mutex
		completed = make([]SourceResult, 0, len(n.Sources))
		eg        errgroup.Group
	)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		eg.Go(func() error {
			// 超时控制
			recallCtx := ctx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(ctx, n.Timeout)
				defer cancel()
			}

			items, err := src.Recall(recallCtx, rctx)
			if err != nil {
				metrics.RecallSourceErrors.WithLabelValues(src.Name()).Inc()
				logging.Warn().Err(err).Str("source", src.Name()).Msg("recall source failed")
				return nil
			}

			// 记录召回来源 label，方便 explain / 观测
			priority := strconv.Itoa(i)
			for _, it := range items {
				if it == nil {
					continue
				}
				if _, ok := it.Labels[LabelRecallSource]; !ok {
					it.PutLabel(LabelRecallSource, utils.Label{Value: src.Name(), Source: "recall"})
				}
				it.PutLabel(LabelRecallPriority, utils.Label{Value: priority, Source: "recall"})
			}

			mu.Lock()
			completed = append(completed, SourceResult{Source: src.Name(), Priority: i, Items: items})
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	strategy := n.MergeStrategy
	if strategy == nil {
		strategy = &FirstMergeStrategy{}
	}
	out := strategy.Merge(completed, n.Dedup)
	logging.Debug().
		Int("sources", len(n.Sources)).
		Int("succeeded", len(completed)).
		Int("items", len(out)).
		Msg("fanout merged")
	return out, nil
}

var _ pipeline.Node = (*Fanout)(nil)

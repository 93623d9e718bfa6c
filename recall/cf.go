package recall

import (
	"context"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/pkg/utils"
	"github.com/rushteam/cfkit/recommender"
)

// CFSource 把一个协同过滤推荐器包装成召回源，同时实现 Source 和 pipeline.Node。
//
// 产出的物品 Score 为估计偏好（经过 Rescorer 变换），并带有标签：
//   - recall_source：召回源名称，例如 recall.usercf
//   - cf_algo：推荐算法名，例如 usercf
//
// 用户不在数据模型中（冷启动）时返回空结果，交给其它召回源补足。
type CFSource struct {
	Recommender recommender.Recommender

	// TopK 召回数量，≤ 0 时使用 10
	TopK int

	// Rescorer 默认重打分器；rctx.Rescorer 非空时优先使用请求级的
	Rescorer core.Rescorer
}

// NewCFSource 创建一个协同过滤召回源。
func NewCFSource(rec recommender.Recommender, topK int) *CFSource {
	return &CFSource{Recommender: rec, TopK: topK}
}

func (s *CFSource) Name() string        { return "recall." + s.Recommender.Name() }
func (s *CFSource) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (s *CFSource) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return s.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (s *CFSource) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	if rctx == nil || rctx.UserID == "" {
		return nil, nil
	}
	topK := s.TopK
	if topK <= 0 {
		topK = 10
	}
	rescorer := s.Rescorer
	if rctx.Rescorer != nil {
		rescorer = rctx.Rescorer
	}

	scored, err := s.Recommender.RecommendScored(ctx, rctx.UserID, topK, rescorer)
	if err != nil {
		if core.IsNotFound(err) {
			logging.Debug().Str("source", s.Name()).Str("user_id", rctx.UserID).Msg("cold start user")
			return []*core.Item{}, nil
		}
		return nil, err
	}

	algo := s.Recommender.Name()
	out := make([]*core.Item, 0, len(scored))
	for _, sc := range scored {
		it := core.NewItem(sc.ID)
		it.Score = sc.Score
		it.PutLabel(LabelRecallSource, utils.Label{Value: s.Name(), Source: "recall"})
		it.PutLabel(LabelCFAlgo, utils.Label{Value: algo, Source: "recall"})
		out = append(out, it)
	}
	return out, nil
}

var (
	_ Source        = (*CFSource)(nil)
	_ pipeline.Node = (*CFSource)(nil)
)

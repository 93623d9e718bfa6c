// Package rank 提供 Top-N 选择：对候选逐个估计、重打分，按最终分数降序截断。
package rank

import (
	"context"
	"math"
	"sort"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/pkg/metrics"
	"github.com/rushteam/cfkit/similarity"
)

// Scored 是带最终分数的候选。
type Scored = similarity.Scored

// EstimationRequest 是一次估计的全部输入。
// Top-N 扫描时除 Candidate 外的字段对所有候选保持不变。
type EstimationRequest struct {
	// Subject 查询主体（用户或物品），也是传给 Rescorer 的 thing
	Subject string

	// Subjects 多物品查询（ItemBasedRecommender.MostSimilarItems）时的全部主体
	Subjects []string

	// Candidate 当前被估计的候选
	Candidate string

	// Similarity 估计使用的相似度索引，可为空
	Similarity similarity.Similarity

	// Neighborhood 预先计算好的近邻用户，为空表示由估计器自行计算
	Neighborhood []string

	// Rescorer 可为空
	Rescorer core.Rescorer
}

// Estimator 估计 req.Subject 对 req.Candidate 的分数；ok=false 表示无法估计（跳过该候选）。
type Estimator interface {
	Estimate(ctx context.Context, req EstimationRequest) (float64, bool, error)
}

// EstimatorFunc 把普通函数适配为 Estimator。
type EstimatorFunc func(ctx context.Context, req EstimationRequest) (float64, bool, error)

func (f EstimatorFunc) Estimate(ctx context.Context, req EstimationRequest) (float64, bool, error) {
	return f(ctx, req)
}

// TopN 与 TopNScored 相同，只返回 ID。
func TopN(ctx context.Context, req EstimationRequest, candidates []string, howMany int, est Estimator) ([]string, error) {
	scored, err := TopNScored(ctx, req, candidates, howMany, est)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}
	return ids, nil
}

// TopNScored 对每个候选调用 est 估计分数，经 req.Rescorer 变换后按分数降序（稳定排序，
// 同分保持候选顺序）返回前 howMany 个。
//
// 无法估计的候选、被 Rescorer 丢弃的候选、估计时返回 NOT_FOUND 的候选都会被跳过；
// 其它错误会中断扫描并返回。howMany ≤ 0 返回空结果。
func TopNScored(ctx context.Context, req EstimationRequest, candidates []string, howMany int, est Estimator) ([]Scored, error) {
	if howMany <= 0 || len(candidates) == 0 {
		return []Scored{}, nil
	}
	out := make([]Scored, 0, len(candidates))
	dropped := 0
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req.Candidate = candidate
		score, ok, err := est.Estimate(ctx, req)
		if err != nil {
			if core.IsNotFound(err) {
				metrics.CandidatesDropped.WithLabelValues("not_found").Inc()
				dropped++
				continue
			}
			return nil, err
		}
		if !ok || math.IsNaN(score) {
			metrics.CandidatesDropped.WithLabelValues("undefined").Inc()
			dropped++
			continue
		}
		if req.Rescorer != nil {
			score, ok = req.Rescorer.Rescore(req.Subject, score)
			if !ok || math.IsNaN(score) {
				metrics.CandidatesDropped.WithLabelValues("rescorer").Inc()
				dropped++
				continue
			}
		}
		out = append(out, Scored{ID: candidate, Score: score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > howMany {
		out = out[:howMany]
	}
	logging.Debug().
		Str("subject", req.Subject).
		Int("candidates", len(candidates)).
		Int("dropped", dropped).
		Int("returned", len(out)).
		Msg("top-n selected")
	return out, nil
}

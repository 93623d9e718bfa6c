package recommender

import (
	"context"
	"time"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/metrics"
	"github.com/rushteam/cfkit/rank"
)

// SlopeOneRecommender 基于物品对平均差值的 slope-one 推荐器。
// 差值索引在创建时构建，数据变化后需要调用 Refresh。
type SlopeOneRecommender struct {
	base
	weighting Weighting
	diffs     *DiffStorage
}

// NewSlopeOneRecommender 扫描 model 构建差值索引并创建推荐器。
func NewSlopeOneRecommender(ctx context.Context, model core.DataModel, opts ...Option) (*SlopeOneRecommender, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	diffs, err := NewDiffStorage(ctx, model,
		WithPruning(o.prune),
		WithStdDevWeighted(o.weighting == StdDevWeighted),
	)
	if err != nil {
		return nil, err
	}
	return &SlopeOneRecommender{
		base:      base{model: model, capper: o.capper},
		weighting: o.weighting,
		diffs:     diffs,
	}, nil
}

func (r *SlopeOneRecommender) Name() string { return "slopeone" }

// Weighting 返回加权方式
func (r *SlopeOneRecommender) Weighting() Weighting { return r.weighting }

// DiffStorage 返回底层差值索引
func (r *SlopeOneRecommender) DiffStorage() *DiffStorage { return r.diffs }

// Refresh 重建差值索引。
func (r *SlopeOneRecommender) Refresh(ctx context.Context) error {
	return r.diffs.Rebuild(ctx)
}

func (r *SlopeOneRecommender) EstimatePreference(ctx context.Context, userID, itemID string) (float64, bool, error) {
	v, ok, err := r.Estimate(ctx, rank.EstimationRequest{Subject: userID, Candidate: itemID})
	metrics.RecordEstimate(r.Name(), ok, err)
	return v, ok, err
}

// Estimate 实现 rank.Estimator：对用户每个有差值的已评物品 j，累加 w·(r_j + diff(item, j))，
// 除以总权重。总权重 ≤ 0 时无法估计。
func (r *SlopeOneRecommender) Estimate(ctx context.Context, req rank.EstimationRequest) (float64, bool, error) {
	userID, itemID := req.Subject, req.Candidate
	if v, ok, err := r.model.PreferenceValue(ctx, userID, itemID); err != nil || ok {
		return v, ok, err
	}
	prefs, err := r.model.PreferencesFromUser(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	var total, totalWeight float64
	for i, d := range r.diffs.DiffsAverage(userID, itemID, prefs) {
		if !d.OK {
			continue
		}
		w := r.weight(d)
		total += w * (prefs[i].Value + d.Diff)
		totalWeight += w
	}
	if totalWeight <= 0 {
		return 0, false, nil
	}
	v, err := r.capEstimate(ctx, total/totalWeight)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *SlopeOneRecommender) weight(d ItemDiff) float64 {
	switch r.weighting {
	case Weighted:
		return float64(d.Count)
	case StdDevWeighted:
		if !d.HasStdDev {
			return float64(d.Count)
		}
		return float64(d.Count) / (1 + d.StdDev)
	default:
		return 1
	}
}

func (r *SlopeOneRecommender) Recommend(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]string, error) {
	scored, err := r.RecommendScored(ctx, userID, howMany, rescorer)
	if err != nil {
		return nil, err
	}
	return toIDs(scored), nil
}

// RecommendScored 在差值索引的可推荐物品中排除用户已评分的物品后排序。
func (r *SlopeOneRecommender) RecommendScored(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]rank.Scored, error) {
	defer metrics.ObserveRecommend(r.Name(), time.Now())

	prefs, rated, err := r.userPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 {
		return []rank.Scored{}, nil
	}
	items := r.diffs.RecommendableItems()
	candidates := make([]string, 0, len(items))
	for _, id := range items {
		if _, ok := rated[id]; !ok {
			candidates = append(candidates, id)
		}
	}
	req := rank.EstimationRequest{Subject: userID, Rescorer: rescorer}
	return rank.TopNScored(ctx, req, candidates, howMany, r)
}

var (
	_ Recommender    = (*SlopeOneRecommender)(nil)
	_ rank.Estimator = (*SlopeOneRecommender)(nil)
)

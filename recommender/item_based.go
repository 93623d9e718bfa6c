package recommender

import (
	"context"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/neighborhood"
	"github.com/rushteam/cfkit/pkg/metrics"
	"github.com/rushteam/cfkit/rank"
	"github.com/rushteam/cfkit/similarity"
)

// ItemBasedRecommender 基于物品的协同过滤：
// 用用户已评分物品与目标物品的相似度，对这些评分做加权平均。
type ItemBasedRecommender struct {
	base
	sim      similarity.Similarity
	strategy neighborhood.CandidateItemsStrategy
}

// NewItemBasedRecommender 创建基于物品的推荐器；sim 应当是物品相似度。
func NewItemBasedRecommender(model core.DataModel, sim similarity.Similarity, opts ...Option) *ItemBasedRecommender {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ItemBasedRecommender{
		base:     base{model: model, capper: o.capper},
		sim:      sim,
		strategy: o.strategy,
	}
}

func (r *ItemBasedRecommender) Name() string { return "itemcf" }

// Similarity 返回物品相似度索引
func (r *ItemBasedRecommender) Similarity() similarity.Similarity { return r.sim }

func (r *ItemBasedRecommender) EstimatePreference(ctx context.Context, userID, itemID string) (float64, bool, error) {
	v, ok, err := r.Estimate(ctx, rank.EstimationRequest{Subject: userID, Candidate: itemID, Similarity: r.sim})
	metrics.RecordEstimate(r.Name(), ok, err)
	return v, ok, err
}

// Estimate 实现 rank.Estimator：Σ sim(item, j)·r_j / Σ sim(item, j)，j 为用户评过的其它物品。
func (r *ItemBasedRecommender) Estimate(ctx context.Context, req rank.EstimationRequest) (float64, bool, error) {
	userID, itemID := req.Subject, req.Candidate
	sim := req.Similarity
	if sim == nil {
		sim = r.sim
	}
	if v, ok, err := r.model.PreferenceValue(ctx, userID, itemID); err != nil || ok {
		return v, ok, err
	}
	prefs, err := r.model.PreferencesFromUser(ctx, userID)
	if err != nil {
		return 0, false, err
	}

	var weighted, totalSim float64
	count := 0
	for _, p := range prefs {
		if p.ItemID == itemID {
			continue
		}
		s, err := sim.Similarity(ctx, itemID, p.ItemID)
		if err != nil {
			return 0, false, err
		}
		weighted += s * p.Value
		totalSim += s
		count++
	}
	if count <= 1 || totalSim == 0 {
		return 0, false, nil
	}
	v, err := r.capEstimate(ctx, weighted/totalSim)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (r *ItemBasedRecommender) Recommend(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]string, error) {
	scored, err := r.RecommendScored(ctx, userID, howMany, rescorer)
	if err != nil {
		return nil, err
	}
	return toIDs(scored), nil
}

func (r *ItemBasedRecommender) RecommendScored(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]rank.Scored, error) {
	defer metrics.ObserveRecommend(r.Name(), time.Now())

	prefs, _, err := r.userPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(prefs) == 0 {
		return []rank.Scored{}, nil
	}
	candidates, err := r.strategy.CandidateItems(ctx, userID, r.model)
	if err != nil {
		return nil, err
	}
	req := rank.EstimationRequest{Subject: userID, Similarity: r.sim, Rescorer: rescorer}
	return rank.TopNScored(ctx, req, candidates, howMany, r)
}

// MostSimilarItems 返回与 itemIDs 整体最相似的物品：候选为评价过其中任一物品的用户评过的其它物品，
// 分数为候选与每个给定物品相似度的平均值。Rescorer 收到的 thing 是以逗号连接的 itemIDs。
func (r *ItemBasedRecommender) MostSimilarItems(ctx context.Context, itemIDs []string, howMany int, rescorer core.Rescorer) ([]string, error) {
	if len(itemIDs) == 0 {
		return nil, core.InvalidInputf(core.ModuleRecommender, "recommender: no item ids given")
	}
	given := make(map[string]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		given[id] = struct{}{}
	}

	candidates := make(map[string]struct{})
	seenUsers := make(map[string]struct{})
	for _, itemID := range itemIDs {
		raters, err := r.model.PreferencesForItem(ctx, itemID)
		if err != nil {
			return nil, err
		}
		for _, p := range raters {
			if _, ok := seenUsers[p.UserID]; ok {
				continue
			}
			seenUsers[p.UserID] = struct{}{}
			prefs, err := r.model.PreferencesFromUser(ctx, p.UserID)
			if err != nil {
				return nil, err
			}
			for _, q := range prefs {
				if _, ok := given[q.ItemID]; !ok {
					candidates[q.ItemID] = struct{}{}
				}
			}
		}
	}
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	req := rank.EstimationRequest{
		Subject:    strings.Join(itemIDs, ","),
		Subjects:   itemIDs,
		Similarity: r.sim,
		Rescorer:   rescorer,
	}
	return rank.TopN(ctx, req, ids, howMany, rank.EstimatorFunc(averageSimilarity))
}

func averageSimilarity(ctx context.Context, req rank.EstimationRequest) (float64, bool, error) {
	sims := make([]float64, 0, len(req.Subjects))
	for _, to := range req.Subjects {
		s, err := req.Similarity.Similarity(ctx, req.Candidate, to)
		if err != nil {
			return 0, false, err
		}
		sims = append(sims, s)
	}
	if len(sims) == 0 {
		return 0, false, nil
	}
	return stat.Mean(sims, nil), true, nil
}

// RecommendedBecause 解释推荐：在用户评过的其它物品中，返回对推荐 itemID 贡献最大的 howMany 个，
// 分数为 (1 + sim(j, itemID)) · r_j。
func (r *ItemBasedRecommender) RecommendedBecause(ctx context.Context, userID, itemID string, howMany int) ([]string, error) {
	prefs, _, err := r.userPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := r.model.PreferencesForItem(ctx, itemID); err != nil {
		return nil, err
	}
	candidates := make([]string, 0, len(prefs))
	for _, p := range prefs {
		if p.ItemID != itemID {
			candidates = append(candidates, p.ItemID)
		}
	}
	est := rank.EstimatorFunc(func(ctx context.Context, req rank.EstimationRequest) (float64, bool, error) {
		pref, ok, err := r.model.PreferenceValue(ctx, req.Subject, req.Candidate)
		if err != nil || !ok {
			return 0, false, err
		}
		s, err := r.sim.Similarity(ctx, req.Candidate, itemID)
		if err != nil {
			return 0, false, err
		}
		return (1 + s) * pref, true, nil
	})
	req := rank.EstimationRequest{Subject: userID, Similarity: r.sim}
	return rank.TopN(ctx, req, candidates, howMany, est)
}

var (
	_ Recommender    = (*ItemBasedRecommender)(nil)
	_ rank.Estimator = (*ItemBasedRecommender)(nil)
)

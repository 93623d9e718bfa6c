package recommender

import (
	"context"
	"sort"
	"time"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/neighborhood"
	"github.com/rushteam/cfkit/pkg/metrics"
	"github.com/rushteam/cfkit/rank"
	"github.com/rushteam/cfkit/similarity"
)

// UserBasedRecommender 基于用户的协同过滤：
// 用近邻用户对物品评分的相似度加权平均作为估计值。
type UserBasedRecommender struct {
	base
	sim          similarity.Similarity
	neighborhood neighborhood.Neighborhood
}

// NewUserBasedRecommender 创建基于用户的推荐器；sim 应当是用户相似度。
func NewUserBasedRecommender(model core.DataModel, sim similarity.Similarity, nh neighborhood.Neighborhood, opts ...Option) *UserBasedRecommender {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &UserBasedRecommender{
		base:         base{model: model, capper: o.capper},
		sim:          sim,
		neighborhood: nh,
	}
}

func (r *UserBasedRecommender) Name() string { return "usercf" }

// Neighborhood 返回近邻选择器
func (r *UserBasedRecommender) Neighborhood() neighborhood.Neighborhood { return r.neighborhood }

// Similarity 返回用户相似度索引
func (r *UserBasedRecommender) Similarity() similarity.Similarity { return r.sim }

func (r *UserBasedRecommender) EstimatePreference(ctx context.Context, userID, itemID string) (float64, bool, error) {
	v, ok, err := r.Estimate(ctx, rank.EstimationRequest{Subject: userID, Candidate: itemID, Similarity: r.sim})
	metrics.RecordEstimate(r.Name(), ok, err)
	return v, ok, err
}

// Estimate 实现 rank.Estimator。
//
// 未传入 Neighborhood 时，先返回已有评分，否则现场计算近邻。
// 至少两个近邻评价过该物品且相似度之和不为 0 才给出估计。
func (r *UserBasedRecommender) Estimate(ctx context.Context, req rank.EstimationRequest) (float64, bool, error) {
	userID, itemID := req.Subject, req.Candidate
	sim := req.Similarity
	if sim == nil {
		sim = r.sim
	}
	nh := req.Neighborhood
	if len(nh) == 0 {
		v, ok, err := r.model.PreferenceValue(ctx, userID, itemID)
		if err != nil || ok {
			return v, ok, err
		}
		if nh, err = r.neighborhood.UserNeighborhood(ctx, userID, req.Rescorer); err != nil {
			return 0, false, err
		}
	}
	if len(nh) == 0 {
		return 0, false, nil
	}

	var weighted, totalSim float64
	count := 0
	for _, otherID := range nh {
		if otherID == userID {
			continue
		}
		pref, ok, err := r.model.PreferenceValue(ctx, otherID, itemID)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			continue
		}
		s, err := sim.Similarity(ctx, otherID, userID)
		if err != nil {
			return 0, false, err
		}
		weighted += s * pref
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

func (r *UserBasedRecommender) Recommend(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]string, error) {
	scored, err := r.RecommendScored(ctx, userID, howMany, rescorer)
	if err != nil {
		return nil, err
	}
	return toIDs(scored), nil
}

// RecommendScored 计算一次近邻，在近邻评过而用户没评过的物品中选出前 howMany 个。
func (r *UserBasedRecommender) RecommendScored(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]rank.Scored, error) {
	defer metrics.ObserveRecommend(r.Name(), time.Now())

	_, rated, err := r.userPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	nh, err := r.neighborhood.UserNeighborhood(ctx, userID, rescorer)
	if err != nil {
		return nil, err
	}
	if len(nh) == 0 {
		return []rank.Scored{}, nil
	}

	candidates := make(map[string]struct{})
	for _, otherID := range nh {
		prefs, err := r.model.PreferencesFromUser(ctx, otherID)
		if err != nil {
			return nil, err
		}
		for _, p := range prefs {
			if _, ok := rated[p.ItemID]; !ok {
				candidates[p.ItemID] = struct{}{}
			}
		}
	}
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	req := rank.EstimationRequest{Subject: userID, Similarity: r.sim, Neighborhood: nh, Rescorer: rescorer}
	return rank.TopNScored(ctx, req, ids, howMany, r)
}

// MostSimilarUserIDs 返回与用户最相似的 howMany 个用户（不含自身）。
// 与近邻选择不同，这里不做采样，也不应用最小相似度阈值。
func (r *UserBasedRecommender) MostSimilarUserIDs(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]string, error) {
	if _, _, err := r.userPreferences(ctx, userID); err != nil {
		return nil, err
	}
	userIDs, err := r.model.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	req := rank.EstimationRequest{Subject: userID, Similarity: r.sim, Rescorer: rescorer}
	return rank.TopN(ctx, req, userIDs, howMany, rank.EstimatorFunc(userSimilarityEstimate))
}

func userSimilarityEstimate(ctx context.Context, req rank.EstimationRequest) (float64, bool, error) {
	if req.Subject == req.Candidate {
		return 0, false, nil
	}
	v, err := req.Similarity.Similarity(ctx, req.Subject, req.Candidate)
	if err != nil {
		return 0, false, err
	}
	return v, true, nil
}

var (
	_ Recommender    = (*UserBasedRecommender)(nil)
	_ rank.Estimator = (*UserBasedRecommender)(nil)
)

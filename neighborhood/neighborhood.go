// Package neighborhood 计算用户的近邻集合，并提供物品推荐的候选集策略。
package neighborhood

import (
	"context"
	"math"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/rank"
	"github.com/rushteam/cfkit/similarity"
)

// Neighborhood 返回与给定用户最相似的用户（相似度降序，不含用户自身）。
type Neighborhood interface {
	UserNeighborhood(ctx context.Context, userID string, rescorer core.Rescorer) ([]string, error)
}

// Option NearestNUserNeighborhood 配置选项
type Option func(*NearestNUserNeighborhood)

// WithSamplingRate 设置采样率 r ∈ [0,1]：只在 ⌊r·|users|⌋ 个随机用户中挑选近邻。
// 默认 1（全部用户）。
func WithSamplingRate(r float64) Option {
	return func(n *NearestNUserNeighborhood) {
		n.samplingRate = r
	}
}

// WithRand 使用指定的随机源采样，便于复现。
func WithRand(rng *rand.Rand) Option {
	return func(n *NearestNUserNeighborhood) {
		n.rng = rng
	}
}

// NearestNUserNeighborhood 取相似度最高的 N 个用户作为近邻。
//
// 只有原始相似度严格大于 minSimilarity 的用户才能成为近邻，
// 因此与查询用户没有任何共同评分（相似度为 0）的用户在默认阈值 0 下会被排除。
type NearestNUserNeighborhood struct {
	sim           similarity.Similarity
	model         core.DataModel
	numUsers      int
	minSimilarity float64
	samplingRate  float64

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewNearestNUserNeighborhood 创建近邻选择器；numUsers < 1 或采样率不在 [0,1] 时返回 INVALID_INPUT。
func NewNearestNUserNeighborhood(sim similarity.Similarity, model core.DataModel, numUsers int, minSimilarity float64, opts ...Option) (*NearestNUserNeighborhood, error) {
	n := &NearestNUserNeighborhood{
		sim:           sim,
		model:         model,
		numUsers:      numUsers,
		minSimilarity: minSimilarity,
		samplingRate:  1,
	}
	for _, opt := range opts {
		opt(n)
	}
	if numUsers < 1 {
		return nil, core.InvalidInputf(core.ModuleNeighborhood, "neighborhood: numUsers must be >= 1, got %d", numUsers)
	}
	if math.IsNaN(n.samplingRate) || n.samplingRate < 0 || n.samplingRate > 1 {
		return nil, core.InvalidInputf(core.ModuleNeighborhood, "neighborhood: sampling rate must be in [0,1], got %v", n.samplingRate)
	}
	return n, nil
}

func (n *NearestNUserNeighborhood) NumUsers() int          { return n.numUsers }
func (n *NearestNUserNeighborhood) MinSimilarity() float64 { return n.minSimilarity }
func (n *NearestNUserNeighborhood) SamplingRate() float64  { return n.samplingRate }

// Similarity 返回近邻选择使用的相似度索引
func (n *NearestNUserNeighborhood) Similarity() similarity.Similarity { return n.sim }

// UserNeighborhood 在采样后的用户中选出最相似的 numUsers 个（不超过用户总数）。
func (n *NearestNUserNeighborhood) UserNeighborhood(ctx context.Context, userID string, rescorer core.Rescorer) ([]string, error) {
	userIDs, err := n.sampleUserIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(userIDs) == 0 {
		return []string{}, nil
	}
	total, err := n.model.NumUsers(ctx)
	if err != nil {
		return nil, err
	}
	howMany := min(n.numUsers, total)

	req := rank.EstimationRequest{Subject: userID, Similarity: n.sim, Rescorer: rescorer}
	neighbors, err := rank.TopN(ctx, req, userIDs, howMany, rank.EstimatorFunc(n.EstimatePreference))
	if err != nil {
		return nil, err
	}
	logging.Debug().
		Str("user_id", userID).
		Int("sampled", len(userIDs)).
		Int("neighbors", len(neighbors)).
		Msg("user neighborhood built")
	return neighbors, nil
}

// EstimatePreference 返回 req.Subject 与 req.Candidate 两个用户之间的相似度，
// 作为近邻排序的分数。用户自身、相似度不超过阈值时返回 ok=false。
func (n *NearestNUserNeighborhood) EstimatePreference(ctx context.Context, req rank.EstimationRequest) (float64, bool, error) {
	if req.Subject == req.Candidate {
		return 0, false, nil
	}
	sim := req.Similarity
	if sim == nil {
		sim = n.sim
	}
	v, err := sim.Similarity(ctx, req.Subject, req.Candidate)
	if err != nil {
		return 0, false, err
	}
	if math.IsNaN(v) || v <= n.minSimilarity {
		return 0, false, nil
	}
	return v, true, nil
}

// sampleUserIDs 按采样率无放回抽取用户，保持原有的枚举顺序。
func (n *NearestNUserNeighborhood) sampleUserIDs(ctx context.Context) ([]string, error) {
	userIDs, err := n.model.UserIDs(ctx)
	if err != nil {
		return nil, err
	}
	k := int(n.samplingRate * float64(len(userIDs)))
	switch {
	case k >= len(userIDs):
		return userIDs, nil
	case k == 0:
		return []string{}, nil
	}

	idx := n.perm(len(userIDs))[:k]
	sort.Ints(idx)
	out := make([]string, k)
	for i, j := range idx {
		out[i] = userIDs[j]
	}
	return out, nil
}

func (n *NearestNUserNeighborhood) perm(size int) []int {
	if n.rng == nil {
		return rand.Perm(size)
	}
	n.rngMu.Lock()
	defer n.rngMu.Unlock()
	return n.rng.Perm(size)
}

var _ Neighborhood = (*NearestNUserNeighborhood)(nil)

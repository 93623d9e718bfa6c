// Package recommender 实现三种协同过滤推荐器：基于用户、基于物品、slope-one。
//
// 所有推荐器共享 rank.TopNScored 做候选排序；估计失败（样本不足、相似度之和为 0）
// 返回 ok=false，对应的候选被跳过，而不是排在末尾。
package recommender

import (
	"context"
	"fmt"
	"strings"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/neighborhood"
	"github.com/rushteam/cfkit/rank"
)

// Recommender 是推荐器的统一接口。
type Recommender interface {
	// Name 返回算法名（usercf / itemcf / slopeone）
	Name() string

	// EstimatePreference 估计用户对物品的偏好；已评分时直接返回评分
	EstimatePreference(ctx context.Context, userID, itemID string) (float64, bool, error)

	// Recommend 返回 howMany 个推荐物品 ID，按估计分数降序
	Recommend(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]string, error)

	// RecommendScored 与 Recommend 相同，同时返回分数
	RecommendScored(ctx context.Context, userID string, howMany int, rescorer core.Rescorer) ([]rank.Scored, error)
}

// Weighting 是 slope-one 的加权方式。
type Weighting int

const (
	// Unweighted 每个差值权重为 1
	Unweighted Weighting = iota
	// Weighted 以物品对的共同评分人数加权
	Weighted
	// StdDevWeighted 以 count/(1+stddev) 加权，标准差不可用时退化为 count
	StdDevWeighted
)

func (w Weighting) String() string {
	switch w {
	case Unweighted:
		return "unweighted"
	case Weighted:
		return "weighted"
	case StdDevWeighted:
		return "stddev"
	default:
		return fmt.Sprintf("weighting(%d)", int(w))
	}
}

// ParseWeighting 解析配置中的加权方式名称。
func ParseWeighting(s string) (Weighting, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unweighted", "none":
		return Unweighted, nil
	case "weighted", "count", "":
		return Weighted, nil
	case "stddev", "stddev_weighted", "stdev":
		return StdDevWeighted, nil
	}
	return Unweighted, core.InvalidInputf(core.ModuleRecommender, "recommender: unknown weighting %q", s)
}

type options struct {
	capper    bool
	strategy  neighborhood.CandidateItemsStrategy
	weighting Weighting
	prune     bool
}

func defaultOptions() options {
	return options{
		capper:    true,
		strategy:  neighborhood.PreferredItemsNeighborhoodStrategy{},
		weighting: Weighted,
		prune:     true,
	}
}

// Option 推荐器配置选项；与某个推荐器无关的选项会被忽略。
type Option func(*options)

// WithCapper 是否把估计值截断到 DataModel.Bounds 区间内，默认开启。
func WithCapper(on bool) Option {
	return func(o *options) {
		o.capper = on
	}
}

// WithCandidateStrategy 设置基于物品推荐器的候选集策略，默认 PreferredItemsNeighborhoodStrategy。
func WithCandidateStrategy(s neighborhood.CandidateItemsStrategy) Option {
	return func(o *options) {
		if s != nil {
			o.strategy = s
		}
	}
}

// WithWeighting 设置 slope-one 的加权方式，默认 Weighted。
func WithWeighting(w Weighting) Option {
	return func(o *options) {
		o.weighting = w
	}
}

// WithDiffPruning 设置 slope-one 差值索引是否剪枝，默认开启。
func WithDiffPruning(on bool) Option {
	return func(o *options) {
		o.prune = on
	}
}

// base 是三个推荐器共享的数据模型访问与 capping 逻辑。
type base struct {
	model  core.DataModel
	capper bool
}

// capEstimate 在开启 capper 时把 v 截断到 [min, max]。
func (b *base) capEstimate(ctx context.Context, v float64) (float64, error) {
	if !b.capper {
		return v, nil
	}
	lo, hi, err := b.model.Bounds(ctx)
	if err != nil {
		return 0, err
	}
	return min(max(v, lo), hi), nil
}

// userPreferences 返回用户的偏好和已评分物品集合；未知用户返回 NOT_FOUND。
func (b *base) userPreferences(ctx context.Context, userID string) ([]core.Preference, map[string]float64, error) {
	prefs, err := b.model.PreferencesFromUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return prefs, core.PreferenceMap(prefs, true), nil
}

func toIDs(scored []rank.Scored) []string {
	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.ID
	}
	return ids
}

package similarity

import (
	"context"
	"sort"

	"github.com/rushteam/cfkit/core"
)

// Scored 是带分数的 ID（用户或物品）。
type Scored struct {
	ID    string
	Score float64
}

// Similarity 是基于 DataModel 的相似度索引：把实体 ID 解析为偏好向量后交给 Metric 计算。
type Similarity interface {
	// Similarity 返回两个实体之间的相似度；实体不存在时返回 NOT_FOUND
	Similarity(ctx context.Context, a, b string) (float64, error)

	// Similarities 返回 id 与其它所有实体的相似度（不含自身），顺序与 DataModel 的枚举顺序一致；
	// 配置了 numBest 时按相似度降序排序（同分保持枚举顺序）并只保留前 numBest 个
	Similarities(ctx context.Context, id string) ([]Scored, error)

	// Metric 返回底层度量
	Metric() Metric
}

// Option 相似度索引配置选项
type Option func(*index)

// WithNumBest 让 Similarities 按相似度降序返回前 k 个；k ≤ 0 表示不限制，按枚举顺序返回全部。
// 只影响 Similarities，Similarity(a, b) 不受影响。
func WithNumBest(k int) Option {
	return func(ix *index) {
		ix.numBest = k
	}
}

// index 是 UserSimilarity / ItemSimilarity 的公共实现，prefs 和 ids 决定取行还是取列。
type index struct {
	metric  Metric
	numBest int

	prefs      func(ctx context.Context, id string) ([]core.Preference, error)
	ids        func(ctx context.Context) ([]string, error)
	population func(ctx context.Context) (int, error)
	byItem     bool
}

func (ix *index) Metric() Metric { return ix.metric }

func (ix *index) Similarity(ctx context.Context, a, b string) (float64, error) {
	metric, err := ix.resolveMetric(ctx)
	if err != nil {
		return 0, err
	}
	va, err := ix.vector(ctx, a)
	if err != nil {
		return 0, err
	}
	vb, err := ix.vector(ctx, b)
	if err != nil {
		return 0, err
	}
	return metric.Compare(va, vb), nil
}

func (ix *index) Similarities(ctx context.Context, id string) ([]Scored, error) {
	metric, err := ix.resolveMetric(ctx)
	if err != nil {
		return nil, err
	}
	target, err := ix.vector(ctx, id)
	if err != nil {
		return nil, err
	}
	ids, err := ix.ids(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Scored, 0, len(ids))
	for _, other := range ids {
		if other == id {
			continue
		}
		v, err := ix.vector(ctx, other)
		if err != nil {
			return nil, err
		}
		out = append(out, Scored{ID: other, Score: metric.Compare(target, v)})
	}
	if ix.numBest > 0 {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		if len(out) > ix.numBest {
			out = out[:ix.numBest]
		}
	}
	return out, nil
}

func (ix *index) vector(ctx context.Context, id string) (Vector, error) {
	prefs, err := ix.prefs(ctx, id)
	if err != nil {
		return nil, err
	}
	return Vector(core.PreferenceMap(prefs, ix.byItem)), nil
}

// resolveMetric 为需要总体规模的度量注入当前的物品数/用户数。
func (ix *index) resolveMetric(ctx context.Context) (Metric, error) {
	pm, ok := ix.metric.(PopulationMetric)
	if !ok {
		return ix.metric, nil
	}
	n, err := ix.population(ctx)
	if err != nil {
		return nil, err
	}
	return pm.WithPopulation(n), nil
}

// UserSimilarity 以用户的偏好行作为向量，计算用户之间的相似度。
type UserSimilarity struct {
	index
}

// NewUserSimilarity 创建用户相似度索引。
func NewUserSimilarity(model core.DataModel, metric Metric, opts ...Option) *UserSimilarity {
	s := &UserSimilarity{index: index{
		metric:     metric,
		prefs:      model.PreferencesFromUser,
		ids:        model.UserIDs,
		population: model.NumItems,
		byItem:     true,
	}}
	for _, opt := range opts {
		opt(&s.index)
	}
	return s
}

// ItemSimilarity 以物品收到的偏好列作为向量，计算物品之间的相似度。
type ItemSimilarity struct {
	index
}

// NewItemSimilarity 创建物品相似度索引。
func NewItemSimilarity(model core.DataModel, metric Metric, opts ...Option) *ItemSimilarity {
	s := &ItemSimilarity{index: index{
		metric:     metric,
		prefs:      model.PreferencesForItem,
		ids:        model.ItemIDs,
		population: model.NumUsers,
		byItem:     false,
	}}
	for _, opt := range opts {
		opt(&s.index)
	}
	return s
}

var (
	_ Similarity = (*UserSimilarity)(nil)
	_ Similarity = (*ItemSimilarity)(nil)
)

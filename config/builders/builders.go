// Package builders 根据 YAML/JSON 节点配置构建 cfkit 的 Pipeline 节点。
//
// 与数据模型无关的节点在 init 中注册到 config 的全局注册表；
// 召回节点依赖具体的 DataModel，需要调用 Register 注册到某个 NodeFactory。
package builders

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/rushteam/cfkit/config"
	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/filter"
	"github.com/rushteam/cfkit/neighborhood"
	"github.com/rushteam/cfkit/pipeline"
	"github.com/rushteam/cfkit/pkg/conv"
	"github.com/rushteam/cfkit/pkg/dsl"
	"github.com/rushteam/cfkit/recall"
	"github.com/rushteam/cfkit/recommender"
	"github.com/rushteam/cfkit/rerank"
	"github.com/rushteam/cfkit/scoring"
	"github.com/rushteam/cfkit/similarity"
)

func init() {
	config.Register("rerank.topn", BuildTopNNode)
	config.Register("rerank.diversity", BuildDiversityNode)
}

// Register 把 recall.usercf / recall.itemcf / recall.slopeone / recall.popular / recall.fanout、
// filter 以及 rerank 节点注册到 factory，节点配置缺省时使用 core.DefaultCFConfig。
func Register(factory *pipeline.NodeFactory, model core.DataModel) {
	RegisterWithDefaults(factory, model, &core.DefaultCFConfig{})
}

// RegisterWithDefaults 同 Register，缺省值来自 defaults（例如 config.CFConfig）。
func RegisterWithDefaults(factory *pipeline.NodeFactory, model core.DataModel, defaults core.CFConfig) {
	b := &cfBuilder{model: model, defaults: defaults}
	if sp, ok := model.(storeProvider); ok {
		b.store = sp.Store()
	}
	for name, build := range b.sources() {
		factory.Register("recall."+name, nodeOf(build))
	}
	factory.Register("recall.fanout", b.BuildFanoutNode)
	factory.Register("filter", b.BuildFilterNode)
	factory.Register("rerank.topn", BuildTopNNode)
	factory.Register("rerank.diversity", BuildDiversityNode)
}

// sourceNode 既是召回源也是 Pipeline 节点（CFSource、Popular）。
type sourceNode interface {
	recall.Source
	pipeline.Node
}

type sourceBuilder func(cfg map[string]any) (sourceNode, error)

func nodeOf(build sourceBuilder) pipeline.NodeBuilder {
	return func(cfg map[string]any) (pipeline.Node, error) {
		return build(cfg)
	}
}

// storeProvider 由 model.StoreDataModel 实现，黑名单、曝光记录、热门榜单与偏好数据共用存储。
type storeProvider interface {
	Store() core.KeyValueStore
}

type cfBuilder struct {
	model    core.DataModel
	defaults core.CFConfig
	store    core.KeyValueStore
}

func (b *cfBuilder) sources() map[string]sourceBuilder {
	return map[string]sourceBuilder{
		"usercf":   b.userCF,
		"itemcf":   b.itemCF,
		"slopeone": b.slopeOne,
		"popular":  b.popular,
	}
}

func (b *cfBuilder) topK(cfg map[string]any) int {
	return int(conv.ConfigGetInt64(cfg, "top_k", int64(b.defaults.DefaultTopKItems())))
}

func (b *cfBuilder) metric(cfg map[string]any) (similarity.Metric, error) {
	return similarity.ByName(conv.ConfigGet(cfg, "metric", b.defaults.DefaultSimilarityMetric()))
}

// cfSource 用推荐器创建 CFSource 并挂上配置中的 rescorer。
func (b *cfBuilder) cfSource(rec recommender.Recommender, cfg map[string]any) (sourceNode, error) {
	src := recall.NewCFSource(rec, b.topK(cfg))
	rescorer, err := BuildRescorer(conv.ConfigGetMap(cfg, "rescorer"))
	if err != nil {
		return nil, err
	}
	src.Rescorer = rescorer
	return src, nil
}

func (b *cfBuilder) userCF(cfg map[string]any) (sourceNode, error) {
	metric, err := b.metric(cfg)
	if err != nil {
		return nil, err
	}
	sim := similarity.NewUserSimilarity(b.model, metric)

	opts := []neighborhood.Option{
		neighborhood.WithSamplingRate(conv.ConfigGetFloat64(cfg, "sampling_rate", b.defaults.DefaultSamplingRate())),
	}
	if _, ok := cfg["seed"]; ok {
		seed := uint64(conv.ConfigGetInt64(cfg, "seed", 0))
		opts = append(opts, neighborhood.WithRand(rand.New(rand.NewPCG(seed, seed))))
	}
	nh, err := neighborhood.NewNearestNUserNeighborhood(
		sim, b.model,
		int(conv.ConfigGetInt64(cfg, "neighborhood_size", int64(b.defaults.DefaultNeighborhoodSize()))),
		conv.ConfigGetFloat64(cfg, "min_similarity", 0),
		opts...,
	)
	if err != nil {
		return nil, err
	}
	rec := recommender.NewUserBasedRecommender(b.model, sim, nh,
		recommender.WithCapper(conv.ConfigGet(cfg, "capper", true)),
	)
	return b.cfSource(rec, cfg)
}

func (b *cfBuilder) itemCF(cfg map[string]any) (sourceNode, error) {
	metric, err := b.metric(cfg)
	if err != nil {
		return nil, err
	}
	var strategy neighborhood.CandidateItemsStrategy
	switch name := conv.ConfigGet(cfg, "candidates", "preferred"); name {
	case "preferred":
		strategy = neighborhood.PreferredItemsNeighborhoodStrategy{}
	case "all_unknown":
		strategy = neighborhood.AllUnknownItemsStrategy{}
	default:
		return nil, core.InvalidInputf(core.ModuleConfig, "config: unknown candidate strategy %q", name)
	}
	// 基于物品的估计只用到两两相似度，不需要 numBest
	sim := similarity.NewItemSimilarity(b.model, metric)
	rec := recommender.NewItemBasedRecommender(b.model, sim,
		recommender.WithCapper(conv.ConfigGet(cfg, "capper", true)),
		recommender.WithCandidateStrategy(strategy),
	)
	return b.cfSource(rec, cfg)
}

func (b *cfBuilder) slopeOne(cfg map[string]any) (sourceNode, error) {
	weighting, err := recommender.ParseWeighting(conv.ConfigGet(cfg, "weighting", "weighted"))
	if err != nil {
		return nil, err
	}
	rec, err := recommender.NewSlopeOneRecommender(context.Background(), b.model,
		recommender.WithWeighting(weighting),
		recommender.WithDiffPruning(conv.ConfigGet(cfg, "prune", true)),
		recommender.WithCapper(conv.ConfigGet(cfg, "capper", true)),
	)
	if err != nil {
		return nil, err
	}
	return b.cfSource(rec, cfg)
}

func (b *cfBuilder) popular(cfg map[string]any) (sourceNode, error) {
	p := &recall.Popular{
		Model:        b.model,
		TopK:         b.topK(cfg),
		ExcludeRated: conv.ConfigGet(cfg, "exclude_rated", true),
	}
	if key := conv.ConfigGet(cfg, "key", ""); key != "" {
		if b.store == nil {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: recall.popular key requires a store-backed model")
		}
		p.Store, p.Key = b.store, key
	}
	return p, nil
}

// BuildFilterNode 构建 filter 节点，按配置组合过滤器：
//
//	- type: filter
//	  config:
//	    exclude_rated: true            # 过滤用户已评分物品
//	    blacklist: [a, b]              # 固定黑名单
//	    blacklist_key: cf:blacklist    # 存储中的黑名单（JSON 数组）
//	    user_block_prefix: cf:blocked  # 用户屏蔽列表 {prefix}:{userID}
//	    exposed_window: 86400          # 过滤窗口（秒）内已曝光的物品，0 表示不过期
//	    exposed_prefix: cf:exposed
//	    expr: 'item.score < 1.0'       # 表达式为 true 的物品被过滤
func (b *cfBuilder) BuildFilterNode(cfg map[string]any) (pipeline.Node, error) {
	node := &filter.FilterNode{}
	if conv.ConfigGet(cfg, "exclude_rated", false) {
		node.Filters = append(node.Filters, &filter.RatedFilter{Model: b.model})
	}

	ids := conv.SliceAnyToString(cfg["blacklist"])
	key := conv.ConfigGet(cfg, "blacklist_key", "")
	if len(ids) > 0 || key != "" {
		if key != "" && b.store == nil {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: filter blacklist_key requires a store-backed model")
		}
		var s core.Store
		if key != "" {
			s = b.store
		}
		node.Filters = append(node.Filters, filter.NewBlacklistFilter(ids, s, key))
	}

	if prefix := conv.ConfigGet(cfg, "user_block_prefix", ""); prefix != "" {
		if b.store == nil {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: filter user_block_prefix requires a store-backed model")
		}
		node.Filters = append(node.Filters, &filter.UserBlockFilter{Store: b.store, KeyPrefix: prefix})
	}

	if _, ok := cfg["exposed_window"]; ok {
		if b.store == nil {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: filter exposed_window requires a store-backed model")
		}
		window := time.Duration(conv.ConfigGetInt64(cfg, "exposed_window", 0)) * time.Second
		node.Filters = append(node.Filters,
			filter.NewExposedFilter(b.store, conv.ConfigGet(cfg, "exposed_prefix", ""), window))
	}

	if expr := conv.ConfigGet(cfg, "expr", ""); expr != "" {
		if _, err := dsl.Compile(expr); err != nil {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: filter expr: %v", err)
		}
		node.Filters = append(node.Filters, &filter.ExprFilter{Expr: expr})
	}
	return node, nil
}

// BuildFanoutNode 构建 recall.fanout，sources 中每一项用 type 指定召回源（usercf / itemcf / slopeone / popular），
// 其余字段与对应的 recall.* 节点相同。
func (b *cfBuilder) BuildFanoutNode(cfg map[string]any) (pipeline.Node, error) {
	sourcesConfig, ok := cfg["sources"].([]any)
	if !ok || len(sourcesConfig) == 0 {
		return nil, core.InvalidInputf(core.ModuleConfig, "config: recall.fanout requires sources")
	}
	builders := b.sources()
	sources := make([]recall.Source, 0, len(sourcesConfig))
	for _, sc := range sourcesConfig {
		sourceMap, ok := sc.(map[string]any)
		if !ok {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: invalid fanout source %v", sc)
		}
		sourceType := conv.ConfigGet(sourceMap, "type", "")
		build, ok := builders[sourceType]
		if !ok {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: unknown source type %q", sourceType)
		}
		src, err := build(sourceMap)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	strategyName := conv.ConfigGet(cfg, "merge_strategy", "")
	strategy := recall.ParseMergeStrategy(strategyName)
	if strategy == nil {
		return nil, core.InvalidInputf(core.ModuleConfig, "config: unknown merge strategy %q", strategyName)
	}
	fanout := &recall.Fanout{
		Sources:       sources,
		Dedup:         conv.ConfigGet(cfg, "dedup", true),
		Timeout:       b.defaults.DefaultTimeout(),
		MaxConcurrent: int(conv.ConfigGetInt64(cfg, "max_concurrent", 0)),
		MergeStrategy: strategy,
	}
	if ms := conv.ConfigGetInt64(cfg, "timeout_ms", 0); ms > 0 {
		fanout.Timeout = time.Duration(ms) * time.Millisecond
	} else if sec := conv.ConfigGetInt64(cfg, "timeout", 0); sec > 0 {
		fanout.Timeout = time.Duration(sec) * time.Second
	}
	return fanout, nil
}

// BuildRescorer 根据 rescorer 配置创建重打分器，cfg 为空时返回 nil。
//
//	rescorer:
//	  type: expr            # naive / tanh / expr / chain
//	  expr: 'score * params.boost'
//	  params: {boost: 1.2}
func BuildRescorer(cfg map[string]any) (core.Rescorer, error) {
	if cfg == nil {
		return nil, nil
	}
	switch typ := conv.ConfigGet(cfg, "type", ""); typ {
	case "naive":
		return scoring.NaiveScorer{}, nil
	case "tanh":
		return scoring.TanHScorer{}, nil
	case "expr":
		return scoring.NewExprScorer(conv.ConfigGet(cfg, "expr", ""), conv.ConfigGetMap(cfg, "params"))
	case "chain":
		items, _ := cfg["rescorers"].([]any)
		chain := make(scoring.Chain, 0, len(items))
		for _, item := range items {
			sub, ok := item.(map[string]any)
			if !ok {
				return nil, core.InvalidInputf(core.ModuleConfig, "config: invalid rescorer %v", item)
			}
			r, err := BuildRescorer(sub)
			if err != nil {
				return nil, err
			}
			chain = append(chain, r)
		}
		return chain, nil
	default:
		return nil, core.InvalidInputf(core.ModuleConfig, "config: unknown rescorer type %q", typ)
	}
}

// BuildTopNNode 构建 rerank.topn：n 为保留数量，filter 为可选的 CEL 过滤表达式。
func BuildTopNNode(cfg map[string]any) (pipeline.Node, error) {
	expr := conv.ConfigGet(cfg, "filter", "")
	if expr != "" {
		if _, err := dsl.Compile(expr); err != nil {
			return nil, core.InvalidInputf(core.ModuleConfig, "config: rerank.topn filter: %v", err)
		}
	}
	return &rerank.TopNNode{
		N:      int(conv.ConfigGetInt64(cfg, "n", 0)),
		Filter: expr,
	}, nil
}

func BuildDiversityNode(cfg map[string]any) (pipeline.Node, error) {
	return &rerank.Diversity{
		LabelKey:    conv.ConfigGet(cfg, "label_key", "cf_algo"),
		MaxPerValue: int(conv.ConfigGetInt64(cfg, "max_per_value", 1)),
	}, nil
}

package recall

import (
	"context"
	"sort"

	"github.com/goccy/go-json"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/pkg/utils"
)

// Popular 是热门召回源：按评价人数从多到少返回物品，常与 CF 召回源一起 fan-out 覆盖冷启动用户。
//   - Store 与 Key 都设置时，优先读取 Key 下预计算的 JSON 数组（物品 ID，已按热度排序）
//   - 否则扫描 Model，按 NumUsersWithPreferenceFor 计数排序，同分按物品 ID 升序
//
// Popular 同时实现了 Source 和 Node 接口，可以直接在 Pipeline 中使用
type Popular struct {
	Model core.DataModel
	Store core.Store
	Key   string // 存储 key，例如 "cf:popular"

	// TopK 召回数量，≤ 0 表示不限制
	TopK int

	// ExcludeRated 排除当前用户已评分的物品
	ExcludeRated bool
}

func (r *Popular) Name() string        { return "recall.popular" }
func (r *Popular) Kind() pipeline.Kind { return pipeline.KindRecall }

// Process 实现 Node 接口，直接调用 Recall
func (r *Popular) Process(
	ctx context.Context,
	rctx *core.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	return r.Recall(ctx, rctx)
}

// Recall 实现 Source 接口
func (r *Popular) Recall(ctx context.Context, rctx *core.RecommendContext) ([]*core.Item, error) {
	ranked, err := r.ranked(ctx)
	if err != nil {
		return nil, err
	}

	rated := map[string]float64{}
	if r.ExcludeRated && r.Model != nil && rctx != nil && rctx.UserID != "" {
		prefs, err := r.Model.PreferencesFromUser(ctx, rctx.UserID)
		if err != nil && !core.IsNotFound(err) {
			return nil, err
		}
		rated = core.PreferenceMap(prefs, true)
	}

	out := make([]*core.Item, 0, len(ranked))
	for _, sc := range ranked {
		if _, ok := rated[sc.id]; ok {
			continue
		}
		it := core.NewItem(sc.id)
		it.Score = sc.count
		it.PutLabel(LabelRecallSource, utils.Label{Value: r.Name(), Source: "recall"})
		out = append(out, it)
		if r.TopK > 0 && len(out) >= r.TopK {
			break
		}
	}
	return out, nil
}

type popularity struct {
	id    string
	count float64
}

func (r *Popular) ranked(ctx context.Context) ([]popularity, error) {
	if r.Store != nil && r.Key != "" {
		data, err := r.Store.Get(ctx, r.Key)
		if err == nil {
			var ids []string
			if err := json.Unmarshal(data, &ids); err == nil {
				out := make([]popularity, len(ids))
				for i, id := range ids {
					// 预计算列表只有顺序，分数按名次递减
					out[i] = popularity{id: id, count: float64(len(ids) - i)}
				}
				return out, nil
			}
			logging.Warn().Str("key", r.Key).Msg("invalid popular list, falling back to model")
		} else if !core.IsStoreNotFound(err) {
			return nil, err
		}
	}
	if r.Model == nil {
		return nil, nil
	}

	itemIDs, err := r.Model.ItemIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]popularity, 0, len(itemIDs))
	for _, id := range itemIDs {
		n, err := r.Model.NumUsersWithPreferenceFor(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, popularity{id: id, count: float64(n)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].count > out[j].count })
	return out, nil
}

var (
	_ Source        = (*Popular)(nil)
	_ pipeline.Node = (*Popular)(nil)
)

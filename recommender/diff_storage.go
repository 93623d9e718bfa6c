package recommender

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/pkg/metrics"
)

// pairKey 是物品对的规范地址：lo < hi，均为物品在 ItemIDs 枚举中的下标。
type pairKey struct {
	lo, hi int32
}

// pairRecord 保存 r_lo − r_hi 的累加统计；构建完成后 avg/stdDev 可用。
type pairRecord struct {
	sum    float64
	sumSq  float64
	count  int
	avg    float64
	stdDev float64
	hasStd bool
}

// ItemDiff 是 DiffsAverage 的一项结果，与传入的偏好一一对应。
type ItemDiff struct {
	ItemID string
	// Diff 使得 用户对 ItemID 的评分 + Diff ≈ 用户对目标物品的评分
	Diff      float64
	Count     int
	StdDev    float64
	HasStdDev bool
	// OK=false 表示该物品与目标物品没有（或已被剪枝的）差值
	OK bool
}

// DiffOption DiffStorage 配置选项
type DiffOption func(*DiffStorage)

// WithStdDevWeighted 计算每个物品对差值的样本标准差，默认关闭。
func WithStdDevWeighted(on bool) DiffOption {
	return func(d *DiffStorage) {
		d.stdDevWeighted = on
	}
}

// WithPruning 构建后丢弃只有一个共同评分用户的物品对，默认开启。
func WithPruning(on bool) DiffOption {
	return func(d *DiffStorage) {
		d.prune = on
	}
}

// DiffStorage 是 slope-one 使用的物品对平均差值索引。
//
// 每个无序物品对只存一条记录（arena + 规范地址），反方向的差值在查询时取负得到。
// 索引在构建时对 DataModel 做快照，之后数据变化不会自动反映，需要显式调用 Rebuild。
type DiffStorage struct {
	model          core.DataModel
	stdDevWeighted bool
	prune          bool

	mu          sync.RWMutex
	index       map[string]int32 // itemID → 枚举下标
	arena       []pairRecord
	lookup      map[pairKey]int32 // 规范地址 → arena 下标
	recommended []string
}

// NewDiffStorage 扫描 model 构建差值索引。
func NewDiffStorage(ctx context.Context, model core.DataModel, opts ...DiffOption) (*DiffStorage, error) {
	d := &DiffStorage{model: model, prune: true}
	for _, opt := range opts {
		opt(d)
	}
	if err := d.Rebuild(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Rebuild 重新扫描 DataModel；构建期间旧索引仍可读，完成后原子替换。
func (d *DiffStorage) Rebuild(ctx context.Context) error {
	start := time.Now()

	itemIDs, err := d.model.ItemIDs(ctx)
	if err != nil {
		return err
	}
	index := make(map[string]int32, len(itemIDs))
	for i, id := range itemIDs {
		index[id] = int32(i)
	}
	userIDs, err := d.model.UserIDs(ctx)
	if err != nil {
		return err
	}

	var arena []pairRecord
	lookup := make(map[pairKey]int32)
	rated := make(map[string]struct{})
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		prefs, err := d.model.PreferencesFromUser(ctx, userID)
		if err != nil {
			return err
		}
		for i, a := range prefs {
			rated[a.ItemID] = struct{}{}
			ia, ok := index[a.ItemID]
			if !ok {
				continue
			}
			for _, b := range prefs[i+1:] {
				ib, ok := index[b.ItemID]
				if !ok || ia == ib {
					continue
				}
				key, diff := pairKey{ia, ib}, a.Value-b.Value
				if ib < ia {
					key, diff = pairKey{ib, ia}, -diff
				}
				slot, ok := lookup[key]
				if !ok {
					slot = int32(len(arena))
					arena = append(arena, pairRecord{})
					lookup[key] = slot
				}
				rec := &arena[slot]
				rec.sum += diff
				rec.sumSq += diff * diff
				rec.count++
			}
		}
	}

	pruned := 0
	if d.prune {
		arena, lookup, pruned = compact(arena, lookup)
	}
	for i := range arena {
		finalize(&arena[i], d.stdDevWeighted)
	}

	recommended := make([]string, 0, len(rated))
	for id := range rated {
		recommended = append(recommended, id)
	}
	sort.Strings(recommended)

	d.mu.Lock()
	d.index, d.arena, d.lookup, d.recommended = index, arena, lookup, recommended
	d.mu.Unlock()

	metrics.DiffIndexPairs.Set(float64(len(arena)))
	metrics.DiffIndexBuildDuration.Observe(time.Since(start).Seconds())
	logging.Info().
		Str("model", d.model.Name()).
		Int("items", len(itemIDs)).
		Int("pairs", len(arena)).
		Int("pruned", pruned).
		Dur("took", time.Since(start)).
		Msg("diff index built")
	return nil
}

// compact 丢弃 count ≤ 1 的记录并重排 arena。
func compact(arena []pairRecord, lookup map[pairKey]int32) ([]pairRecord, map[pairKey]int32, int) {
	kept := make([]pairRecord, 0, len(arena))
	next := make(map[pairKey]int32, len(lookup))
	for key, slot := range lookup {
		rec := arena[slot]
		if rec.count <= 1 {
			continue
		}
		next[key] = int32(len(kept))
		kept = append(kept, rec)
	}
	return kept, next, len(arena) - len(kept)
}

func finalize(rec *pairRecord, withStdDev bool) {
	n := float64(rec.count)
	rec.avg = rec.sum / n
	if !withStdDev || rec.count < 2 {
		return
	}
	variance := (rec.sumSq - rec.sum*rec.sum/n) / (n - 1)
	rec.stdDev = math.Sqrt(math.Max(variance, 0))
	rec.hasStd = true
}

// record 返回 (a, b) 对应的记录，sign 为 +1 表示 a 在规范方向的前面。调用方需持有读锁。
func (d *DiffStorage) record(a, b string) (*pairRecord, float64, bool) {
	ia, ok := d.index[a]
	if !ok {
		return nil, 0, false
	}
	ib, ok := d.index[b]
	if !ok || ia == ib {
		return nil, 0, false
	}
	key, sign := pairKey{ia, ib}, 1.0
	if ib < ia {
		key, sign = pairKey{ib, ia}, -1.0
	}
	slot, ok := d.lookup[key]
	if !ok {
		return nil, 0, false
	}
	return &d.arena[slot], sign, true
}

// Diff 返回 avg(r_a − r_b)；从未被共同评分或已被剪枝时 ok=false。
func (d *DiffStorage) Diff(a, b string) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, sign, ok := d.record(a, b)
	if !ok {
		return 0, false
	}
	return sign * rec.avg, true
}

// Count 返回同时评价过 a 和 b 的用户数，对称。
func (d *DiffStorage) Count(a, b string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, _, ok := d.record(a, b)
	if !ok {
		return 0
	}
	return rec.count
}

// StdDev 返回差值的样本标准差；未开启 WithStdDevWeighted 或 count < 2 时 ok=false。
func (d *DiffStorage) StdDev(a, b string) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, _, ok := d.record(a, b)
	if !ok || !rec.hasStd {
		return 0, false
	}
	return rec.stdDev, true
}

// DiffsAverage 对用户的每条偏好返回其物品到 itemID 的差值，
// 方向满足 pref.Value + Diff ≈ 对 itemID 的评分。结果与 prefs 按下标对齐。
func (d *DiffStorage) DiffsAverage(_ string, itemID string, prefs []core.Preference) []ItemDiff {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]ItemDiff, len(prefs))
	for i, p := range prefs {
		out[i].ItemID = p.ItemID
		rec, sign, ok := d.record(itemID, p.ItemID)
		if !ok {
			continue
		}
		out[i] = ItemDiff{
			ItemID:    p.ItemID,
			Diff:      sign * rec.avg,
			Count:     rec.count,
			StdDev:    rec.stdDev,
			HasStdDev: rec.hasStd,
			OK:        true,
		}
	}
	return out
}

// RecommendableItems 返回构建时至少有一条评分的物品（升序）。
func (d *DiffStorage) RecommendableItems() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.recommended...)
}

// NumPairs 返回索引中的物品对数量。
func (d *DiffStorage) NumPairs() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.arena)
}

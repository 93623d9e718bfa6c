package filter

import (
	"context"
	"strconv"
	"time"

	"github.com/rushteam/cfkit/core"
)

// RatedFilter 过滤掉用户已经评过分的物品。未知用户不过滤任何物品。
type RatedFilter struct {
	Model core.DataModel
}

func (f *RatedFilter) Name() string {
	return "filter.rated"
}

func (f *RatedFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil || rctx.UserID == "" || f.Model == nil {
		return false, nil
	}
	_, ok, err := f.Model.PreferenceValue(ctx, rctx.UserID, item.ID)
	if core.IsNotFound(err) {
		return false, nil
	}
	return ok, err
}

// ExposedFilter 是已曝光过滤器，过滤掉用户近期已经看过的物品。
//
// 曝光记录保存在 Hash {KeyPrefix}:{userID} 中，field 为物品 ID，value 为曝光时间（毫秒时间戳）。
// TimeWindow > 0 时只有窗口内的曝光才会被过滤。
type ExposedFilter struct {
	Store core.KeyValueStore

	// KeyPrefix 默认 "cf:exposed"
	KeyPrefix string

	TimeWindow time.Duration

	// now 便于测试
	now func() time.Time
}

// NewExposedFilter 创建一个已曝光过滤器。
func NewExposedFilter(s core.KeyValueStore, keyPrefix string, window time.Duration) *ExposedFilter {
	return &ExposedFilter{Store: s, KeyPrefix: keyPrefix, TimeWindow: window}
}

func (f *ExposedFilter) Name() string {
	return "filter.exposed"
}

func (f *ExposedFilter) key(userID string) string {
	prefix := f.KeyPrefix
	if prefix == "" {
		prefix = "cf:exposed"
	}
	return prefix + ":" + userID
}

// Expose 记录一次曝光。
func (f *ExposedFilter) Expose(ctx context.Context, userID, itemID string, at time.Time) error {
	return f.Store.HSet(ctx, f.key(userID), itemID, []byte(strconv.FormatInt(at.UnixMilli(), 10)))
}

func (f *ExposedFilter) ShouldFilter(
	ctx context.Context,
	rctx *core.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx == nil || rctx.UserID == "" || f.Store == nil {
		return false, nil
	}

	raw, err := f.Store.HGet(ctx, f.key(rctx.UserID), item.ID)
	if core.IsStoreNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if f.TimeWindow <= 0 {
		return true, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		// 无法解析的记录按已曝光处理
		return true, nil
	}
	now := time.Now
	if f.now != nil {
		now = f.now
	}
	return now().Sub(time.UnixMilli(ms)) <= f.TimeWindow, nil
}

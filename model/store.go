package model

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/rushteam/cfkit/core"
)

// StoreDataModel 是基于 core.KeyValueStore 的 DataModel。
// 偏好矩阵的行与列分别以 Hash 形式保存，可以落在 Redis / Badger / 内存中。
//
// Key 布局：
//   - {KeyPrefix}:user:{userID}  field=itemID  value={"v":偏好值,"t":毫秒时间戳}
//   - {KeyPrefix}:item:{itemID}  field=userID  value 同上
//   - {KeyPrefix}:users          field=userID  （用户注册表）
//   - {KeyPrefix}:items          field=itemID  （物品注册表）
//   - {KeyPrefix}:bounds         field=min/max （未固定区间时由写入维护）
//
// 多个进程并发写同一前缀时 bounds 可能落后于数据，RefreshBounds 可重新推导。
type StoreDataModel struct {
	store core.KeyValueStore

	// KeyPrefix 是存储 key 的前缀，默认 "cf"
	KeyPrefix string

	fixedBounds bool
	minPref     float64
	maxPref     float64
}

// StoreOption StoreDataModel 配置选项
type StoreOption func(*StoreDataModel)

// WithStoreBounds 固定偏好值区间；未设置时区间保存在 {KeyPrefix}:bounds 中，随写入更新。
func WithStoreBounds(min, max float64) StoreOption {
	return func(m *StoreDataModel) {
		m.fixedBounds = true
		m.minPref = min
		m.maxPref = max
	}
}

// NewStoreDataModel 创建一个基于 KeyValueStore 的数据模型。
func NewStoreDataModel(s core.KeyValueStore, keyPrefix string, opts ...StoreOption) *StoreDataModel {
	if keyPrefix == "" {
		keyPrefix = "cf"
	}
	m := &StoreDataModel{store: s, KeyPrefix: keyPrefix}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type storedValue struct {
	V float64 `json:"v"`
	T int64   `json:"t,omitempty"`
}

func (m *StoreDataModel) Name() string { return "store_" + m.store.Name() }

func (m *StoreDataModel) userKey(userID string) string { return m.KeyPrefix + ":user:" + userID }
func (m *StoreDataModel) itemKey(itemID string) string { return m.KeyPrefix + ":item:" + itemID }
func (m *StoreDataModel) usersKey() string             { return m.KeyPrefix + ":users" }
func (m *StoreDataModel) itemsKey() string             { return m.KeyPrefix + ":items" }
func (m *StoreDataModel) boundsKey() string            { return m.KeyPrefix + ":bounds" }

func (m *StoreDataModel) UserIDs(ctx context.Context) ([]string, error) {
	return m.registry(ctx, m.usersKey())
}

func (m *StoreDataModel) ItemIDs(ctx context.Context) ([]string, error) {
	return m.registry(ctx, m.itemsKey())
}

func (m *StoreDataModel) PreferencesFromUser(ctx context.Context, userID string) ([]core.Preference, error) {
	if err := m.requireMember(ctx, m.usersKey(), userID, userNotFound); err != nil {
		return nil, err
	}
	fields, err := m.store.HGetAll(ctx, m.userKey(userID))
	if err != nil {
		return nil, err
	}
	out := make([]core.Preference, 0, len(fields))
	for itemID, raw := range fields {
		p, err := decodePreference(userID, itemID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *StoreDataModel) PreferencesForItem(ctx context.Context, itemID string) ([]core.Preference, error) {
	fields, err := m.store.HGetAll(ctx, m.itemKey(itemID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, itemNotFound(itemID)
	}
	out := make([]core.Preference, 0, len(fields))
	for userID, raw := range fields {
		p, err := decodePreference(userID, itemID, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *StoreDataModel) PreferenceValue(ctx context.Context, userID, itemID string) (float64, bool, error) {
	raw, err := m.store.HGet(ctx, m.userKey(userID), itemID)
	if err == nil {
		p, err := decodePreference(userID, itemID, raw)
		if err != nil {
			return 0, false, err
		}
		return p.Value, true, nil
	}
	if !core.IsStoreNotFound(err) {
		return 0, false, err
	}
	if err := m.requireMember(ctx, m.usersKey(), userID, userNotFound); err != nil {
		return 0, false, err
	}
	return 0, false, nil
}

func (m *StoreDataModel) NumUsers(ctx context.Context) (int, error) {
	ids, err := m.UserIDs(ctx)
	return len(ids), err
}

func (m *StoreDataModel) NumItems(ctx context.Context) (int, error) {
	ids, err := m.ItemIDs(ctx)
	return len(ids), err
}

func (m *StoreDataModel) NumUsersWithPreferenceFor(ctx context.Context, itemIDs ...string) (int, error) {
	if len(itemIDs) == 0 || len(itemIDs) > 2 {
		return 0, core.InvalidInputf(core.ModuleModel, "model: illegal number of item ids: %d", len(itemIDs))
	}
	first, err := m.PreferencesForItem(ctx, itemIDs[0])
	if err != nil {
		return 0, err
	}
	if len(itemIDs) == 1 {
		return len(first), nil
	}
	second, err := m.PreferencesForItem(ctx, itemIDs[1])
	if err != nil {
		return 0, err
	}
	users := core.PreferenceMap(second, false)
	n := 0
	for _, p := range first {
		if _, ok := users[p.UserID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *StoreDataModel) Bounds(ctx context.Context) (float64, float64, error) {
	if m.fixedBounds {
		return m.minPref, m.maxPref, nil
	}
	lo, hi, ok, err := m.cachedBounds(ctx)
	if err != nil || ok {
		return lo, hi, err
	}
	return m.RefreshBounds(ctx)
}

// RefreshBounds 扫描全部用户行重新推导偏好区间，并写回 {KeyPrefix}:bounds。
func (m *StoreDataModel) RefreshBounds(ctx context.Context) (float64, float64, error) {
	userIDs, err := m.UserIDs(ctx)
	if err != nil {
		return 0, 0, err
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, userID := range userIDs {
		prefs, err := m.PreferencesFromUser(ctx, userID)
		if err != nil {
			return 0, 0, err
		}
		for _, p := range prefs {
			lo = math.Min(lo, p.Value)
			hi = math.Max(hi, p.Value)
		}
	}
	if math.IsInf(lo, 1) {
		if err := m.store.HDel(ctx, m.boundsKey(), "min"); err != nil {
			return 0, 0, err
		}
		return 0, 0, m.store.HDel(ctx, m.boundsKey(), "max")
	}
	return lo, hi, m.saveBounds(ctx, lo, hi)
}

// cachedBounds 读取 {KeyPrefix}:bounds，记录缺失或无法解析时 ok=false。
func (m *StoreDataModel) cachedBounds(ctx context.Context) (lo, hi float64, ok bool, err error) {
	fields, err := m.store.HGetAll(ctx, m.boundsKey())
	if err != nil || len(fields) == 0 {
		return 0, 0, false, err
	}
	lo, errLo := strconv.ParseFloat(string(fields["min"]), 64)
	hi, errHi := strconv.ParseFloat(string(fields["max"]), 64)
	if errLo != nil || errHi != nil {
		return 0, 0, false, nil
	}
	return lo, hi, true, nil
}

func (m *StoreDataModel) saveBounds(ctx context.Context, lo, hi float64) error {
	if err := m.store.HSet(ctx, m.boundsKey(), "min", []byte(strconv.FormatFloat(lo, 'g', -1, 64))); err != nil {
		return err
	}
	return m.store.HSet(ctx, m.boundsKey(), "max", []byte(strconv.FormatFloat(hi, 'g', -1, 64)))
}

// updateBounds 在一条偏好由 old 变为 v（removed 表示被删除）后维护区间：
// 新值落在区间外时直接扩展，原来的边界值被改写或删除时重新扫描。
func (m *StoreDataModel) updateBounds(ctx context.Context, old float64, hadOld bool, v float64, removed bool) error {
	if m.fixedBounds {
		return nil
	}
	lo, hi, ok, err := m.cachedBounds(ctx)
	if err != nil {
		return err
	}
	if !ok || (hadOld && (old == lo || old == hi) && (removed || old != v)) {
		_, _, err := m.RefreshBounds(ctx)
		return err
	}
	if removed || (v >= lo && v <= hi) {
		return nil
	}
	return m.saveBounds(ctx, min(lo, v), max(hi, v))
}

func (m *StoreDataModel) SetPreference(ctx context.Context, userID, itemID string, value float64) error {
	return m.put(ctx, core.Preference{UserID: userID, ItemID: itemID, Value: value, Timestamp: time.Now()})
}

// RemovePreference 删除一条偏好；用户或偏好不存在时不做任何事。
func (m *StoreDataModel) RemovePreference(ctx context.Context, userID, itemID string) error {
	old, ok, err := m.currentValue(ctx, userID, itemID)
	if err != nil || !ok {
		return err
	}
	if err := m.store.HDel(ctx, m.userKey(userID), itemID); err != nil {
		return err
	}
	if err := m.store.HDel(ctx, m.itemKey(itemID), userID); err != nil {
		return err
	}
	rest, err := m.store.HGetAll(ctx, m.itemKey(itemID))
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		if err := m.store.HDel(ctx, m.itemsKey(), itemID); err != nil {
			return err
		}
	}
	return m.updateBounds(ctx, old, true, 0, true)
}

// Close 关闭底层存储。
func (m *StoreDataModel) Close() error { return m.store.Close() }

// Store 返回底层存储，供黑名单、曝光记录等共享同一后端。
func (m *StoreDataModel) Store() core.KeyValueStore { return m.store }

// AddUser 注册一个没有任何评分的用户。
func (m *StoreDataModel) AddUser(ctx context.Context, userID string) error {
	return m.store.HSet(ctx, m.usersKey(), userID, []byte{'1'})
}

// Import 批量写入偏好，Timestamp 为零值时不记录时间。
func (m *StoreDataModel) Import(ctx context.Context, prefs []core.Preference) error {
	for _, p := range prefs {
		if err := m.put(ctx, p); err != nil {
			return fmt.Errorf("import %s/%s: %w", p.UserID, p.ItemID, err)
		}
	}
	return nil
}

func (m *StoreDataModel) put(ctx context.Context, p core.Preference) error {
	sv := storedValue{V: p.Value}
	if !p.Timestamp.IsZero() {
		sv.T = p.Timestamp.UnixMilli()
	}
	data, err := json.Marshal(sv)
	if err != nil {
		return err
	}
	var (
		old    float64
		hadOld bool
	)
	if !m.fixedBounds {
		if old, hadOld, err = m.currentValue(ctx, p.UserID, p.ItemID); err != nil {
			return err
		}
	}
	if err := m.store.HSet(ctx, m.userKey(p.UserID), p.ItemID, data); err != nil {
		return err
	}
	if err := m.store.HSet(ctx, m.itemKey(p.ItemID), p.UserID, data); err != nil {
		return err
	}
	if err := m.store.HSet(ctx, m.usersKey(), p.UserID, []byte{'1'}); err != nil {
		return err
	}
	if err := m.store.HSet(ctx, m.itemsKey(), p.ItemID, []byte{'1'}); err != nil {
		return err
	}
	return m.updateBounds(ctx, old, hadOld, p.Value, false)
}

// currentValue 读取已保存的偏好值，不存在时 ok=false。
func (m *StoreDataModel) currentValue(ctx context.Context, userID, itemID string) (float64, bool, error) {
	raw, err := m.store.HGet(ctx, m.userKey(userID), itemID)
	if core.IsStoreNotFound(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	p, err := decodePreference(userID, itemID, raw)
	if err != nil {
		return 0, false, err
	}
	return p.Value, true, nil
}

func (m *StoreDataModel) registry(ctx context.Context, key string) ([]string, error) {
	fields, err := m.store.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	return sortedKeys(fields), nil
}

func (m *StoreDataModel) requireMember(ctx context.Context, key, id string, notFound func(string) error) error {
	_, err := m.store.HGet(ctx, key, id)
	if core.IsStoreNotFound(err) {
		return notFound(id)
	}
	return err
}

func decodePreference(userID, itemID string, raw []byte) (core.Preference, error) {
	var sv storedValue
	if err := json.Unmarshal(raw, &sv); err != nil {
		return core.Preference{}, fmt.Errorf("decode preference %s/%s: %w", userID, itemID, err)
	}
	p := core.Preference{UserID: userID, ItemID: itemID, Value: sv.V}
	if sv.T > 0 {
		p.Timestamp = time.UnixMilli(sv.T)
	}
	return p, nil
}

var _ core.DataModel = (*StoreDataModel)(nil)

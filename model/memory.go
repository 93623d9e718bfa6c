// Package model 提供 core.DataModel 的实现：偏好矩阵（用户 × 物品）的读写视图。
package model

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rushteam/cfkit/core"
)

// MemoryDataModel 是内存字典实现的 DataModel。
//
// 数据形如 {userID: {itemID: value}}；值为空 map 的用户被视为已知但没有评分的用户，
// 它会出现在 UserIDs 中，PreferencesFromUser 返回空切片。
//
// 并发：读写锁保护，允许并发读、单写。
type MemoryDataModel struct {
	mu sync.RWMutex

	users map[string]map[string]core.Preference // userID -> itemID -> pref
	items map[string]map[string]float64         // itemID -> userID -> value

	userIDs []string
	itemIDs []string

	fixedBounds bool
	minPref     float64
	maxPref     float64
}

// MemoryOption MemoryDataModel 配置选项
type MemoryOption func(*MemoryDataModel)

// WithBounds 固定偏好值区间（例如评分 1~5），不再从数据推导。
func WithBounds(min, max float64) MemoryOption {
	return func(m *MemoryDataModel) {
		m.fixedBounds = true
		m.minPref = min
		m.maxPref = max
	}
}

// NewMemoryDataModel 从 {userID: {itemID: value}} 构建数据模型。
func NewMemoryDataModel(data map[string]map[string]float64, opts ...MemoryOption) *MemoryDataModel {
	m := &MemoryDataModel{
		users: make(map[string]map[string]core.Preference, len(data)),
		items: make(map[string]map[string]float64),
	}
	for _, opt := range opts {
		opt(m)
	}
	for userID, prefs := range data {
		row := make(map[string]core.Preference, len(prefs))
		for itemID, value := range prefs {
			row[itemID] = core.Preference{UserID: userID, ItemID: itemID, Value: value}
			m.column(itemID)[userID] = value
		}
		m.users[userID] = row
	}
	m.reindex()
	return m
}

// NewMemoryDataModelFromPreferences 从偏好列表构建数据模型，重复的 (user, item) 以后者为准。
func NewMemoryDataModelFromPreferences(prefs []core.Preference, opts ...MemoryOption) *MemoryDataModel {
	m := NewMemoryDataModel(nil, opts...)
	for _, p := range prefs {
		m.set(p)
	}
	m.reindex()
	return m
}

func (m *MemoryDataModel) Name() string { return "memory" }

func (m *MemoryDataModel) UserIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.userIDs...), nil
}

func (m *MemoryDataModel) ItemIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.itemIDs...), nil
}

func (m *MemoryDataModel) PreferencesFromUser(_ context.Context, userID string) ([]core.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.users[userID]
	if !ok {
		return nil, userNotFound(userID)
	}
	out := make([]core.Preference, 0, len(row))
	for _, p := range row {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

func (m *MemoryDataModel) PreferencesForItem(_ context.Context, itemID string) ([]core.Preference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	col, ok := m.items[itemID]
	if !ok {
		return nil, itemNotFound(itemID)
	}
	out := make([]core.Preference, 0, len(col))
	for userID := range col {
		out = append(out, m.users[userID][itemID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryDataModel) PreferenceValue(_ context.Context, userID, itemID string) (float64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.users[userID]
	if !ok {
		return 0, false, userNotFound(userID)
	}
	p, ok := row[itemID]
	return p.Value, ok, nil
}

func (m *MemoryDataModel) NumUsers(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemoryDataModel) NumItems(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

func (m *MemoryDataModel) NumUsersWithPreferenceFor(_ context.Context, itemIDs ...string) (int, error) {
	if len(itemIDs) == 0 || len(itemIDs) > 2 {
		return 0, core.InvalidInputf(core.ModuleModel, "model: illegal number of item ids: %d", len(itemIDs))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	first, ok := m.items[itemIDs[0]]
	if !ok {
		return 0, itemNotFound(itemIDs[0])
	}
	if len(itemIDs) == 1 {
		return len(first), nil
	}
	second, ok := m.items[itemIDs[1]]
	if !ok {
		return 0, itemNotFound(itemIDs[1])
	}
	n := 0
	for userID := range first {
		if _, ok := second[userID]; ok {
			n++
		}
	}
	return n, nil
}

func (m *MemoryDataModel) Bounds(_ context.Context) (float64, float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.minPref, m.maxPref, nil
}

func (m *MemoryDataModel) SetPreference(_ context.Context, userID, itemID string, value float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.set(core.Preference{UserID: userID, ItemID: itemID, Value: value, Timestamp: time.Now()})
	m.reindex()
	return nil
}

func (m *MemoryDataModel) RemovePreference(_ context.Context, userID, itemID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.users[userID]
	if _, ok := row[itemID]; !ok {
		return nil
	}
	delete(row, itemID)
	if col, ok := m.items[itemID]; ok {
		delete(col, userID)
		if len(col) == 0 {
			delete(m.items, itemID)
		}
	}
	m.reindex()
	return nil
}

// AddUser 注册一个没有任何评分的用户；已存在时不做任何事。
func (m *MemoryDataModel) AddUser(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[userID]; ok {
		return
	}
	m.users[userID] = make(map[string]core.Preference)
	m.reindex()
}

func (m *MemoryDataModel) set(p core.Preference) {
	row, ok := m.users[p.UserID]
	if !ok {
		row = make(map[string]core.Preference)
		m.users[p.UserID] = row
	}
	row[p.ItemID] = p
	m.column(p.ItemID)[p.UserID] = p.Value
}

func (m *MemoryDataModel) column(itemID string) map[string]float64 {
	col, ok := m.items[itemID]
	if !ok {
		col = make(map[string]float64)
		m.items[itemID] = col
	}
	return col
}

// reindex 重建有序 ID 缓存，并在未固定区间时重新推导 [min, max]。调用方需持有写锁。
func (m *MemoryDataModel) reindex() {
	m.userIDs = sortedKeys(m.users)
	m.itemIDs = sortedKeys(m.items)
	if m.fixedBounds {
		return
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range m.users {
		for _, p := range row {
			lo = math.Min(lo, p.Value)
			hi = math.Max(hi, p.Value)
		}
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 0
	}
	m.minPref, m.maxPref = lo, hi
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func userNotFound(userID string) error {
	return core.NotFoundf(core.ModuleModel, "model: user %q not found", userID)
}

func itemNotFound(itemID string) error {
	return core.NotFoundf(core.ModuleModel, "model: item %q not found", itemID)
}

var _ core.DataModel = (*MemoryDataModel)(nil)

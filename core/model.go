package core

import (
	"context"
	"time"
)

// Preference 是一条 (用户, 物品, 偏好值) 记录，Timestamp 可选。
type Preference struct {
	UserID    string
	ItemID    string
	Value     float64
	Timestamp time.Time
}

// DataModel 是偏好数据仓库的领域接口（稀疏的用户-物品矩阵）。
//
// 约定：
//   - UserIDs / ItemIDs 按 ID 升序返回；ItemIDs 的顺序就是物品的全序，
//     差值索引（recommender.DiffStorage）据此确定每对物品的规范方向
//   - PreferencesFromUser 按 ItemID 排序，PreferencesForItem 按 UserID 排序
//   - 未知用户/物品返回 NOT_FOUND（见 IsNotFound），不会被静默吞掉
//   - 已知但没有任何评分的用户返回空切片
//
// 实现：
//   - model.MemoryDataModel：内存字典
//   - model.StoreDataModel：基于 KeyValueStore（Redis / Badger / Memory）
type DataModel interface {
	// Name 返回数据模型名称（用于日志/监控）
	Name() string

	// UserIDs 返回所有用户 ID
	UserIDs(ctx context.Context) ([]string, error)

	// ItemIDs 返回所有物品 ID
	ItemIDs(ctx context.Context) ([]string, error)

	// PreferencesFromUser 返回用户的全部偏好（一行）
	PreferencesFromUser(ctx context.Context, userID string) ([]Preference, error)

	// PreferencesForItem 返回物品收到的全部偏好（一列）
	PreferencesForItem(ctx context.Context, itemID string) ([]Preference, error)

	// PreferenceValue 返回单个偏好值；未设置时 ok=false
	PreferenceValue(ctx context.Context, userID, itemID string) (value float64, ok bool, err error)

	// NumUsers 返回用户数
	NumUsers(ctx context.Context) (int, error)

	// NumItems 返回物品数
	NumItems(ctx context.Context) (int, error)

	// NumUsersWithPreferenceFor 返回同时对给定 1~2 个物品表达过偏好的用户数
	NumUsersWithPreferenceFor(ctx context.Context, itemIDs ...string) (int, error)

	// Bounds 返回偏好值的取值区间 [min, max]，用于 capping
	Bounds(ctx context.Context) (min, max float64, err error)

	// SetPreference 写入（或覆盖）一条偏好
	SetPreference(ctx context.Context, userID, itemID string, value float64) error

	// RemovePreference 删除一条偏好；偏好或用户不存在时不报错
	RemovePreference(ctx context.Context, userID, itemID string) error
}

// PreferenceMap 把偏好列表转换为 itemID/userID → value 的稀疏向量。
// byItem=true 时以 ItemID 为 key（用户行），否则以 UserID 为 key（物品列）。
func PreferenceMap(prefs []Preference, byItem bool) map[string]float64 {
	out := make(map[string]float64, len(prefs))
	for _, p := range prefs {
		if byItem {
			out[p.ItemID] = p.Value
		} else {
			out[p.UserID] = p.Value
		}
	}
	return out
}

// Rescorer 是排序前对原始分数的可插拔变换。
// thing 是查询主体（用户或物品），不是候选；返回 ok=false 表示丢弃该候选。
type Rescorer interface {
	Rescore(thing string, score float64) (float64, bool)
}

// RescorerFunc 把普通函数适配为 Rescorer。
type RescorerFunc func(thing string, score float64) (float64, bool)

func (f RescorerFunc) Rescore(thing string, score float64) (float64, bool) {
	return f(thing, score)
}

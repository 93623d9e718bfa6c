package neighborhood

import (
	"context"
	"sort"

	"github.com/rushteam/cfkit/core"
)

// CandidateItemsStrategy 决定哪些物品可以推荐给用户。返回的 ID 升序排列。
type CandidateItemsStrategy interface {
	CandidateItems(ctx context.Context, userID string, model core.DataModel) ([]string, error)
}

// PreferredItemsNeighborhoodStrategy 返回用户未评分、且被“与该用户至少有一个共同评分物品的其他用户”
// 评过分的物品。
type PreferredItemsNeighborhoodStrategy struct{}

func (PreferredItemsNeighborhoodStrategy) CandidateItems(ctx context.Context, userID string, model core.DataModel) ([]string, error) {
	own, err := model.PreferencesFromUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rated := core.PreferenceMap(own, true)

	visited := make(map[string]struct{})
	candidates := make(map[string]struct{})
	for _, p := range own {
		raters, err := model.PreferencesForItem(ctx, p.ItemID)
		if err != nil {
			return nil, err
		}
		for _, r := range raters {
			if _, ok := visited[r.UserID]; ok {
				continue
			}
			visited[r.UserID] = struct{}{}
			items, err := model.PreferencesFromUser(ctx, r.UserID)
			if err != nil {
				return nil, err
			}
			for _, it := range items {
				if _, ok := rated[it.ItemID]; !ok {
					candidates[it.ItemID] = struct{}{}
				}
			}
		}
	}
	return sortedSet(candidates), nil
}

// AllUnknownItemsStrategy 返回用户没有评过分的所有物品。
type AllUnknownItemsStrategy struct{}

func (AllUnknownItemsStrategy) CandidateItems(ctx context.Context, userID string, model core.DataModel) ([]string, error) {
	own, err := model.PreferencesFromUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	rated := core.PreferenceMap(own, true)
	itemIDs, err := model.ItemIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(itemIDs))
	for _, id := range itemIDs {
		if _, ok := rated[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var (
	_ CandidateItemsStrategy = PreferredItemsNeighborhoodStrategy{}
	_ CandidateItemsStrategy = AllUnknownItemsStrategy{}
)

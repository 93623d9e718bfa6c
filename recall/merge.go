package recall

import (
	"sort"

	"github.com/rushteam/cfkit/core"
)

// SourceResult 是单个召回源的结果。Priority 为召回源在 Fanout.Sources 中的下标，越小优先级越高。
type SourceResult struct {
	Source   string
	Priority int
	Items    []*core.Item
}

// MergeStrategy 合并多个召回源的结果。results 按完成先后排列。
type MergeStrategy interface {
	Merge(results []SourceResult, dedup bool) []*core.Item
}

// FirstMergeStrategy 按完成顺序合并；去重时保留第一个出现的物品，并把重复物品的 labels 并入。
type FirstMergeStrategy struct{}

func (FirstMergeStrategy) Merge(results []SourceResult, dedup bool) []*core.Item {
	return mergeInOrder(results, dedup)
}

// PriorityMergeStrategy 按召回源优先级合并：相同 ID 时保留优先级更高的召回源的物品。
type PriorityMergeStrategy struct{}

func (PriorityMergeStrategy) Merge(results []SourceResult, dedup bool) []*core.Item {
	ordered := append([]SourceResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	return mergeInOrder(ordered, dedup)
}

// UnionMergeStrategy 按优先级拼接所有结果，不去重（用于需要保留所有来源的场景）。
type UnionMergeStrategy struct{}

func (UnionMergeStrategy) Merge(results []SourceResult, _ bool) []*core.Item {
	ordered := append([]SourceResult(nil), results...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })
	return mergeInOrder(ordered, false)
}

// ParseMergeStrategy 按名称返回合并策略：first / priority / union，未知名称返回 nil。
func ParseMergeStrategy(name string) MergeStrategy {
	switch name {
	case "", "first":
		return &FirstMergeStrategy{}
	case "priority":
		return &PriorityMergeStrategy{}
	case "union":
		return &UnionMergeStrategy{}
	}
	return nil
}

func mergeInOrder(results []SourceResult, dedup bool) []*core.Item {
	total := 0
	for _, r := range results {
		total += len(r.Items)
	}
	out := make([]*core.Item, 0, total)
	seen := make(map[string]*core.Item, total)
	for _, r := range results {
		for _, it := range r.Items {
			if it == nil {
				continue
			}
			if !dedup {
				out = append(out, it)
				continue
			}
			if old, ok := seen[it.ID]; ok {
				for k, v := range it.Labels {
					old.PutLabel(k, v)
				}
				continue
			}
			seen[it.ID] = it
			out = append(out, it)
		}
	}
	return out
}

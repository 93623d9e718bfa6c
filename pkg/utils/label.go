package utils

import "strings"

// Label 是挂在物品或用户上的可解释标签，例如 recall_source=recall.usercf、cf_algo=slopeone。
// 同名 Label 合并后 Value 形如 "usercf|slopeone"，第一个值是最先写入（优先级最高）的来源。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"` // recall / rerank / rule ...
}

// Values 返回 Value 中以 '|' 分隔的各个取值。
func (l Label) Values() []string {
	if l.Value == "" {
		return nil
	}
	return strings.Split(l.Value, "|")
}

// Primary 返回第一个取值。
func (l Label) Primary() string {
	v, _, _ := strings.Cut(l.Value, "|")
	return v
}

// Has 判断 Value 中是否包含 v。
func (l Label) Has(v string) bool {
	return contains(l.Value, "|", v)
}

// MergeLabel 合并同名 Label：
// - Value: 以 '|' 累积，已存在的取值不重复追加
// - Source: 以 ',' 累积，同样去重
func MergeLabel(existing Label, incoming Label) Label {
	return Label{
		Value:  appendUnique(existing.Value, "|", incoming.Value),
		Source: appendUnique(existing.Source, ",", incoming.Source),
	}
}

func appendUnique(joined, sep, v string) string {
	switch {
	case joined == "":
		return v
	case v == "" || contains(joined, sep, v):
		return joined
	default:
		return joined + sep + v
	}
}

func contains(joined, sep, v string) bool {
	for part := range strings.SplitSeq(joined, sep) {
		if part == v {
			return true
		}
	}
	return false
}

// Package scoring 提供 core.Rescorer 的实现：在 Top-N 排序前对原始分数做变换或过滤。
package scoring

import (
	"math"

	"github.com/rushteam/cfkit/core"
)

// NaiveScorer 原样返回分数。
type NaiveScorer struct{}

func (NaiveScorer) Rescore(_ string, score float64) (float64, bool) {
	return score, true
}

// TanHScorer 返回 1 − tanh(score)。
// 用于把“距离型”分数转换为越大越相似的分数。
type TanHScorer struct{}

func (TanHScorer) Rescore(_ string, score float64) (float64, bool) {
	return 1 - math.Tanh(score), true
}

// Chain 依次应用多个 Rescorer，任一返回 false 则整体丢弃。
type Chain []core.Rescorer

func (c Chain) Rescore(thing string, score float64) (float64, bool) {
	for _, r := range c {
		if r == nil {
			continue
		}
		var ok bool
		if score, ok = r.Rescore(thing, score); !ok {
			return 0, false
		}
	}
	return score, true
}

var (
	_ core.Rescorer = NaiveScorer{}
	_ core.Rescorer = TanHScorer{}
	_ core.Rescorer = Chain(nil)
)

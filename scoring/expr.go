package scoring

import (
	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/conv"
	"github.com/rushteam/cfkit/pkg/dsl"
	"github.com/rushteam/cfkit/pkg/logging"
)

// ExprScorer 使用 CEL 表达式重打分。
//
// 可用变量：thing（查询主体 ID）、score（原始分数）、params（构造时传入的参数）。
// 表达式结果：
//   - 数值：作为新分数，例如 `score * params.boost`
//   - true：保留原始分数，例如 `score >= 3.0`
//   - false 或 null：丢弃该候选
//
// 执行出错的候选同样被丢弃，并记录 warn 日志。
type ExprScorer struct {
	prg    *dsl.Program
	params map[string]any
}

// NewExprScorer 编译表达式；语法错误返回 INVALID_INPUT。
func NewExprScorer(expr string, params map[string]any) (*ExprScorer, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, core.InvalidInputf(core.ModuleScoring, "scoring: %v", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return &ExprScorer{prg: prg, params: params}, nil
}

func (s *ExprScorer) Rescore(thing string, score float64) (float64, bool) {
	out, err := s.prg.Run(map[string]any{
		"thing":  thing,
		"score":  score,
		"params": s.params,
	})
	if err != nil {
		logging.Warn().Err(err).Str("expr", s.prg.Expr()).Str("thing", thing).Msg("rescore expression failed")
		return 0, false
	}
	switch v := out.(type) {
	case nil:
		return 0, false
	case bool:
		if !v {
			return 0, false
		}
		return score, true
	case uint64:
		return float64(v), true
	}
	if f, ok := conv.ToFloat64(out); ok {
		return f, true
	}
	logging.Warn().Str("expr", s.prg.Expr()).Msgf("rescore expression returned %T", out)
	return 0, false
}

var _ core.Rescorer = (*ExprScorer)(nil)

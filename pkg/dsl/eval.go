package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/rushteam/cfkit/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存编译结果：expr → *Program
	programs sync.Map
)

// initCELEnv 初始化 CEL 环境，定义变量
//
// 变量：
//   - item / label / rctx：Pipeline 物品过滤（Eval）
//   - thing / score / params：重打分表达式（scoring.ExprScorer）
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("item", cel.DynType),
		cel.Variable("label", cel.DynType),
		cel.Variable("rctx", cel.DynType),
		cel.Variable("thing", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
}

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Program 是编译好的 CEL 表达式，可以并发执行。
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；同一表达式只编译一次。
func Compile(expr string) (*Program, error) {
	if p, ok := programs.Load(expr); ok {
		return p.(*Program), nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, err
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	p := &Program{expr: expr, prg: prg}
	actual, _ := programs.LoadOrStore(expr, p)
	return actual.(*Program), nil
}

// Expr 返回原始表达式
func (p *Program) Expr() string { return p.expr }

// Run 执行表达式，返回原生 Go 值（bool / float64 / int64 / string / nil ...）。
func (p *Program) Run(vars map[string]any) (any, error) {
	out, _, err := p.prg.Eval(vars)
	if err != nil {
		return nil, fmt.Errorf("eval error: %w", err)
	}
	if types.IsUnknownOrError(out) {
		return nil, fmt.Errorf("eval error: %v", out)
	}
	if out == types.NullValue {
		return nil, nil
	}
	return out.Value(), nil
}

// Eval 是 Label DSL 解释器，对单个物品执行布尔表达式。
//
// 表达式语法（CEL 标准语法）：
//   - label.recall_source == "usercf"
//   - item.score > 0.7
//   - label.cf_algo != null && item.score >= 3.0
//   - label.recall_source.contains("itemcf")
//   - rctx.labels.segment == "new_user" && label.cf_algo == "popular"
type Eval struct {
	item *core.Item
	rctx *core.RecommendContext
}

// NewEval 创建一个新的 DSL 解释器。
func NewEval(item *core.Item, rctx *core.RecommendContext) *Eval {
	return &Eval{item: item, rctx: rctx}
}

// Evaluate 执行 DSL 表达式，返回布尔结果。空表达式视为 true。
func (e *Eval) Evaluate(expr string) (bool, error) {
	if expr == "" {
		return true, nil
	}
	p, err := Compile(expr)
	if err != nil {
		return false, err
	}
	out, err := p.Run(e.buildInput())
	if err != nil {
		return false, err
	}
	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out)
	}
	return result, nil
}

// buildInput 构建 CEL 表达式的输入数据
func (e *Eval) buildInput() map[string]any {
	labels := make(map[string]any)
	label := make(map[string]any)
	if e.item != nil {
		for k, v := range e.item.Labels {
			labels[k] = map[string]any{
				"value":  v.Value,
				"source": v.Source,
			}
			label[k] = v.Value
		}
	}

	item := map[string]any{}
	if e.item != nil {
		item = map[string]any{
			"id":     e.item.ID,
			"score":  e.item.Score,
			"meta":   e.item.Meta,
			"labels": labels,
		}
	}

	rctx := map[string]any{}
	params := map[string]any{}
	if e.rctx != nil {
		userLabels := make(map[string]any, len(e.rctx.Labels))
		for k := range e.rctx.Labels {
			userLabels[k] = e.rctx.LabelValue(k)
		}
		rctx = map[string]any{
			"user_id": e.rctx.UserID,
			"scene":   e.rctx.Scene,
			"labels":  userLabels,
			"params":  e.rctx.Params,
		}
		if e.rctx.Params != nil {
			params = e.rctx.Params
		}
	}

	return map[string]any{
		"item":   item,
		"label":  label,
		"rctx":   rctx,
		"params": params,
	}
}

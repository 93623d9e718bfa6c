package core

import "github.com/rushteam/cfkit/pkg/utils"

// RecommendContext 是一次推荐请求的上下文，贯穿整个 Pipeline 透传。
//
// 召回源只读取 RecommendContext；Fanout 会并发调用各个召回源，
// 请求处理过程中不要再修改它。
type RecommendContext struct {
	// UserID 是推荐的目标用户，为空时 CF 召回源不产出结果
	UserID string
	Scene  string

	// Labels 是用户级标签（例如人群分层），在 CEL 表达式中通过 rctx.labels 读取
	Labels map[string]utils.Label

	// Params 请求级参数；过滤表达式与 scoring.ExprScorer 通过 params 读取
	Params map[string]any

	// Rescorer 请求级重打分器，为空时各召回源使用自身配置
	Rescorer Rescorer
}

// PutLabel 在请求开始前写入用户级 Label，同名 Label 按 utils.MergeLabel 合并。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	rctx.Labels[key] = utils.MergeLabel(rctx.Labels[key], lbl)
}

// LabelValue 返回用户级 Label 的值，不存在时返回空串。
func (rctx *RecommendContext) LabelValue(key string) string {
	if rctx == nil {
		return ""
	}
	return rctx.Labels[key].Value
}

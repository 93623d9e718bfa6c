// Package cfkit 是一个协同过滤推荐工具包（Collaborative Filtering Kit）。
//
// 设计要点：
// - Model-first: 偏好数据通过 core.DataModel 访问，内存 / Redis / Badger 后端可替换
// - 三类推荐器: 基于用户、基于物品、Slope One，共享 Top-N 与 Rescorer 语义
// - Pipeline 编排: 推荐器包装成召回节点，经过滤、重排后输出（Recall → Filter → ReRank）
package cfkit

import (
	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
	"github.com/rushteam/cfkit/rank"
	"github.com/rushteam/cfkit/recommender"
)

// 轻量 facade：便于用户直接 import "cfkit" 使用核心抽象。
type Pipeline = pipeline.Pipeline
type Node = pipeline.Node
type Kind = pipeline.Kind

type DataModel = core.DataModel
type Rescorer = core.Rescorer
type Scored = rank.Scored
type Recommender = recommender.Recommender

const (
	KindRecall = pipeline.KindRecall
	KindFilter = pipeline.KindFilter
	KindReRank = pipeline.KindReRank
)

package core

import "time"

// CFConfig 是协同过滤相关的默认值接口，由 config/builders 在配置缺省时使用。
type CFConfig interface {
	// DefaultNeighborhoodSize 返回默认的近邻用户数
	DefaultNeighborhoodSize() int

	// DefaultTopKItems 返回默认的推荐物品数
	DefaultTopKItems() int

	// DefaultSimilarityMetric 返回默认的相似度度量名称
	DefaultSimilarityMetric() string

	// DefaultSamplingRate 返回默认的近邻采样率
	DefaultSamplingRate() float64

	// DefaultTimeout 返回默认的召回超时时间
	DefaultTimeout() time.Duration
}

// DefaultCFConfig 是默认的协同过滤配置实现。
type DefaultCFConfig struct{}

func (c *DefaultCFConfig) DefaultNeighborhoodSize() int {
	return 10
}

func (c *DefaultCFConfig) DefaultTopKItems() int {
	return 20
}

func (c *DefaultCFConfig) DefaultSimilarityMetric() string {
	return "euclidean"
}

func (c *DefaultCFConfig) DefaultSamplingRate() float64 {
	return 1.0
}

func (c *DefaultCFConfig) DefaultTimeout() time.Duration {
	return 2 * time.Second
}

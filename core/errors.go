package core

import (
	"errors"
	"fmt"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX），被 fmt.Errorf("%w") 包装后依然可识别
//
// 使用场景：
//   - DataModel 错误：用户/物品不存在（NOT_FOUND）
//   - 参数错误：采样率、TopN 数量越界（INVALID_INPUT）
//   - 相似度错误：位置向量维度不一致（DIMENSION_MISMATCH）
//   - Store 错误：NOT_FOUND, NOT_SUPPORTED
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "INVALID_INPUT"）
	Message string // 错误消息
	Module  string // 模块名称（如 "model", "similarity", "store"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError，如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound          = "NOT_FOUND"          // 用户/物品/key 不存在
	ErrorCodeNotSupported      = "NOT_SUPPORTED"      // 操作不支持
	ErrorCodeUnavailable       = "UNAVAILABLE"        // 服务不可用
	ErrorCodeInvalidInput      = "INVALID_INPUT"      // 输入无效（配置越界等）
	ErrorCodeDimensionMismatch = "DIMENSION_MISMATCH" // 位置向量长度不一致
	ErrorCodeInternalError     = "INTERNAL_ERROR"     // 内部错误
)

// 模块名称常量
const (
	ModuleStore        = "store"        // KV 存储模块
	ModuleModel        = "model"        // 偏好数据模型
	ModuleSimilarity   = "similarity"   // 相似度度量
	ModuleNeighborhood = "neighborhood" // 近邻选择
	ModuleRecommender  = "recommender"  // 推荐器
	ModuleScoring      = "scoring"      // 重打分
	ModuleRecall       = "recall"       // 召回节点
	ModulePipeline     = "pipeline"     // Pipeline 编排
	ModuleConfig       = "config"       // 配置加载
)

// NotFoundf 创建 NOT_FOUND 错误。
func NotFoundf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeNotFound, fmt.Sprintf(format, args...))
}

// InvalidInputf 创建 INVALID_INPUT 错误，用于构造期/调用期的参数校验。
func InvalidInputf(module, format string, args ...any) *DomainError {
	return NewDomainError(module, ErrorCodeInvalidInput, fmt.Sprintf(format, args...))
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	return hasCode(err, ErrorCodeNotFound)
}

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool {
	return hasCode(err, ErrorCodeNotSupported)
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	return hasCode(err, ErrorCodeUnavailable)
}

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool {
	return hasCode(err, ErrorCodeInvalidInput)
}

// IsDimensionMismatch 检查错误是否为 DIMENSION_MISMATCH
func IsDimensionMismatch(err error) bool {
	return hasCode(err, ErrorCodeDimensionMismatch)
}

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

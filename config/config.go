// Package config 加载 cfkit 的运行配置，并根据配置创建数据模型与 Pipeline 节点。
//
// 配置按以下优先级合并（后者覆盖前者）：
//  1. 内置默认值
//  2. YAML 配置文件（可选）
//  3. 以 CFKIT_ 开头的环境变量，例如 CFKIT_STORE_BACKEND=redis → store.backend
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pkg/logging"
	"github.com/rushteam/cfkit/similarity"
)

// EnvPrefix 是环境变量覆盖的前缀
const EnvPrefix = "CFKIT_"

// Config 是 cfkit 的顶层配置。
type Config struct {
	Log   logging.Config `koanf:"log"`
	Store StoreConfig    `koanf:"store"`
	CF    CFConfig       `koanf:"cf"`

	// Pipeline 是 Pipeline YAML 文件路径，可为空
	Pipeline string `koanf:"pipeline"`
}

// StoreConfig 描述偏好数据的存储后端。
type StoreConfig struct {
	// Backend: memory / redis / badger
	Backend string `koanf:"backend" validate:"oneof=memory redis badger"`

	// Addr、DB 用于 redis
	Addr string `koanf:"addr" validate:"required_if=Backend redis"`
	DB   int    `koanf:"db" validate:"gte=0"`

	// Breaker 为 redis 后端加熔断，连续失败后快速返回 UNAVAILABLE
	Breaker bool `koanf:"breaker"`

	// Path 用于 badger，为空时使用内存模式
	Path string `koanf:"path"`

	KeyPrefix string `koanf:"key_prefix"`

	// MaxPreference > MinPreference 时固定偏好区间，否则每次从数据推导
	MinPreference float64 `koanf:"min_preference"`
	MaxPreference float64 `koanf:"max_preference" validate:"omitempty,gtefield=MinPreference"`
}

// CFConfig 是协同过滤节点的默认参数，节点配置中未指定时使用。实现 core.CFConfig。
type CFConfig struct {
	NeighborhoodSize int           `koanf:"neighborhood_size" validate:"gte=1"`
	TopK             int           `koanf:"top_k" validate:"gte=1"`
	Metric           string        `koanf:"metric" validate:"metric"`
	SamplingRate     float64       `koanf:"sampling_rate" validate:"gte=0,lte=1"`
	Timeout          time.Duration `koanf:"timeout" validate:"gte=0"`
}

func (c *CFConfig) DefaultNeighborhoodSize() int    { return c.NeighborhoodSize }
func (c *CFConfig) DefaultTopKItems() int           { return c.TopK }
func (c *CFConfig) DefaultSimilarityMetric() string { return c.Metric }
func (c *CFConfig) DefaultSamplingRate() float64    { return c.SamplingRate }
func (c *CFConfig) DefaultTimeout() time.Duration   { return c.Timeout }

var _ core.CFConfig = (*CFConfig)(nil)

// Default 返回内置默认配置。
func Default() *Config {
	d := &core.DefaultCFConfig{}
	return &Config{
		Log: logging.Config{Level: "info", Format: "json"},
		Store: StoreConfig{
			Backend:   "memory",
			Addr:      "localhost:6379",
			Breaker:   true,
			KeyPrefix: "cf",
		},
		CF: CFConfig{
			NeighborhoodSize: d.DefaultNeighborhoodSize(),
			TopK:             d.DefaultTopKItems(),
			Metric:           d.DefaultSimilarityMetric(),
			SamplingRate:     d.DefaultSamplingRate(),
			Timeout:          d.DefaultTimeout(),
		},
	}
}

// Load 依次加载默认值、path 指向的 YAML 文件（path 为空时跳过）和 CFKIT_ 环境变量，并校验结果。
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey 把环境变量名转换为配置路径：CFKIT_STORE_KEY_PREFIX → store.key_prefix。
// 只有第一个下划线表示层级，其余保留为字段名的一部分。
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator 返回全局 validator：字段名取 koanf 标签，并注册 metric 校验（similarity.ByName 可识别的名称）。
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
			_, err := similarity.ByName(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// Validate 校验配置取值，所有不合法字段合并为一个 INVALID_INPUT 错误。
func (c *Config) Validate() error {
	err := getValidator().Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return core.InvalidInputf(core.ModuleConfig, "config: %v", err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return core.InvalidInputf(core.ModuleConfig, "config: %s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	// Namespace 形如 Config.cf.metric，去掉根结构体名
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, fe.Param())
	case "metric":
		return fmt.Sprintf("%s: unknown similarity metric %q", field, fe.Value())
	case "gtefield":
		return fmt.Sprintf("%s must be >= %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s must satisfy %s=%s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	}
}

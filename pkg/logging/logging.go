// Package logging 是基于 zerolog 的全局结构化日志。
//
//	logging.Init(logging.Config{Level: "debug", Format: "console"})
//	logging.Debug().Str("user_id", uid).Int("neighbors", n).Msg("neighborhood built")
//
// 未调用 Init 时使用默认配置（info 级别，JSON 输出到 stderr）。
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config 日志配置
type Config struct {
	// Level: trace, debug, info, warn, error, disabled；默认 info
	Level string `koanf:"level"`

	// Format: json 或 console；默认 json
	Format string `koanf:"format"`

	// Output 默认 os.Stderr
	Output io.Writer `koanf:"-"`
}

var (
	mu     sync.RWMutex
	logger zerolog.Logger
)

func init() {
	initLogger(Config{})
}

// Init 重新配置全局 logger，可以多次调用。
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	initLogger(cfg)
}

func initLogger(cfg Config) {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}
	logger = zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
}

// ParseLevel 把字符串转换为 zerolog.Level，无法识别时返回 info。
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// L 返回全局 logger 的副本。
func L() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Component 返回带 component 字段的子 logger。
func Component(name string) zerolog.Logger {
	l := L()
	return l.With().Str("component", name).Logger()
}

func Debug() *zerolog.Event {
	l := L()
	return l.Debug()
}

func Info() *zerolog.Event {
	l := L()
	return l.Info()
}

func Warn() *zerolog.Event {
	l := L()
	return l.Warn()
}

func Error() *zerolog.Event {
	l := L()
	return l.Error()
}

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/pipeline"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfkit.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.Backend != "memory" || cfg.Store.KeyPrefix != "cf" || !cfg.Store.Breaker {
		t.Errorf("Store = %+v", cfg.Store)
	}
	d := &core.DefaultCFConfig{}
	if cfg.CF.DefaultNeighborhoodSize() != d.DefaultNeighborhoodSize() ||
		cfg.CF.DefaultSimilarityMetric() != d.DefaultSimilarityMetric() ||
		cfg.CF.DefaultTimeout() != d.DefaultTimeout() {
		t.Errorf("CF = %+v", cfg.CF)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
store:
  backend: badger
  key_prefix: movies
  min_preference: 1
  max_preference: 5
cf:
  neighborhood_size: 4
  metric: pearson
  timeout: 500ms
pipeline: pipeline.yaml
`)
	t.Setenv("CFKIT_STORE_KEY_PREFIX", "films")
	t.Setenv("CFKIT_CF_METRIC", "cosine")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Pipeline != "pipeline.yaml" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Store.Backend != "badger" || cfg.Store.MaxPreference != 5 {
		t.Errorf("Store = %+v", cfg.Store)
	}
	// 环境变量优先于配置文件
	if cfg.Store.KeyPrefix != "films" || cfg.CF.Metric != "cosine" {
		t.Errorf("env override: key_prefix = %q, metric = %q", cfg.Store.KeyPrefix, cfg.CF.Metric)
	}
	if cfg.CF.NeighborhoodSize != 4 || cfg.CF.Timeout != 500*time.Millisecond {
		t.Errorf("CF = %+v", cfg.CF)
	}
	// 未出现在文件中的字段保留默认值
	if cfg.CF.TopK != 20 {
		t.Errorf("CF.TopK = %d, want 20", cfg.CF.TopK)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"backend", "store:\n  backend: mysql\n"},
		{"metric", "cf:\n  metric: hamming\n"},
		{"neighborhood", "cf:\n  neighborhood_size: 0\n"},
		{"sampling", "cf:\n  sampling_rate: 1.5\n"},
		{"redis addr", "store:\n  backend: redis\n  addr: \"\"\n"},
		{"preference bounds", "store:\n  min_preference: 5\n  max_preference: 1\n"},
		{"top_k", "cf:\n  top_k: 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if !core.IsInvalidInput(err) {
				t.Errorf("Load() error = %v, want INVALID_INPUT", err)
			}
		})
	}

	// 多个字段不合法时合并到一个错误中，字段名使用配置中的写法
	_, err := Load(writeConfig(t, "cf:\n  metric: hamming\n  neighborhood_size: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "cf.metric") || !strings.Contains(err.Error(), "cf.neighborhood_size") {
		t.Errorf("Load() error = %v, want both cf.metric and cf.neighborhood_size", err)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) should fail")
	}
}

func TestOpenDataModel(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		cfg     StoreConfig
		wantMin float64
		wantMax float64
	}{
		{"memory derived bounds", StoreConfig{Backend: "memory", KeyPrefix: "t"}, 2, 4},
		{"badger fixed bounds", StoreConfig{Backend: "badger", MinPreference: 1, MaxPreference: 5}, 1, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := OpenDataModel(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("OpenDataModel() error = %v", err)
			}
			t.Cleanup(func() { _ = m.Close() })

			if err := m.SetPreference(ctx, "u1", "i1", 2); err != nil {
				t.Fatalf("SetPreference() error = %v", err)
			}
			if err := m.SetPreference(ctx, "u2", "i1", 4); err != nil {
				t.Fatalf("SetPreference() error = %v", err)
			}
			lo, hi, err := m.Bounds(ctx)
			if err != nil || lo != tt.wantMin || hi != tt.wantMax {
				t.Errorf("Bounds() = %v, %v, %v, want %v, %v", lo, hi, err, tt.wantMin, tt.wantMax)
			}
			if n, _ := m.NumUsersWithPreferenceFor(ctx, "i1"); n != 2 {
				t.Errorf("NumUsersWithPreferenceFor() = %d, want 2", n)
			}
		})
	}

	if _, err := OpenStore(StoreConfig{Backend: "mysql"}); !core.IsInvalidInput(err) {
		t.Errorf("OpenStore(mysql) error = %v, want INVALID_INPUT", err)
	}
}

func TestValidatePipelineConfig(t *testing.T) {
	f := pipeline.NewNodeFactory()
	f.Register("rerank.topn", func(map[string]any) (pipeline.Node, error) { return nil, nil })

	cfg, err := pipeline.ParseYAML([]byte(`
pipeline:
  nodes:
    - type: rerank.topn
    - type: rank.lr
`))
	if err != nil {
		t.Fatalf("ParseYAML() error = %v", err)
	}
	if err := ValidatePipelineConfig(cfg, f); !core.IsInvalidInput(err) {
		t.Errorf("ValidatePipelineConfig() error = %v, want INVALID_INPUT", err)
	}
	cfg.Pipeline.Nodes = cfg.Pipeline.Nodes[:1]
	if err := ValidatePipelineConfig(cfg, f); err != nil {
		t.Errorf("ValidatePipelineConfig() error = %v", err)
	}
	if err := ValidatePipelineConfig(nil, f); err != nil {
		t.Errorf("ValidatePipelineConfig(nil) error = %v", err)
	}
}

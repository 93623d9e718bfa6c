package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rushteam/cfkit/core"
)

// appendNode 在输入后追加一个物品，用于检查执行顺序。
type appendNode struct {
	id   string
	kind Kind
	err  error
}

func (n *appendNode) Name() string { return "append." + n.id }
func (n *appendNode) Kind() Kind   { return n.kind }

func (n *appendNode) Process(_ context.Context, _ *core.RecommendContext, items []*core.Item) ([]*core.Item, error) {
	if n.err != nil {
		return nil, n.err
	}
	return append(items, core.NewItem(n.id)), nil
}

func newTestFactory() *NodeFactory {
	f := NewNodeFactory()
	f.Register("append", func(cfg map[string]any) (Node, error) {
		id, _ := cfg["id"].(string)
		if id == "" {
			return nil, core.InvalidInputf(core.ModulePipeline, "append: id is required")
		}
		return &appendNode{id: id, kind: KindRecall}, nil
	})
	return f
}

func TestPipeline_Run(t *testing.T) {
	p := &Pipeline{Name: "test", Nodes: []Node{
		&appendNode{id: "a", kind: KindRecall},
		&appendNode{id: "b", kind: KindFilter},
		&appendNode{id: "c", kind: KindReRank},
	}}
	items, err := p.Run(context.Background(), &core.RecommendContext{UserID: "u"}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var got []string
	for _, it := range items {
		got = append(got, it.ID)
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Errorf("Run() = %v, want [a b c]", got)
	}
}

func TestPipeline_RunErrors(t *testing.T) {
	boom := errors.New("boom")
	p := &Pipeline{Nodes: []Node{
		&appendNode{id: "a", kind: KindRecall},
		&appendNode{id: "b", kind: KindFilter, err: boom},
	}}
	if _, err := p.Run(context.Background(), nil, nil); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want boom", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (&Pipeline{Nodes: p.Nodes[:1]}).Run(ctx, nil, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestConfig_BuildPipeline(t *testing.T) {
	f := newTestFactory()

	tests := []struct {
		name      string
		yaml      string
		wantNodes int
		wantErr   func(error) bool
	}{
		{
			name: "ok",
			yaml: `
pipeline:
  name: demo
  nodes:
    - type: append
      config: {id: x}
    - type: append
      config: {id: y}
`,
			wantNodes: 2,
		},
		{
			name:    "unknown type",
			yaml:    "pipeline:\n  nodes:\n    - type: rank.lr\n",
			wantErr: core.IsNotFound,
		},
		{
			name:    "builder error",
			yaml:    "pipeline:\n  nodes:\n    - type: append\n",
			wantErr: core.IsInvalidInput,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := ParseYAML([]byte(tt.yaml))
			if err != nil {
				t.Fatalf("ParseYAML() error = %v", err)
			}
			p, err := cfg.BuildPipeline(f)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Errorf("BuildPipeline() error = %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("BuildPipeline() error = %v", err)
			}
			if p.Name != "demo" || len(p.Nodes) != tt.wantNodes {
				t.Errorf("pipeline = %q with %d nodes", p.Name, len(p.Nodes))
			}
		})
	}

	if _, err := ParseYAML([]byte("pipeline: [")); err == nil {
		t.Error("ParseYAML() with invalid yaml should fail")
	}
}

func TestLoadFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.json")
	data := `{"pipeline":{"name":"json","nodes":[{"type":"append","config":{"id":"z"}}]}}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cfg, err := LoadFromJSON(path)
	if err != nil {
		t.Fatalf("LoadFromJSON() error = %v", err)
	}
	p, err := cfg.BuildPipeline(newTestFactory())
	if err != nil {
		t.Fatalf("BuildPipeline() error = %v", err)
	}
	items, err := p.Run(context.Background(), nil, nil)
	if err != nil || len(items) != 1 || items[0].ID != "z" {
		t.Errorf("Run() = %v, %v", items, err)
	}

	if _, err := LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFromYAML(missing) should fail")
	}
}

func TestNodeFactory_Types(t *testing.T) {
	f := newTestFactory()
	f.Register("rerank.topn", func(map[string]any) (Node, error) { return &appendNode{id: "t"}, nil })
	if got := strings.Join(f.Types(), ","); got != "append,rerank.topn" {
		t.Errorf("Types() = %s", got)
	}
}

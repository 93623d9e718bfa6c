package filter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/model/modeltest"
	"github.com/rushteam/cfkit/pkg/utils"
	"github.com/rushteam/cfkit/store"
)

func items(ids ...string) []*core.Item {
	out := make([]*core.Item, len(ids))
	for i, id := range ids {
		out[i] = core.NewItem(id)
	}
	return out
}

func ids(items []*core.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func assertIDs(t *testing.T, got []*core.Item, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("got %v, want %v", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, g[i], want[i])
		}
	}
}

var failingFilter = FilterFunc(func(context.Context, *core.RecommendContext, *core.Item) (bool, error) {
	return false, errors.New("boom")
})

func TestRatedFilter(t *testing.T) {
	ctx := context.Background()
	node := &FilterNode{Filters: []Filter{&RatedFilter{Model: modeltest.NewMovies()}}}
	in := func() []*core.Item {
		return items("Lady in the Water", "Just My Luck", "You, Me and Dupree", "Snakes on a Plane")
	}

	tests := []struct {
		name string
		rctx *core.RecommendContext
		want []string
	}{
		{"rated removed", &core.RecommendContext{UserID: "Leopoldo Pires"}, []string{"Just My Luck", "You, Me and Dupree"}},
		{"no ratings", &core.RecommendContext{UserID: "Maria Gabriela"}, []string{"Lady in the Water", "Just My Luck", "You, Me and Dupree", "Snakes on a Plane"}},
		{"unknown user", &core.RecommendContext{UserID: "nobody"}, []string{"Lady in the Water", "Just My Luck", "You, Me and Dupree", "Snakes on a Plane"}},
		{"no context", nil, []string{"Lady in the Water", "Just My Luck", "You, Me and Dupree", "Snakes on a Plane"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := node.Process(ctx, tt.rctx, in())
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			assertIDs(t, out, tt.want...)
		})
	}
}

func TestBlacklistFilter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })

	f := NewBlacklistFilter([]string{"a"}, s, "cf:blacklist")
	node := &FilterNode{Filters: []Filter{f}}

	// key 不存在时只使用内存黑名单
	out, err := node.Process(ctx, nil, items("a", "b", "c"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "b", "c")

	if err := s.Set(ctx, "cf:blacklist", []byte(`["c"]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	out, err = node.Process(ctx, nil, items("a", "b", "c"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "b")

	// 损坏的黑名单按过滤器出错处理，不过滤
	if err := s.Set(ctx, "cf:blacklist", []byte(`{`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := f.ShouldFilter(ctx, nil, core.NewItem("b")); err == nil {
		t.Error("ShouldFilter() with invalid list should fail")
	}
	out, err = node.Process(ctx, nil, items("a", "b"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "b")
}

func TestExposedFilter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })

	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	f := NewExposedFilter(s, "", time.Hour)
	f.now = func() time.Time { return now }

	if err := f.Expose(ctx, "u1", "old", now.Add(-2*time.Hour)); err != nil {
		t.Fatalf("Expose() error = %v", err)
	}
	if err := f.Expose(ctx, "u1", "recent", now.Add(-time.Minute)); err != nil {
		t.Fatalf("Expose() error = %v", err)
	}

	rctx := &core.RecommendContext{UserID: "u1"}
	node := &FilterNode{Filters: []Filter{f}}
	out, err := node.Process(ctx, rctx, items("old", "recent", "fresh"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "old", "fresh")

	// 不设窗口时所有曝光都过滤
	f.TimeWindow = 0
	out, err = node.Process(ctx, rctx, items("old", "recent", "fresh"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "fresh")

	out, err = node.Process(ctx, &core.RecommendContext{UserID: "u2"}, items("old", "recent"))
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "old", "recent")
}

func TestFilterNode(t *testing.T) {
	ctx := context.Background()
	in := []*core.Item{core.NewItem("a"), nil, core.NewItem("b"), core.NewItem("c")}
	in[0].Score = 0.5
	in[2].Score = 2
	in[3].Score = 3

	node := &FilterNode{Filters: []Filter{
		failingFilter,
		&ExprFilter{Expr: `item.score < 1.0`},
		NewBlacklistFilter([]string{"c"}, nil, ""),
	}}
	out, err := node.Process(ctx, nil, in)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "b")

	empty := &FilterNode{}
	out, err = empty.Process(ctx, nil, in)
	if err != nil || len(out) != len(in) {
		t.Errorf("Process() without filters = %d items, %v", len(out), err)
	}
	if node.Name() != "filter" || node.Kind() != "filter" {
		t.Errorf("Name() = %q, Kind() = %q", node.Name(), node.Kind())
	}
}

func TestExprFilter_UserLabels(t *testing.T) {
	rctx := &core.RecommendContext{UserID: "u"}
	rctx.PutLabel("segment", utils.Label{Value: "new", Source: "profile"})

	in := items("a", "b")
	in[0].Score = 1
	in[1].Score = 4
	f := &ExprFilter{Expr: `rctx.labels.segment == "new" && item.score < 3.0`}
	out, err := (&FilterNode{Filters: []Filter{f}}).Process(context.Background(), rctx, in)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	assertIDs(t, out, "b")
}

func TestUserBlockFilter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	t.Cleanup(func() { _ = s.Close() })
	if err := s.Set(ctx, "cf:blocked:u1", []byte(`["b"]`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	node := &FilterNode{Filters: []Filter{&UserBlockFilter{Store: s}}}
	tests := []struct {
		user string
		want []string
	}{
		{"u1", []string{"a", "c"}},
		{"u2", []string{"a", "b", "c"}},
		{"", []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		t.Run("user="+tt.user, func(t *testing.T) {
			out, err := node.Process(ctx, &core.RecommendContext{UserID: tt.user}, items("a", "b", "c"))
			if err != nil {
				t.Fatalf("Process() error = %v", err)
			}
			assertIDs(t, out, tt.want...)
		})
	}
}

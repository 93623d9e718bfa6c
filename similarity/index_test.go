package similarity

import (
	"context"
	"testing"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/model/modeltest"
)

func TestUserSimilarity_Similarities(t *testing.T) {
	ctx := context.Background()
	sim := NewUserSimilarity(modeltest.NewMovies(), Euclidean{})

	got, err := sim.Similarities(ctx, "Marcel Caraciolo")
	if err != nil {
		t.Fatalf("Similarities() error = %v", err)
	}
	// 不限制条数时按 UserIDs 的枚举顺序返回
	userIDs, err := modeltest.NewMovies().UserIDs(ctx)
	if err != nil {
		t.Fatalf("UserIDs() error = %v", err)
	}
	var want []string
	for _, id := range userIDs {
		if id != "Marcel Caraciolo" {
			want = append(want, id)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("Similarities() len = %d, want %d", len(got), len(want))
	}
	for i, s := range got {
		if s.ID != want[i] {
			t.Errorf("Similarities()[%d] = %q, want %q", i, s.ID, want[i])
		}
		if s.ID == "Maria Gabriela" && s.Score != 0 {
			t.Errorf("similarity to empty user = %v, want 0", s.Score)
		}
	}

	limited := NewUserSimilarity(modeltest.NewMovies(), Euclidean{}, WithNumBest(3))
	top, err := limited.Similarities(ctx, "Marcel Caraciolo")
	if err != nil {
		t.Fatalf("Similarities() error = %v", err)
	}
	wantTop := []string{"Leopoldo Pires", "Steve Gates", "Lorena Abreu"}
	if len(top) != len(wantTop) {
		t.Fatalf("Similarities(numBest=3) = %v", top)
	}
	for i, s := range top {
		if s.ID != wantTop[i] {
			t.Errorf("Similarities(numBest=3)[%d] = %q, want %q", i, s.ID, wantTop[i])
		}
	}
}

func TestUserSimilarity_Similarity(t *testing.T) {
	ctx := context.Background()
	sim := NewUserSimilarity(modeltest.NewMovies(), Euclidean{})

	got, err := sim.Similarity(ctx, "Marcel Caraciolo", "Luciana Nunes")
	if err != nil {
		t.Fatalf("Similarity() error = %v", err)
	}
	if !almostEqual(got, 0.29429805508554946) {
		t.Errorf("Similarity() = %v, want 0.2943", got)
	}
	if _, err := sim.Similarity(ctx, "Marcel Caraciolo", "nobody"); !core.IsNotFound(err) {
		t.Errorf("Similarity(unknown) error = %v, want not found", err)
	}
}

func TestUserSimilarity_Population(t *testing.T) {
	ctx := context.Background()
	// 对数似然比在用户相似度中使用物品总数（6）作为总体规模
	sim := NewUserSimilarity(modeltest.NewMovies(), LogLikelihood{})
	got, err := sim.Similarity(ctx, "Leopoldo Pires", "Lorena Abreu")
	if err != nil {
		t.Fatalf("Similarity() error = %v", err)
	}
	if !almostEqual(got, 0.47590563948813425) {
		t.Errorf("Similarity() = %v, want 0.4759", got)
	}
}

func TestItemSimilarity(t *testing.T) {
	ctx := context.Background()
	sim := NewItemSimilarity(modeltest.NewMovies(), Tanimoto{})

	// Just My Luck 的评分用户都评过 Snakes on a Plane：4/7
	got, err := sim.Similarity(ctx, "Just My Luck", "Snakes on a Plane")
	if err != nil {
		t.Fatalf("Similarity() error = %v", err)
	}
	if !almostEqual(got, 4.0/7.0) {
		t.Errorf("Similarity() = %v, want 4/7", got)
	}

	all, err := sim.Similarities(ctx, "Just My Luck")
	if err != nil {
		t.Fatalf("Similarities() error = %v", err)
	}
	if len(all) != 5 {
		t.Errorf("Similarities() len = %d, want 5", len(all))
	}
	for _, s := range all {
		if s.ID == "Just My Luck" {
			t.Error("Similarities() contains the query item")
		}
	}
	if _, err := sim.Similarities(ctx, "Titanic"); !core.IsNotFound(err) {
		t.Errorf("Similarities(unknown) error = %v, want not found", err)
	}
}

package neighborhood

import (
	"context"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/model/modeltest"
	"github.com/rushteam/cfkit/similarity"
)

func newMoviesNeighborhood(t *testing.T, numUsers int, opts ...Option) *NearestNUserNeighborhood {
	t.Helper()
	m := modeltest.NewMovies()
	n, err := NewNearestNUserNeighborhood(similarity.NewUserSimilarity(m, similarity.Euclidean{}), m, numUsers, 0, opts...)
	if err != nil {
		t.Fatalf("NewNearestNUserNeighborhood() error = %v", err)
	}
	return n
}

func TestUserNeighborhood(t *testing.T) {
	ctx := context.Background()
	n := newMoviesNeighborhood(t, 4)

	got, err := n.UserNeighborhood(ctx, "Leopoldo Pires", nil)
	if err != nil {
		t.Fatalf("UserNeighborhood() error = %v", err)
	}
	want := []string{"Lorena Abreu", "Marcel Caraciolo", "Penny Frewman", "Steve Gates"}
	if len(got) != len(want) {
		t.Fatalf("UserNeighborhood() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("UserNeighborhood()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUserNeighborhood_ExcludesEmptyUsers(t *testing.T) {
	ctx := context.Background()
	n := newMoviesNeighborhood(t, 10)

	got, err := n.UserNeighborhood(ctx, "Marcel Caraciolo", nil)
	if err != nil {
		t.Fatalf("UserNeighborhood() error = %v", err)
	}
	// numUsers 超过用户总数时被截断；自身与没有共同评分的用户不会出现
	if len(got) != 6 {
		t.Errorf("UserNeighborhood() len = %d, want 6: %v", len(got), got)
	}
	for _, id := range got {
		if id == "Marcel Caraciolo" || id == "Maria Gabriela" {
			t.Errorf("UserNeighborhood() contains %q", id)
		}
	}

	empty, err := n.UserNeighborhood(ctx, "Maria Gabriela", nil)
	if err != nil {
		t.Fatalf("UserNeighborhood(empty user) error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("UserNeighborhood(empty user) = %v, want empty", empty)
	}
}

func TestUserNeighborhood_Rescorer(t *testing.T) {
	ctx := context.Background()
	n := newMoviesNeighborhood(t, 4)
	dropLorena := core.RescorerFunc(func(_ string, s float64) (float64, bool) {
		return s, s < 0.5
	})
	got, err := n.UserNeighborhood(ctx, "Leopoldo Pires", dropLorena)
	if err != nil {
		t.Fatalf("UserNeighborhood() error = %v", err)
	}
	if len(got) != 4 || got[0] != "Marcel Caraciolo" || got[3] != "Luciana Nunes" {
		t.Errorf("UserNeighborhood() = %v", got)
	}
}

func TestNewNearestNUserNeighborhood_Invalid(t *testing.T) {
	m := modeltest.NewMovies()
	sim := similarity.NewUserSimilarity(m, similarity.Euclidean{})
	tests := []struct {
		name     string
		numUsers int
		rate     float64
	}{
		{name: "zero users", numUsers: 0, rate: 1},
		{name: "negative rate", numUsers: 3, rate: -0.1},
		{name: "rate above one", numUsers: 3, rate: 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNearestNUserNeighborhood(sim, m, tt.numUsers, 0, WithSamplingRate(tt.rate))
			if !core.IsInvalidInput(err) {
				t.Errorf("error = %v, want invalid input", err)
			}
		})
	}
}

func TestSampleUserIDs(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		rate float64
		want int
	}{
		{rate: 1, want: 8},
		{rate: 0.4, want: 3},
		{rate: 0.1, want: 0},
		{rate: 0, want: 0},
	}
	for _, tt := range tests {
		n := newMoviesNeighborhood(t, 4, WithSamplingRate(tt.rate), WithRand(rand.New(rand.NewPCG(1, 2))))
		got, err := n.sampleUserIDs(ctx)
		if err != nil {
			t.Fatalf("sampleUserIDs() error = %v", err)
		}
		if len(got) != tt.want {
			t.Errorf("rate %v: sampled %d users, want %d", tt.rate, len(got), tt.want)
		}
		if !sort.StringsAreSorted(got) {
			t.Errorf("rate %v: sample %v not in enumeration order", tt.rate, got)
		}
		seen := map[string]bool{}
		for _, id := range got {
			if seen[id] {
				t.Errorf("rate %v: duplicate user %q", tt.rate, id)
			}
			seen[id] = true
		}
	}
}

func TestUserNeighborhood_ZeroSampling(t *testing.T) {
	n := newMoviesNeighborhood(t, 4, WithSamplingRate(0))
	got, err := n.UserNeighborhood(context.Background(), "Leopoldo Pires", nil)
	if err != nil {
		t.Fatalf("UserNeighborhood() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("UserNeighborhood() = %v, want empty", got)
	}
}

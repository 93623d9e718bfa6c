package rank

import (
	"context"
	"errors"
	"testing"

	"github.com/rushteam/cfkit/core"
)

// tableEstimator 从固定表中返回分数，表中没有的候选视为无法估计。
type tableEstimator map[string]float64

func (t tableEstimator) Estimate(_ context.Context, req EstimationRequest) (float64, bool, error) {
	v, ok := t[req.Candidate]
	return v, ok, nil
}

func TestTopN(t *testing.T) {
	ctx := context.Background()
	est := tableEstimator{"a": 1, "b": 3, "c": 2, "d": 3}
	candidates := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name    string
		howMany int
		want    []string
	}{
		{name: "zero", howMany: 0, want: []string{}},
		{name: "negative", howMany: -1, want: []string{}},
		{name: "two", howMany: 2, want: []string{"b", "d"}},
		{name: "all", howMany: 10, want: []string{"b", "d", "c", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TopN(ctx, EstimationRequest{Subject: "u"}, candidates, tt.howMany, est)
			if err != nil {
				t.Fatalf("TopN() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("TopN() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("TopN()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTopNScored_Rescorer(t *testing.T) {
	ctx := context.Background()
	est := tableEstimator{"a": 1, "b": 3, "c": 2}
	var seen string
	rescorer := core.RescorerFunc(func(thing string, score float64) (float64, bool) {
		seen = thing
		if score > 2.5 {
			return 0, false
		}
		return -score, true
	})

	got, err := TopNScored(ctx, EstimationRequest{Subject: "u1", Rescorer: rescorer}, []string{"a", "b", "c"}, 5, est)
	if err != nil {
		t.Fatalf("TopNScored() error = %v", err)
	}
	if seen != "u1" {
		t.Errorf("rescorer thing = %q, want subject u1", seen)
	}
	if len(got) != 2 || got[0].ID != "a" || got[0].Score != -1 || got[1].ID != "c" {
		t.Errorf("TopNScored() = %v", got)
	}
}

func TestTopNScored_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("backend down")
	est := EstimatorFunc(func(_ context.Context, req EstimationRequest) (float64, bool, error) {
		switch req.Candidate {
		case "missing":
			return 0, false, core.NotFoundf(core.ModuleModel, "item %q not found", req.Candidate)
		case "broken":
			return 0, false, boom
		}
		return 1, true, nil
	})

	got, err := TopN(ctx, EstimationRequest{}, []string{"x", "missing", "y"}, 5, est)
	if err != nil {
		t.Fatalf("TopN() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("TopN() = %v, want not-found candidate dropped", got)
	}

	if _, err := TopN(ctx, EstimationRequest{}, []string{"x", "broken"}, 5, est); !errors.Is(err, boom) {
		t.Errorf("TopN() error = %v, want %v", err, boom)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := TopN(canceled, EstimationRequest{}, []string{"x"}, 5, est); !errors.Is(err, context.Canceled) {
		t.Errorf("TopN(canceled) error = %v, want context.Canceled", err)
	}
}

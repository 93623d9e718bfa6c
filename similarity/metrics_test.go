package similarity

import (
	"math"
	"testing"

	"github.com/rushteam/cfkit/core"
	"github.com/rushteam/cfkit/model/modeltest"
)

const eps = 1e-9

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < eps
}

func TestMetrics_Golden(t *testing.T) {
	movies := modeltest.Movies()
	marcel := Vector(movies["Marcel Caraciolo"])
	luciana := Vector(movies["Luciana Nunes"])
	leopoldo := Vector(movies["Leopoldo Pires"])
	penny := Vector(movies["Penny Frewman"])

	tests := []struct {
		metric Metric
		a, b   Vector
		want   float64
	}{
		{Euclidean{}, marcel, luciana, 0.29429805508554946},
		{Euclidean{}, marcel, leopoldo, 0.4721359549995794},
		{Pearson{}, marcel, luciana, 0.39605901719066977},
		{Pearson{}, leopoldo, penny, -1.0},
		{Cosine{}, marcel, leopoldo, 0.9859858031677182},
		{Manhattan{}, marcel, luciana, 0.25},
		{Manhattan{}, marcel, leopoldo, 0.625},
		{Tanimoto{}, marcel, leopoldo, 2.0 / 3.0},
		{Jaccard{}, leopoldo, penny, 0.4},
		{Sorensen{}, marcel, leopoldo, 0.8},
		{Spearman{}, marcel, luciana, 0.5428571428571429},
		{Spearman{}, leopoldo, penny, -1.0},
		{LogLikelihood{N: 6}, leopoldo, Vector(movies["Lorena Abreu"]), 0.47590563948813425},
	}
	for _, tt := range tests {
		t.Run(tt.metric.Name(), func(t *testing.T) {
			if got := tt.metric.Compare(tt.a, tt.b); !almostEqual(got, tt.want) {
				t.Errorf("Compare() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetrics_Identity(t *testing.T) {
	a := Vector{"x": 1, "y": 2, "z": 4}
	for _, name := range []string{NameEuclidean, NamePearson, NameCosine, NameTanimoto, NameJaccard, NameSorensen, NameManhattan} {
		m, err := ByName(name)
		if err != nil {
			t.Fatalf("ByName(%q) error = %v", name, err)
		}
		if got := m.Compare(a, a); !almostEqual(got, 1) {
			t.Errorf("%s.Compare(a, a) = %v, want 1", name, got)
		}
		got, err := m.CompareValues([]float64{1, 2, 4}, []float64{1, 2, 4})
		if err != nil {
			t.Fatalf("%s.CompareValues() error = %v", name, err)
		}
		if !almostEqual(got, 1) {
			t.Errorf("%s.CompareValues(a, a) = %v, want 1", name, got)
		}
	}
}

func TestMetrics_Disjoint(t *testing.T) {
	a := Vector{"x": 1, "y": 2}
	b := Vector{"z": 3}
	for _, name := range Names() {
		m, _ := ByName(name)
		if got := m.Compare(a, b); got != 0 {
			t.Errorf("%s.Compare(disjoint) = %v, want 0", name, got)
		}
		if got := m.Compare(Vector{}, Vector{}); got != 0 {
			t.Errorf("%s.Compare(empty) = %v, want 0", name, got)
		}
	}
}

func TestMetrics_DimensionMismatch(t *testing.T) {
	for _, name := range Names() {
		if name == NameSpearman {
			continue
		}
		m, _ := ByName(name)
		if _, err := m.CompareValues([]float64{1, 2}, []float64{1}); !core.IsDimensionMismatch(err) {
			t.Errorf("%s.CompareValues(mismatch) error = %v, want dimension mismatch", name, err)
		}
	}
}

func TestSpearman_PositionalNotSupported(t *testing.T) {
	if _, err := (Spearman{}).CompareValues([]float64{1}, []float64{1}); !core.IsNotSupported(err) {
		t.Errorf("CompareValues() error = %v, want not supported", err)
	}
}

func TestPositionalPresence(t *testing.T) {
	// 非零分量视为存在：a={0,1}, b={1,2} → |A|=2, |B|=3, |A∩B|=2
	a := []float64{0, 1, 1, 0}
	b := []float64{1, 1, 1, 0}
	got, err := Tanimoto{}.CompareValues(a, b)
	if err != nil {
		t.Fatalf("CompareValues() error = %v", err)
	}
	if !almostEqual(got, 2.0/3.0) {
		t.Errorf("Tanimoto.CompareValues() = %v, want 2/3", got)
	}
	got, _ = Sorensen{}.CompareValues(a, b)
	if !almostEqual(got, 0.8) {
		t.Errorf("Sorensen.CompareValues() = %v, want 0.8", got)
	}
}

func TestLogLikelihood_Degenerate(t *testing.T) {
	a := Vector{"x": 1, "y": 1}
	b := Vector{"x": 1, "y": 1, "z": 1}
	// a ⊆ b：列联表退化，返回 1
	if got := (LogLikelihood{N: 10}).Compare(a, b); got != 1 {
		t.Errorf("Compare(subset) = %v, want 1", got)
	}
	pm, ok := Metric(LogLikelihood{}).(PopulationMetric)
	if !ok {
		t.Fatal("LogLikelihood does not implement PopulationMetric")
	}
	if got := pm.WithPopulation(42).(LogLikelihood).N; got != 42 {
		t.Errorf("WithPopulation(42).N = %d", got)
	}
}

func TestByName(t *testing.T) {
	if m, err := ByName(" Euclidean "); err != nil || m.Name() != NameEuclidean {
		t.Errorf("ByName(Euclidean) = (%v, %v)", m, err)
	}
	if _, err := ByName("hamming"); !core.IsInvalidInput(err) {
		t.Errorf("ByName(unknown) error = %v, want invalid input", err)
	}
	if got := len(Names()); got != 9 {
		t.Errorf("len(Names()) = %d, want 9", got)
	}
}

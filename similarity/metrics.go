// Package similarity 提供偏好向量之间的相似度度量，以及基于 DataModel 的用户/物品相似度索引。
//
// 每个度量支持两种输入：
//   - 字典模式（Compare）：稀疏向量 key → 偏好值，只在共同 key 上计算
//   - 位置模式（CompareValues）：等长的稠密切片，长度不一致返回 DIMENSION_MISMATCH
//
// 字典模式会把共同 key 按升序对齐成两个切片，再调用与位置模式相同的数值内核，
// 所以两种模式在重叠部分给出相同结果。没有可用重叠或范数为 0 时返回 0。
package similarity

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/rushteam/cfkit/core"
)

// Vector 是字典模式的稀疏偏好向量。
type Vector map[string]float64

// Metric 是两个偏好向量之间的相似度函数。
type Metric interface {
	// Name 返回注册名，例如 "euclidean"
	Name() string

	// Compare 字典模式
	Compare(a, b Vector) float64

	// CompareValues 位置模式
	CompareValues(a, b []float64) (float64, error)
}

// PopulationMetric 是需要总体规模（物品总数或用户总数）的度量，例如对数似然比。
// 相似度索引在每次计算前通过 WithPopulation 注入总体规模。
type PopulationMetric interface {
	Metric
	WithPopulation(n int) Metric
}

// 度量注册名
const (
	NameEuclidean     = "euclidean"
	NamePearson       = "pearson"
	NameSpearman      = "spearman"
	NameTanimoto      = "tanimoto"
	NameJaccard       = "jaccard"
	NameCosine        = "cosine"
	NameLogLikelihood = "loglikelihood"
	NameSorensen      = "sorensen"
	NameManhattan     = "manhattan"
)

var registry = map[string]Metric{
	NameEuclidean:     Euclidean{},
	NamePearson:       Pearson{},
	NameSpearman:      Spearman{},
	NameTanimoto:      Tanimoto{},
	NameJaccard:       Jaccard{},
	NameCosine:        Cosine{},
	NameLogLikelihood: LogLikelihood{},
	NameSorensen:      Sorensen{},
	NameManhattan:     Manhattan{},
}

// ByName 按注册名（大小写不敏感）查找度量。
func ByName(name string) (Metric, error) {
	m, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, core.InvalidInputf(core.ModuleSimilarity, "similarity: unknown metric %q", name)
	}
	return m, nil
}

// Names 返回所有已注册的度量名（升序）。
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Euclidean 是基于欧氏距离的相似度：1 / (1 + ‖a − b‖)。
type Euclidean struct{}

func (Euclidean) Name() string { return NameEuclidean }

func (e Euclidean) Compare(a, b Vector) float64 {
	x, y := align(a, b)
	if len(x) == 0 {
		return 0
	}
	return e.kernel(x, y)
}

func (e Euclidean) CompareValues(a, b []float64) (float64, error) {
	if err := sameLength(a, b); err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 0, nil
	}
	return e.kernel(a, b), nil
}

func (Euclidean) kernel(a, b []float64) float64 {
	diff := make([]float64, len(a))
	floats.SubTo(diff, a, b)
	return 1 / (1 + math.Sqrt(floats.Dot(diff, diff)))
}

// Pearson 是皮尔逊相关系数，使用原始（未中心化）累加和的计算公式。
type Pearson struct{}

func (Pearson) Name() string { return NamePearson }

func (p Pearson) Compare(a, b Vector) float64 {
	x, y := align(a, b)
	return p.kernel(x, y)
}

func (p Pearson) CompareValues(a, b []float64) (float64, error) {
	if err := sameLength(a, b); err != nil {
		return 0, err
	}
	return p.kernel(a, b), nil
}

func (Pearson) kernel(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	n := float64(len(a))
	sumA, sumB := floats.Sum(a), floats.Sum(b)
	sumASq, sumBSq := floats.Dot(a, a), floats.Dot(b, b)
	pSum := floats.Dot(a, b)

	num := pSum - sumA*sumB/n
	den := math.Sqrt((sumASq - sumA*sumA/n) * (sumBSq - sumB*sumB/n))
	if den == 0 || math.IsNaN(den) {
		return 0
	}
	return num / den
}

// Spearman 是斯皮尔曼等级相关：先在共同 key 上各自按偏好值升序排名（1 起），
// 再计算 1 − 6Σd²/(n(n²−1))。同值按 key 升序决定名次。只支持字典模式。
type Spearman struct{}

func (Spearman) Name() string { return NameSpearman }

func (Spearman) Compare(a, b Vector) float64 {
	keys := sharedKeys(a, b)
	n := len(keys)
	if n < 2 {
		return 0
	}
	rankA := ranks(keys, a)
	rankB := ranks(keys, b)
	sumDiffSq := 0.0
	for _, k := range keys {
		d := rankA[k] - rankB[k]
		sumDiffSq += d * d
	}
	nf := float64(n)
	return 1 - 6*sumDiffSq/(nf*(nf*nf-1))
}

func (Spearman) CompareValues(_, _ []float64) (float64, error) {
	return 0, core.NewDomainError(core.ModuleSimilarity, core.ErrorCodeNotSupported,
		"similarity: spearman does not support positional vectors")
}

func ranks(keys []string, v Vector) map[string]float64 {
	ordered := append([]string(nil), keys...)
	sort.SliceStable(ordered, func(i, j int) bool { return v[ordered[i]] < v[ordered[j]] })
	out := make(map[string]float64, len(ordered))
	for i, k := range ordered {
		out[k] = float64(i + 1)
	}
	return out
}

// Cosine 是余弦相似度，字典模式只在共同 key 上计算。
type Cosine struct{}

func (Cosine) Name() string { return NameCosine }

func (c Cosine) Compare(a, b Vector) float64 {
	x, y := align(a, b)
	return c.kernel(x, y)
}

func (c Cosine) CompareValues(a, b []float64) (float64, error) {
	if err := sameLength(a, b); err != nil {
		return 0, err
	}
	return c.kernel(a, b), nil
}

func (Cosine) kernel(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	den := floats.Norm(a, 2) * floats.Norm(b, 2)
	if den == 0 {
		return 0
	}
	return floats.Dot(a, b) / den
}

// Manhattan 是归一化的曼哈顿相似度：1 − Σ|aᵢ−bᵢ| / n，n 为共同维度数。
type Manhattan struct{}

func (Manhattan) Name() string { return NameManhattan }

func (m Manhattan) Compare(a, b Vector) float64 {
	x, y := align(a, b)
	return m.kernel(x, y)
}

func (m Manhattan) CompareValues(a, b []float64) (float64, error) {
	if err := sameLength(a, b); err != nil {
		return 0, err
	}
	return m.kernel(a, b), nil
}

func (Manhattan) kernel(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	return 1 - floats.Distance(a, b, 1)/float64(len(a))
}

// Tanimoto 是 Tanimoto 系数（扩展 Jaccard），只看偏好是否存在：|A∩B| / (|A|+|B|−|A∩B|)。
// 位置模式下非零分量视为“存在”。
type Tanimoto struct{}

func (Tanimoto) Name() string { return NameTanimoto }

func (t Tanimoto) Compare(a, b Vector) float64 {
	return tanimotoKernel(presenceCounts(a, b))
}

func (t Tanimoto) CompareValues(a, b []float64) (float64, error) {
	n1, n2, n12, err := positionalPresence(a, b)
	if err != nil {
		return 0, err
	}
	return tanimotoKernel(n1, n2, n12), nil
}

// Jaccard 与 Tanimoto 同一公式，单独注册以对应 Jaccard 系数的叫法。
type Jaccard struct{}

func (Jaccard) Name() string { return NameJaccard }

func (Jaccard) Compare(a, b Vector) float64 {
	return tanimotoKernel(presenceCounts(a, b))
}

func (Jaccard) CompareValues(a, b []float64) (float64, error) {
	n1, n2, n12, err := positionalPresence(a, b)
	if err != nil {
		return 0, err
	}
	return tanimotoKernel(n1, n2, n12), nil
}

func tanimotoKernel(n1, n2, n12 int) float64 {
	union := n1 + n2 - n12
	if n12 == 0 || union == 0 {
		return 0
	}
	return float64(n12) / float64(union)
}

// Sorensen 是 Sørensen 指数：2|A∩B| / (|A|+|B|)，只看偏好是否存在。
type Sorensen struct{}

func (Sorensen) Name() string { return NameSorensen }

func (Sorensen) Compare(a, b Vector) float64 {
	return sorensenKernel(presenceCounts(a, b))
}

func (Sorensen) CompareValues(a, b []float64) (float64, error) {
	n1, n2, n12, err := positionalPresence(a, b)
	if err != nil {
		return 0, err
	}
	return sorensenKernel(n1, n2, n12), nil
}

func sorensenKernel(n1, n2, n12 int) float64 {
	if n1+n2 == 0 {
		return 0
	}
	return 2 * float64(n12) / float64(n1+n2)
}

// LogLikelihood 是对数似然比相似度（2×2 列联表 G 检验），结果变换为 1 − 1/(1+G)。
// N 是总体规模；字典模式下 N ≤ 0 时取两向量 key 的并集大小，位置模式下取向量长度。
type LogLikelihood struct {
	N int
}

func (LogLikelihood) Name() string { return NameLogLikelihood }

// WithPopulation 返回使用给定总体规模的副本。
func (l LogLikelihood) WithPopulation(n int) Metric {
	return LogLikelihood{N: n}
}

func (l LogLikelihood) Compare(a, b Vector) float64 {
	n1, n2, n12 := presenceCounts(a, b)
	n := l.N
	if n <= 0 {
		n = n1 + n2 - n12
	}
	return logLikelihoodKernel(n, n1, n2, n12)
}

func (l LogLikelihood) CompareValues(a, b []float64) (float64, error) {
	n1, n2, n12, err := positionalPresence(a, b)
	if err != nil {
		return 0, err
	}
	n := l.N
	if n <= 0 {
		n = len(a)
	}
	return logLikelihoodKernel(n, n1, n2, n12), nil
}

func logLikelihoodKernel(n, n1, n2, n12 int) float64 {
	if n12 == 0 {
		return 0
	}
	if n1-n12 == 0 || n-n2 == 0 {
		return 1
	}
	g := twoLogLambda(float64(n12), float64(n1-n12), float64(n2), float64(n-n2))
	return 1 - 1/(1+g)
}

func twoLogLambda(k1, k2, n1, n2 float64) float64 {
	p := (k1 + k2) / (n1 + n2)
	return 2 * (logL(k1/n1, k1, n1) + logL(k2/n2, k2, n2) - logL(p, k1, n1) - logL(p, k2, n2))
}

func logL(p, k, n float64) float64 {
	return k*safeLog(p) + (n-k)*safeLog(1-p)
}

func safeLog(d float64) float64 {
	if d <= 0 {
		return 0
	}
	return math.Log(d)
}

// align 把两个稀疏向量的共同 key（升序）对齐为两个稠密切片。
func align(a, b Vector) ([]float64, []float64) {
	keys := sharedKeys(a, b)
	x := make([]float64, len(keys))
	y := make([]float64, len(keys))
	for i, k := range keys {
		x[i] = a[k]
		y[i] = b[k]
	}
	return x, y
}

func sharedKeys(a, b Vector) []string {
	if len(b) < len(a) {
		a, b = b, a
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		if _, ok := b[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func presenceCounts(a, b Vector) (n1, n2, n12 int) {
	return len(a), len(b), len(sharedKeys(a, b))
}

func positionalPresence(a, b []float64) (n1, n2, n12 int, err error) {
	if err := sameLength(a, b); err != nil {
		return 0, 0, 0, err
	}
	for i := range a {
		pa, pb := a[i] != 0, b[i] != 0
		if pa {
			n1++
		}
		if pb {
			n2++
		}
		if pa && pb {
			n12++
		}
	}
	return n1, n2, n12, nil
}

func sameLength(a, b []float64) error {
	if len(a) != len(b) {
		return core.NewDomainError(core.ModuleSimilarity, core.ErrorCodeDimensionMismatch,
			"similarity: vectors have different dimensions")
	}
	return nil
}

package acoustic

import (
	"math"
	"math/rand"

	"github.com/ieee0824/onlineasr-go/internal/mathutil"
)

// Gaussian represents a single multivariate Gaussian component with diagonal covariance.
type Gaussian struct {
	Mean      []float64 // [dim]
	Variance  []float64 // [dim] diagonal covariance
	LogWeight float64   // log mixture weight

	// Cached by Precompute.
	logNormConst float64
	invVariance  []float64 // [dim] 1/Variance, keeps division out of the scoring loop
}

// Precompute recalculates the cached normalization constant and inverse variances.
// Must be called after updating Mean or Variance. The owning GMM also
// needs Pack to pick up a changed LogWeight.
func (g *Gaussian) Precompute() {
	dim := len(g.Mean)
	sumLogVar := 0.0
	g.invVariance = make([]float64, dim)
	for i, v := range g.Variance {
		sumLogVar += math.Log(v)
		g.invVariance[i] = 1 / v
	}
	g.logNormConst = float64(dim)/2*math.Log(2*math.Pi) + 0.5*sumLogVar
}

// LogProb computes the log probability of observation x under this Gaussian,
// ignoring the mixture weight.
func (g *Gaussian) LogProb(x []float64) float64 {
	return -0.5*mathutil.Mahalanobis(x, g.Mean, g.invVariance) - g.logNormConst
}

// GMM is a Gaussian Mixture Model with diagonal covariance.
type GMM struct {
	Components []Gaussian
	Dim        int

	// Contiguous copy of the component data for LogProb, built by Pack.
	packedMean   []float64 // [k*dim]
	packedInvVar []float64 // [k*dim]
	packedConst  []float64 // [k] logWeight - logNormConst
}

// NewGMM creates a GMM with k components of dimension dim: random means,
// unit variances and uniform weights.
func NewGMM(k, dim int) *GMM {
	means := make([][]float64, k)
	vars := make([][]float64, k)
	weights := make([]float64, k)
	for i := 0; i < k; i++ {
		means[i] = make([]float64, dim)
		vars[i] = make([]float64, dim)
		for d := 0; d < dim; d++ {
			means[i][d] = rand.NormFloat64()
			vars[i][d] = 1
		}
		weights[i] = -math.Log(float64(k))
	}
	return NewGMMWithParams(means, vars, weights)
}

// NewGMMWithParams creates a GMM from explicit parameters. The slices are copied.
func NewGMMWithParams(means, variances [][]float64, logWeights []float64) *GMM {
	g := &GMM{Components: make([]Gaussian, len(means))}
	if len(means) > 0 {
		g.Dim = len(means[0])
	}
	for i := range g.Components {
		g.Components[i] = Gaussian{
			Mean:      mathutil.CloneVec(means[i]),
			Variance:  mathutil.CloneVec(variances[i]),
			LogWeight: logWeights[i],
		}
	}
	g.Pack()
	return g
}

// Pack precomputes every component and rebuilds the packed layout.
// Call after all components are set.
func (g *GMM) Pack() {
	k := len(g.Components)
	dim := g.Dim
	g.packedMean = make([]float64, k*dim)
	g.packedInvVar = make([]float64, k*dim)
	g.packedConst = make([]float64, k)
	for i := range g.Components {
		c := &g.Components[i]
		c.Precompute()
		off := i * dim
		copy(g.packedMean[off:off+dim], c.Mean)
		copy(g.packedInvVar[off:off+dim], c.invVariance)
		g.packedConst[i] = c.LogWeight - c.logNormConst
	}
}

// LogProb computes log P(x | this GMM) = log sum_k w_k * N(x; mu_k, sigma_k).
// It falls back to per-component scoring when Pack has not run.
func (g *GMM) LogProb(x []float64) float64 {
	if g.packedMean == nil {
		logSum := mathutil.LogZero
		for i := range g.Components {
			logSum = mathutil.LogAdd(logSum, g.Components[i].LogWeight+g.Components[i].LogProb(x))
		}
		return logSum
	}
	dim := g.Dim
	logSum := mathutil.LogZero
	for c, k := range g.packedConst {
		off := c * dim
		maha := mathutil.Mahalanobis(x, g.packedMean[off:off+dim], g.packedInvVar[off:off+dim])
		logSum = mathutil.LogAdd(logSum, k-0.5*maha)
	}
	return logSum
}

// Package relevance estimates how well each feature separates identities:
// the ratio of the typical within-identity variance to the variance across
// the population. Lower values mean a more discriminative feature.
package relevance

import (
	"math"
	"math/rand/v2"

	"github.com/tommwa/sc2barcodewho/pkg/barcodewho/identity"
)

// DefaultSamples caps how many observations one identity contributes to
// either pool.
const DefaultSamples = 4

// Weights holds one relevance value per feature column. NaN marks a feature
// whose population variance is zero or could not be measured.
type Weights []float64

// Named pairs weights with their column names.
func (w Weights) Named(columns []string) map[string]float64 {
	out := make(map[string]float64, len(columns))
	for i, c := range columns {
		if i < len(w) {
			out[c] = w[i]
		}
	}
	return out
}

// Estimator computes relevance weights.
type Estimator struct {
	// SamplesPerIdentity bounds each identity's share of both pools.
	SamplesPerIdentity int
}

// Estimate computes the weights over every identity's rows. Only identities
// with at least two observations contribute. rng drives the population
// sampling; identities are visited in key order so a seeded rng is
// reproducible.
func (e Estimator) Estimate(rows map[identity.Key][][]float64, cols int, rng *rand.Rand) Weights {
	samples := e.SamplesPerIdentity
	if samples <= 0 {
		samples = DefaultSamples
	}
	keys := make([]identity.Key, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	identity.Sort(keys)

	var within, population [][]float64
	for _, k := range keys {
		obs := rows[k]
		if len(obs) < 2 {
			continue
		}
		v := sampleVariance(obs, cols)
		for i := 0; i < min(len(obs)-1, samples); i++ {
			within = append(within, v)
		}
		perm := rng.Perm(len(obs))
		for _, p := range perm[:min(len(obs), samples)] {
			population = append(population, obs[p])
		}
	}

	w := make(Weights, cols)
	if len(within) == 0 || len(population) < 2 {
		for j := range w {
			w[j] = math.NaN()
		}
		return w
	}
	popVar := sampleVariance(population, cols)
	for j := 0; j < cols; j++ {
		var sum float64
		for _, v := range within {
			sum += v[j]
		}
		mean := sum / float64(len(within))
		if popVar[j] == 0 {
			w[j] = math.NaN()
			continue
		}
		w[j] = mean / popVar[j]
	}
	return w
}

// Estimate uses the default estimator.
func Estimate(rows map[identity.Key][][]float64, cols int, rng *rand.Rand) Weights {
	return Estimator{}.Estimate(rows, cols, rng)
}

// sampleVariance is the per-column variance with one degree of freedom
// removed. Callers guarantee at least two rows.
func sampleVariance(rows [][]float64, cols int) []float64 {
	n := float64(len(rows))
	mean := make([]float64, cols)
	for _, r := range rows {
		for j := 0; j < cols; j++ {
			mean[j] += r[j]
		}
	}
	for j := range mean {
		mean[j] /= n
	}
	out := make([]float64, cols)
	for _, r := range rows {
		for j := 0; j < cols; j++ {
			d := r[j] - mean[j]
			out[j] += d * d
		}
	}
	for j := range out {
		out[j] /= n - 1
	}
	return out
}

package lsh

import "math"

// integrationSteps controls the resolution of the numerical integration
// used to score each candidate (bands, rows) split; 1000 steps is more
// than enough precision for a handful of integer divisor candidates.
const integrationSteps = 1000

// Plan chooses the (bands, rows) split of p permutations that minimizes
// the banded-LSH false-positive/false-negative error integral for the
// given similarity threshold. Candidates are every divisor pair of p
// (B*R == P); since P is small (single or low double digits) brute
// force over its divisors is exact and cheap.
func Plan(p int, threshold float64) (bands, rows int) {
	bestErr := math.Inf(1)
	bestB, bestR := p, 1

	for b := 1; b <= p; b++ {
		if p%b != 0 {
			continue
		}
		r := p / b
		e := errorIntegral(b, r, threshold)
		if e < bestErr {
			bestErr = e
			bestB, bestR = b, r
		}
	}

	return bestB, bestR
}

// errorIntegral computes E(B,R) = ∫₀ᵗ f(s) ds + ∫ₜ¹ (1-f(s)) ds, where
// f(s) = 1-(1-s^R)^B is the probability two signatures with Jaccard
// similarity s collide in at least one band. The first term penalizes
// false positives below the threshold, the second false negatives above
// it.
func errorIntegral(bands, rows int, threshold float64) float64 {
	f := func(s float64) float64 {
		return 1 - math.Pow(1-math.Pow(s, float64(rows)), float64(bands))
	}

	step := 1.0 / float64(integrationSteps)
	var total float64

	for i := 0; i < integrationSteps; i++ {
		s := (float64(i) + 0.5) * step
		if s < threshold {
			total += f(s) * step
		} else {
			total += (1 - f(s)) * step
		}
	}

	return total
}

package provider

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// distanceFunc returns the distance used for metric. Angular distance of a
// zero vector is defined as 1 (orthogonal) instead of NaN.
func distanceFunc(metric Metric) func(a, b []float32) float32 {
	if metric == Euclidean {
		return vek32.Distance
	}
	return cosineDistance
}

func cosineDistance(a, b []float32) float32 {
	na := vek32.Dot(a, a)
	nb := vek32.Dot(b, b)
	if na == 0 || nb == 0 {
		return 1
	}
	cos := float64(vek32.Dot(a, b)) / (math.Sqrt(float64(na)) * math.Sqrt(float64(nb)))
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return float32(1 - cos)
}

package special

import "math"

// Abramowitz & Stegun 26.2.17 coefficients
const (
	asP  = 0.2316419
	asB1 = 0.3193815
	asB2 = -0.3565638
	asB3 = 1.781478
	asB4 = -1.821256
	asB5 = 1.330274
)

var invSqrt2Pi = 1 / math.Sqrt(2*math.Pi)

// StandardNormalPDF returns the density of N(0, 1) at x
func StandardNormalPDF(x float64) float64 {
	return invSqrt2Pi * math.Exp(-0.5*x*x)
}

// StandardNormalCDF returns Φ(x) with the Abramowitz–Stegun rational
// approximation (absolute error below 7.5e-8). The polynomial is evaluated at |x|
// and mirrored, so Φ(x) + Φ(-x) == 1 up to rounding.
func StandardNormalCDF(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return math.NaN()
	case math.IsInf(x, 1):
		return 1
	case math.IsInf(x, -1):
		return 0
	}

	ax := math.Abs(x)
	t := 1 / (1 + asP*ax)
	poly := t * (asB1 + t*(asB2+t*(asB3+t*(asB4+t*asB5))))
	tail := StandardNormalPDF(ax) * poly
	if x < 0 {
		return tail
	}
	return 1 - tail
}

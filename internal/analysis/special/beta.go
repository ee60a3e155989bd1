package special

import "math"

const (
	betaMaxIterations = 200
	betaEpsilon       = 1e-10
)

// RegularizedIncompleteBeta returns I_x(a, b).
//
// Inputs outside x in [0, 1] or with a, b <= 0 return 0.5, a neutral value the
// distribution layer treats as "no information". The symmetry relation
// I_x(a, b) = 1 - I_{1-x}(b, a) is used above x = (a+1)/(a+b+2) so the
// continued fraction is always evaluated where it converges fast.
func RegularizedIncompleteBeta(x, a, b float64) float64 {
	if math.IsNaN(x) || math.IsNaN(a) || math.IsNaN(b) {
		return 0.5
	}
	if x < 0 || x > 1 || a <= 0 || b <= 0 {
		return 0.5
	}
	if x == 0 {
		return 0
	}
	if x == 1 {
		return 1
	}

	// x^a (1-x)^b / B(a, b)
	front := math.Exp(LogGamma(a+b) - LogGamma(a) - LogGamma(b) + a*math.Log(x) + b*math.Log(1-x))

	if x > (a+1)/(a+b+2) {
		return 1 - front*betaFraction(1-x, b, a)/b
	}
	return front * betaFraction(x, a, b) / a
}

// betaFraction evaluates the continued fraction of the incomplete beta
// function with the modified Lentz algorithm (Numerical Recipes 6.4).
//
//	d_{2m+1} = -(a+m)(a+b+m)x / ((a+2m)(a+2m+1))
//	d_{2m}   = m(b-m)x / ((a+2m-1)(a+2m))
func betaFraction(x, a, b float64) float64 {
	floor := func(z float64) float64 {
		if math.Abs(z) < lentzFloor {
			return lentzFloor
		}
		return z
	}

	c := 1.0
	d := 1 / floor(1-(a+b)*x/(a+1))
	h := d
	for m := 1; m <= betaMaxIterations; m++ {
		mf := float64(m)

		// Even step of the recurrence.
		numer := mf * (b - mf) * x / ((a + 2*mf - 1) * (a + 2*mf))
		d = 1 / floor(1+numer*d)
		c = floor(1 + numer/c)
		h *= d * c

		// Odd step of the recurrence.
		numer = -(a + mf) * (a + b + mf) * x / ((a + 2*mf) * (a + 2*mf + 1))
		d = 1 / floor(1+numer*d)
		c = floor(1 + numer/c)
		delta := d * c
		h *= delta

		if math.Abs(delta-1) < betaEpsilon {
			break
		}
	}
	return h
}

package special

import "math"

// LogFactorial returns ln(n!) as the running sum of ln(i) for i = 2..n, 0 for n <= 1
func LogFactorial(n int) float64 {
	sum := 0.0
	for i := 2; i <= n; i++ {
		sum += math.Log(float64(i))
	}
	return sum
}

// LogChoose returns ln C(n, k), or -Inf when k is outside [0, n]
func LogChoose(n, k int) float64 {
	if k < 0 || n < 0 || k > n {
		return math.Inf(-1)
	}
	return LogFactorial(n) - LogFactorial(k) - LogFactorial(n-k)
}

// Hypergeometric returns the probability of drawing exactly x successes when n
// items are drawn without replacement from a population of N containing K
// successes. It is 0 outside the support max(0, n-(N-K)) <= x <= min(n, K).
func Hypergeometric(x, N, K, n int) float64 {
	if N < 0 || K < 0 || n < 0 || K > N || n > N {
		return 0
	}
	lo, hi := HypergeometricSupport(N, K, n)
	if x < lo || x > hi {
		return 0
	}
	return math.Exp(LogChoose(K, x) + LogChoose(N-K, n-x) - LogChoose(N, n))
}

// HypergeometricSupport returns the inclusive range of attainable success counts
func HypergeometricSupport(N, K, n int) (lo, hi int) {
	lo = n - (N - K)
	if lo < 0 {
		lo = 0
	}
	hi = n
	if K < hi {
		hi = K
	}
	return lo, hi
}

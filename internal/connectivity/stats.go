package connectivity

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// finite returns the non-NaN values of v. Missing amplitudes are stored as NULL
// and read back as NaN.
func finite(v []float64) []float64 {
	out := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) {
			out = append(out, x)
		}
	}
	return out
}

// meanStd returns the population mean and standard deviation, NaN when v has no
// finite values.
func meanStd(v []float64) (float64, float64) {
	v = finite(v)
	if len(v) == 0 {
		return math.NaN(), math.NaN()
	}
	return stat.PopMeanStdDev(v, nil)
}

func mean(v []float64) float64 {
	m, _ := meanStd(v)
	return m
}

// exactKSLimit bounds len(a)*len(b) for the exact KS p-value; larger samples
// use the asymptotic distribution.
const exactKSLimit = 10000

// KolmogorovSmirnov returns the two-sample KS statistic D of a and b together
// with its two-sided p-value: exact for small samples, asymptotic otherwise.
// Either sample being empty yields NaN for both.
func KolmogorovSmirnov(a, b []float64) (d, p float64) {
	a, b = finite(a), finite(b)
	if len(a) == 0 || len(b) == 0 {
		return math.NaN(), math.NaN()
	}
	slices.Sort(a)
	slices.Sort(b)
	d = stat.KolmogorovSmirnov(a, nil, b, nil)
	if len(a)*len(b) <= exactKSLimit {
		return d, ksExact(d, len(a), len(b))
	}
	n, m := float64(len(a)), float64(len(b))
	en := math.Sqrt(n * m / (n + m))
	return d, ksSurvival((en + 0.12 + 0.11/en) * d)
}

// ksExact returns P(D >= d) for samples of size m and n by counting the
// monotone lattice paths that stay strictly inside |i/m - j/n| < d. Path
// weights are normalised per row so u[n] ends as a probability.
func ksExact(d float64, m, n int) float64 {
	if m > n {
		m, n = n, m
	}
	md, nd := float64(m), float64(n)
	// D takes values k/(m*n); q sits halfway below d on that grid.
	q := (0.5 + math.Floor(d*md*nd-1e-7)) / (md * nd)
	u := make([]float64, n+1)
	for j := range u {
		if float64(j)/nd <= q {
			u[j] = 1
		}
	}
	for i := 1; i <= m; i++ {
		w := float64(i) / float64(i+n)
		if float64(i)/md > q {
			u[0] = 0
		} else {
			u[0] *= w
		}
		for j := 1; j <= n; j++ {
			if math.Abs(float64(i)/md-float64(j)/nd) > q {
				u[j] = 0
			} else {
				u[j] = w*u[j] + u[j-1]
			}
		}
	}
	return math.Min(1, math.Max(0, 1-u[n]))
}

// ksSurvival is the Kolmogorov distribution tail Q(lambda).
func ksSurvival(lambda float64) float64 {
	const (
		eps1 = 1e-3
		eps2 = 1e-8
	)
	a2 := -2 * lambda * lambda
	sign := 2.0
	var sum, prev float64
	for k := 1; k <= 100; k++ {
		term := sign * math.Exp(a2*float64(k*k))
		sum += term
		if math.Abs(term) <= eps1*prev || math.Abs(term) <= eps2*sum {
			return math.Min(1, math.Max(0, sum))
		}
		sign = -sign
		prev = math.Abs(term)
	}
	return 1
}

// WelchT returns Welch's unequal-variance t statistic for mean(a) - mean(b).
// Samples with fewer than two finite values yield NaN.
func WelchT(a, b []float64) float64 {
	a, b = finite(a), finite(b)
	if len(a) < 2 || len(b) < 2 {
		return math.NaN()
	}
	ma, va := stat.MeanVariance(a, nil)
	mb, vb := stat.MeanVariance(b, nil)
	se := math.Sqrt(va/float64(len(a)) + vb/float64(len(b)))
	if se == 0 {
		return math.NaN()
	}
	return (ma - mb) / se
}

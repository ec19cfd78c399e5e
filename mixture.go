package pixelate

import (
	"math"
	"math/rand"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/mathext"
)

const (
	mixtureMaxIter = 128
	mixtureTol     = 1e-3
	mixtureSeed    = 1234

	// scaleRGB moves sample values away from grayish colors in auto mode
	// and rescales the derived palette saturation.
	scaleRGB   = 1.07
	colorQuant = 8
)

// weightPrior selects how mixture weights are regularized during the
// variational fit.
type weightPrior int

const (
	// priorDirichletDistribution lets components compete for weight; used
	// when the palette is inferred from the image.
	priorDirichletDistribution weightPrior = iota
	// priorDirichletProcess with a near-zero concentration keeps one live
	// component per supplied palette color.
	priorDirichletProcess
)

type mixtureConfig struct {
	k         int
	prior     weightPrior
	alpha0    float64 // weight concentration prior
	beta0     float64 // mean precision prior
	meanPrior [3]float64
	labels    []int // initial hard assignment, one per sample
}

// mixture is a fitted Bayesian Gaussian mixture with a tied covariance
// over 3-dimensional color samples. All fields are read-only after
// fitMixture returns, so concurrent prediction is safe.
type mixture struct {
	k          int
	means      [][3]float64
	beta       []float64
	logPi      []float64     // expected log mixture weights
	prec       [3][3]float64 // expected tied precision
	logDetTerm float64       // 0.5*E[log det precision] - (D/2) log 2pi
	weights    []float64
	cov        *mat.SymDense // tied covariance estimate
	converged  bool
}

// fitMixture runs variational EM with a bounded iteration budget.
// Non-convergence within the budget degrades the result, never fails it:
// the partially converged mixture is still returned.
func fitMixture(samples [][3]float64, cfg mixtureConfig) *mixture {
	n := len(samples)
	k := cfg.k

	resp := make([]float64, n*k)
	for i, l := range cfg.labels {
		resp[i*k+l] = 1
	}

	covPrior := empiricalCovariance(samples)
	nu0 := 3.0
	nu := nu0 + float64(n)

	m := &mixture{
		k:       k,
		means:   make([][3]float64, k),
		beta:    make([]float64, k),
		logPi:   make([]float64, k),
		weights: make([]float64, k),
	}

	nk := make([]float64, k)
	xbar := make([][3]float64, k)
	score := make([]float64, k)
	prevBound := math.Inf(-1)

	for iter := 0; iter < mixtureMaxIter; iter++ {
		// M-step: component statistics from responsibilities.
		for c := 0; c < k; c++ {
			nk[c] = 0
			xbar[c] = [3]float64{}
		}
		for i := range samples {
			base := i * k
			for c := 0; c < k; c++ {
				r := resp[base+c]
				if r == 0 {
					continue
				}
				nk[c] += r
				xbar[c][0] += r * samples[i][0]
				xbar[c][1] += r * samples[i][1]
				xbar[c][2] += r * samples[i][2]
			}
		}
		for c := 0; c < k; c++ {
			den := nk[c] + 10*mixtureEps
			xbar[c][0] /= den
			xbar[c][1] /= den
			xbar[c][2] /= den

			m.beta[c] = cfg.beta0 + nk[c]
			for d := 0; d < 3; d++ {
				m.means[c][d] = (cfg.beta0*cfg.meanPrior[d] + nk[c]*xbar[c][d]) / m.beta[c]
			}
			m.weights[c] = nk[c] / float64(n)
		}
		updateLogWeights(m.logPi, nk, cfg.alpha0, cfg.prior)

		// Tied scale matrix: prior scatter + pooled within-component
		// scatter + mean shrinkage toward the prior mean.
		var winv [3][3]float64
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				winv[a][b] = covPrior[a][b] * nu0
			}
		}
		for i := range samples {
			base := i * k
			for c := 0; c < k; c++ {
				r := resp[base+c]
				if r == 0 {
					continue
				}
				var d [3]float64
				for j := 0; j < 3; j++ {
					d[j] = samples[i][j] - xbar[c][j]
				}
				addOuterScaled(&winv, d, r)
			}
		}
		for c := 0; c < k; c++ {
			var d [3]float64
			for j := 0; j < 3; j++ {
				d[j] = xbar[c][j] - cfg.meanPrior[j]
			}
			addOuterScaled(&winv, d, cfg.beta0*nk[c]/m.beta[c])
		}

		logDetWinv, ok := factorizeTied(m, winv, nu)
		if !ok {
			// Degenerate scatter; keep the previous parameters.
			break
		}
		elogdet := 3*math.Ln2 - logDetWinv
		for d := 1; d <= 3; d++ {
			elogdet += mathext.Digamma((nu + 1 - float64(d)) / 2)
		}
		m.logDetTerm = 0.5*elogdet - 1.5*math.Log(2*math.Pi)

		// E-step: new responsibilities and a lower-bound proxy.
		bound := 0.0
		for i := range samples {
			m.scoreLog(samples[i], score)
			lse := logSumExp(score)
			bound += lse
			base := i * k
			for c := 0; c < k; c++ {
				resp[base+c] = math.Exp(score[c] - lse)
			}
		}
		if math.Abs(bound-prevBound) < mixtureTol*float64(n) {
			m.converged = true
			break
		}
		prevBound = bound
	}
	return m
}

const mixtureEps = 2.220446049250313e-16

func updateLogWeights(logPi, nk []float64, alpha0 float64, prior weightPrior) {
	k := len(nk)
	switch prior {
	case priorDirichletProcess:
		// Stick-breaking expectations.
		tail := 0.0
		for _, v := range nk {
			tail += v
		}
		acc := 0.0
		for c := 0; c < k; c++ {
			tail -= nk[c]
			g1 := 1 + nk[c]
			g2 := alpha0 + tail
			logPi[c] = mathext.Digamma(g1) - mathext.Digamma(g1+g2) + acc
			acc += mathext.Digamma(g2) - mathext.Digamma(g1+g2)
		}
	default:
		total := 0.0
		for c := 0; c < k; c++ {
			total += alpha0 + nk[c]
		}
		dt := mathext.Digamma(total)
		for c := 0; c < k; c++ {
			logPi[c] = mathext.Digamma(alpha0+nk[c]) - dt
		}
	}
}

// factorizeTied turns the accumulated scale matrix into the expected
// precision and covariance, retrying with a jittered diagonal when the
// Cholesky factorization fails.
func factorizeTied(m *mixture, winv [3][3]float64, nu float64) (float64, bool) {
	data := []float64{
		winv[0][0], winv[0][1], winv[0][2],
		winv[1][0], winv[1][1], winv[1][2],
		winv[2][0], winv[2][1], winv[2][2],
	}
	sym := mat.NewSymDense(3, data)
	var ch mat.Cholesky
	for jitter := 0.0; jitter <= 1e-4; {
		if ch.Factorize(sym) {
			var inv mat.SymDense
			if err := ch.InverseTo(&inv); err != nil {
				return 0, false
			}
			for a := 0; a < 3; a++ {
				for b := 0; b < 3; b++ {
					m.prec[a][b] = inv.At(a, b) * nu
				}
			}
			cov := mat.NewSymDense(3, nil)
			cov.ScaleSym(1/nu, sym)
			m.cov = cov
			return ch.LogDet(), true
		}
		if jitter == 0 {
			jitter = 1e-8
		} else {
			jitter *= 10
		}
		for d := 0; d < 3; d++ {
			sym.SetSym(d, d, sym.At(d, d)+jitter)
		}
	}
	return 0, false
}

// scoreLog writes the weighted log probability of x under each component.
func (m *mixture) scoreLog(x [3]float64, out []float64) {
	for c := 0; c < m.k; c++ {
		d0 := x[0] - m.means[c][0]
		d1 := x[1] - m.means[c][1]
		d2 := x[2] - m.means[c][2]
		quad := d0*(m.prec[0][0]*d0+m.prec[0][1]*d1+m.prec[0][2]*d2) +
			d1*(m.prec[1][0]*d0+m.prec[1][1]*d1+m.prec[1][2]*d2) +
			d2*(m.prec[2][0]*d0+m.prec[2][1]*d1+m.prec[2][2]*d2)
		out[c] = m.logPi[c] + m.logDetTerm - 0.5*(3/m.beta[c]+quad)
	}
}

// posterior writes the probability simplex over components for x.
func (m *mixture) posterior(x [3]float64, out []float64) {
	m.scoreLog(x, out)
	lse := logSumExp(out)
	for c := range out {
		out[c] = math.Exp(out[c] - lse)
	}
}

// hardLabel is the maximum-posterior component index for x.
func (m *mixture) hardLabel(x [3]float64) int {
	best, bestScore := 0, math.Inf(-1)
	d := [3]float64{}
	for c := 0; c < m.k; c++ {
		d[0] = x[0] - m.means[c][0]
		d[1] = x[1] - m.means[c][1]
		d[2] = x[2] - m.means[c][2]
		quad := d[0]*(m.prec[0][0]*d[0]+m.prec[0][1]*d[1]+m.prec[0][2]*d[2]) +
			d[1]*(m.prec[1][0]*d[0]+m.prec[1][1]*d[1]+m.prec[1][2]*d[2]) +
			d[2]*(m.prec[2][0]*d[0]+m.prec[2][1]*d[1]+m.prec[2][2]*d[2])
		s := m.logPi[c] + m.logDetTerm - 0.5*(3/m.beta[c]+quad)
		if s > bestScore {
			bestScore = s
			best = c
		}
	}
	return best
}

func logSumExp(v []float64) float64 {
	maxV := math.Inf(-1)
	for _, x := range v {
		if x > maxV {
			maxV = x
		}
	}
	sum := 0.0
	for _, x := range v {
		sum += math.Exp(x - maxV)
	}
	return maxV + math.Log(sum)
}

func addOuterScaled(acc *[3][3]float64, d [3]float64, s float64) {
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			acc[a][b] += s * d[a] * d[b]
		}
	}
}

func empiricalCovariance(samples [][3]float64) [3][3]float64 {
	n := float64(len(samples))
	var mean [3]float64
	for _, s := range samples {
		for d := 0; d < 3; d++ {
			mean[d] += s[d]
		}
	}
	for d := 0; d < 3; d++ {
		mean[d] /= n
	}
	var cov [3][3]float64
	for _, s := range samples {
		var d [3]float64
		for j := 0; j < 3; j++ {
			d[j] = s[j] - mean[j]
		}
		addOuterScaled(&cov, d, 1)
	}
	den := math.Max(n-1, 1)
	for a := 0; a < 3; a++ {
		for b := 0; b < 3; b++ {
			cov[a][b] /= den
		}
		// Flat color planes would make the scatter singular.
		cov[a][a] += 1e-6
	}
	return cov
}

func sampleMean(samples [][3]float64) [3]float64 {
	var mean [3]float64
	for _, s := range samples {
		for d := 0; d < 3; d++ {
			mean[d] += s[d]
		}
	}
	for d := 0; d < 3; d++ {
		mean[d] /= float64(len(samples))
	}
	return mean
}

// kmeansLabels assigns each sample to one of k clusters with a seeded
// k-means++ initialization followed by a fixed number of Lloyd rounds.
// Deterministic for a given rng seed.
func kmeansLabels(samples [][3]float64, k int, rng *rand.Rand) []int {
	n := len(samples)
	centers := make([][3]float64, 0, k)
	centers = append(centers, samples[rng.Intn(n)])
	dist := make([]float64, n)
	for len(centers) < k {
		total := 0.0
		for i, s := range samples {
			best := math.MaxFloat64
			for _, c := range centers {
				if d := sqDist3(s, c); d < best {
					best = d
				}
			}
			dist[i] = best
			total += best
		}
		if total == 0 {
			centers = append(centers, samples[rng.Intn(n)])
			continue
		}
		target := rng.Float64() * total
		pick := n - 1
		acc := 0.0
		for i, d := range dist {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centers = append(centers, samples[pick])
	}

	labels := make([]int, n)
	counts := make([]int, k)
	sums := make([][3]float64, k)
	for i := 0; i < 10; i++ {
		for i, s := range samples {
			best, bestD := 0, math.MaxFloat64
			for c := range centers {
				if d := sqDist3(s, centers[c]); d < bestD {
					bestD = d
					best = c
				}
			}
			labels[i] = best
		}
		for c := 0; c < k; c++ {
			counts[c] = 0
			sums[c] = [3]float64{}
		}
		for i, s := range samples {
			c := labels[i]
			counts[c]++
			for d := 0; d < 3; d++ {
				sums[c][d] += s[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < 3; d++ {
				centers[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	return labels
}

// nearestPaletteLabels assigns each sample to the perceptually nearest
// supplied color using CIEDE2000 distance rather than raw RGB distance.
func nearestPaletteLabels(samples [][3]float64, palette [][3]float64) []int {
	cols := make([]colorful.Color, len(palette))
	for i, p := range palette {
		cols[i] = colorful.Color{R: clampUnit(p[0]), G: clampUnit(p[1]), B: clampUnit(p[2])}
	}
	labels := make([]int, len(samples))
	for i, s := range samples {
		sc := colorful.Color{R: clampUnit(s[0]), G: clampUnit(s[1]), B: clampUnit(s[2])}
		best, bestD := 0, math.MaxFloat64
		for c := range cols {
			if d := sc.DistanceCIEDE2000(cols[c]); d < bestD {
				bestD = d
				best = c
			}
		}
		labels[i] = best
	}
	return labels
}

func sqDist3(a, b [3]float64) float64 {
	d0 := a[0] - b[0]
	d1 := a[1] - b[1]
	d2 := a[2] - b[2]
	return d0*d0 + d1*d1 + d2*d2
}

// paletteFromMeans derives display colors from fitted component means:
// saturation and value are rescaled, channels are bucket-quantized to a
// fixed step and values near the extremes snap to pure black or white so
// the palette stays print-safe.
func paletteFromMeans(means [][3]float64) [][3]uint8 {
	out := make([][3]uint8, len(means))
	for i, mn := range means {
		c := colorful.Color{R: clampUnit(mn[0]), G: clampUnit(mn[1]), B: clampUnit(mn[2])}
		h, s, v := c.Hsv()
		c = colorful.Hsv(h, s*scaleRGB, v*scaleRGB)
		out[i] = [3]uint8{quantChannel(c.R), quantChannel(c.G), quantChannel(c.B)}
	}
	return out
}

func quantChannel(v float64) uint8 {
	q := math.Floor(v * 255 / colorQuant) * colorQuant
	if q < 0 {
		q = 0
	}
	if q > 255 {
		q = 255
	}
	if q < colorQuant*2 {
		return 0
	}
	if q > 255-colorQuant*2 {
		return 255
	}
	return uint8(q)
}

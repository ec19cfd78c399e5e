package pixelate

import (
	"fmt"
	"math"
)

// DitherMode selects the strategy used to map posterior probabilities to
// palette indices.
type DitherMode int

const (
	// DitherNone assigns every pixel its maximum-posterior color.
	DitherNone DitherMode = iota
	// DitherNaive swaps weak winners for the runner-up color in a
	// checkerboard pattern, with no spatial error accumulation.
	DitherNaive
	// DitherOrdered convolves each color's posterior map with a 4x4 Bayer
	// threshold matrix and picks per pixel across candidates.
	DitherOrdered
	// DitherFloydSteinberg diffuses leftover probability mass to
	// unprocessed neighbors in raster order.
	DitherFloydSteinberg
	// DitherAtkinson diffuses the color residual itself, re-evaluating the
	// posterior at each already-corrected pixel.
	DitherAtkinson
)

func (d DitherMode) String() string {
	switch d {
	case DitherNone:
		return "none"
	case DitherNaive:
		return "naive"
	case DitherOrdered:
		return "ordered"
	case DitherFloydSteinberg:
		return "floyd"
	case DitherAtkinson:
		return "atkinson"
	}
	return fmt.Sprintf("DitherMode(%d)", int(d))
}

// ParseDitherMode maps a config string to a DitherMode.
func ParseDitherMode(s string) (DitherMode, error) {
	switch s {
	case "", "none":
		return DitherNone, nil
	case "naive":
		return DitherNaive, nil
	case "ordered", "bayer":
		return DitherOrdered, nil
	case "floyd":
		return DitherFloydSteinberg, nil
	case "atkinson":
		return DitherAtkinson, nil
	}
	return 0, fmt.Errorf("unknown dither mode %q", s)
}

const (
	ditherNaiveBoost = 1.33
	ditherFloydPow   = 1.0 / 6.0
)

// Precalculated 4x4 Bayer matrix / 16 - 0.5.
var bayerMatrix = [4][4]float64{
	{-0.5, 0, -0.375, 0.125},
	{0.25, -0.25, 0.375, -0.125},
	{-0.3125, 0.1875, -0.4375, 0.0625},
	{0.4375, -0.0625, 0.3125, -0.1875},
}

// ditherIndices maps the flattened quantization-ready image to palette
// indices under the model's posteriors.
func (m *Model) ditherIndices(im *Image) []int {
	switch m.opt.Dither {
	case DitherNaive:
		return m.ditherNaive(im)
	case DitherOrdered:
		return m.ditherOrdered(im)
	case DitherFloydSteinberg:
		return m.ditherFloyd(im)
	case DitherAtkinson:
		return m.ditherAtkinson(im)
	default:
		return m.ditherNone(im)
	}
}

func (m *Model) ditherNone(im *Image) []int {
	idx := make([]int, im.H*im.W)
	for i := range idx {
		idx[i] = m.mix.hardLabel(m.pixelAt(im, i))
	}
	return idx
}

// ditherNaive keeps the best posterior color unless its margin over the
// runner-up is weak. Substitutions alternate between two thresholds by row
// parity and step two columns at a time, so no two horizontally adjacent
// pixels are ever both replaced.
func (m *Model) ditherNaive(im *Image) []int {
	h, w := im.H, im.W
	n := len(m.palette)
	total := h * w
	idx := make([]int, total)
	second := make([]int, total)
	margin := make([]float64, total) // runner-up probability

	probs := make([]float64, m.mix.k)
	for i := 0; i < total; i++ {
		m.predictProbabilities(m.pixelAt(im, i), probs)
		best := argmax(probs)
		idx[i] = best
		probs[best] = 0
		second[i] = argmax(probs)
		margin[i] = probs[second[i]]
	}

	base := 1.0 / (float64(n) + 1)
	boosted := 1.0 / (float64(n)*ditherNaiveBoost + 1)
	shift := w%2 == 0
	for i := 0; i < total; i += 2 {
		row := (i / w) % 2
		j := i
		if shift {
			j += row
		}
		if j >= total {
			break
		}
		if row == 1 {
			if margin[j] > base {
				idx[j] = second[j]
			}
		} else if margin[j] > boosted {
			idx[j] = second[j]
		}
	}
	return idx
}

// ditherOrdered convolves each candidate color's posterior map with the
// Bayer matrix (reflected boundaries) and selects, per pixel, the color
// with the minimum convolved value. Minimum selection is kept as observed
// in the reference behavior even though the other modes select maxima.
func (m *Model) ditherOrdered(im *Image) []int {
	h, w := im.H, im.W
	total := h * w
	k := m.mix.k

	probs := make([]float64, k)
	planes := make([][]float64, k)
	for c := 0; c < k; c++ {
		planes[c] = make([]float64, total)
	}
	for i := 0; i < total; i++ {
		m.predictProbabilities(m.pixelAt(im, i), probs)
		for c := 0; c < k; c++ {
			planes[c][i] = probs[c]
		}
	}

	idx := make([]int, total)
	bestVal := make([]float64, total)
	for i := range bestVal {
		bestVal[i] = math.MaxFloat64
	}
	for c := 0; c < k; c++ {
		conv := convolveBayer(planes[c], h, w)
		for i, v := range conv {
			if v < bestVal[i] {
				bestVal[i] = v
				idx[i] = c
			}
		}
	}
	return idx
}

// convolveBayer is a 2-D convolution with the 4x4 Bayer matrix, symmetric
// reflection at the borders and the anchor at (2,2).
func convolveBayer(p []float64, h, w int) []float64 {
	out := make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for i := 0; i < 4; i++ {
				sy := reflectIndex(y+i-2, h)
				for j := 0; j < 4; j++ {
					sx := reflectIndex(x+j-2, w)
					// Kernel flipped for convolution semantics.
					sum += bayerMatrix[3-i][3-j] * p[sy*w+sx]
				}
			}
			out[y*w+x] = sum
		}
	}
	return out
}

// reflectIndex mirrors an out-of-range index back into [0,n), including
// the edge sample.
func reflectIndex(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i - 1
		}
		if i >= n {
			i = 2*n - i - 1
		}
	}
	return i
}

// ditherFloyd works on the per-color probability volume. Interior pixels
// are resolved in raster order: the winning component keeps its mass, the
// rest is diffused right (7/16), lower-left (3/16), down (5/16) and
// lower-right (1/16). First/last columns and the last row fall back to
// plain maximum selection with no diffusion. Strictly sequential.
func (m *Model) ditherFloyd(im *Image) []int {
	h, w := im.H, im.W
	total := h * w
	k := m.mix.k

	buf := make([][]float64, total)
	probs := make([]float64, k)
	for i := 0; i < total; i++ {
		m.predictProbabilities(m.pixelAt(im, i), probs)
		row := make([]float64, k)
		for c := 0; c < k; c++ {
			row[c] = math.Pow(probs[c], ditherFloydPow)
		}
		buf[i] = row
	}

	idx := make([]int, total)
	for y := 0; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			best := argmax(buf[i])
			idx[i] = best
			for c := 0; c < k; c++ {
				if c == best {
					continue
				}
				e := buf[i][c] / 16
				buf[i+1][c] += e * 7
				buf[i+w-1][c] += e * 3
				buf[i+w][c] += e * 5
				buf[i+w+1][c] += e
			}
		}
	}
	for y := 0; y < h; y++ {
		idx[y*w] = argmax(buf[y*w])
		idx[y*w+w-1] = argmax(buf[y*w+w-1])
	}
	for x := 1; x < w-1; x++ {
		i := (h-1)*w + x
		idx[i] = argmax(buf[i])
	}
	return idx
}

// ditherAtkinson diffuses the color residual itself: each pixel is
// classified at its current, already-corrected value, and an eighth of the
// residual against the chosen cluster mean is pushed to six trailing
// neighbors in a reflect-padded working buffer. Strictly sequential.
func (m *Model) ditherAtkinson(im *Image) []int {
	h, w := im.H, im.W
	k := m.mix.k

	// Working buffer padded by (0,2) rows and (1,2) columns, reflection
	// excluding the edge sample.
	ph, pw := h+2, w+3
	work := make([][3]float64, ph*pw)
	for y := 0; y < ph; y++ {
		sy := y
		if sy >= h {
			sy = reflectIndexExclusive(sy, h)
		}
		for x := 0; x < pw; x++ {
			sx := x - 1
			if sx < 0 || sx >= w {
				sx = reflectIndexExclusive(sx, w)
			}
			work[y*pw+x] = m.pixelAt(im, sy*w+sx)
		}
	}

	probs := make([]float64, k)
	res := make([]int, ph*pw)
	for y := 0; y < h; y++ {
		for x := 1; x <= w; x++ {
			i := y*pw + x
			m.predictProbabilities(work[i], probs)
			best := argmax(probs)
			res[i] = best
			var qe [3]float64
			for d := 0; d < 3; d++ {
				qe[d] = (work[i][d] - m.mix.means[best][d]) / 8
			}
			for _, off := range [6]int{1, 2, pw - 1, pw, pw + 1, 2 * pw} {
				j := i + off
				for d := 0; d < 3; d++ {
					work[j][d] += qe[d]
				}
			}
		}
	}

	idx := make([]int, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx[y*w+x] = res[y*pw+x+1]
		}
	}
	return idx
}

// reflectIndexExclusive mirrors without repeating the edge sample, the way
// the working buffer is padded.
func reflectIndexExclusive(i, n int) int {
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - i - 2
		}
	}
	return i
}

func (m *Model) pixelAt(im *Image, i int) [3]float64 {
	off := i * im.C
	return [3]float64{im.Pix[off], im.Pix[off+1], im.Pix[off+2]}
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

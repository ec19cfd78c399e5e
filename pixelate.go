// Package pixelate converts full-color raster images into reduced-color,
// reduced-resolution pixel art. A palette is inferred from (or supplied
// for) a reference image by a variational Bayesian mixture fit, then
// images are downsampled with gradient-weighted block averaging and
// recolored through one of several dithering strategies.
package pixelate

import (
	"errors"
	"fmt"
	"image/color"
	"log"
	"math"
	"math/rand"
)

const (
	fitSampleSize     = 256
	defaultTileSize   = 3
	defaultAlpha      = 0.6
	depthWarnAbove    = 2
	defaultPaletteLen = 8
)

// ErrNotFitted is returned when Transform is called without a fitted
// model.
var ErrNotFitted = errors.New("pixelate: model is not fitted, call Fit first")

// Options configures one fit/transform cycle. Start from DefaultOptions
// and override fields; the zero value is not a valid configuration.
type Options struct {
	// Target geometry: explicit Height and/or Width (0 = unset), or an
	// integer downscale Factor. Height/Width and Factor are mutually
	// exclusive. When only one of Height/Width is set the other dimension
	// is derived proportionally.
	Height, Width int
	Factor        int

	// Nearest-neighbor upscale applied after quantization.
	UpscaleRows, UpscaleCols int

	// Depth is the number of gradient-weighted downsampling passes; each
	// pass divides the resolution by TileSize.
	Depth int

	// PaletteSize asks the model to infer that many colors. Palette
	// supplies explicit colors instead. Exactly one of the two paths is
	// legal per configuration.
	PaletteSize int
	Palette     []color.Color

	Dither   DitherMode
	TileSize int

	// AlphaThreshold splits semi-transparent pixels into opaque and
	// transparent after resizing (4-channel images only).
	AlphaThreshold float64

	// Boost enables adaptive contrast equalization and saturation scaling
	// before downsampling.
	Boost bool
}

func DefaultOptions() Options {
	return Options{
		UpscaleRows:    1,
		UpscaleCols:    1,
		Depth:          1,
		PaletteSize:    defaultPaletteLen,
		Dither:         DitherNone,
		TileSize:       defaultTileSize,
		AlphaThreshold: defaultAlpha,
		Boost:          true,
	}
}

func (o Options) validate() error {
	if (o.Height > 0 || o.Width > 0) && o.Factor > 0 {
		return fmt.Errorf("pixelate: height/width and downscale factor are mutually exclusive")
	}
	if o.Height < 0 || o.Width < 0 {
		return fmt.Errorf("pixelate: height and width must be positive")
	}
	if o.Factor < 0 {
		return fmt.Errorf("pixelate: downscale factor must be a positive integer")
	}
	if o.UpscaleRows < 1 || o.UpscaleCols < 1 {
		return fmt.Errorf("pixelate: upscale factors must be >= 1")
	}
	if o.Depth < 1 {
		return fmt.Errorf("pixelate: depth must be a positive integer")
	}
	if o.TileSize < 2 {
		return fmt.Errorf("pixelate: tile size must be an integer >= 2")
	}
	if o.PaletteSize != 0 && len(o.Palette) != 0 {
		return fmt.Errorf("pixelate: palette size and explicit palette are mutually exclusive")
	}
	if len(o.Palette) == 0 && o.PaletteSize < 2 {
		return fmt.Errorf("pixelate: the minimum number of colors in a palette is 2")
	}
	if o.AlphaThreshold < 0 || o.AlphaThreshold > 1 {
		return fmt.Errorf("pixelate: alpha threshold must be in [0,1]")
	}
	if o.Dither < DitherNone || o.Dither > DitherAtkinson {
		return fmt.Errorf("pixelate: unknown dither mode %d", int(o.Dither))
	}
	return nil
}

// targetSize derives the post-quantization geometry from the options.
func (o Options) targetSize(h, w int) (int, int) {
	switch {
	case o.Height > 0 && o.Width > 0:
		return o.Height, o.Width
	case o.Height > 0:
		return o.Height, o.Height * w / h
	case o.Width > 0:
		return o.Width * h / w, o.Width
	case o.Factor > 0:
		return h / o.Factor, w / o.Factor
	default:
		return h, w
	}
}

// Model is the immutable result of Fit: the fitted mixture, the validated
// options snapshot and the derived palette. It is never mutated after Fit
// returns, so any number of Transform calls may share it concurrently.
// Re-fitting means constructing a new Model.
type Model struct {
	opt         Options
	mix         *mixture
	findPalette bool
	channels    int
	palette     [][3]uint8
	palFloat    [][3]float64
	warnings    []string
}

// Fit infers (or anchors) the palette from a reference image and returns
// the fitted model. Configuration errors and images too small for the
// requested palette abort with no partial result.
func Fit(img *Image, opt Options) (*Model, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if img == nil || img.H < 1 || img.W < 1 {
		return nil, fmt.Errorf("pixelate: empty input image")
	}
	if img.C != 3 && img.C != 4 {
		return nil, fmt.Errorf("pixelate: channel count must be 3 or 4, got %d", img.C)
	}

	m := &Model{opt: opt, channels: img.C, findPalette: len(opt.Palette) == 0}
	if opt.Depth > depthWarnAbove {
		m.warnf("depth %d is unusually high, transform may take very long", opt.Depth)
	}

	var fixed [][3]float64
	if !m.findPalette {
		fixed = dedupePalette(opt.Palette)
		if len(fixed) < 2 {
			return nil, fmt.Errorf("pixelate: the minimum number of colors in a palette is 2")
		}
	}
	k := opt.PaletteSize
	if !m.findPalette {
		k = len(fixed)
	}
	if img.H*img.W <= k {
		return nil, fmt.Errorf("pixelate: too many colors for such a small image, use a larger image or a smaller palette")
	}

	work := img
	if img.C == 4 {
		work = dilate(img, opt.AlphaThreshold)
	}
	sample := resizeRGB(work, min(img.H, fitSampleSize), min(img.W, fitSampleSize), false)
	colors := make([][3]float64, sample.H*sample.W)
	for i := range colors {
		off := i * 3
		colors[i] = [3]float64{sample.Pix[off], sample.Pix[off+1], sample.Pix[off+2]}
	}
	if m.findPalette {
		for i := range colors {
			for d := 0; d < 3; d++ {
				colors[i][d] = (colors[i][d]-0.5)*scaleRGB + 0.5
			}
		}
	}

	var cfg mixtureConfig
	rng := rand.New(rand.NewSource(mixtureSeed))
	if m.findPalette {
		cfg = mixtureConfig{
			k:         k,
			prior:     priorDirichletDistribution,
			alpha0:    1 / float64(k),
			beta0:     1.0 / 256.0,
			meanPrior: sampleMean(colors),
			labels:    kmeansLabels(colors, k, rng),
		}
	} else {
		cfg = mixtureConfig{
			k:         k,
			prior:     priorDirichletProcess,
			alpha0:    1e-7,
			beta0:     1 / float64(k),
			meanPrior: sampleMean(fixed),
			labels:    nearestPaletteLabels(colors, fixed),
		}
	}
	m.mix = fitMixture(colors, cfg)
	if !m.mix.converged {
		m.warnf("could not properly assign colors within the iteration budget, try a different palette size for better results")
	}

	if m.findPalette {
		m.palette = paletteFromMeans(m.mix.means)
		if hasDuplicateColors(m.palette) {
			m.warnf("some palette colors are redundant, try a different palette size for better results")
		}
	} else {
		m.palette = make([][3]uint8, len(fixed))
		for i, c := range fixed {
			m.palette[i] = [3]uint8{toByte(c[0]), toByte(c[1]), toByte(c[2])}
		}
	}
	m.palFloat = make([][3]float64, len(m.palette))
	for i, c := range m.palette {
		m.palFloat[i] = [3]float64{
			float64(c[0]) / 255.0,
			float64(c[1]) / 255.0,
			float64(c[2]) / 255.0,
		}
	}
	return m, nil
}

// Colors returns the ordered output palette as 8-bit colors.
func (m *Model) Colors() []color.RGBA {
	out := make([]color.RGBA, len(m.palette))
	for i, c := range m.palette {
		out[i] = color.RGBA{R: c[0], G: c[1], B: c[2], A: 255}
	}
	return out
}

// Warnings returns the non-fatal quality notices collected during Fit.
func (m *Model) Warnings() []string {
	out := make([]string, len(m.warnings))
	copy(out, m.warnings)
	return out
}

// Transform runs the full pipeline on an image: padding, alpha handling,
// optional contrast boost, iterative gradient-weighted downsampling,
// dithering against the fitted palette and integer upscaling. The model is
// only read, never written, so concurrent calls are safe.
func (m *Model) Transform(img *Image) (*Image, error) {
	if m == nil || m.mix == nil {
		return nil, ErrNotFitted
	}
	if img == nil || img.H < 1 || img.W < 1 {
		return nil, fmt.Errorf("pixelate: empty input image")
	}
	if img.C != m.channels {
		return nil, fmt.Errorf("pixelate: channel count %d does not match fitted model (%d)", img.C, m.channels)
	}
	if img.H*img.W <= len(m.palette) {
		return nil, fmt.Errorf("pixelate: too many colors for such a small image, use a larger image or a smaller palette")
	}
	newH, newW := m.opt.targetSize(img.H, img.W)
	if newH < 1 || newW < 1 {
		return nil, fmt.Errorf("pixelate: target geometry %dx%d is empty", newH, newW)
	}

	work := img
	var alphaMask []float64
	if img.C == 4 {
		if m.opt.Dither == DitherOrdered || m.opt.Dither == DitherFloydSteinberg || m.opt.Dither == DitherAtkinson {
			log.Printf("pixelate warning: images with transparency can have artifacts around the edges with %s dithering, use naive instead", m.opt.Dither)
		}
		work = dilate(img, m.opt.AlphaThreshold)
		alphaMask = resizePlane(work.plane(3), img.H, img.W, newH, newW)
	}

	scale := 1
	for i := 0; i < m.opt.Depth; i++ {
		scale *= m.opt.TileSize
	}
	work = resizeRGB(work, newH*scale, newW*scale, true)
	if m.opt.Boost {
		work = boost(work)
	}
	for i := 0; i < m.opt.Depth; i++ {
		if m.opt.Boost && img.C == 3 {
			work = medianHSV(work)
		}
		work = downsample(work, m.opt.TileSize)
	}
	if m.findPalette {
		for i := range work.Pix {
			work.Pix[i] = (work.Pix[i]-0.5)*scaleRGB + 0.5
		}
	}

	idx := m.ditherIndices(work)

	out := NewImage(work.H, work.W, img.C)
	var mask []float64
	if img.C == 4 {
		mask = resolveMask(alphaMask, m.opt.AlphaThreshold)
	}
	for i, label := range idx {
		off := i * img.C
		c := m.palFloat[label]
		out.Pix[off] = c[0]
		out.Pix[off+1] = c[1]
		out.Pix[off+2] = c[2]
		if img.C == 4 {
			out.Pix[off+3] = mask[i]
		}
	}
	return upscale(out, m.opt.UpscaleRows, m.opt.UpscaleCols), nil
}

// predictProbabilities exposes the posterior simplex over palette colors.
// For very small palettes the probabilities are square-rooted (without
// renormalizing) to exaggerate contrast for dithering decisions.
func (m *Model) predictProbabilities(x [3]float64, out []float64) {
	m.mix.posterior(x, out)
	if len(m.palette) < 3 {
		for i := range out {
			out[i] = math.Sqrt(out[i])
		}
	}
}

func upscale(im *Image, rows, cols int) *Image {
	if rows == 1 && cols == 1 {
		return im
	}
	out := NewImage(im.H*rows, im.W*cols, im.C)
	for y := 0; y < out.H; y++ {
		sy := y / rows
		for x := 0; x < out.W; x++ {
			src := im.offset(x/cols, sy)
			dst := out.offset(x, y)
			copy(out.Pix[dst:dst+im.C], im.Pix[src:src+im.C])
		}
	}
	return out
}

func dedupePalette(palette []color.Color) [][3]float64 {
	seen := make(map[[3]uint8]bool, len(palette))
	out := make([][3]float64, 0, len(palette))
	for _, c := range palette {
		r, g, b, _ := c.RGBA()
		key := [3]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, [3]float64{
			float64(key[0]) / 255.0,
			float64(key[1]) / 255.0,
			float64(key[2]) / 255.0,
		})
	}
	return out
}

func hasDuplicateColors(palette [][3]uint8) bool {
	seen := make(map[[3]uint8]bool, len(palette))
	for _, c := range palette {
		if seen[c] {
			return true
		}
		seen[c] = true
	}
	return false
}

func (m *Model) warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.warnings = append(m.warnings, msg)
	log.Println("pixelate warning:", msg)
}

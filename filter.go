package pixelate

import (
	"math"
	"sort"

	colorful "github.com/lucasb-eyer/go-colorful"
)

const gradientEpsilon = 1e-8

// sobelPlane computes the gradient magnitude of one channel with the
// standard 3x3 Sobel operator. Borders are edge-replicated, which matches
// symmetric reflection at distance one.
func sobelPlane(im *Image, c int) []float64 {
	h, w := im.H, im.W
	out := make([]float64, h*w)
	at := func(x, y int) float64 {
		return im.Pix[im.offset(clampInt(x, 0, w-1), clampInt(y, 0, h-1))+c]
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gh := (at(x-1, y-1) + 2*at(x, y-1) + at(x+1, y-1) -
				at(x-1, y+1) - 2*at(x, y+1) - at(x+1, y+1)) / 4.0
			gv := (at(x-1, y-1) + 2*at(x-1, y) + at(x-1, y+1) -
				at(x+1, y-1) - 2*at(x+1, y) - at(x+1, y+1)) / 4.0
			out[y*w+x] = math.Sqrt(gh*gh+gv*gv) + gradientEpsilon
		}
	}
	return out
}

// downsample reduces the image to 1/tile resolution per axis. Each output
// cell is the gradient-weighted average of its tile, so strong edges
// dominate the cell color instead of being smoothed away.
func downsample(im *Image, tile int) *Image {
	p := pad(im, tile)
	oh, ow := p.H/tile, p.W/tile
	out := NewImage(oh, ow, p.C)
	for c := 0; c < p.C; c++ {
		grad := sobelPlane(p, c)
		for ty := 0; ty < oh; ty++ {
			for tx := 0; tx < ow; tx++ {
				var num, den float64
				for dy := 0; dy < tile; dy++ {
					y := ty*tile + dy
					for dx := 0; dx < tile; dx++ {
						x := tx*tile + dx
						g := grad[y*p.W+x]
						num += g * p.Pix[p.offset(x, y)+c]
						den += g
					}
				}
				out.Pix[out.offset(tx, ty)+c] = num / den
			}
		}
	}
	return out
}

// dilate replaces the color of pixels whose alpha is below threshold with
// the 3x3 max-dilated color of their neighborhood, so downsampling does
// not smear dark halo fringes into the opaque region. Only valid for
// 4-channel images.
func dilate(im *Image, threshold float64) *Image {
	out := im.Clone()
	h, w := im.H, im.W
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := im.offset(x, y)
			if im.Pix[off+3] >= threshold {
				continue
			}
			var maxR, maxG, maxB float64
			for dy := -1; dy <= 1; dy++ {
				sy := clampInt(y+dy, 0, h-1)
				for dx := -1; dx <= 1; dx++ {
					sx := clampInt(x+dx, 0, w-1)
					n := im.offset(sx, sy)
					maxR = math.Max(maxR, im.Pix[n])
					maxG = math.Max(maxG, im.Pix[n+1])
					maxB = math.Max(maxB, im.Pix[n+2])
				}
			}
			out.Pix[off] = maxR
			out.Pix[off+1] = maxG
			out.Pix[off+2] = maxB
		}
	}
	return out
}

// resolveMask binarizes a resized alpha channel: nothing between fully
// transparent and fully opaque survives.
func resolveMask(alpha []float64, threshold float64) []float64 {
	out := make([]float64, len(alpha))
	for i, v := range alpha {
		if v >= threshold {
			out[i] = 1
		}
	}
	return out
}

// toHSV converts the color channels to hue [0,360), saturation and value
// in [0,1], clamping inputs into the RGB cube first.
func toHSV(im *Image) *Image {
	out := NewImage(im.H, im.W, 3)
	for i := 0; i < len(im.Pix); i += im.C {
		c := colorful.Color{
			R: clampUnit(im.Pix[i]),
			G: clampUnit(im.Pix[i+1]),
			B: clampUnit(im.Pix[i+2]),
		}
		h, s, v := c.Hsv()
		j := i / im.C * 3
		out.Pix[j] = h
		out.Pix[j+1] = s
		out.Pix[j+2] = v
	}
	return out
}

func fromHSV(im *Image) *Image {
	out := NewImage(im.H, im.W, 3)
	for i := 0; i < len(im.Pix); i += 3 {
		c := colorful.Hsv(im.Pix[i], clampUnit(im.Pix[i+1]), clampUnit(im.Pix[i+2]))
		out.Pix[i] = clampUnit(c.R)
		out.Pix[i+1] = clampUnit(c.G)
		out.Pix[i+2] = clampUnit(c.B)
	}
	return out
}

// medianHSV removes speckle noise between downsampling iterations with a
// 3x3 median filter applied per HSV channel.
func medianHSV(im *Image) *Image {
	hsv := toHSV(im)
	h, w := hsv.H, hsv.W
	out := NewImage(h, w, 3)
	window := make([]float64, 0, 9)
	for c := 0; c < 3; c++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				window = window[:0]
				for dy := -1; dy <= 1; dy++ {
					sy := clampInt(y+dy, 0, h-1)
					for dx := -1; dx <= 1; dx++ {
						sx := clampInt(x+dx, 0, w-1)
						window = append(window, hsv.Pix[hsv.offset(sx, sy)+c])
					}
				}
				sort.Float64s(window)
				out.Pix[out.offset(x, y)+c] = window[4]
			}
		}
	}
	return fromHSV(out)
}

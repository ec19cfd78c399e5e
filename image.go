package pixelate

import (
	"fmt"
	"image"
	"image/color"
)

// Image is a dense raster of float64 samples in [0,1], interleaved by
// channel. C is 3 (RGB) or 4 (RGBA) and stays fixed for the lifetime of
// one fit/transform cycle. Integer pixel data is normalized on the way in
// and converted back to 8-bit at the output boundary.
type Image struct {
	H, W, C int
	Pix     []float64 // len = H*W*C
}

func NewImage(h, w, c int) *Image {
	return &Image{H: h, W: w, C: c, Pix: make([]float64, h*w*c)}
}

func (im *Image) offset(x, y int) int {
	return (y*im.W + x) * im.C
}

func (im *Image) Clone() *Image {
	out := &Image{H: im.H, W: im.W, C: im.C, Pix: make([]float64, len(im.Pix))}
	copy(out.Pix, im.Pix)
	return out
}

// FromBytes normalizes interleaved 8-bit samples to floats in [0,1].
func FromBytes(h, w, c int, data []uint8) (*Image, error) {
	if c != 3 && c != 4 {
		return nil, fmt.Errorf("channel count must be 3 or 4, got %d", c)
	}
	if len(data) != h*w*c {
		return nil, fmt.Errorf("pixel buffer has %d samples, want %d", len(data), h*w*c)
	}
	im := NewImage(h, w, c)
	for i, v := range data {
		im.Pix[i] = float64(v) / 255.0
	}
	return im, nil
}

// FromImage converts a decoded image to an Image. The result keeps an
// alpha channel only when the source contains at least one non-opaque
// pixel, so fully opaque PNGs run through the 3-channel pipeline.
func FromImage(src image.Image) *Image {
	bounds := src.Bounds()
	h, w := bounds.Dy(), bounds.Dx()

	hasAlpha := false
	switch t := src.(type) {
	case *image.NRGBA:
		for i := 3; i < len(t.Pix); i += 4 {
			if t.Pix[i] != 0xff {
				hasAlpha = true
				break
			}
		}
	case *image.RGBA:
		for i := 3; i < len(t.Pix); i += 4 {
			if t.Pix[i] != 0xff {
				hasAlpha = true
				break
			}
		}
	default:
		for y := bounds.Min.Y; y < bounds.Max.Y && !hasAlpha; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				if _, _, _, a := src.At(x, y).RGBA(); a != 0xffff {
					hasAlpha = true
					break
				}
			}
		}
	}

	c := 3
	if hasAlpha {
		c = 4
	}
	im := NewImage(h, w, c)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, a := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			off := im.offset(x, y)
			if a > 0 && a < 0xffff {
				// Un-premultiply so dilation sees the true border colors.
				im.Pix[off] = float64(r) / float64(a)
				im.Pix[off+1] = float64(g) / float64(a)
				im.Pix[off+2] = float64(b) / float64(a)
			} else {
				im.Pix[off] = float64(r) / 65535.0
				im.Pix[off+1] = float64(g) / 65535.0
				im.Pix[off+2] = float64(b) / 65535.0
			}
			if c == 4 {
				im.Pix[off+3] = float64(a) / 65535.0
			}
		}
	}
	return im
}

// ToImage converts back to an 8-bit raster, clamping samples to [0,255].
func (im *Image) ToImage() image.Image {
	out := image.NewNRGBA(image.Rect(0, 0, im.W, im.H))
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			off := im.offset(x, y)
			a := uint8(255)
			if im.C == 4 {
				a = toByte(im.Pix[off+3])
			}
			out.SetNRGBA(x, y, color.NRGBA{
				R: toByte(im.Pix[off]),
				G: toByte(im.Pix[off+1]),
				B: toByte(im.Pix[off+2]),
				A: a,
			})
		}
	}
	return out
}

// rgbOnly copies the first three channels, dropping alpha.
func (im *Image) rgbOnly() *Image {
	if im.C == 3 {
		return im.Clone()
	}
	out := NewImage(im.H, im.W, 3)
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			src := im.offset(x, y)
			dst := out.offset(x, y)
			out.Pix[dst] = im.Pix[src]
			out.Pix[dst+1] = im.Pix[src+1]
			out.Pix[dst+2] = im.Pix[src+2]
		}
	}
	return out
}

// plane extracts a single channel as a flat H*W slice.
func (im *Image) plane(c int) []float64 {
	out := make([]float64, im.H*im.W)
	for i := range out {
		out[i] = im.Pix[i*im.C+c]
	}
	return out
}

func toByte(v float64) uint8 {
	n := int(v*255.0 + 0.5)
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

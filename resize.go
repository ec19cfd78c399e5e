package pixelate

import (
	"image"

	"golang.org/x/image/draw"
)

// resizeRGB scales the color channels of im to h by w, dropping alpha.
// Anti-aliased resizes use Catmull-Rom, the fit-time sampling path uses
// nearest neighbor.
func resizeRGB(im *Image, h, w int, antiAlias bool) *Image {
	if h == im.H && w == im.W {
		return im.rgbOnly()
	}
	src := image.NewNRGBA(image.Rect(0, 0, im.W, im.H))
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			off := im.offset(x, y)
			i := src.PixOffset(x, y)
			src.Pix[i] = toByte(im.Pix[off])
			src.Pix[i+1] = toByte(im.Pix[off+1])
			src.Pix[i+2] = toByte(im.Pix[off+2])
			src.Pix[i+3] = 0xff
		}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	scalerFor(antiAlias).Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := NewImage(h, w, 3)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := dst.PixOffset(x, y)
			off := out.offset(x, y)
			out.Pix[off] = float64(dst.Pix[i]) / 255.0
			out.Pix[off+1] = float64(dst.Pix[i+1]) / 255.0
			out.Pix[off+2] = float64(dst.Pix[i+2]) / 255.0
		}
	}
	return out
}

// resizePlane scales a single channel (values in [0,1]) with anti-aliasing.
func resizePlane(p []float64, h0, w0, h, w int) []float64 {
	if h == h0 && w == w0 {
		out := make([]float64, len(p))
		copy(out, p)
		return out
	}
	src := image.NewGray(image.Rect(0, 0, w0, h0))
	for i, v := range p {
		src.Pix[i] = toByte(v)
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	scalerFor(true).Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float64, h*w)
	for i, v := range dst.Pix {
		out[i] = float64(v) / 255.0
	}
	return out
}

func scalerFor(antiAlias bool) draw.Scaler {
	if antiAlias {
		return draw.CatmullRom
	}
	return draw.NearestNeighbor
}

package pixelate

import "math"

const (
	boostSaturation = 1.19
	claheGrid       = 8
	claheBins       = 256
	claheClipLimit  = 0.01
)

// boost applies adaptive local contrast equalization to the value channel
// and scales saturation and value, clamped to [0,1]. Runs once per
// transform, before the downsampling loop.
func boost(im *Image) *Image {
	hsv := toHSV(im)
	h, w := hsv.H, hsv.W

	value := make([]float64, h*w)
	for i := range value {
		value[i] = hsv.Pix[i*3+2]
	}
	value = clahe(value, h, w)

	for i := 0; i < len(hsv.Pix); i += 3 {
		hsv.Pix[i+1] = clampUnit(hsv.Pix[i+1] * boostSaturation)
		hsv.Pix[i+2] = clampUnit(value[i/3] * boostSaturation)
	}
	return fromHSV(hsv)
}

// clahe equalizes a single channel with contrast-limited adaptive
// histogram equalization: per-tile clipped histograms are turned into CDF
// mappings and each pixel interpolates bilinearly between the four
// surrounding tile mappings.
func clahe(p []float64, h, w int) []float64 {
	gridY := min(claheGrid, h)
	gridX := min(claheGrid, w)
	tileH := (h + gridY - 1) / gridY
	tileW := (w + gridX - 1) / gridX

	// One CDF mapping per tile.
	maps := make([][]float64, gridY*gridX)
	hist := make([]float64, claheBins)
	for ty := 0; ty < gridY; ty++ {
		y0, y1 := ty*tileH, min((ty+1)*tileH, h)
		for tx := 0; tx < gridX; tx++ {
			x0, x1 := tx*tileW, min((tx+1)*tileW, w)
			for i := range hist {
				hist[i] = 0
			}
			count := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[binOf(p[y*w+x])]++
					count++
				}
			}
			maps[ty*gridX+tx] = equalizeHistogram(hist, count)
		}
	}

	out := make([]float64, h*w)
	for y := 0; y < h; y++ {
		// Tile-center coordinates for interpolation.
		fy := (float64(y)+0.5)/float64(tileH) - 0.5
		ty0 := clampInt(int(math.Floor(fy)), 0, gridY-1)
		ty1 := clampInt(ty0+1, 0, gridY-1)
		wy := clampUnit(fy - float64(ty0))
		for x := 0; x < w; x++ {
			fx := (float64(x)+0.5)/float64(tileW) - 0.5
			tx0 := clampInt(int(math.Floor(fx)), 0, gridX-1)
			tx1 := clampInt(tx0+1, 0, gridX-1)
			wx := clampUnit(fx - float64(tx0))

			b := binOf(p[y*w+x])
			v00 := maps[ty0*gridX+tx0][b]
			v01 := maps[ty0*gridX+tx1][b]
			v10 := maps[ty1*gridX+tx0][b]
			v11 := maps[ty1*gridX+tx1][b]
			top := v00*(1-wx) + v01*wx
			bot := v10*(1-wx) + v11*wx
			out[y*w+x] = top*(1-wy) + bot*wy
		}
	}
	return out
}

// equalizeHistogram clips the histogram, redistributes the excess evenly
// and returns the normalized CDF as a bin-to-value mapping.
func equalizeHistogram(hist []float64, count int) []float64 {
	mapping := make([]float64, claheBins)
	if count == 0 {
		for i := range mapping {
			mapping[i] = float64(i) / float64(claheBins-1)
		}
		return mapping
	}

	limit := math.Max(claheClipLimit*float64(count), 1)
	excess := 0.0
	for i, v := range hist {
		if v > limit {
			excess += v - limit
			hist[i] = limit
		}
	}
	share := excess / claheBins
	cum := 0.0
	total := float64(count)
	for i := range mapping {
		cum += hist[i] + share
		mapping[i] = clampUnit(cum / total)
	}
	return mapping
}

func binOf(v float64) int {
	return clampInt(int(clampUnit(v)*(claheBins-1)+0.5), 0, claheBins-1)
}

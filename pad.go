package pixelate

// pad replicates edge rows/columns so height and width become multiples
// of tile, using at most one row/column on each side. A leading pad is
// added whenever the dimension is not divisible, a trailing one only when
// the remainder is exactly 1. unpad reverses the crop exactly.
func pad(im *Image, tile int) *Image {
	top, bottom := padAmount(im.H, tile)
	left, right := padAmount(im.W, tile)
	if top == 0 && bottom == 0 && left == 0 && right == 0 {
		return im
	}
	out := NewImage(im.H+top+bottom, im.W+left+right, im.C)
	for y := 0; y < out.H; y++ {
		sy := clampInt(y-top, 0, im.H-1)
		for x := 0; x < out.W; x++ {
			sx := clampInt(x-left, 0, im.W-1)
			src := im.offset(sx, sy)
			dst := out.offset(x, y)
			copy(out.Pix[dst:dst+im.C], im.Pix[src:src+im.C])
		}
	}
	return out
}

// unpad removes the padding pad added for an image that originally
// measured h by w.
func unpad(im *Image, tile, h, w int) *Image {
	top, bottom := padAmount(h, tile)
	left, right := padAmount(w, tile)
	if top == 0 && bottom == 0 && left == 0 && right == 0 {
		return im
	}
	out := NewImage(im.H-top-bottom, im.W-left-right, im.C)
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			src := im.offset(x+left, y+top)
			dst := out.offset(x, y)
			copy(out.Pix[dst:dst+im.C], im.Pix[src:src+im.C])
		}
	}
	return out
}

func padAmount(dim, tile int) (lead, trail int) {
	if dim%tile > 0 {
		lead = 1
	}
	if dim%tile == 1 {
		trail = 1
	}
	return lead, trail
}

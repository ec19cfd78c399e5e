package pixelate

import (
	"math"
	"testing"
)

func TestSobelFlatPlane(t *testing.T) {
	img := solidImage(6, 6, 0.4, 0.4, 0.4)
	grad := sobelPlane(img, 0)
	// The opposing sums cancel only up to float association order, so the
	// magnitude carries a rounding residue on top of the epsilon floor.
	for i, g := range grad {
		if math.Abs(g-gradientEpsilon) > 1e-15 {
			t.Fatalf("flat plane gradient at %d: got %v want %v", i, g, gradientEpsilon)
		}
	}
}

func TestSobelDetectsVerticalEdge(t *testing.T) {
	img := NewImage(5, 6, 3)
	for y := 0; y < 5; y++ {
		for x := 3; x < 6; x++ {
			off := img.offset(x, y)
			img.Pix[off], img.Pix[off+1], img.Pix[off+2] = 1, 1, 1
		}
	}
	grad := sobelPlane(img, 0)
	edge := grad[2*6+3]   // on the step
	flat := grad[2*6+0]   // far from the step
	if edge <= flat {
		t.Fatalf("edge gradient %v not larger than flat gradient %v", edge, flat)
	}
}

func TestDownsampleDimensionsAndFlatValue(t *testing.T) {
	img := solidImage(9, 12, 0.3, 0.6, 0.9)
	out := downsample(img, 3)
	if out.H != 3 || out.W != 4 {
		t.Fatalf("expected 3x4, got %dx%d", out.H, out.W)
	}
	want := []float64{0.3, 0.6, 0.9}
	for i, v := range out.Pix {
		if math.Abs(v-want[i%3]) > 1e-12 {
			t.Fatalf("flat downsample drifted at %d: got %v want %v", i, v, want[i%3])
		}
	}
}

func TestDownsamplePadsNonDivisibleInput(t *testing.T) {
	out := downsample(gradientImage(10, 13, 3), 3)
	// 10 -> 12, 13 -> 15 after padding.
	if out.H != 4 || out.W != 5 {
		t.Fatalf("expected 4x5, got %dx%d", out.H, out.W)
	}
}

func TestDilateFillsTransparentNeighborhood(t *testing.T) {
	img := NewImage(5, 5, 4)
	// A single opaque red pixel in the center of a transparent black field.
	center := img.offset(2, 2)
	img.Pix[center] = 1
	img.Pix[center+3] = 1

	out := dilate(img, 0.6)

	// The opaque pixel is untouched.
	if out.Pix[center] != 1 || out.Pix[center+3] != 1 {
		t.Fatal("opaque pixel was modified")
	}
	// Its transparent neighbors pick up the dilated red.
	if got := out.Pix[out.offset(1, 2)]; got != 1 {
		t.Fatalf("neighbor not dilated: red = %v", got)
	}
	// Pixels out of reach of the 3x3 window stay black.
	if got := out.Pix[out.offset(0, 0)]; got != 0 {
		t.Fatalf("distant pixel dilated: red = %v", got)
	}
	// Alpha is never rewritten by dilation.
	if out.Pix[out.offset(1, 2)+3] != 0 {
		t.Fatal("dilate changed an alpha value")
	}
}

func TestResolveMaskBinarizes(t *testing.T) {
	got := resolveMask([]float64{0, 0.2, 0.59, 0.6, 0.61, 1}, 0.6)
	want := []float64{0, 0, 0, 1, 1, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("mask[%d]: got %v want %v", i, got[i], want[i])
		}
	}
}

func TestHSVRoundTrip(t *testing.T) {
	img := gradientImage(8, 8, 3)
	back := fromHSV(toHSV(img))
	for i := range img.Pix {
		if math.Abs(back.Pix[i]-img.Pix[i]) > 1e-9 {
			t.Fatalf("round trip drifted at %d: %v vs %v", i, back.Pix[i], img.Pix[i])
		}
	}
}

func TestMedianHSVPreservesFlatImage(t *testing.T) {
	img := solidImage(7, 7, 0.2, 0.5, 0.8)
	out := medianHSV(img)
	for i := range img.Pix {
		if math.Abs(out.Pix[i]-img.Pix[i]) > 1e-9 {
			t.Fatalf("flat image changed at %d: %v vs %v", i, out.Pix[i], img.Pix[i])
		}
	}
}

func TestMedianHSVRemovesSpeckle(t *testing.T) {
	img := solidImage(7, 7, 0.5, 0.5, 0.5)
	off := img.offset(3, 3)
	img.Pix[off], img.Pix[off+1], img.Pix[off+2] = 1, 1, 1

	out := medianHSV(img)
	for c := 0; c < 3; c++ {
		if math.Abs(out.Pix[off+c]-0.5) > 1e-9 {
			t.Fatalf("speckle survived median filter: channel %d = %v", c, out.Pix[off+c])
		}
	}
}

func TestBoostStaysInRange(t *testing.T) {
	out := boost(gradientImage(20, 20, 3))
	if out.H != 20 || out.W != 20 || out.C != 3 {
		t.Fatalf("boost changed geometry: %dx%dx%d", out.H, out.W, out.C)
	}
	for i, v := range out.Pix {
		if v < 0 || v > 1 {
			t.Fatalf("boosted value out of range at %d: %v", i, v)
		}
	}
}

func TestClaheConstantPlaneStaysConstant(t *testing.T) {
	p := make([]float64, 16*16)
	for i := range p {
		p[i] = 0.3
	}
	out := clahe(p, 16, 16)
	for i, v := range out {
		if math.Abs(v-out[0]) > 1e-12 {
			t.Fatalf("constant plane became uneven at %d: %v vs %v", i, v, out[0])
		}
	}
}

package pixelate

import (
	"math"
	"testing"
)

func TestParseDitherMode(t *testing.T) {
	cases := []struct {
		in   string
		want DitherMode
	}{
		{"", DitherNone},
		{"none", DitherNone},
		{"naive", DitherNaive},
		{"ordered", DitherOrdered},
		{"bayer", DitherOrdered},
		{"floyd", DitherFloydSteinberg},
		{"atkinson", DitherAtkinson},
	}
	for _, tc := range cases {
		got, err := ParseDitherMode(tc.in)
		if err != nil {
			t.Fatalf("ParseDitherMode(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDitherMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := ParseDitherMode("bogus"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestDitherModeString(t *testing.T) {
	if DitherFloydSteinberg.String() != "floyd" || DitherMode(99).String() != "DitherMode(99)" {
		t.Fatal("DitherMode.String mismatch")
	}
}

func TestReflectIndex(t *testing.T) {
	cases := []struct{ in, n, want int }{
		{0, 5, 0}, {4, 5, 4},
		{-1, 5, 0}, {-2, 5, 1},
		{5, 5, 4}, {6, 5, 3},
	}
	for _, tc := range cases {
		if got := reflectIndex(tc.in, tc.n); got != tc.want {
			t.Fatalf("reflectIndex(%d,%d) = %d, want %d", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestReflectIndexExclusive(t *testing.T) {
	cases := []struct{ in, n, want int }{
		{0, 5, 0}, {4, 5, 4},
		{-1, 5, 1}, {-2, 5, 2},
		{5, 5, 3}, {6, 5, 2},
	}
	for _, tc := range cases {
		if got := reflectIndexExclusive(tc.in, tc.n); got != tc.want {
			t.Fatalf("reflectIndexExclusive(%d,%d) = %d, want %d", tc.in, tc.n, got, tc.want)
		}
	}
}

func TestConvolveBayerConstantPlane(t *testing.T) {
	// The Bayer kernel sums to -0.5, so a constant plane convolves to a
	// constant -0.5 times the value, reflection included.
	p := make([]float64, 6*7)
	for i := range p {
		p[i] = 0.8
	}
	out := convolveBayer(p, 6, 7)
	for i, v := range out {
		if math.Abs(v-(-0.4)) > 1e-12 {
			t.Fatalf("constant convolution at %d: got %v want -0.4", i, v)
		}
	}
}

func TestArgmax(t *testing.T) {
	if argmax([]float64{0.1, 0.7, 0.2}) != 1 {
		t.Fatal("argmax picked the wrong index")
	}
	// Ties resolve to the first maximum.
	if argmax([]float64{0.5, 0.5}) != 0 {
		t.Fatal("argmax tie did not resolve to the first index")
	}
}

// flatTwoColorModel builds a model whose posterior is the same at every
// pixel: equal component means and zero precision leave only the mixture
// weights, so the runner-up probability is exactly p2.
func flatTwoColorModel(p2 float64) *Model {
	mix := &mixture{
		k:     2,
		means: [][3]float64{{0.5, 0.5, 0.5}, {0.5, 0.5, 0.5}},
		beta:  []float64{1, 1},
		logPi: []float64{0, math.Log(p2 / (1 - p2))},
	}
	return &Model{
		opt:      DefaultOptions(),
		mix:      mix,
		channels: 3,
		palette:  [][3]uint8{{0, 0, 0}, {255, 255, 255}},
		palFloat: [][3]float64{{0, 0, 0}, {1, 1, 1}},
	}
}

func TestDitherNoneIsArgmax(t *testing.T) {
	m := flatTwoColorModel(0.09)
	idx := m.ditherNone(solidImage(3, 5, 0.5, 0.5, 0.5))
	for i, v := range idx {
		if v != 0 {
			t.Fatalf("pixel %d labeled %d, want dominant color 0", i, v)
		}
	}
}

func TestDitherNaiveCheckerSubstitution(t *testing.T) {
	// With two colors the probabilities are square-rooted, so a runner-up
	// of 0.09 becomes a margin of 0.3: above the boosted threshold
	// (1/(2*1.33+1)) but below the base threshold (1/3). Only even rows
	// substitute, at every other column.
	m := flatTwoColorModel(0.09)
	idx := m.ditherNaive(solidImage(4, 4, 0.5, 0.5, 0.5))

	want := make([]int, 16)
	for _, i := range []int{0, 2, 8, 10} {
		want[i] = 1
	}
	for i := range want {
		if idx[i] != want[i] {
			t.Fatalf("naive pattern mismatch at %d: got %v want %v", i, idx, want)
		}
	}
}

func TestDitherNaiveStrongWinnerUntouched(t *testing.T) {
	// A 0.5% runner-up stays below both thresholds even after the square
	// root, so nothing is substituted.
	m := flatTwoColorModel(0.005)
	idx := m.ditherNaive(solidImage(4, 4, 0.5, 0.5, 0.5))
	for i, v := range idx {
		if v != 0 {
			t.Fatalf("pixel %d substituted despite a strong winner", i)
		}
	}
}

func TestDitherOrderedFlatInputPicksDominant(t *testing.T) {
	// On a flat posterior field every convolved plane is a constant
	// -0.5 times its probability, so minimum selection lands on the
	// dominant color everywhere.
	m := flatTwoColorModel(0.09)
	idx := m.ditherOrdered(solidImage(6, 6, 0.5, 0.5, 0.5))
	for i, v := range idx {
		if v != 0 {
			t.Fatalf("pixel %d labeled %d on a flat field", i, v)
		}
	}
}

// hardTwoColorModel classifies pixels near black or near white almost
// deterministically: tight precision pushes the runner-up posterior to
// the underflow floor.
func hardTwoColorModel() *Model {
	mix := &mixture{
		k:     2,
		means: [][3]float64{{0, 0, 0}, {1, 1, 1}},
		beta:  []float64{1, 1},
		logPi: []float64{0, 0},
		prec: [3][3]float64{
			{200, 0, 0},
			{0, 200, 0},
			{0, 0, 200},
		},
	}
	return &Model{
		opt:      DefaultOptions(),
		mix:      mix,
		channels: 3,
		palette:  [][3]uint8{{0, 0, 0}, {255, 255, 255}},
		palFloat: [][3]float64{{0, 0, 0}, {1, 1, 1}},
	}
}

func TestDitherOrderedInvertsAgainstArgmax(t *testing.T) {
	// Minimum selection turns the Bayer response inside out. For an
	// isolated bright pixel the bright plane convolves to the kernel
	// entry at each offset: the center entry (-0.25) only ties the dark
	// plane's value there, so the bright pixel itself goes dark, while
	// the four diagonal neighbors (entries below -0.25) light up
	// instead. Plain argmax keeps the single bright pixel.
	m := hardTwoColorModel()
	img := solidImage(8, 8, 0, 0, 0)
	off := img.offset(4, 4)
	img.Pix[off], img.Pix[off+1], img.Pix[off+2] = 1, 1, 1

	none := m.ditherNone(img)
	for i, v := range none {
		want := 0
		if i == 4*8+4 {
			want = 1
		}
		if v != want {
			t.Fatalf("argmax selection at %d: got %d want %d", i, v, want)
		}
	}

	ordered := m.ditherOrdered(img)
	bright := map[int]bool{
		3*8 + 3: true,
		3*8 + 5: true,
		5*8 + 3: true,
		5*8 + 5: true,
	}
	for i, v := range ordered {
		want := 0
		if bright[i] {
			want = 1
		}
		if v != want {
			t.Fatalf("minimum selection at (%d,%d): got %d want %d", i%8, i/8, v, want)
		}
	}
	if ordered[4*8+4] == none[4*8+4] {
		t.Fatal("ordered selection did not invert the impulse pixel")
	}
}

func TestDitherFloydSpreadsWeakRunnerUp(t *testing.T) {
	// Error diffusion accumulates the runner-up mass until it wins some
	// pixels, so a flat field with a 9% runner-up must come out mixed.
	m := flatTwoColorModel(0.09)
	idx := m.ditherFloyd(solidImage(8, 8, 0.5, 0.5, 0.5))
	if len(idx) != 64 {
		t.Fatalf("expected 64 indices, got %d", len(idx))
	}
	seen := [2]bool{}
	for _, v := range idx {
		seen[v] = true
	}
	if !seen[0] || !seen[1] {
		t.Fatalf("floyd did not mix both colors: %v", idx)
	}
}

func TestDitherAtkinsonFlatResidual(t *testing.T) {
	// Equal means make the classification independent of the diffused
	// residual, so the output is the dominant color at every pixel and
	// the crop back from the padded buffer must line up.
	m := flatTwoColorModel(0.09)
	idx := m.ditherAtkinson(solidImage(6, 6, 0.8, 0.8, 0.8))
	if len(idx) != 36 {
		t.Fatalf("expected 36 indices, got %d", len(idx))
	}
	for i, v := range idx {
		if v != 0 {
			t.Fatalf("pixel %d labeled %d, want 0", i, v)
		}
	}
}

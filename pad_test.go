package pixelate

import "testing"

func TestPadUnpadRoundTrip(t *testing.T) {
	cases := []struct {
		h, w, tile int
	}{
		{7, 7, 3},
		{8, 8, 3},
		{9, 9, 3},
		{10, 13, 3},
		{1, 1, 3},
		{5, 5, 2},
		{6, 9, 4},
		{16, 17, 5},
	}
	for _, tc := range cases {
		img := gradientImage(tc.h, tc.w, 3)
		got := unpad(pad(img, tc.tile), tc.tile, tc.h, tc.w)
		if got.H != tc.h || got.W != tc.w {
			t.Fatalf("%dx%d tile %d: got %dx%d after round trip", tc.h, tc.w, tc.tile, got.H, got.W)
		}
		for i := range img.Pix {
			if got.Pix[i] != img.Pix[i] {
				t.Fatalf("%dx%d tile %d: sample %d changed: %v vs %v",
					tc.h, tc.w, tc.tile, i, got.Pix[i], img.Pix[i])
			}
		}
	}
}

func TestPadMakesTileThreeDivisible(t *testing.T) {
	for h := 1; h <= 12; h++ {
		for w := 1; w <= 12; w++ {
			p := pad(gradientImage(h, w, 3), 3)
			if p.H%3 != 0 || p.W%3 != 0 {
				t.Fatalf("%dx%d padded to %dx%d, not divisible by 3", h, w, p.H, p.W)
			}
		}
	}
}

func TestPadReplicatesEdges(t *testing.T) {
	img := gradientImage(4, 4, 3)
	p := pad(img, 3) // 4%3 == 1: one row/col on each side

	if p.H != 6 || p.W != 6 {
		t.Fatalf("expected 6x6, got %dx%d", p.H, p.W)
	}
	// Top-left padding replicates the original corner, it never invents
	// new colors.
	for c := 0; c < 3; c++ {
		if p.Pix[p.offset(0, 0)+c] != img.Pix[img.offset(0, 0)+c] {
			t.Fatalf("leading corner not edge-replicated")
		}
		if p.Pix[p.offset(5, 5)+c] != img.Pix[img.offset(3, 3)+c] {
			t.Fatalf("trailing corner not edge-replicated")
		}
	}
}

package viewport

import (
	"math"
	"math/rand"
	"testing"
)

func TestFit(t *testing.T) {
	cases := []struct {
		name                       string
		viewW, viewH               float64
		wantX, wantY, wantW, wantH float64
	}{
		{"exact", 800, 600, 0, 0, 800, 600},
		{"pillarbox", 1920, 1080, 240, 0, 1440, 1080},
		{"letterbox", 800, 1000, 0, 200, 800, 600},
		{"half", 400, 300, 0, 0, 400, 300},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lb := Fit(tc.viewW, tc.viewH, 800, 600)
			if lb.RenderX != tc.wantX || lb.RenderY != tc.wantY || lb.RenderWidth != tc.wantW || lb.RenderHeight != tc.wantH {
				t.Fatalf("got %+v", lb)
			}
		})
	}
}

func TestRoundTripInsideRenderRect(t *testing.T) {
	views := [][2]float64{{800, 600}, {1920, 1080}, {1023, 767}, {333, 999}}
	rng := rand.New(rand.NewSource(1))
	for _, v := range views {
		lb := Fit(v[0], v[1], 800, 600)
		for i := 0; i < 500; i++ {
			cx := lb.RenderX + rng.Float64()*lb.RenderWidth
			cy := lb.RenderY + rng.Float64()*lb.RenderHeight
			if !lb.IsPointInStage(cx, cy) {
				t.Fatalf("view %v: (%.2f,%.2f) should be inside", v, cx, cy)
			}
			sx, sy := lb.ToStage(cx, cy)
			bx, by := lb.ToClient(sx, sy)
			if math.Abs(bx-cx) > 1 || math.Abs(by-cy) > 1 {
				t.Fatalf("view %v: round trip (%.3f,%.3f) -> (%.3f,%.3f)", v, cx, cy, bx, by)
			}
		}
	}
}

func TestOutsidePointsStillTransform(t *testing.T) {
	lb := Fit(1920, 1080, 800, 600)

	if lb.IsPointInStage(100, 500) {
		t.Fatal("point in left margin reported inside stage")
	}
	x, y := lb.ToStage(100, 540)
	if x >= 0 {
		t.Fatalf("margin point should map left of the stage, got x=%.2f", x)
	}
	if math.Abs(y-300) > 1e-9 {
		t.Fatalf("y = %.4f, want 300", y)
	}

	sx, sy := lb.ToClient(-100, 700)
	if lb.IsPointInStage(sx, sy) {
		t.Fatal("stage point outside bounds should not be inside")
	}
}

func TestZeroViewportIsIdentity(t *testing.T) {
	lb := Fit(0, 0, 800, 600)
	if x, y := lb.ToStage(12, 34); x != 12 || y != 34 {
		t.Fatalf("got %v,%v", x, y)
	}
	if lb.IsPointInStage(12, 34) {
		t.Fatal("zero viewport contains nothing")
	}
}

package geometry

import (
	"encoding/json"
	"math"
	"testing"
)

func TestPage_PixelSize(t *testing.T) {
	tests := []struct {
		name         string
		page         Page
		pxPerMM      float64
		wantW, wantH int
	}{
		{"letter at 10", Page{WidthMM: 215.9, HeightMM: 279.4}, 10, 2159, 2794},
		{"rounding up", Page{WidthMM: 100.06, HeightMM: 120.04}, 10, 1001, 1200},
		{"fractional density", Page{WidthMM: 100, HeightMM: 120}, 2.5, 250, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := tt.page.PixelSize(tt.pxPerMM)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("PixelSize: got %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCorner_JSON(t *testing.T) {
	var m MarkerPlacement
	data := `{"marker_id":3,"corner":"bottom_right","center_x_mm":90,"center_y_mm":110}`
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if m.Corner != BottomRight || m.MarkerID != 3 {
		t.Errorf("got corner=%v id=%d", m.Corner, m.MarkerID)
	}

	if err := json.Unmarshal([]byte(`{"corner":"middle"}`), &m); err == nil {
		t.Error("expected error for unknown corner")
	}
}

func TestBubblePlacement_PixelCircle(t *testing.T) {
	b := BubblePlacement{CenterXMM: 12.34, CenterYMM: 56.78, RadiusMM: 2.5}
	c := b.PixelCircle(10, 0.58)
	if c.CX != 123 || c.CY != 568 {
		t.Errorf("center: got (%d,%d), want (123,568)", c.CX, c.CY)
	}
	if c.Radius != 25 {
		t.Errorf("radius: got %d, want 25", c.Radius)
	}
	if c.Inner != 15 { // round(25*0.58) = round(14.5) = 15
		t.Errorf("inner: got %d, want 15", c.Inner)
	}

	tiny := BubblePlacement{RadiusMM: 0.01}.PixelCircle(10, 0.2)
	if tiny.Radius != 1 || tiny.Inner != 1 {
		t.Errorf("tiny bubble: got radius=%d inner=%d, want 1/1", tiny.Radius, tiny.Inner)
	}
}

func TestQuad_AreaAndSides(t *testing.T) {
	q := Quad{{0, 0}, {40, 0}, {40, 30}, {0, 30}}
	if got := q.Area(); got != 1200 {
		t.Errorf("Area: got %v, want 1200", got)
	}
	ratio, minSide := q.SideRatio()
	if minSide != 30 {
		t.Errorf("minSide: got %v, want 30", minSide)
	}
	if math.Abs(ratio-40.0/30.0) > 1e-12 {
		t.Errorf("ratio: got %v", ratio)
	}

	degenerate := Quad{{0, 0}, {0, 0}, {10, 10}, {0, 10}}
	if ratio, _ := degenerate.SideRatio(); !math.IsInf(ratio, 1) {
		t.Errorf("degenerate ratio: got %v, want +Inf", ratio)
	}
}

func TestConvexHull(t *testing.T) {
	pts := []Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {5, 5}, {3, 7}, {5, 0}}
	hull := ConvexHull(pts)
	if len(hull) != 4 {
		t.Fatalf("hull size: got %d (%v), want 4", len(hull), hull)
	}
	if got := PolygonArea(hull); got != 100 {
		t.Errorf("hull area: got %v, want 100", got)
	}
}

func TestOrderClockwise(t *testing.T) {
	shuffled := Quad{{10, 10}, {0, 0}, {0, 10}, {10, 0}}
	got := OrderClockwise(shuffled)
	want := Quad{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	if got != want {
		t.Errorf("OrderClockwise: got %v, want %v", got, want)
	}
}

func TestPerspectiveTransform_MapsCorners(t *testing.T) {
	src := Quad{{112, 95}, {851, 130}, {880, 1040}, {90, 1010}}
	dst := Quad{{160, 160}, {840, 160}, {840, 1040}, {160, 1040}}

	h, err := PerspectiveTransform(src, dst)
	if err != nil {
		t.Fatalf("PerspectiveTransform failed: %v", err)
	}
	for i := range src {
		got, ok := h.Apply(src[i])
		if !ok {
			t.Fatalf("point %d mapped to infinity", i)
		}
		if got.Dist(dst[i]) > 1e-6 {
			t.Errorf("corner %d: got %v, want %v", i, got, dst[i])
		}
	}
	if h[8] != 1 {
		t.Errorf("matrix not normalized: h22=%v", h[8])
	}

	inv, err := h.Inverse()
	if err != nil {
		t.Fatalf("Inverse failed: %v", err)
	}
	back, _ := inv.Apply(dst[2])
	if back.Dist(src[2]) > 1e-6 {
		t.Errorf("inverse: got %v, want %v", back, src[2])
	}
}

func TestPerspectiveTransform_Identity(t *testing.T) {
	q := Quad{{0, 0}, {100, 0}, {100, 50}, {0, 50}}
	h, err := PerspectiveTransform(q, q)
	if err != nil {
		t.Fatalf("PerspectiveTransform failed: %v", err)
	}
	id := Identity()
	for i := range h {
		if math.Abs(h[i]-id[i]) > 1e-9 {
			t.Fatalf("expected identity, got %v", h)
		}
	}
}

func TestPerspectiveTransform_Degenerate(t *testing.T) {
	collapsed := Quad{{0, 0}, {10, 10}, {20, 20}, {30, 30}}
	dst := Quad{{0, 0}, {100, 0}, {100, 100}, {0, 100}}
	if _, err := PerspectiveTransform(collapsed, dst); err == nil {
		t.Error("expected error for collinear source points")
	}
}

package classify

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/sheettest"
)

// inkMap returns a w x h binary map with ink wherever f is true.
func inkMap(w, h int, f func(x, y int) bool) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if f(x, y) {
				g.Pix[y*g.Stride+x] = imaging.Foreground
			}
		}
	}
	return g
}

func testConfig(ppm float64) omr.ReadConfig {
	cfg := omr.DefaultReadConfig()
	cfg.PxPerMM = ppm
	return cfg
}

func statesByID(results []omr.BubbleReadResult) map[string]omr.State {
	out := make(map[string]omr.State, len(results))
	for _, r := range results {
		out[r.BubbleID] = r.State
	}
	return out
}

func TestFillRatio(t *testing.T) {
	all := inkMap(50, 50, func(x, y int) bool { return true })
	none := inkMap(50, 50, func(x, y int) bool { return false })
	left := inkMap(50, 50, func(x, y int) bool { return x < 25 })

	tests := []struct {
		name      string
		bin       *image.Gray
		cx, cy, r int
		want      float64
		tolerance float64
		wantErr   bool
	}{
		{"full", all, 25, 25, 8, 1, 0, false},
		{"empty", none, 25, 25, 8, 0, 0, false},
		{"left half", left, 25, 25, 10, 0.5, 0.06, false},
		{"clipped at corner", all, 0, 0, 6, 1, 0, false},
		{"single pixel", all, 10, 10, 0, 1, 0, false},
		{"outside right", all, 80, 25, 5, 0, 0, true},
		{"outside above", all, 25, -10, 5, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FillRatio(tt.bin, tt.cx, tt.cy, tt.r)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got ratio %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > tt.tolerance {
				t.Errorf("got %.3f, want %.3f", got, tt.want)
			}
		})
	}
}

func TestFillRatio_OffsetOrigin(t *testing.T) {
	// Ink only in the right half of a 60x60 map.
	parent := inkMap(60, 60, func(x, y int) bool { return x >= 30 })
	sub := parent.SubImage(image.Rect(20, 20, 60, 60)).(*image.Gray)

	want, err := FillRatio(parent, 40, 40, 8)
	if err != nil {
		t.Fatal(err)
	}
	if want != 1 {
		t.Fatalf("parent ratio = %.3f, want 1", want)
	}
	got, err := FillRatio(sub, 40, 40, 8)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("sub-image ratio = %.3f, want %.3f", got, want)
	}

	// The circle straddles the ink edge at x=30; clipping to the
	// sub-image's left edge at x=20 keeps the full mask.
	half, err := FillRatio(sub, 30, 40, 6)
	if err != nil {
		t.Fatal(err)
	}
	if half < 0.4 || half > 0.7 {
		t.Errorf("edge ratio = %.3f, want about half", half)
	}

	if _, err := FillRatio(sub, 5, 5, 3); err == nil {
		t.Error("circle left of the sub-image origin: want error")
	}
}

func TestClassifyBinary_ThresholdBoundaries(t *testing.T) {
	// Ink in the left 60% of the frame gives a partial fill at (20, 20).
	bin := inkMap(40, 40, func(x, y int) bool { return x < 22 })
	bubble := []geometry.BubblePlacement{{BubbleID: "b", GroupID: "g", CenterXMM: 20, CenterYMM: 20, RadiusMM: 10}}
	cfg := testConfig(1)
	cfg.InnerRadiusFactor = 1

	ratio, err := FillRatio(bin, 20, 20, 10)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name             string
		marked, unmarked float64
		want             omr.State
	}{
		{"equal to marked", ratio, 0.1, omr.Marked},
		{"equal to unmarked", 0.95, ratio, omr.Unmarked},
		{"strictly between", ratio + 0.01, ratio - 0.01, omr.Ambiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := cfg
			c.MarkedThreshold, c.UnmarkedThreshold = tt.marked, tt.unmarked
			res, err := ClassifyBinary(bin, bubble, c)
			if err != nil {
				t.Fatalf("ClassifyBinary: %v", err)
			}
			if res[0].FillRatio != ratio {
				t.Errorf("fill ratio: got %v, want %v", res[0].FillRatio, ratio)
			}
			if res[0].State != tt.want {
				t.Errorf("state: got %v, want %v", res[0].State, tt.want)
			}
		})
	}
}

func TestClassifyBinary_Ordering(t *testing.T) {
	bin := inkMap(200, 200, func(x, y int) bool { return false })
	mk := func(id, group string, row, col int) geometry.BubblePlacement {
		return geometry.BubblePlacement{
			BubbleID: id, GroupID: group, Row: row, Col: col,
			CenterXMM: float64(20 + 30*col), CenterYMM: float64(20 + 30*row), RadiusMM: 5,
		}
	}
	bubbles := []geometry.BubblePlacement{
		mk("b_1_0", "b", 1, 0),
		mk("a_1_1", "a", 1, 1),
		mk("b_0_2", "b", 0, 2),
		mk("a_0_1", "a", 0, 1),
		mk("a_1_0", "a", 1, 0),
		mk("dup_second", "a", 0, 1),
	}
	res, err := ClassifyBinary(bin, bubbles, testConfig(1))
	if err != nil {
		t.Fatalf("ClassifyBinary: %v", err)
	}
	want := []string{"a_0_1", "dup_second", "a_1_0", "a_1_1", "b_0_2", "b_1_0"}
	for i, r := range res {
		if r.BubbleID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, r.BubbleID, want[i])
		}
	}
}

func TestClassify_Preconditions(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 50, 50))
	bubbles := []geometry.BubblePlacement{{BubbleID: "b", CenterXMM: 2, CenterYMM: 2, RadiusMM: 1}}

	tests := []struct {
		name    string
		img     image.Image
		bubbles []geometry.BubblePlacement
		mutate  func(*omr.ReadConfig)
	}{
		{"zero density", img, bubbles, func(c *omr.ReadConfig) { c.PxPerMM = 0 }},
		{"inverted thresholds", img, bubbles, func(c *omr.ReadConfig) { c.MarkedThreshold, c.UnmarkedThreshold = 0.2, 0.4 }},
		{"marked above one", img, bubbles, func(c *omr.ReadConfig) { c.MarkedThreshold = 1.2 }},
		{"negative unmarked", img, bubbles, func(c *omr.ReadConfig) { c.UnmarkedThreshold = -0.1 }},
		{"inner factor too small", img, bubbles, func(c *omr.ReadConfig) { c.InnerRadiusFactor = 0.1 }},
		{"inner factor too large", img, bubbles, func(c *omr.ReadConfig) { c.InnerRadiusFactor = 1.5 }},
		{"no bubbles", img, nil, func(*omr.ReadConfig) {}},
		{"nil image", nil, bubbles, func(*omr.ReadConfig) {}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(10)
			tt.mutate(&cfg)
			_, err := Classify(tt.img, tt.bubbles, cfg)
			if !errors.Is(err, omr.ErrPrecondition) {
				t.Errorf("got %v, want precondition error", err)
			}
		})
	}
}

func TestClassify_BubbleOutsideImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 100, 100))
	bubbles := []geometry.BubblePlacement{
		{BubbleID: "inside", CenterXMM: 5, CenterYMM: 5, RadiusMM: 1},
		{BubbleID: "outside", CenterXMM: 30, CenterYMM: 5, RadiusMM: 1},
	}
	_, err := Classify(img, bubbles, testConfig(10))
	if !errors.Is(err, omr.ErrBubbleRead) {
		t.Errorf("got %v, want bubble read error", err)
	}
}

func TestClassify_StandardMode(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	sheet := sheettest.Sheet(t, tpl, 10, "q1_b", "q2_a")

	res, err := Classify(sheet, tpl.Bubbles, testConfig(10))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := map[string]omr.State{"q1_a": omr.Unmarked, "q1_b": omr.Marked, "q2_a": omr.Marked, "q2_b": omr.Unmarked}
	got := statesByID(res)
	for id, s := range want {
		if got[id] != s {
			t.Errorf("%s: got %v, want %v", id, got[id], s)
		}
	}
	for _, r := range res {
		if r.State == omr.Marked && r.FillRatio < 0.95 {
			t.Errorf("%s: solid mark read as %.2f", r.BubbleID, r.FillRatio)
		}
		if r.State == omr.Unmarked && r.FillRatio > 0.05 {
			t.Errorf("%s: blank bubble read as %.2f", r.BubbleID, r.FillRatio)
		}
	}
}

func TestClassify_RobustModeUnderShadow(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	sheet := sheettest.Sheet(t, tpl, 5, "q1_b", "q2_a")

	// Darken the page progressively toward the right edge.
	w := sheet.Rect.Dx()
	for y := 0; y < sheet.Rect.Dy(); y++ {
		for x := 0; x < w; x++ {
			f := 1 - 0.5*float64(x)/float64(w)
			c := sheet.RGBAAt(x, y)
			sheet.SetRGBA(x, y, color.RGBA{
				R: uint8(float64(c.R) * f), G: uint8(float64(c.G) * f), B: uint8(float64(c.B) * f), A: 255,
			})
		}
	}

	cfg := testConfig(5)
	cfg.RobustMode = true
	res, err := Classify(sheet, tpl.Bubbles, cfg)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	want := map[string]omr.State{"q1_a": omr.Unmarked, "q1_b": omr.Marked, "q2_a": omr.Marked, "q2_b": omr.Unmarked}
	got := statesByID(res)
	for id, s := range want {
		if got[id] != s {
			t.Errorf("%s: got %v, want %v", id, got[id], s)
		}
	}
}

func TestBuildBinaryMap_Bounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 70, 50))
	for _, robust := range []bool{false, true} {
		cfg := testConfig(10)
		cfg.RobustMode = robust
		bin := BuildBinaryMap(img, cfg)
		if bin.Rect != image.Rect(0, 0, 60, 40) {
			t.Errorf("robust=%v: bounds %v, want origin-anchored 60x40", robust, bin.Rect)
		}
	}
}

// Package sheettest builds synthetic templates and sheet photos for tests.
package sheettest

import (
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"math"
	"testing"

	"github.com/ironsheep/omr-reader/internal/detection"
	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/template"
)

// PxPerMM is the density Sheet renders at unless told otherwise.
const PxPerMM = 10.0

// Document returns a valid metadata document for a 100 x 120 mm page: four
// 12 mm corner markers, two questions with options A/B, a 3x2
// single_per_column "student_id" block and a main block box.
func Document() map[string]any {
	bubble := func(id string, row, col int, label string, x, y float64) map[string]any {
		return map[string]any{
			"bubble_id": id, "group_id": "g1", "row": row, "col": col, "label": label,
			"center_x_mm": x, "center_y_mm": y, "radius_mm": 2.5,
		}
	}
	marker := func(id int, corner string, x, y float64) map[string]any {
		return map[string]any{"marker_id": id, "corner": corner, "center_x_mm": x, "center_y_mm": y, "size_mm": 12.0}
	}
	return map[string]any{
		"template_id":          "synthetic",
		"version":              "1",
		"marker_dictionary_id": "DICT_4X4_50",
		"page":                 map[string]any{"width_mm": 100.0, "height_mm": 120.0},
		"markers": []any{
			marker(0, "top_left", 16, 16),
			marker(1, "top_right", 84, 16),
			marker(2, "bottom_right", 84, 104),
			marker(3, "bottom_left", 16, 104),
		},
		"bubbles": []any{
			bubble("q1_a", 0, 0, "A", 40, 50),
			bubble("q1_b", 0, 1, "B", 48, 50),
			bubble("q2_a", 1, 0, "A", 40, 58),
			bubble("q2_b", 1, 1, "B", 48, 58),
		},
		"question_items": []any{
			map[string]any{"question_number": 1, "group_id": "g1", "row": 0, "options": []any{
				map[string]any{"bubble_id": "q1_a", "label": "A"},
				map[string]any{"bubble_id": "q1_b", "label": "B"},
			}},
			map[string]any{"question_number": 2, "group_id": "g1", "row": 1, "options": []any{
				map[string]any{"bubble_id": "q2_a", "label": "A"},
				map[string]any{"bubble_id": "q2_b", "label": "B"},
			}},
		},
		"auxiliary_blocks": []any{
			map[string]any{
				"block_id": "student_id", "title": "Student ID", "block_type": "omr",
				"x_mm": 30.0, "y_mm": 70.0, "width_mm": 30.0, "height_mm": 30.0,
				"omr_config": map[string]any{
					"rows": 3, "cols": 2, "bubble_diameter_mm": 5.0,
					"spacing_x_mm": 8.0, "spacing_y_mm": 8.0,
					"selection_mode": "single_per_column",
				},
			},
		},
		"main_block_bbox": map[string]any{"x_mm": 30.0, "y_mm": 40.0, "width_mm": 40.0, "height_mm": 25.0},
	}
}

// Encode marshals a document.
func Encode(tb testing.TB, doc map[string]any) []byte {
	tb.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		tb.Fatalf("marshal document: %v", err)
	}
	return data
}

// Template parses a document, failing the test on error.
func Template(tb testing.TB, doc map[string]any) *template.Template {
	tb.Helper()
	tpl, err := template.Parse(Encode(tb, doc))
	if err != nil {
		tb.Fatalf("parse document: %v", err)
	}
	return tpl
}

// Sheet renders the template's page at pxPerMM: corner markers, an outline
// ring for every question and OMR-block bubble, and a solid disk for every
// bubble id listed in marked.
func Sheet(tb testing.TB, tpl *template.Template, pxPerMM float64, marked ...string) *image.RGBA {
	tb.Helper()
	w, h := tpl.Page.PixelSize(pxPerMM)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Rect, image.NewUniform(color.White), image.Point{}, draw.Src)

	for _, m := range tpl.Markers {
		size := m.SizeMM
		if size <= 0 {
			size = 12
		}
		side := int(math.Round(size * pxPerMM))
		pattern, err := detection.Render(tpl.DictionaryID, m.MarkerID, side)
		if err != nil {
			tb.Fatalf("render marker %d: %v", m.MarkerID, err)
		}
		c := m.Center(pxPerMM)
		x0 := int(math.Round(c.X - float64(side)/2))
		y0 := int(math.Round(c.Y - float64(side)/2))
		draw.Draw(img, image.Rect(x0, y0, x0+side, y0+side), pattern, image.Point{}, draw.Src)
	}

	fill := make(map[string]bool, len(marked))
	for _, id := range marked {
		fill[id] = true
	}

	bubbles := append([]geometry.BubblePlacement(nil), tpl.Bubbles...)
	for _, b := range tpl.OMRBlocks() {
		synth, err := template.SynthesizeBubbles(b)
		if err != nil {
			tb.Fatalf("synthesize %s: %v", b.BlockID, err)
		}
		bubbles = append(bubbles, synth...)
	}
	for _, b := range bubbles {
		pc := b.PixelCircle(pxPerMM, 1)
		disk(img, pc.CX, pc.CY, float64(pc.Radius), float64(pc.Radius)-2, color.RGBA{90, 90, 90, 255})
		if fill[b.BubbleID] {
			disk(img, pc.CX, pc.CY, float64(pc.Radius)-3, -1, color.RGBA{20, 20, 30, 255})
		}
	}
	return img
}

// Photo places the sheet into a width x height frame so its corners land
// on corners (top-left, top-right, bottom-right, bottom-left). The
// surrounding area is a light gray tabletop.
func Photo(tb testing.TB, sheet image.Image, corners geometry.Quad, width, height int) *image.NRGBA {
	tb.Helper()
	b := sheet.Bounds()
	src := geometry.Quad{
		{X: 0, Y: 0},
		{X: float64(b.Dx()), Y: 0},
		{X: float64(b.Dx()), Y: float64(b.Dy())},
		{X: 0, Y: float64(b.Dy())},
	}
	h, err := geometry.PerspectiveTransform(src, corners)
	if err != nil {
		tb.Fatalf("photo transform: %v", err)
	}
	out, err := imaging.WarpPerspective(sheet, h, width, height)
	if err != nil {
		tb.Fatalf("photo warp: %v", err)
	}
	inv, err := h.Inverse()
	if err != nil {
		tb.Fatalf("photo inverse: %v", err)
	}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			p, ok := inv.Apply(geometry.Point{X: float64(x), Y: float64(y)})
			if ok && p.X >= 0 && p.Y >= 0 && p.X < float64(b.Dx()) && p.Y < float64(b.Dy()) {
				continue
			}
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = 200, 200, 200, 255
		}
	}
	return out
}

// disk paints the annulus inner < d <= outer around (cx, cy). An inner
// radius below zero paints a solid disk.
func disk(img *image.RGBA, cx, cy int, outer, inner float64, c color.RGBA) {
	r := int(math.Ceil(outer))
	for y := cy - r; y <= cy+r; y++ {
		for x := cx - r; x <= cx+r; x++ {
			d := math.Hypot(float64(x-cx), float64(y-cy))
			if d <= outer && d > inner && (image.Point{X: x, Y: y}).In(img.Rect) {
				img.SetRGBA(x, y, c)
			}
		}
	}
}

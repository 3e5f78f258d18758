package template

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/omr"
)

// sampleDocument returns a small valid metadata document: two questions with
// two options each and one OMR auxiliary block.
func sampleDocument() map[string]any {
	bubble := func(id, group string, row, col int, label string, x, y float64) map[string]any {
		return map[string]any{
			"bubble_id": id, "group_id": group, "row": row, "col": col, "label": label,
			"center_x_mm": x, "center_y_mm": y, "radius_mm": 2.5,
		}
	}
	return map[string]any{
		"template_id":          "exam_a",
		"version":              "1",
		"marker_dictionary_id": "DICT_4X4_50",
		"page":                 map[string]any{"width_mm": 100.0, "height_mm": 120.0},
		"markers": []any{
			map[string]any{"marker_id": 0, "corner": "top_left", "center_x_mm": 16.0, "center_y_mm": 16.0},
			map[string]any{"marker_id": 1, "corner": "top_right", "center_x_mm": 84.0, "center_y_mm": 16.0},
			map[string]any{"marker_id": 2, "corner": "bottom_right", "center_x_mm": 84.0, "center_y_mm": 104.0},
			map[string]any{"marker_id": 3, "corner": "bottom_left", "center_x_mm": 16.0, "center_y_mm": 104.0},
		},
		"bubbles": []any{
			bubble("g1_r0_c0", "g1", 0, 0, "A", 40, 50),
			bubble("g1_r0_c1", "g1", 0, 1, "B", 48, 50),
			bubble("g1_r1_c0", "g1", 1, 0, "A", 40, 58),
			bubble("g1_r1_c1", "g1", 1, 1, "B", 48, 58),
		},
		"question_items": []any{
			map[string]any{"question_number": 1, "group_id": "g1", "row": 0, "options": []any{
				map[string]any{"bubble_id": "g1_r0_c0", "label": "A"},
				map[string]any{"bubble_id": "g1_r0_c1"},
			}},
			map[string]any{"question_number": 2, "group_id": "g1", "row": 1, "options": []any{
				map[string]any{"bubble_id": "g1_r1_c0", "label": "A"},
				map[string]any{"bubble_id": "g1_r1_c1", "label": "B"},
			}},
		},
		"auxiliary_blocks": []any{
			map[string]any{
				"block_id": "student_id", "title": "ID", "block_type": "omr",
				"x_mm": 30.0, "y_mm": 70.0, "width_mm": 30.0, "height_mm": 30.0,
				"omr_config": map[string]any{
					"rows": 3, "cols": 2, "bubble_diameter_mm": 5.0,
					"spacing_x_mm": 8.0, "spacing_y_mm": 8.0,
				},
			},
		},
		"main_block_bbox": map[string]any{"x_mm": 30.0, "y_mm": 40.0, "width_mm": 40.0, "height_mm": 25.0},
	}
}

func encode(t *testing.T, doc map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	return data
}

func TestParse_Valid(t *testing.T) {
	tpl, err := Parse(encode(t, sampleDocument()))
	require.NoError(t, err)

	assert.Equal(t, "exam_a", tpl.TemplateID)
	assert.Equal(t, "DICT_4X4_50", tpl.DictionaryID)
	assert.Equal(t, geometry.Page{WidthMM: 100, HeightMM: 120}, tpl.Page)
	assert.Equal(t, []int{0, 1, 2, 3}, tpl.MarkerIDs())
	assert.Equal(t, 2, tpl.Marker(geometry.BottomRight).MarkerID)
	assert.Equal(t, 84.0, tpl.Marker(geometry.BottomRight).CenterXMM)

	require.Len(t, tpl.Questions, 2)
	assert.Equal(t, 4, tpl.OptionCount())
	// Option label falls back to the bubble label.
	assert.Equal(t, "B", tpl.Questions[0].Options[1].Label)

	idx, ok := tpl.BubbleIndex("g1_r1_c0")
	require.True(t, ok)
	assert.Equal(t, 2, idx)
	assert.Equal(t, idx, tpl.Questions[1].Options[0].Index)
	assert.Empty(t, tpl.UnreferencedBubbles())

	require.Len(t, tpl.OMRBlocks(), 1)
	assert.Equal(t, SinglePerColumn, tpl.OMRBlocks()[0].OMR.SelectionMode)
	require.NotNil(t, tpl.MainBlock)
	assert.Equal(t, 40.0, tpl.MainBlock.WidthMM)
}

func TestParse_GeneratorAliases(t *testing.T) {
	doc := sampleDocument()
	doc["aruco_dictionary_name"] = doc["marker_dictionary_id"]
	doc["aruco_markers"] = doc["markers"]
	doc["block"] = doc["main_block_bbox"]
	delete(doc, "marker_dictionary_id")
	delete(doc, "markers")
	delete(doc, "main_block_bbox")

	tpl, err := Parse(encode(t, doc))
	require.NoError(t, err)
	assert.Equal(t, "DICT_4X4_50", tpl.DictionaryID)
	assert.Equal(t, 3, tpl.Marker(geometry.BottomLeft).MarkerID)
	assert.NotNil(t, tpl.MainBlock)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc map[string]any)
		wantMsg string
	}{
		{
			name:    "missing keys",
			mutate:  func(doc map[string]any) { delete(doc, "template_id"); delete(doc, "bubbles") },
			wantMsg: "missing required keys: [template_id, bubbles]",
		},
		{
			name:    "three markers",
			mutate:  func(doc map[string]any) { doc["markers"] = doc["markers"].([]any)[:3] },
			wantMsg: "exactly 4 markers, got 3",
		},
		{
			name: "duplicate corner",
			mutate: func(doc map[string]any) {
				doc["markers"].([]any)[1].(map[string]any)["corner"] = "top_left"
			},
			wantMsg: "duplicate marker for corner top_left",
		},
		{
			name: "duplicate marker id",
			mutate: func(doc map[string]any) {
				doc["markers"].([]any)[1].(map[string]any)["marker_id"] = 0
			},
			wantMsg: "marker id 0 used for both",
		},
		{
			name: "unknown corner",
			mutate: func(doc map[string]any) {
				doc["markers"].([]any)[2].(map[string]any)["corner"] = "center"
			},
			wantMsg: `unknown corner "center"`,
		},
		{
			name: "marker id out of dictionary",
			mutate: func(doc map[string]any) {
				doc["markers"].([]any)[2].(map[string]any)["marker_id"] = 50
			},
			wantMsg: "out of range for DICT_4X4_50",
		},
		{
			name:    "non-positive page",
			mutate:  func(doc map[string]any) { doc["page"] = map[string]any{"width_mm": 0.0, "height_mm": 10.0} },
			wantMsg: "page size must be positive",
		},
		{
			name: "duplicate bubble id",
			mutate: func(doc map[string]any) {
				doc["bubbles"].([]any)[1].(map[string]any)["bubble_id"] = "g1_r0_c0"
			},
			wantMsg: `duplicate bubble_id "g1_r0_c0"`,
		},
		{
			name:    "empty question items",
			mutate:  func(doc map[string]any) { doc["question_items"] = []any{} },
			wantMsg: "'question_items' must be a non-empty list",
		},
		{
			name: "unknown option reference",
			mutate: func(doc map[string]any) {
				q := doc["question_items"].([]any)[0].(map[string]any)
				q["options"].([]any)[0].(map[string]any)["bubble_id"] = "nope"
			},
			wantMsg: `references unknown bubble_id "nope"`,
		},
		{
			name: "bubble referenced twice",
			mutate: func(doc map[string]any) {
				q := doc["question_items"].([]any)[1].(map[string]any)
				q["options"].([]any)[0].(map[string]any)["bubble_id"] = "g1_r0_c0"
			},
			wantMsg: `duplicate bubble_id "g1_r0_c0" in questions 1 and 2`,
		},
		{
			name: "bad selection mode",
			mutate: func(doc map[string]any) {
				b := doc["auxiliary_blocks"].([]any)[0].(map[string]any)
				b["omr_config"].(map[string]any)["selection_mode"] = "multi"
			},
			wantMsg: `unknown selection_mode "multi"`,
		},
		{
			name: "omr block without config",
			mutate: func(doc map[string]any) {
				delete(doc["auxiliary_blocks"].([]any)[0].(map[string]any), "omr_config")
			},
			wantMsg: `omr block "student_id" has no omr_config`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := sampleDocument()
			tt.mutate(doc)
			_, err := Parse(encode(t, doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, omr.ErrInvalidMetadata)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParse_NotAnObject(t *testing.T) {
	for _, input := range []string{"", "[]", "{not json"} {
		_, err := Parse([]byte(input))
		require.Error(t, err, "input %q", input)
		assert.Equal(t, omr.KindInvalidMetadata, omr.KindOf(err))
	}
}

func TestUnreferencedBubbles(t *testing.T) {
	doc := sampleDocument()
	q := doc["question_items"].([]any)[1].(map[string]any)
	q["options"] = q["options"].([]any)[:1]

	tpl, err := Parse(encode(t, doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"g1_r1_c1"}, tpl.UnreferencedBubbles())
}

func TestSynthesizeBubbles_Centered(t *testing.T) {
	block := AuxiliaryBlock{
		BlockID:   "doc_type",
		BlockType: BlockTypeOMR,
		Bounds:    geometry.Rect{XMM: 10, YMM: 20, WidthMM: 30, HeightMM: 20},
		OMR: &OMRConfig{
			Rows: 2, Cols: 3, BubbleDiameterMM: 4, SpacingXMM: 6, SpacingYMM: 5,
			ColLabels: []string{"CC", "TI"},
		},
	}
	bubbles, err := SynthesizeBubbles(block)
	require.NoError(t, err)
	require.Len(t, bubbles, 6)

	// Grid is 4+2*6 = 16 mm wide, 4+1*5 = 9 mm tall, centered in 30x20.
	first := bubbles[0]
	assert.Equal(t, "doc_type_00_00", first.BubbleID)
	assert.Equal(t, "doc_type", first.GroupID)
	assert.InDelta(t, 10+7+2, first.CenterXMM, 1e-9)
	assert.InDelta(t, 20+5.5+2, first.CenterYMM, 1e-9)
	assert.Equal(t, 2.0, first.RadiusMM)

	last := bubbles[5]
	assert.Equal(t, "doc_type_01_02", last.BubbleID)
	assert.Equal(t, 1, last.Row)
	assert.Equal(t, 2, last.Col)
	assert.InDelta(t, first.CenterXMM+12, last.CenterXMM, 1e-9)
	assert.InDelta(t, first.CenterYMM+5, last.CenterYMM, 1e-9)

	assert.Equal(t, "TI", bubbles[1].Label)
	assert.Equal(t, "r1c2", last.Label)
}

func TestSynthesizeBubbles_Padding(t *testing.T) {
	left, top := 1.0, 2.0
	block := AuxiliaryBlock{
		BlockID: "id",
		Bounds:  geometry.Rect{XMM: 10, YMM: 10, WidthMM: 50, HeightMM: 50},
		OMR: &OMRConfig{
			Rows: 10, Cols: 1, BubbleDiameterMM: 4, SpacingXMM: 5, SpacingYMM: 5,
			RowLabels:     []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"},
			LeftPaddingMM: &left, TopPaddingMM: &top,
		},
	}
	bubbles, err := SynthesizeBubbles(block)
	require.NoError(t, err)
	assert.InDelta(t, 13.0, bubbles[0].CenterXMM, 1e-9)
	assert.InDelta(t, 14.0, bubbles[0].CenterYMM, 1e-9)
	assert.Equal(t, "7", bubbles[7].Label)
	assert.Equal(t, "7", block.OMR.RowValue(7))
	assert.Equal(t, "12", (&OMRConfig{}).RowValue(12))

	_, err = SynthesizeBubbles(AuxiliaryBlock{BlockID: "x"})
	assert.Error(t, err)
}

func TestCache_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "exam.json")
	require.NoError(t, os.WriteFile(path, encode(t, sampleDocument()), 0o644))

	cache := NewCache()
	first, err := cache.Load(path)
	require.NoError(t, err)
	second, err := cache.Load(path)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())

	doc := sampleDocument()
	doc["version"] = "2"
	require.NoError(t, os.WriteFile(path, encode(t, doc), 0o644))
	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))

	third, err := cache.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2", third.Version)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())

	_, err = cache.Load(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, omr.ErrInvalidMetadata)
}

package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/omr"
)

// MaxDocumentSize bounds the metadata documents LoadFile accepts.
const MaxDocumentSize = 8 << 20

// DictionaryCapacity lists the marker families a template may declare and
// the number of ids each one defines.
var DictionaryCapacity = map[string]int{
	"DICT_4X4_50": 50, "DICT_4X4_100": 100, "DICT_4X4_250": 250, "DICT_4X4_1000": 1000,
	"DICT_5X5_50": 50, "DICT_5X5_100": 100, "DICT_5X5_250": 250, "DICT_5X5_1000": 1000,
	"DICT_6X6_50": 50, "DICT_6X6_100": 100, "DICT_6X6_250": 250, "DICT_6X6_1000": 1000,
	"DICT_7X7_50": 50, "DICT_7X7_100": 100, "DICT_7X7_250": 250, "DICT_7X7_1000": 1000,
}

// rawDocument mirrors the metadata JSON. Pointer fields distinguish a
// missing key from a zero value.
type rawDocument struct {
	TemplateID      *string        `json:"template_id"`
	Version         *string        `json:"version"`
	DictionaryID    *string        `json:"marker_dictionary_id"`
	DictionaryName  *string        `json:"aruco_dictionary_name"`
	Page            *rawPage       `json:"page"`
	Markers         []rawMarker    `json:"markers"`
	ArucoMarkers    []rawMarker    `json:"aruco_markers"`
	Bubbles         []rawBubble    `json:"bubbles"`
	QuestionItems   []rawQuestion  `json:"question_items"`
	AuxiliaryBlocks []rawAuxiliary `json:"auxiliary_blocks"`
	MainBlockBBox   *geometry.Rect `json:"main_block_bbox"`
	Block           *geometry.Rect `json:"block"`
}

type rawPage struct {
	WidthMM  *float64 `json:"width_mm"`
	HeightMM *float64 `json:"height_mm"`
}

type rawMarker struct {
	MarkerID  *int     `json:"marker_id"`
	Corner    *string  `json:"corner"`
	CenterXMM *float64 `json:"center_x_mm"`
	CenterYMM *float64 `json:"center_y_mm"`
	SizeMM    float64  `json:"size_mm"`
}

type rawBubble struct {
	BubbleID  *string  `json:"bubble_id"`
	GroupID   string   `json:"group_id"`
	Row       int      `json:"row"`
	Col       int      `json:"col"`
	Label     string   `json:"label"`
	CenterXMM *float64 `json:"center_x_mm"`
	CenterYMM *float64 `json:"center_y_mm"`
	RadiusMM  *float64 `json:"radius_mm"`
}

type rawQuestion struct {
	QuestionNumber *int        `json:"question_number"`
	GroupID        string      `json:"group_id"`
	Row            int         `json:"row"`
	Options        []rawOption `json:"options"`
}

type rawOption struct {
	BubbleID *string `json:"bubble_id"`
	Label    string  `json:"label"`
}

type rawAuxiliary struct {
	BlockID   *string    `json:"block_id"`
	Title     string     `json:"title"`
	BlockType string     `json:"block_type"`
	XMM       float64    `json:"x_mm"`
	YMM       float64    `json:"y_mm"`
	WidthMM   float64    `json:"width_mm"`
	HeightMM  float64    `json:"height_mm"`
	OMR       *OMRConfig `json:"omr_config"`
}

// LoadFile reads and parses a metadata document from disk.
func LoadFile(path string) (*Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, omr.InvalidMetadataf("metadata file not found: %q", path)
	}
	if info.IsDir() {
		return nil, omr.InvalidMetadataf("metadata path %q is a directory", path)
	}
	if info.Size() > MaxDocumentSize {
		return nil, omr.InvalidMetadataf("metadata file %q too large: %d bytes (max %d)", path, info.Size(), MaxDocumentSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a metadata document.
//
// Validation is strict and happens once: every later stage relies on the
// invariants established here (four markers one per corner, unique bubble
// ids, every option bound to a known bubble exactly once).
func Parse(data []byte) (*Template, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, omr.InvalidMetadataf("metadata root must be a JSON object")
	}
	var raw rawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &omr.Error{Kind: omr.KindInvalidMetadata, Msg: "metadata is not valid JSON", Err: err}
	}
	return build(&raw)
}

func build(raw *rawDocument) (*Template, error) {
	var missing []string
	if raw.TemplateID == nil {
		missing = append(missing, "template_id")
	}
	if raw.Version == nil {
		missing = append(missing, "version")
	}
	if raw.DictionaryID == nil && raw.DictionaryName == nil {
		missing = append(missing, "marker_dictionary_id")
	}
	if raw.Page == nil {
		missing = append(missing, "page")
	}
	if raw.Markers == nil && raw.ArucoMarkers == nil {
		missing = append(missing, "markers")
	}
	if raw.Bubbles == nil {
		missing = append(missing, "bubbles")
	}
	if raw.QuestionItems == nil {
		missing = append(missing, "question_items")
	}
	if len(missing) > 0 {
		return nil, omr.InvalidMetadataf("metadata missing required keys: [%s]", strings.Join(missing, ", "))
	}

	t := &Template{
		TemplateID: strings.TrimSpace(*raw.TemplateID),
		Version:    strings.TrimSpace(*raw.Version),
	}
	if t.TemplateID == "" {
		return nil, omr.InvalidMetadataf("template_id must not be empty")
	}
	if t.Version == "" {
		return nil, omr.InvalidMetadataf("version must not be empty")
	}

	if raw.DictionaryID != nil {
		t.DictionaryID = strings.TrimSpace(*raw.DictionaryID)
	} else {
		t.DictionaryID = strings.TrimSpace(*raw.DictionaryName)
	}
	if t.DictionaryID == "" {
		return nil, omr.InvalidMetadataf("marker_dictionary_id must not be empty")
	}

	if raw.Page.WidthMM == nil || raw.Page.HeightMM == nil {
		return nil, omr.InvalidMetadataf("page requires width_mm and height_mm")
	}
	t.Page = geometry.Page{WidthMM: *raw.Page.WidthMM, HeightMM: *raw.Page.HeightMM}
	if t.Page.WidthMM <= 0 || t.Page.HeightMM <= 0 {
		return nil, omr.InvalidMetadataf("page size must be positive, got %gx%g mm", t.Page.WidthMM, t.Page.HeightMM)
	}

	markers := raw.Markers
	if markers == nil {
		markers = raw.ArucoMarkers
	}
	if err := t.setMarkers(markers); err != nil {
		return nil, err
	}
	if err := t.setBubbles(raw.Bubbles); err != nil {
		return nil, err
	}
	if err := t.setQuestions(raw.QuestionItems); err != nil {
		return nil, err
	}
	if err := t.setAuxiliary(raw.AuxiliaryBlocks); err != nil {
		return nil, err
	}

	switch {
	case raw.MainBlockBBox != nil:
		r := *raw.MainBlockBBox
		t.MainBlock = &r
	case raw.Block != nil:
		r := *raw.Block
		t.MainBlock = &r
	}
	if t.MainBlock != nil && (t.MainBlock.WidthMM <= 0 || t.MainBlock.HeightMM <= 0) {
		return nil, omr.InvalidMetadataf("main_block_bbox must have a positive size")
	}
	return t, nil
}

func (t *Template) setMarkers(markers []rawMarker) error {
	if len(markers) != 4 {
		return omr.InvalidMetadataf("metadata must contain exactly 4 markers, got %d", len(markers))
	}
	capacity, known := DictionaryCapacity[t.DictionaryID]

	var seen [4]bool
	ids := make(map[int]geometry.Corner, 4)
	for i, m := range markers {
		if m.MarkerID == nil || m.Corner == nil || m.CenterXMM == nil || m.CenterYMM == nil {
			return omr.InvalidMetadataf("marker %d requires marker_id, corner, center_x_mm and center_y_mm", i)
		}
		corner, err := geometry.ParseCorner(*m.Corner)
		if err != nil {
			return &omr.Error{Kind: omr.KindInvalidMetadata, Msg: fmt.Sprintf("marker %d", i), Err: err}
		}
		if seen[corner] {
			return omr.InvalidMetadataf("duplicate marker for corner %s", corner)
		}
		seen[corner] = true

		id := *m.MarkerID
		if other, dup := ids[id]; dup {
			return omr.InvalidMetadataf("marker id %d used for both %s and %s", id, other, corner)
		}
		if id < 0 || (known && id >= capacity) {
			return omr.InvalidMetadataf("marker id %d out of range for %s", id, t.DictionaryID)
		}
		ids[id] = corner

		t.Markers[corner] = geometry.MarkerPlacement{
			MarkerID:  id,
			Corner:    corner,
			CenterXMM: *m.CenterXMM,
			CenterYMM: *m.CenterYMM,
			SizeMM:    m.SizeMM,
		}
	}
	return nil
}

func (t *Template) setBubbles(bubbles []rawBubble) error {
	if len(bubbles) == 0 {
		return omr.InvalidMetadataf("metadata 'bubbles' must be a non-empty list")
	}
	t.Bubbles = make([]geometry.BubblePlacement, 0, len(bubbles))
	t.index = make(map[string]int, len(bubbles))
	for i, b := range bubbles {
		if b.BubbleID == nil || *b.BubbleID == "" {
			return omr.InvalidMetadataf("bubble %d has no bubble_id", i)
		}
		id := *b.BubbleID
		if b.CenterXMM == nil || b.CenterYMM == nil || b.RadiusMM == nil {
			return omr.InvalidMetadataf("bubble %q requires center_x_mm, center_y_mm and radius_mm", id)
		}
		if *b.RadiusMM <= 0 {
			return omr.InvalidMetadataf("bubble %q radius must be positive", id)
		}
		if _, dup := t.index[id]; dup {
			return omr.InvalidMetadataf("duplicate bubble_id %q", id)
		}
		t.index[id] = len(t.Bubbles)
		t.Bubbles = append(t.Bubbles, geometry.BubblePlacement{
			BubbleID:  id,
			GroupID:   b.GroupID,
			Row:       b.Row,
			Col:       b.Col,
			Label:     b.Label,
			CenterXMM: *b.CenterXMM,
			CenterYMM: *b.CenterYMM,
			RadiusMM:  *b.RadiusMM,
		})
	}
	return nil
}

func (t *Template) setQuestions(items []rawQuestion) error {
	if len(items) == 0 {
		return omr.InvalidMetadataf("metadata 'question_items' must be a non-empty list")
	}
	referenced := make(map[string]int, len(t.Bubbles))
	t.Questions = make([]QuestionItem, 0, len(items))
	for i, q := range items {
		if q.QuestionNumber == nil {
			return omr.InvalidMetadataf("question_items[%d] has no question_number", i)
		}
		if len(q.Options) == 0 {
			return omr.InvalidMetadataf("question %d has no options", *q.QuestionNumber)
		}
		item := QuestionItem{
			QuestionNumber: *q.QuestionNumber,
			GroupID:        q.GroupID,
			Row:            q.Row,
			Options:        make([]Option, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			if o.BubbleID == nil || *o.BubbleID == "" {
				return omr.InvalidMetadataf("question %d has an option without bubble_id", item.QuestionNumber)
			}
			id := *o.BubbleID
			idx, ok := t.index[id]
			if !ok {
				return omr.InvalidMetadataf("question %d references unknown bubble_id %q", item.QuestionNumber, id)
			}
			if prev, dup := referenced[id]; dup {
				return omr.InvalidMetadataf("duplicate bubble_id %q in questions %d and %d", id, prev, item.QuestionNumber)
			}
			referenced[id] = item.QuestionNumber

			label := o.Label
			if label == "" {
				label = t.Bubbles[idx].Label
			}
			item.Options = append(item.Options, Option{BubbleID: id, Label: label, Index: idx})
		}
		t.Questions = append(t.Questions, item)
	}
	return nil
}

func (t *Template) setAuxiliary(blocks []rawAuxiliary) error {
	seen := make(map[string]bool, len(blocks))
	for i, b := range blocks {
		if b.BlockID == nil || *b.BlockID == "" {
			return omr.InvalidMetadataf("auxiliary_blocks[%d] has no block_id", i)
		}
		id := *b.BlockID
		if seen[id] {
			return omr.InvalidMetadataf("duplicate auxiliary block_id %q", id)
		}
		seen[id] = true

		block := AuxiliaryBlock{
			BlockID:   id,
			Title:     b.Title,
			BlockType: b.BlockType,
			Bounds:    geometry.Rect{XMM: b.XMM, YMM: b.YMM, WidthMM: b.WidthMM, HeightMM: b.HeightMM},
			OMR:       b.OMR,
		}
		switch block.BlockType {
		case BlockTypeOMR:
			if err := validateOMRConfig(id, block.OMR); err != nil {
				return err
			}
		case BlockTypeHandwrite:
			if b.WidthMM <= 0 || b.HeightMM <= 0 {
				return omr.InvalidMetadataf("handwrite block %q must have a positive size", id)
			}
		}
		t.AuxiliaryBlocks = append(t.AuxiliaryBlocks, block)
	}
	return nil
}

func validateOMRConfig(blockID string, cfg *OMRConfig) error {
	if cfg == nil {
		return omr.InvalidMetadataf("omr block %q has no omr_config", blockID)
	}
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return omr.InvalidMetadataf("omr block %q: rows and cols must be positive", blockID)
	}
	if cfg.BubbleDiameterMM <= 0 {
		return omr.InvalidMetadataf("omr block %q: bubble_diameter_mm must be positive", blockID)
	}
	if (cfg.Cols > 1 && cfg.SpacingXMM <= 0) || (cfg.Rows > 1 && cfg.SpacingYMM <= 0) {
		return omr.InvalidMetadataf("omr block %q: grid spacing must be positive", blockID)
	}
	switch cfg.SelectionMode {
	case "":
		cfg.SelectionMode = SinglePerColumn
	case SingleChoice, SinglePerColumn:
	default:
		return omr.InvalidMetadataf("omr block %q: unknown selection_mode %q", blockID, cfg.SelectionMode)
	}
	return nil
}

// UnreferencedBubbles returns the ids of bubbles no question option refers
// to, sorted. The Result Builder rejects reads where this is non-empty.
func (t *Template) UnreferencedBubbles() []string {
	used := make([]bool, len(t.Bubbles))
	for _, q := range t.Questions {
		for _, o := range q.Options {
			used[o.Index] = true
		}
	}
	var out []string
	for i, ok := range used {
		if !ok {
			out = append(out, t.Bubbles[i].BubbleID)
		}
	}
	sort.Strings(out)
	return out
}

package template

import (
	"fmt"
	"strconv"

	"github.com/ironsheep/omr-reader/internal/geometry"
)

// Block types recognized in auxiliary_blocks. Blocks of any other type are
// carried through parsing but ignored by the readers.
const (
	BlockTypeOMR       = "omr"
	BlockTypeHandwrite = "handwrite"
)

// SelectionMode is the answer semantics of an OMR auxiliary block.
type SelectionMode string

const (
	// SingleChoice: exactly one logical answer for the whole block.
	SingleChoice SelectionMode = "single_choice"

	// SinglePerColumn: one logical answer per column (one digit per position
	// of a multi-digit identifier).
	SinglePerColumn SelectionMode = "single_per_column"
)

// AuxiliaryBlock is a non-question region of the sheet.
type AuxiliaryBlock struct {
	BlockID   string        `json:"block_id"`
	Title     string        `json:"title,omitempty"`
	BlockType string        `json:"block_type"`
	Bounds    geometry.Rect `json:"bounds"`
	OMR       *OMRConfig    `json:"omr_config,omitempty"`
}

// OMRConfig describes the synthesized bubble grid of an OMR block.
type OMRConfig struct {
	Rows             int           `json:"rows"`
	Cols             int           `json:"cols"`
	BubbleDiameterMM float64       `json:"bubble_diameter_mm"`
	SpacingXMM       float64       `json:"spacing_x_mm"`
	SpacingYMM       float64       `json:"spacing_y_mm"`
	SelectionMode    SelectionMode `json:"selection_mode"`
	RowLabels        []string      `json:"row_labels,omitempty"`
	ColLabels        []string      `json:"col_labels,omitempty"`

	// LeftPaddingMM and TopPaddingMM pin the grid origin inside the block.
	// When nil the grid is centered on that axis.
	LeftPaddingMM *float64 `json:"left_padding_mm,omitempty"`
	TopPaddingMM  *float64 `json:"top_padding_mm,omitempty"`
}

// RowValue returns the value a selected row stands for: its row label when
// one is declared, otherwise the row index.
func (c *OMRConfig) RowValue(row int) string {
	if row >= 0 && row < len(c.RowLabels) {
		return c.RowLabels[row]
	}
	return strconv.Itoa(row)
}

// CellLabel returns the printed label of a grid cell. Column labels win over
// row labels; unlabeled cells are named r{row}c{col}.
func (c *OMRConfig) CellLabel(row, col int) string {
	if col < len(c.ColLabels) {
		return c.ColLabels[col]
	}
	if row < len(c.RowLabels) {
		return c.RowLabels[row]
	}
	return fmt.Sprintf("r%dc%d", row, col)
}

// SynthesizeBubbles lays out the block's grid as bubble placements tagged
// with the block id as group id.
//
// The grid spans diameter + (n-1)*spacing on each axis. Without an explicit
// padding the grid is centered in the block on that axis. Bubble ids are
// "<block_id>_<row:02>_<col:02>" and are emitted row-major.
func SynthesizeBubbles(b AuxiliaryBlock) ([]geometry.BubblePlacement, error) {
	cfg := b.OMR
	if cfg == nil {
		return nil, fmt.Errorf("block %q has no omr_config", b.BlockID)
	}
	if cfg.Rows <= 0 || cfg.Cols <= 0 {
		return nil, fmt.Errorf("block %q: rows and cols must be > 0", b.BlockID)
	}

	radius := cfg.BubbleDiameterMM / 2
	gridW := cfg.BubbleDiameterMM + float64(cfg.Cols-1)*cfg.SpacingXMM
	gridH := cfg.BubbleDiameterMM + float64(cfg.Rows-1)*cfg.SpacingYMM

	originX := b.Bounds.XMM + (b.Bounds.WidthMM-gridW)/2
	if cfg.LeftPaddingMM != nil {
		originX = b.Bounds.XMM + *cfg.LeftPaddingMM
	}
	originY := b.Bounds.YMM + (b.Bounds.HeightMM-gridH)/2
	if cfg.TopPaddingMM != nil {
		originY = b.Bounds.YMM + *cfg.TopPaddingMM
	}

	bubbles := make([]geometry.BubblePlacement, 0, cfg.Rows*cfg.Cols)
	for row := 0; row < cfg.Rows; row++ {
		for col := 0; col < cfg.Cols; col++ {
			bubbles = append(bubbles, geometry.BubblePlacement{
				BubbleID:  fmt.Sprintf("%s_%02d_%02d", b.BlockID, row, col),
				GroupID:   b.BlockID,
				Row:       row,
				Col:       col,
				Label:     cfg.CellLabel(row, col),
				CenterXMM: originX + radius + float64(col)*cfg.SpacingXMM,
				CenterYMM: originY + radius + float64(row)*cfg.SpacingYMM,
				RadiusMM:  radius,
			})
		}
	}
	return bubbles, nil
}

// Package auxiliary reads the non-question regions of a sheet: OMR grids
// such as identity numbers or document types, and handwrite boxes.
package auxiliary

import (
	"image"
	"math"
	"sort"

	"github.com/ironsheep/omr-reader/internal/classify"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/ocr"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/template"
)

// Status is the outcome of one selection (a block or a column).
type Status string

const (
	// StatusOK: exactly one row marked and nothing ambiguous.
	StatusOK Status = "ok"

	// StatusMissing: nothing marked and nothing ambiguous.
	StatusMissing Status = "missing"

	// StatusAmbiguous: several rows marked, or any row ambiguous.
	StatusAmbiguous Status = "ambiguous"
)

// Selection is the resolved choice among the rows of a block or column.
type Selection struct {
	// RowIndex and Value are nil when no row is marked.
	RowIndex *int    `json:"row_index"`
	Value    *string `json:"value"`

	MarkedRows    []int           `json:"marked_rows"`
	AmbiguousRows []int           `json:"ambiguous_rows"`
	Status        Status          `json:"status"`
	RatiosByRow   map[int]float64 `json:"ratios_by_row"`
}

// Column is the selection of one column of a single_per_column block.
type Column struct {
	ColumnIndex int `json:"column_index"`
	Selection
}

// Handwriting is the crop and optional recognized text of a handwrite block.
type Handwriting struct {
	CropBBoxPx [4]int  `json:"crop_bbox_px"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error,omitempty"`
}

// BlockResult is the read of one auxiliary block.
type BlockResult struct {
	BlockID       string                 `json:"block_id"`
	Title         string                 `json:"title,omitempty"`
	BlockType     string                 `json:"block_type"`
	SelectionMode template.SelectionMode `json:"selection_mode,omitempty"`
	Rows          int                    `json:"rows,omitempty"`
	Cols          int                    `json:"cols,omitempty"`

	// Selected is set for single_choice blocks.
	Selected *Selection `json:"selected,omitempty"`

	// Columns and Value are set for single_per_column blocks. Value joins
	// the values of the columns that resolved to a row.
	Columns []Column `json:"columns,omitempty"`
	Value   *string  `json:"value,omitempty"`

	Handwriting *Handwriting `json:"handwriting,omitempty"`

	ManualReviewRequired bool `json:"manual_review_required"`

	// Bubbles holds the classified cells of an OMR block, ordered by row
	// then column.
	Bubbles []omr.BubbleReadResult `json:"-"`
}

// Summary counts the blocks read and those needing a human.
//
// TotalBlocks and ManualReviewBlocks count OMR blocks only. Handwrite blocks
// always need a human and are counted apart so they do not mask the state
// of the bubble grids.
type Summary struct {
	TotalBlocks        int `json:"total_blocks"`
	ManualReviewBlocks int `json:"manual_review_blocks"`
	HandwriteBlocks    int `json:"handwrite_blocks"`
}

// Report is the auxiliary section of a read.
type Report struct {
	Blocks  []BlockResult `json:"blocks"`
	Summary Summary       `json:"summary"`
}

// TextRecognizer reads text from a cropped image.
type TextRecognizer interface {
	Recognize(img image.Image) (*ocr.Result, error)
}

type options struct {
	bin        *image.Gray
	recognizer TextRecognizer
}

// Option configures Read.
type Option func(*options)

// WithBinaryMap reuses an ink map already built from the aligned image
// (see classify.BuildBinaryMap) instead of building another one.
func WithBinaryMap(bin *image.Gray) Option {
	return func(o *options) { o.bin = bin }
}

// WithRecognizer attaches recognized text to handwrite blocks.
func WithRecognizer(r TextRecognizer) Option {
	return func(o *options) { o.recognizer = r }
}

// Read classifies every OMR block and crops every handwrite block of an
// aligned sheet. Blocks of other types are skipped.
//
// OMR blocks are laid out by template.SynthesizeBubbles and classified with
// the same configuration as the questions. A single_choice block resolves
// one row across the whole grid; a single_per_column block resolves each
// column on its own. When several rows are marked the highest fill ratio
// wins, ties going to the lowest row, and the selection is reported as
// ambiguous.
//
// Handwrite blocks always require manual review. They are reported but
// left out of the OMR block counts of the summary.
func Read(img image.Image, blocks []template.AuxiliaryBlock, cfg omr.ReadConfig, opts ...Option) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	report := &Report{Blocks: []BlockResult{}}
	if len(blocks) == 0 {
		return report, nil
	}
	if img == nil || img.Bounds().Empty() {
		return nil, omr.Preconditionf("image is empty")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	for _, b := range blocks {
		var (
			res *BlockResult
			err error
		)
		switch b.BlockType {
		case template.BlockTypeOMR:
			if o.bin == nil {
				o.bin = classify.BuildBinaryMap(img, cfg)
			}
			res, err = readOMR(o.bin, b, cfg)
		case template.BlockTypeHandwrite:
			res = readHandwrite(img, b, cfg.PxPerMM, o.recognizer)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		report.Blocks = append(report.Blocks, *res)
		if b.BlockType == template.BlockTypeHandwrite {
			report.Summary.HandwriteBlocks++
			continue
		}
		report.Summary.TotalBlocks++
		if res.ManualReviewRequired {
			report.Summary.ManualReviewBlocks++
		}
	}
	return report, nil
}

func readOMR(bin *image.Gray, b template.AuxiliaryBlock, cfg omr.ReadConfig) (*BlockResult, error) {
	bubbles, err := template.SynthesizeBubbles(b)
	if err != nil {
		return nil, omr.InvalidMetadataf("%v", err)
	}
	results, err := classify.ClassifyBinary(bin, bubbles, cfg)
	if err != nil {
		return nil, err
	}
	res := buildBlock(b, results)
	res.Bubbles = results
	return res, nil
}

// buildBlock resolves classified bubbles into the block's selections.
// results must be ordered by row within each column.
func buildBlock(b template.AuxiliaryBlock, results []omr.BubbleReadResult) *BlockResult {
	c := b.OMR
	res := &BlockResult{
		BlockID:       b.BlockID,
		Title:         b.Title,
		BlockType:     b.BlockType,
		SelectionMode: c.SelectionMode,
		Rows:          c.Rows,
		Cols:          c.Cols,
	}

	if c.SelectionMode == template.SingleChoice {
		sel := selectRow(results, c)
		res.Selected = &sel
		res.ManualReviewRequired = sel.Status != StatusOK
		return res
	}

	byCol := make(map[int][]omr.BubbleReadResult, c.Cols)
	for _, r := range results {
		byCol[r.Col] = append(byCol[r.Col], r)
	}
	var compact string
	res.Columns = make([]Column, 0, c.Cols)
	for col := 0; col < c.Cols; col++ {
		sel := selectRow(byCol[col], c)
		if sel.Status != StatusOK {
			res.ManualReviewRequired = true
		}
		if sel.Value != nil {
			compact += *sel.Value
		}
		res.Columns = append(res.Columns, Column{ColumnIndex: col, Selection: sel})
	}
	res.Value = &compact
	return res
}

// selectRow picks the marked row with the highest fill ratio. Marked rows
// that lose are added to the ambiguous rows.
func selectRow(results []omr.BubbleReadResult, c *template.OMRConfig) Selection {
	sel := Selection{
		MarkedRows:    []int{},
		AmbiguousRows: []int{},
		RatiosByRow:   make(map[int]float64, len(results)),
	}
	winner := -1
	for i, r := range results {
		sel.RatiosByRow[r.Row] = round6(r.FillRatio)
		switch r.State {
		case omr.Marked:
			sel.MarkedRows = append(sel.MarkedRows, r.Row)
			if winner < 0 || r.FillRatio > results[winner].FillRatio {
				winner = i
			}
		case omr.Ambiguous:
			sel.AmbiguousRows = append(sel.AmbiguousRows, r.Row)
		}
	}

	if winner >= 0 {
		row := results[winner].Row
		value := c.RowValue(row)
		sel.RowIndex, sel.Value = &row, &value
		for _, r := range sel.MarkedRows {
			if r != row {
				sel.AmbiguousRows = append(sel.AmbiguousRows, r)
			}
		}
	}
	sel.AmbiguousRows = sortedUnique(sel.AmbiguousRows)

	switch {
	case len(sel.MarkedRows) == 0 && len(sel.AmbiguousRows) == 0:
		sel.Status = StatusMissing
	case len(sel.MarkedRows) > 1 || len(sel.AmbiguousRows) > 0:
		sel.Status = StatusAmbiguous
	default:
		sel.Status = StatusOK
	}
	return sel
}

func readHandwrite(img image.Image, b template.AuxiliaryBlock, pxPerMM float64, rec TextRecognizer) *BlockResult {
	res := &BlockResult{
		BlockID:              b.BlockID,
		Title:                b.Title,
		BlockType:            b.BlockType,
		ManualReviewRequired: true,
		Handwriting:          &Handwriting{},
	}
	x0, y0, x1, y1 := b.Bounds.PixelBounds(pxPerMM, 0)
	crop, clipped, err := imaging.CropClipped(img, image.Rect(x0, y0, x1, y1))
	if err != nil {
		res.Handwriting.Error = err.Error()
		return res
	}
	res.Handwriting.CropBBoxPx = [4]int{clipped.Min.X, clipped.Min.Y, clipped.Max.X, clipped.Max.Y}
	if rec == nil {
		return res
	}
	text, err := rec.Recognize(crop)
	if err != nil {
		res.Handwriting.Error = err.Error()
		return res
	}
	res.Handwriting.Text = text.Text
	res.Handwriting.Confidence = round6(text.Confidence)
	return res
}

func sortedUnique(rows []int) []int {
	sort.Ints(rows)
	out := rows[:0]
	for _, r := range rows {
		if len(out) == 0 || r != out[len(out)-1] {
			out = append(out, r)
		}
	}
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

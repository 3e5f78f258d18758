package pipeline

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/omr-reader/internal/auxiliary"
	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/results"
	"github.com/ironsheep/omr-reader/internal/sheettest"
	"github.com/ironsheep/omr-reader/internal/template"
)

var fixedTime = time.Date(2024, 3, 5, 14, 30, 0, 0, time.FixedZone("COT", -5*3600))

func newTestReader(cfg omr.ReadConfig, opts ...Option) *Reader {
	r := New(cfg, append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)...)
	r.newID = func() string { return "00000000-0000-4000-8000-000000000001" }
	return r
}

func photo(t *testing.T, tpl *template.Template, marked ...string) image.Image {
	t.Helper()
	sheet := sheettest.Sheet(t, tpl, sheettest.PxPerMM, marked...)
	return sheettest.Photo(t, sheet, geometry.Quad{
		{X: 150, Y: 120}, {X: 1250, Y: 180}, {X: 1300, Y: 1480}, {X: 90, Y: 1430},
	}, 1400, 1600)
}

func TestRead_EndToEnd(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	img := photo(t, tpl, "q1_b", "q2_a", "student_id_02_00", "student_id_01_01")

	var logs bytes.Buffer
	r := newTestReader(omr.DefaultReadConfig(), WithLogger(log.New(&logs, "", 0)))
	report, err := r.Read(img, tpl)
	require.NoError(t, err)

	assert.Equal(t, "00000000-0000-4000-8000-000000000001", report.ReadID)
	assert.Equal(t, "synthetic", report.TemplateID)
	assert.Equal(t, "1", report.Version)
	assert.Equal(t, "2024-03-05T19:30:00Z", report.Timestamp)
	assert.Equal(t, BackendClassic, report.ReaderBackend)
	assert.Equal(t, Thresholds{Marked: 0.33, Unmarked: 0.18}, report.Thresholds)

	require.Len(t, report.Questions, 2)
	assert.Equal(t, []string{"B"}, report.Questions[0].MarkedOptions)
	assert.Equal(t, []string{"A"}, report.Questions[1].MarkedOptions)
	assert.Equal(t, results.QualitySummary{
		TotalQuestions: 2, TotalOptions: 4, MarkedOptions: 2, UnmarkedOptions: 2,
	}, report.QualitySummary)
	assert.Empty(t, report.NeedsReview())

	require.NotNil(t, report.Diagnostics)
	assert.Equal(t, []int{0, 1, 2, 3}, report.Diagnostics.DetectedMarkerIDs)
	assert.Equal(t, 1000, report.Diagnostics.OutputWidthPx)
	assert.Equal(t, 1200, report.Diagnostics.OutputHeightPx)
	assert.Equal(t, "contour", report.Diagnostics.DetectorBackend)
	assert.Greater(t, report.Diagnostics.CaptureAreaRatio, 0.08)

	require.NotNil(t, report.Auxiliary)
	require.Len(t, report.Auxiliary.Blocks, 1)
	block := report.Auxiliary.Blocks[0]
	assert.Equal(t, "21", *block.Value)
	assert.False(t, block.ManualReviewRequired)
	assert.Equal(t, auxiliary.Summary{TotalBlocks: 1}, report.Auxiliary.Summary)

	assert.Contains(t, logs.String(), "align took")
	assert.Nil(t, report.Review)
}

func TestRead_Idempotent(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	img := photo(t, tpl, "q1_a")
	r := newTestReader(omr.DefaultReadConfig())

	first, err := r.Read(img, tpl)
	require.NoError(t, err)
	second, err := r.Read(img, tpl)
	require.NoError(t, err)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated read differs (-first +second):\n%s", diff)
	}
}

func TestRead_ReportJSON(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	report, err := newTestReader(omr.DefaultReadConfig()).Read(photo(t, tpl), tpl)
	require.NoError(t, err)

	data, err := json.Marshal(report)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"read_id", "template_id", "version", "timestamp", "reader_backend",
		"quality_summary", "questions", "thresholds", "diagnostics", "auxiliary"} {
		assert.Contains(t, doc, key)
	}
	assert.NotContains(t, doc, "review")
	assert.NotContains(t, string(data), "Bubbles")
}

func TestRead_Errors(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	bad := omr.DefaultReadConfig()
	bad.InnerRadiusFactor = 1.5

	tests := []struct {
		name string
		cfg  omr.ReadConfig
		img  image.Image
		tpl  *template.Template
		kind omr.Kind
	}{
		{"invalid config", bad, photo(t, tpl), tpl, omr.KindPrecondition},
		{"no template", omr.DefaultReadConfig(), photo(t, tpl), nil, omr.KindInvalidMetadata},
		{"blank photo", omr.DefaultReadConfig(), image.NewGray(image.Rect(0, 0, 400, 400)), tpl, omr.KindMarkerDetectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := newTestReader(tt.cfg).Read(tt.img, tt.tpl)
			require.Error(t, err)
			assert.Nil(t, report)
			assert.Equal(t, tt.kind, omr.KindOf(err))
		})
	}
}

func TestDecodePhoto(t *testing.T) {
	_, err := DecodePhoto([]byte("not an image"))
	require.Error(t, err)
	assert.Equal(t, omr.KindInvalidImage, omr.KindOf(err))

	data, err := imaging.EncodePNG(image.NewGray(image.Rect(0, 0, 8, 4)))
	require.NoError(t, err)
	img, err := DecodePhoto(data)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(8, 4), img.Bounds().Size())
}

func TestReadExternal(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	r := newTestReader(omr.DefaultReadConfig())

	report, err := r.ReadExternal(tpl, []results.ExternalAnswer{
		{QuestionNumber: 1, MarkedOptions: []string{"a"}, Status: results.StatusOK},
		{QuestionNumber: 2, MarkedOptions: []string{"A", "B"}, Status: results.StatusReview},
	})
	require.NoError(t, err)

	assert.Equal(t, BackendExternal, report.ReaderBackend)
	assert.Nil(t, report.Diagnostics)
	assert.Equal(t, []string{"A"}, report.Questions[0].MarkedOptions)
	assert.Equal(t, []string{"A"}, report.Questions[1].MarkedOptions)
	assert.Equal(t, []string{"B"}, report.Questions[1].AmbiguousOptions)
	require.NotNil(t, report.Review)
	assert.Equal(t, []int{2}, report.Review.AmbiguousQuestions)
	assert.Equal(t, []int{2}, report.NeedsReview())
}

func TestPrepareExternalCrop(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	r := newTestReader(omr.DefaultReadConfig())

	crop, err := r.PrepareExternalCrop(photo(t, tpl, "q1_a"), tpl)
	require.NoError(t, err)

	assert.Equal(t, PreprocessMethod, crop.Diagnostics.PreprocessMethod)
	assert.Equal(t, BBox{X0: 280, Y0: 380, X1: 720, Y1: 670}, crop.Diagnostics.CropBBoxPx)
	assert.Equal(t, []int{0, 1, 2, 3}, crop.Diagnostics.DetectedMarkerIDs)

	img, err := jpeg.Decode(bytes.NewReader(crop.JPEG))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(440, 290), img.Bounds().Size())
	assert.Equal(t, 440, crop.Width)
	assert.Equal(t, 290, crop.Height)
}

func TestPrepareExternalCrop_NoMainBlock(t *testing.T) {
	doc := sheettest.Document()
	delete(doc, "main_block_bbox")
	tpl := sheettest.Template(t, doc)

	_, err := newTestReader(omr.DefaultReadConfig()).PrepareExternalCrop(photo(t, tpl), tpl)
	require.Error(t, err)
	assert.Equal(t, omr.KindInvalidMetadata, omr.KindOf(err))
	assert.True(t, strings.Contains(err.Error(), "main_block_bbox"))
}

func TestAnnotate(t *testing.T) {
	tpl := sheettest.Template(t, sheettest.Document())
	r := newTestReader(omr.DefaultReadConfig())
	out, err := r.ReadDetailed(photo(t, tpl, "q1_b", "student_id_00_00"), tpl)
	require.NoError(t, err)

	img, err := r.Annotate(out, tpl, imaging.DefaultPalette())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1000, 1200), img.Bounds())

	// q1_b's printed ring at (48, 50) mm, radius 25 px, is drawn in the
	// marked color.
	c := img.RGBAAt(480+25, 500)
	assert.Greater(t, int(c.G), int(c.R), "marked ring should be green, got %v", c)

	// Outcome keeps the auxiliary cells for annotation.
	require.NotNil(t, out.Report.Auxiliary)
	assert.Len(t, out.Report.Auxiliary.Blocks[0].Bubbles, 6)
}

// Package pipeline runs a complete read: align the photo, classify every
// bubble, resolve the questions and auxiliary blocks, and assemble the
// report.
//
// A Reader holds only configuration and collaborators; it keeps no state
// between reads and may be shared by concurrent callers as long as its
// collaborators allow it.
package pipeline

import (
	"image"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/omr-reader/internal/align"
	"github.com/ironsheep/omr-reader/internal/auxiliary"
	"github.com/ironsheep/omr-reader/internal/classify"
	"github.com/ironsheep/omr-reader/internal/detection"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/results"
	"github.com/ironsheep/omr-reader/internal/template"
)

// Reader backends reported in Report.ReaderBackend.
const (
	BackendClassic  = "classic"
	BackendExternal = "external"
)

// Reader runs reads against templates with a fixed configuration.
type Reader struct {
	cfg        omr.ReadConfig
	detector   detection.Detector
	recognizer auxiliary.TextRecognizer
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures a Reader.
type Option func(*Reader)

// WithLogger sets the logger for stage timings. Reads are silent without one.
func WithLogger(l *log.Logger) Option {
	return func(r *Reader) { r.logger = l }
}

// WithDetector replaces the default marker detector.
func WithDetector(d detection.Detector) Option {
	return func(r *Reader) { r.detector = d }
}

// WithRecognizer enables text recognition on handwrite blocks.
func WithRecognizer(rec auxiliary.TextRecognizer) Option {
	return func(r *Reader) { r.recognizer = rec }
}

// WithClock sets the source of report timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Reader) { r.now = now }
}

// New returns a Reader. The configuration is validated on every read.
func New(cfg omr.ReadConfig, opts ...Option) *Reader {
	r := &Reader{
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = log.New(io.Discard, "", 0)
	}
	if r.detector == nil {
		r.detector = align.DefaultDetector()
	}
	return r
}

// Config returns the read configuration.
func (r *Reader) Config() omr.ReadConfig { return r.cfg }

// DetectorName names the marker detection backend.
func (r *Reader) DetectorName() string { return r.detector.Name() }

// Outcome is a report together with the intermediate artifacts it was
// derived from.
type Outcome struct {
	Report    *Report
	Alignment *align.Result
	Bubbles   []omr.BubbleReadResult
}

// DecodePhoto decodes uploaded photo bytes, failing with KindInvalidImage.
func DecodePhoto(data []byte) (image.Image, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, omr.InvalidImage("uploaded file is not a valid image", err)
	}
	return img, nil
}

// Read reads one photographed sheet.
func (r *Reader) Read(img image.Image, tpl *template.Template) (*Report, error) {
	out, err := r.ReadDetailed(img, tpl)
	if err != nil {
		return nil, err
	}
	return out.Report, nil
}

// ReadDetailed reads one photographed sheet and keeps the aligned image
// and raw bubble results for annotation.
//
// # Algorithm
//
//  1. Validate the configuration (Precondition).
//  2. Align the photo to the template canvas.
//  3. Build one ink map and classify the template's bubbles on it.
//  4. Bind the results to the questions and resolve conflicts.
//  5. Read the auxiliary blocks from the same ink map.
//
// Any stage failure aborts the read; no partial report is returned.
func (r *Reader) ReadDetailed(img image.Image, tpl *template.Template) (*Outcome, error) {
	if err := r.cfg.Validate(); err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, omr.InvalidMetadataf("template is required")
	}

	start := r.now()
	stage := start
	lap := func(name string) {
		t := r.now()
		r.logger.Printf("read %s: %s took %v", tpl.TemplateID, name, t.Sub(stage))
		stage = t
	}

	aligned, err := align.Align(img, tpl, r.cfg.PxPerMM, align.WithDetector(r.detector))
	if err != nil {
		r.logger.Printf("read %s: align failed: %v", tpl.TemplateID, err)
		return nil, err
	}
	lap("align")

	bin := classify.BuildBinaryMap(aligned.Aligned, r.cfg)
	bubbles, err := classify.ClassifyBinary(bin, tpl.Bubbles, r.cfg)
	if err != nil {
		return nil, err
	}
	lap("classify")

	answers, err := results.Build(tpl.Questions, bubbles)
	if err != nil {
		return nil, err
	}

	report := r.newReport(tpl, BackendClassic, answers)
	report.Diagnostics = &Diagnostics{
		DetectedMarkerIDs: aligned.DetectedMarkerIDs,
		PxPerMM:           r.cfg.PxPerMM,
		RobustMode:        r.cfg.RobustMode,
		DetectorBackend:   r.detector.Name(),
		CaptureAreaRatio:  round6(aligned.AreaRatio),
		CaptureSideRatio:  round6(aligned.SideRatio),
		OutputWidthPx:     aligned.OutputWidthPx,
		OutputHeightPx:    aligned.OutputHeightPx,
	}

	if len(tpl.AuxiliaryBlocks) > 0 {
		aux, err := auxiliary.Read(aligned.Aligned, tpl.AuxiliaryBlocks, r.cfg,
			auxiliary.WithBinaryMap(bin), auxiliary.WithRecognizer(r.recognizer))
		if err != nil {
			return nil, err
		}
		report.Auxiliary = aux
	}
	lap("results")

	r.logger.Printf("read %s: %d questions, %d ambiguous, total %v",
		tpl.TemplateID, report.QualitySummary.TotalQuestions,
		report.QualitySummary.AmbiguousQuestions, r.now().Sub(start))

	return &Outcome{Report: report, Alignment: aligned, Bubbles: bubbles}, nil
}

// ReadExternal builds a report from answers produced by an external reader
// (for example a multimodal model shown the PrepareExternalCrop image).
// The answers flow through the same binding and summary as a classic read.
func (r *Reader) ReadExternal(tpl *template.Template, answers []results.ExternalAnswer) (*Report, error) {
	if tpl == nil {
		return nil, omr.InvalidMetadataf("template is required")
	}
	bubbles, review := results.FromExternalAnswers(tpl.Questions, answers)
	built, err := results.Build(tpl.Questions, bubbles)
	if err != nil {
		return nil, err
	}
	report := r.newReport(tpl, BackendExternal, built)
	report.Review = &review
	r.logger.Printf("read %s: external answers, %d unreadable", tpl.TemplateID, len(review.UnreadableQuestions))
	return report, nil
}

func (r *Reader) newReport(tpl *template.Template, backend string, a *results.Answers) *Report {
	return &Report{
		ReadID:         r.newID(),
		TemplateID:     tpl.TemplateID,
		Version:        tpl.Version,
		Timestamp:      r.now().UTC().Format(time.RFC3339),
		ReaderBackend:  backend,
		QualitySummary: a.Summary,
		Questions:      a.Questions,
		Thresholds: Thresholds{
			Marked:   r.cfg.MarkedThreshold,
			Unmarked: r.cfg.UnmarkedThreshold,
		},
	}
}

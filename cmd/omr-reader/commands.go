package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"

	"github.com/ironsheep/omr-reader/internal/align"
	"github.com/ironsheep/omr-reader/internal/config"
	"github.com/ironsheep/omr-reader/internal/detection"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/ocr"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/pipeline"
	"github.com/ironsheep/omr-reader/internal/template"
)

type cli struct {
	cfg    *config.Config
	logger *log.Logger
	stdout io.Writer
	stderr io.Writer
}

// readFlags registers the read parameters shared by read and annotate.
type readFlags struct {
	template string
	pxPerMM  float64
	marked   float64
	unmarked float64
	robust   bool
	defaults omr.ReadConfig
}

func (c *cli) newReadFlags(fs *flag.FlagSet) *readFlags {
	d := c.cfg.Apply(omr.DefaultReadConfig())
	rf := &readFlags{defaults: d}
	fs.StringVar(&rf.template, "template", "", "template metadata JSON (required)")
	fs.Float64Var(&rf.pxPerMM, "px-per-mm", d.PxPerMM, "aligned canvas density")
	fs.Float64Var(&rf.marked, "marked", d.MarkedThreshold, "marked fill ratio threshold")
	fs.Float64Var(&rf.unmarked, "unmarked", d.UnmarkedThreshold, "unmarked fill ratio threshold")
	fs.BoolVar(&rf.robust, "robust", d.RobustMode, "flatten illumination before reading")
	return rf
}

func (rf *readFlags) config() omr.ReadConfig {
	cfg := rf.defaults
	cfg.PxPerMM = rf.pxPerMM
	cfg.MarkedThreshold = rf.marked
	cfg.UnmarkedThreshold = rf.unmarked
	cfg.RobustMode = rf.robust
	return cfg
}

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

func (c *cli) reader(cfg omr.ReadConfig) *pipeline.Reader {
	opts := []pipeline.Option{pipeline.WithDetector(detection.New(c.cfg.DetectionOptions()))}
	if c.cfg.Debug() {
		opts = append(opts, pipeline.WithLogger(c.logger))
	}
	if ocr.GetInfo().Available {
		opts = append(opts, pipeline.WithRecognizer(c.cfg.Recognizer()))
	}
	return pipeline.New(cfg, opts...)
}

// fail logs err and returns its exit code.
func (c *cli) fail(err error) int {
	c.logger.Printf("%v", err)
	return exitCode(err)
}

func (c *cli) printJSON(v interface{}) int {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return c.fail(fmt.Errorf("failed to write output: %w", err))
	}
	return exitOK
}

// photoArg parses fs and returns its single positional photo argument.
func (c *cli) photoArg(fs *flag.FlagSet, args []string) (string, bool) {
	if err := fs.Parse(args); err != nil {
		return "", false
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(c.stderr, "%s: expected exactly one photo argument\n", fs.Name())
		fs.Usage()
		return "", false
	}
	return fs.Arg(0), true
}

func loadPhoto(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, omr.InvalidImage(fmt.Sprintf("cannot read %s", path), err)
	}
	return pipeline.DecodePhoto(data)
}

func loadInputs(photoPath, templatePath string) (image.Image, *template.Template, error) {
	if templatePath == "" {
		return nil, nil, omr.InvalidMetadataf("-template is required")
	}
	tpl, err := template.LoadFile(templatePath)
	if err != nil {
		return nil, nil, err
	}
	img, err := loadPhoto(photoPath)
	if err != nil {
		return nil, nil, err
	}
	return img, tpl, nil
}

func writePNG(path string, img image.Image) error {
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (c *cli) read(args []string) int {
	fs := c.newFlagSet("read")
	rf := c.newReadFlags(fs)
	strict := fs.Bool("strict", false, "exit 10 when any question or block needs review")
	photo, ok := c.photoArg(fs, args)
	if !ok {
		return exitUsage
	}

	img, tpl, err := loadInputs(photo, rf.template)
	if err != nil {
		return c.fail(err)
	}
	report, err := c.reader(rf.config()).Read(img, tpl)
	if err != nil {
		return c.fail(err)
	}
	if code := c.printJSON(report); code != exitOK {
		return code
	}
	if *strict && needsReview(report) {
		return exitReview
	}
	return exitOK
}

func needsReview(r *pipeline.Report) bool {
	if len(r.NeedsReview()) > 0 {
		return true
	}
	return r.Auxiliary != nil && r.Auxiliary.Summary.ManualReviewBlocks > 0
}

func (c *cli) annotate(args []string) int {
	fs := c.newFlagSet("annotate")
	rf := c.newReadFlags(fs)
	out := fs.String("out", "", "output PNG path (required)")
	markedColor := fs.String("marked-color", "", "hex color for marked bubbles")
	unmarkedColor := fs.String("unmarked-color", "", "hex color for unmarked bubbles")
	ambiguousColor := fs.String("ambiguous-color", "", "hex color for ambiguous bubbles")
	photo, ok := c.photoArg(fs, args)
	if !ok {
		return exitUsage
	}
	if *out == "" {
		fmt.Fprintln(c.stderr, "annotate: -out is required")
		return exitUsage
	}

	palette, err := imaging.ParsePalette(*markedColor, *unmarkedColor, *ambiguousColor)
	if err != nil {
		return c.fail(omr.Preconditionf("%v", err))
	}
	img, tpl, err := loadInputs(photo, rf.template)
	if err != nil {
		return c.fail(err)
	}
	r := c.reader(rf.config())
	outcome, err := r.ReadDetailed(img, tpl)
	if err != nil {
		return c.fail(err)
	}
	annotated, err := r.Annotate(outcome, tpl, palette)
	if err != nil {
		return c.fail(err)
	}
	if err := writePNG(*out, annotated); err != nil {
		return c.fail(err)
	}
	return c.printJSON(outcome.Report)
}

// alignSummary is printed by the align command.
type alignSummary struct {
	DetectedMarkerIDs []int   `json:"detected_marker_ids"`
	CaptureAreaRatio  float64 `json:"capture_area_ratio"`
	CaptureSideRatio  float64 `json:"capture_side_ratio"`
	OutputWidthPx     int     `json:"output_width_px"`
	OutputHeightPx    int     `json:"output_height_px"`
	Output            string  `json:"output,omitempty"`
}

func (c *cli) align(args []string) int {
	fs := c.newFlagSet("align")
	templatePath := fs.String("template", "", "template metadata JSON (required)")
	pxPerMM := fs.Float64("px-per-mm", c.cfg.Apply(omr.DefaultReadConfig()).PxPerMM, "aligned canvas density")
	out := fs.String("out", "", "write the aligned sheet to this PNG")
	photo, ok := c.photoArg(fs, args)
	if !ok {
		return exitUsage
	}

	img, tpl, err := loadInputs(photo, *templatePath)
	if err != nil {
		return c.fail(err)
	}
	res, err := align.Align(img, tpl, *pxPerMM, align.WithDetector(detection.New(c.cfg.DetectionOptions())))
	if err != nil {
		return c.fail(err)
	}
	if *out != "" {
		if err := writePNG(*out, res.Aligned); err != nil {
			return c.fail(err)
		}
	}
	return c.printJSON(&alignSummary{
		DetectedMarkerIDs: res.DetectedMarkerIDs,
		CaptureAreaRatio:  res.AreaRatio,
		CaptureSideRatio:  res.SideRatio,
		OutputWidthPx:     res.OutputWidthPx,
		OutputHeightPx:    res.OutputHeightPx,
		Output:            *out,
	})
}

func (c *cli) detect(args []string) int {
	fs := c.newFlagSet("detect")
	dictionary := fs.String("dictionary", "DICT_4X4_50", "marker dictionary")
	photo, ok := c.photoArg(fs, args)
	if !ok {
		return exitUsage
	}

	img, err := loadPhoto(photo)
	if err != nil {
		return c.fail(err)
	}
	markers, err := detection.New(c.cfg.DetectionOptions()).Detect(img, *dictionary)
	if err != nil {
		return c.fail(&omr.Error{Kind: omr.KindMarkerDetectionFailed, Msg: "marker detection failed", Err: err})
	}
	if markers == nil {
		markers = []detection.Marker{}
	}
	return c.printJSON(markers)
}

func (c *cli) validate(args []string) int {
	fs := c.newFlagSet("validate")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(c.stderr, "validate: expected exactly one template argument")
		return exitUsage
	}

	tpl, err := template.LoadFile(fs.Arg(0))
	if err != nil {
		return c.fail(err)
	}
	if err := align.CheckMarkers(tpl, detection.New(c.cfg.DetectionOptions())); err != nil {
		return c.fail(err)
	}
	for _, id := range tpl.UnreferencedBubbles() {
		c.logger.Printf("warning: bubble %s is not bound to any question", id)
	}
	fmt.Fprintf(c.stdout, "%s %s: %d questions, %d options, %d auxiliary blocks\n",
		tpl.TemplateID, tpl.Version, len(tpl.Questions), tpl.OptionCount(), len(tpl.AuxiliaryBlocks))
	return exitOK
}

func (c *cli) marker(args []string) int {
	fs := c.newFlagSet("marker")
	dictionary := fs.String("dictionary", "DICT_4X4_50", "marker dictionary")
	id := fs.Int("id", -1, "marker id (required)")
	side := fs.Int("side", 240, "output side length in pixels")
	out := fs.String("out", "", "output PNG path (required)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *id < 0 || *out == "" {
		fmt.Fprintln(c.stderr, "marker: -id and -out are required")
		return exitUsage
	}

	img, err := detection.Render(*dictionary, *id, *side)
	if err != nil {
		return c.fail(omr.Preconditionf("%v", err))
	}
	if err := writePNG(*out, img); err != nil {
		return c.fail(err)
	}
	return exitOK
}

package pipeline

import (
	"math"
	"sort"

	"github.com/ironsheep/omr-reader/internal/auxiliary"
	"github.com/ironsheep/omr-reader/internal/results"
)

// Report is the auditable outcome of one read.
type Report struct {
	ReadID         string                 `json:"read_id"`
	TemplateID     string                 `json:"template_id"`
	Version        string                 `json:"version"`
	Timestamp      string                 `json:"timestamp"`
	ReaderBackend  string                 `json:"reader_backend"`
	QualitySummary results.QualitySummary `json:"quality_summary"`
	Questions      []results.Question     `json:"questions"`
	Thresholds     Thresholds             `json:"thresholds"`

	// Diagnostics is set for classic reads.
	Diagnostics *Diagnostics `json:"diagnostics,omitempty"`

	// Review is set for external reads.
	Review *results.ExternalReview `json:"review,omitempty"`

	// Auxiliary is set when the template declares auxiliary blocks.
	Auxiliary *auxiliary.Report `json:"auxiliary,omitempty"`
}

// Thresholds echoes the classification thresholds used.
type Thresholds struct {
	Marked   float64 `json:"marked"`
	Unmarked float64 `json:"unmarked"`
}

// Diagnostics describes how the photo was aligned.
type Diagnostics struct {
	DetectedMarkerIDs []int   `json:"detected_marker_ids"`
	PxPerMM           float64 `json:"px_per_mm"`
	RobustMode        bool    `json:"robust_mode"`
	DetectorBackend   string  `json:"detector_backend"`
	CaptureAreaRatio  float64 `json:"capture_area_ratio"`
	CaptureSideRatio  float64 `json:"capture_side_ratio"`
	OutputWidthPx     int     `json:"output_width_px"`
	OutputHeightPx    int     `json:"output_height_px"`
}

// NeedsReview returns the questions a grader should look at: those without
// a marked option, those with an ambiguous option, and those an external
// reader flagged.
func (r *Report) NeedsReview() []int {
	a := results.Answers{Questions: r.Questions}
	seen := map[int]bool{}
	var out []int
	add := func(ns []int) {
		for _, n := range ns {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	add(a.NeedsReview())
	if r.Review != nil {
		add(r.Review.AmbiguousQuestions)
		add(r.Review.UnreadableQuestions)
	}
	sort.Ints(out)
	return out
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

package omr

// Default read parameters. These match the values the grading service has
// been calibrated against for printed sheets photographed at arm's length.
const (
	DefaultPxPerMM           = 10.0
	DefaultMarkedThreshold   = 0.33
	DefaultUnmarkedThreshold = 0.18
	DefaultInnerRadiusFactor = 0.58
	DefaultContrastAlpha     = 1.25
	DefaultContrastBeta      = -8.0
)

// ReadConfig carries every tunable of a read. It is passed by value into each
// stage; nothing in the pipeline reads thresholds from package state.
type ReadConfig struct {
	// PxPerMM is the pixel density of the aligned canvas.
	PxPerMM float64 `json:"px_per_mm"`

	// MarkedThreshold and UnmarkedThreshold bound the ambiguous band of fill
	// ratios. Both are inclusive at their boundary.
	MarkedThreshold   float64 `json:"marked_threshold"`
	UnmarkedThreshold float64 `json:"unmarked_threshold"`

	// InnerRadiusFactor shrinks the sampling circle so the printed outline of
	// the bubble is not counted as fill. Valid range is [0.2, 1.0].
	InnerRadiusFactor float64 `json:"inner_radius_factor"`

	// RobustMode selects the illumination-flattening binarization pipeline
	// for photos with shadows or glare.
	RobustMode bool `json:"robust_mode"`

	// ContrastAlpha and ContrastBeta parameterize the linear stretch applied
	// in robust mode (out = alpha*in + beta).
	ContrastAlpha float64 `json:"contrast_alpha"`
	ContrastBeta  float64 `json:"contrast_beta"`
}

// DefaultReadConfig returns the calibrated defaults.
func DefaultReadConfig() ReadConfig {
	return ReadConfig{
		PxPerMM:           DefaultPxPerMM,
		MarkedThreshold:   DefaultMarkedThreshold,
		UnmarkedThreshold: DefaultUnmarkedThreshold,
		InnerRadiusFactor: DefaultInnerRadiusFactor,
		ContrastAlpha:     DefaultContrastAlpha,
		ContrastBeta:      DefaultContrastBeta,
	}
}

// Validate checks the classifier preconditions. It returns a KindPrecondition
// error describing the first violated constraint.
func (c ReadConfig) Validate() error {
	if c.PxPerMM <= 0 {
		return Preconditionf("px_per_mm must be > 0 (got %g)", c.PxPerMM)
	}
	if !(0 <= c.UnmarkedThreshold && c.UnmarkedThreshold <= c.MarkedThreshold && c.MarkedThreshold <= 1) {
		return Preconditionf("thresholds must satisfy 0 <= unmarked <= marked <= 1 (unmarked=%g marked=%g)",
			c.UnmarkedThreshold, c.MarkedThreshold)
	}
	if c.InnerRadiusFactor < 0.2 || c.InnerRadiusFactor > 1.0 {
		return Preconditionf("inner_radius_factor must be between 0.2 and 1.0 (got %g)", c.InnerRadiusFactor)
	}
	if c.ContrastAlpha <= 0 {
		return Preconditionf("contrast_alpha must be > 0 (got %g)", c.ContrastAlpha)
	}
	return nil
}

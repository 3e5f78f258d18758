package pipeline

import (
	"image"

	"github.com/ironsheep/omr-reader/internal/align"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/template"
)

// External crop preparation parameters.
const (
	cropMarginMM    = 2.0
	cropClipLimit   = 2.0
	cropTiles       = 8
	cropJPEGQuality = 95

	PreprocessMethod = "aruco_homography_block_crop_clahe"
)

// CropDiagnostics describes how an external crop was produced.
type CropDiagnostics struct {
	DetectedMarkerIDs []int  `json:"detected_marker_ids"`
	PreprocessMethod  string `json:"preprocess_method"`
	CropBBoxPx        BBox   `json:"crop_bbox_px"`
}

// BBox is a pixel rectangle, x1 and y1 exclusive.
type BBox struct {
	X0 int `json:"x0"`
	Y0 int `json:"y0"`
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
}

// Crop is the question block image handed to an external reader.
type Crop struct {
	JPEG        []byte          `json:"-"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
	Diagnostics CropDiagnostics `json:"diagnostics"`
}

// PrepareExternalCrop aligns the photo, cuts out the template's main block
// with a 2 mm margin, boosts local contrast of the lightness channel and
// encodes the result as a quality-95 JPEG.
func (r *Reader) PrepareExternalCrop(img image.Image, tpl *template.Template) (*Crop, error) {
	if tpl == nil {
		return nil, omr.InvalidMetadataf("template is required")
	}
	if tpl.MainBlock == nil {
		return nil, omr.InvalidMetadataf("metadata must include 'main_block_bbox' or 'block' for external reading")
	}
	aligned, err := align.Align(img, tpl, r.cfg.PxPerMM, align.WithDetector(r.detector))
	if err != nil {
		return nil, err
	}

	x0, y0, x1, y1 := tpl.MainBlock.PixelBounds(r.cfg.PxPerMM, cropMarginMM)
	crop, clipped, err := imaging.CropClipped(aligned.Aligned, image.Rect(x0, y0, x1, y1))
	if err != nil {
		return nil, &omr.Error{Kind: omr.KindInvalidMetadata, Msg: "computed crop bbox is invalid", Err: err}
	}

	enhanced := imaging.EnhanceColor(crop, cropClipLimit, cropTiles)
	data, err := imaging.EncodeJPEG(enhanced, cropJPEGQuality)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("crop %s: %v, %d bytes", tpl.TemplateID, clipped, len(data))

	return &Crop{
		JPEG:   data,
		Width:  clipped.Dx(),
		Height: clipped.Dy(),
		Diagnostics: CropDiagnostics{
			DetectedMarkerIDs: aligned.DetectedMarkerIDs,
			PreprocessMethod:  PreprocessMethod,
			CropBBoxPx:        BBox{X0: clipped.Min.X, Y0: clipped.Min.Y, X1: clipped.Max.X, Y1: clipped.Max.Y},
		},
	}, nil
}

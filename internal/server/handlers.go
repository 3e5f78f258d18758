package server

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/ironsheep/omr-reader/internal/align"
	"github.com/ironsheep/omr-reader/internal/detection"
	"github.com/ironsheep/omr-reader/internal/geometry"
	"github.com/ironsheep/omr-reader/internal/imaging"
	"github.com/ironsheep/omr-reader/internal/ocr"
	"github.com/ironsheep/omr-reader/internal/omr"
	"github.com/ironsheep/omr-reader/internal/pipeline"
	"github.com/ironsheep/omr-reader/internal/results"
	"github.com/ironsheep/omr-reader/internal/template"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "omr_read", "omr_align").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorData is the data member of a failed tools/call response.
type ToolErrorData struct {
	// Kind is the omr failure kind ("marker_detection_failed", ...), or
	// "unknown" for errors outside the read pipeline.
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000
// and a ToolErrorData naming the failure kind.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Printf("tool %s failed: %v", params.Name, err)
		return s.errorResponse(req.ID, -32000, "Tool execution failed", ToolErrorData{
			Kind:  omr.KindOf(err).String(),
			Error: err.Error(),
		})
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Merges per-call overrides onto the server configuration
//  3. Loads the template and photo from cache as needed
//  4. Calls the appropriate align/pipeline function
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch name {
	// Template
	case "omr_validate_template":
		return s.handleValidateTemplate(args)

	// Alignment
	case "omr_detect_markers":
		return s.handleDetectMarkers(args)
	case "omr_align":
		return s.handleAlign(args)

	// Reading
	case "omr_read":
		return s.handleRead(args)
	case "omr_annotate":
		return s.handleAnnotate(args)

	// External reading
	case "omr_prepare_external_crop":
		return s.handlePrepareExternalCrop(args)
	case "omr_read_external":
		return s.handleReadExternal(args)

	case "omr_backend_info":
		return s.handleBackendInfo()

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// readParams are the per-call overrides shared by the reading tools.
type readParams struct {
	PxPerMM           *float64 `json:"px_per_mm"`
	MarkedThreshold   *float64 `json:"marked_threshold"`
	UnmarkedThreshold *float64 `json:"unmarked_threshold"`
	RobustMode        *bool    `json:"robust_mode"`
}

// readConfig layers the call's overrides on the server configuration.
func (s *Server) readConfig(p readParams) omr.ReadConfig {
	cfg := s.cfg.Apply(omr.DefaultReadConfig())
	if p.PxPerMM != nil {
		cfg.PxPerMM = *p.PxPerMM
	}
	if p.MarkedThreshold != nil {
		cfg.MarkedThreshold = *p.MarkedThreshold
	}
	if p.UnmarkedThreshold != nil {
		cfg.UnmarkedThreshold = *p.UnmarkedThreshold
	}
	if p.RobustMode != nil {
		cfg.RobustMode = *p.RobustMode
	}
	return cfg
}

func (s *Server) detector() detection.Detector {
	return detection.New(s.cfg.DetectionOptions())
}

// reader builds a pipeline reader for one call. Handwrite recognition is
// only wired when an OCR backend is compiled in.
func (s *Server) reader(cfg omr.ReadConfig) *pipeline.Reader {
	opts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithDetector(s.detector()),
	}
	if ocr.GetInfo().Available {
		opts = append(opts, pipeline.WithRecognizer(s.cfg.Recognizer()))
	}
	return pipeline.New(cfg, opts...)
}

func (s *Server) loadTemplate(path string) (*template.Template, error) {
	if path == "" {
		return nil, omr.InvalidMetadataf("template_path is required")
	}
	return s.templates.Load(path)
}

func (s *Server) loadPhoto(path string) (image.Image, error) {
	if path == "" {
		return nil, omr.Preconditionf("image_path is required")
	}
	img, err := s.images.Load(path)
	if err != nil {
		return nil, omr.InvalidImage(fmt.Sprintf("cannot load %s", filepath.Base(path)), err)
	}
	return img, nil
}

func (s *Server) loadInputs(imagePath, templatePath string) (image.Image, *template.Template, error) {
	tpl, err := s.loadTemplate(templatePath)
	if err != nil {
		return nil, nil, err
	}
	img, err := s.loadPhoto(imagePath)
	if err != nil {
		return nil, nil, err
	}
	return img, tpl, nil
}

// === Template Handlers ===

type validateTemplateArgs struct {
	TemplatePath string `json:"template_path"`
}

// TemplateSummary describes a template that parsed cleanly.
type TemplateSummary struct {
	TemplateID          string        `json:"template_id"`
	Version             string        `json:"version"`
	DictionaryID        string        `json:"dictionary_id"`
	DictionaryCapacity  int           `json:"dictionary_capacity"`
	Page                geometry.Page `json:"page"`
	MarkerIDs           []int         `json:"marker_ids"`
	Questions           int           `json:"questions"`
	Options             int           `json:"options"`
	Bubbles             int           `json:"bubbles"`
	AuxiliaryBlocks     []string      `json:"auxiliary_blocks"`
	HasMainBlock        bool          `json:"has_main_block"`
	UnreferencedBubbles []string      `json:"unreferenced_bubbles"`
}

func (s *Server) handleValidateTemplate(args json.RawMessage) (interface{}, error) {
	var a validateTemplateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(a.TemplatePath)
	if err != nil {
		return nil, err
	}
	if err := align.CheckMarkers(tpl, s.detector()); err != nil {
		return nil, err
	}

	blocks := make([]string, 0, len(tpl.AuxiliaryBlocks))
	for _, b := range tpl.AuxiliaryBlocks {
		blocks = append(blocks, b.BlockID)
	}
	unreferenced := tpl.UnreferencedBubbles()
	if unreferenced == nil {
		unreferenced = []string{}
	}
	return &TemplateSummary{
		TemplateID:          tpl.TemplateID,
		Version:             tpl.Version,
		DictionaryID:        tpl.DictionaryID,
		DictionaryCapacity:  template.DictionaryCapacity[tpl.DictionaryID],
		Page:                tpl.Page,
		MarkerIDs:           tpl.MarkerIDs(),
		Questions:           len(tpl.Questions),
		Options:             tpl.OptionCount(),
		Bubbles:             len(tpl.Bubbles),
		AuxiliaryBlocks:     blocks,
		HasMainBlock:        tpl.MainBlock != nil,
		UnreferencedBubbles: unreferenced,
	}, nil
}

// === Alignment Handlers ===

type detectMarkersArgs struct {
	ImagePath  string `json:"image_path"`
	Dictionary string `json:"dictionary"`
}

// MarkersResult lists the markers found in one photo.
type MarkersResult struct {
	Backend    string             `json:"backend"`
	Dictionary string             `json:"dictionary"`
	Image      *imaging.ImageInfo `json:"image,omitempty"`
	Markers    []detection.Marker `json:"markers"`
}

func (s *Server) handleDetectMarkers(args json.RawMessage) (interface{}, error) {
	var a detectMarkersArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Dictionary == "" {
		a.Dictionary = "DICT_4X4_50"
	}
	img, err := s.loadPhoto(a.ImagePath)
	if err != nil {
		return nil, err
	}

	d := s.detector()
	markers, err := d.Detect(img, a.Dictionary)
	if err != nil {
		return nil, &omr.Error{Kind: omr.KindMarkerDetectionFailed, Msg: "marker detection failed", Err: err}
	}
	if markers == nil {
		markers = []detection.Marker{}
	}
	res := &MarkersResult{
		Backend:    d.Name(),
		Dictionary: a.Dictionary,
		Markers:    markers,
	}
	if data, err := os.ReadFile(a.ImagePath); err == nil {
		res.Image, _ = imaging.Inspect(data)
	}
	return res, nil
}

type alignArgs struct {
	ImagePath    string   `json:"image_path"`
	TemplatePath string   `json:"template_path"`
	PxPerMM      *float64 `json:"px_per_mm"`
	IncludeImage bool     `json:"include_image"`
}

// AlignResult reports the rectification of one photo.
type AlignResult struct {
	DetectedMarkerIDs []int                 `json:"detected_marker_ids"`
	SourceQuad        geometry.Quad         `json:"source_quad"`
	Homography        geometry.Matrix3      `json:"homography"`
	CaptureAreaRatio  float64               `json:"capture_area_ratio"`
	CaptureSideRatio  float64               `json:"capture_side_ratio"`
	OutputWidthPx     int                   `json:"output_width_px"`
	OutputHeightPx    int                   `json:"output_height_px"`
	Image             *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handleAlign(args json.RawMessage) (interface{}, error) {
	var a alignArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, tpl, err := s.loadInputs(a.ImagePath, a.TemplatePath)
	if err != nil {
		return nil, err
	}

	cfg := s.readConfig(readParams{PxPerMM: a.PxPerMM})
	res, err := align.Align(img, tpl, cfg.PxPerMM, align.WithDetector(s.detector()))
	if err != nil {
		return nil, err
	}

	out := &AlignResult{
		DetectedMarkerIDs: res.DetectedMarkerIDs,
		SourceQuad:        res.SourceQuad,
		Homography:        res.Homography,
		CaptureAreaRatio:  res.AreaRatio,
		CaptureSideRatio:  res.SideRatio,
		OutputWidthPx:     res.OutputWidthPx,
		OutputHeightPx:    res.OutputHeightPx,
	}
	if a.IncludeImage {
		if out.Image, err = imaging.ToBase64PNG(res.Aligned); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// === Reading Handlers ===

type readArgs struct {
	ImagePath    string `json:"image_path"`
	TemplatePath string `json:"template_path"`
	readParams
}

func (s *Server) handleRead(args json.RawMessage) (interface{}, error) {
	var a readArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, tpl, err := s.loadInputs(a.ImagePath, a.TemplatePath)
	if err != nil {
		return nil, err
	}
	return s.reader(s.readConfig(a.readParams)).Read(img, tpl)
}

type annotateArgs struct {
	ImagePath      string `json:"image_path"`
	TemplatePath   string `json:"template_path"`
	OutputPath     string `json:"output_path"`
	MarkedColor    string `json:"marked_color"`
	UnmarkedColor  string `json:"unmarked_color"`
	AmbiguousColor string `json:"ambiguous_color"`
	readParams
}

// AnnotateResult is the annotated sheet plus the report it depicts.
type AnnotateResult struct {
	Report     *pipeline.Report      `json:"report"`
	OutputPath string                `json:"output_path,omitempty"`
	Image      *imaging.EncodedImage `json:"image,omitempty"`
}

func (s *Server) handleAnnotate(args json.RawMessage) (interface{}, error) {
	var a annotateArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	palette, err := imaging.ParsePalette(a.MarkedColor, a.UnmarkedColor, a.AmbiguousColor)
	if err != nil {
		return nil, omr.Preconditionf("%v", err)
	}
	img, tpl, err := s.loadInputs(a.ImagePath, a.TemplatePath)
	if err != nil {
		return nil, err
	}

	r := s.reader(s.readConfig(a.readParams))
	out, err := r.ReadDetailed(img, tpl)
	if err != nil {
		return nil, err
	}
	annotated, err := r.Annotate(out, tpl, palette)
	if err != nil {
		return nil, err
	}

	res := &AnnotateResult{Report: out.Report}
	if a.OutputPath == "" {
		if res.Image, err = imaging.ToBase64PNG(annotated); err != nil {
			return nil, err
		}
		return res, nil
	}
	data, err := imaging.EncodePNG(annotated)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(a.OutputPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write annotated image: %w", err)
	}
	res.OutputPath = a.OutputPath
	return res, nil
}

// === External Reading Handlers ===

type prepareCropArgs struct {
	ImagePath    string `json:"image_path"`
	TemplatePath string `json:"template_path"`
}

// CropResult is a main block crop ready for an external reader.
type CropResult struct {
	Image       *imaging.EncodedImage    `json:"image"`
	Diagnostics pipeline.CropDiagnostics `json:"diagnostics"`
}

func (s *Server) handlePrepareExternalCrop(args json.RawMessage) (interface{}, error) {
	var a prepareCropArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, tpl, err := s.loadInputs(a.ImagePath, a.TemplatePath)
	if err != nil {
		return nil, err
	}
	crop, err := s.reader(s.readConfig(readParams{})).PrepareExternalCrop(img, tpl)
	if err != nil {
		return nil, err
	}
	return &CropResult{
		Image:       imaging.JPEGToBase64(crop.JPEG, crop.Width, crop.Height),
		Diagnostics: crop.Diagnostics,
	}, nil
}

type readExternalArgs struct {
	TemplatePath string                   `json:"template_path"`
	Answers      []results.ExternalAnswer `json:"answers"`
}

func (s *Server) handleReadExternal(args json.RawMessage) (interface{}, error) {
	var a readExternalArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	tpl, err := s.loadTemplate(a.TemplatePath)
	if err != nil {
		return nil, err
	}
	return s.reader(s.readConfig(readParams{})).ReadExternal(tpl, a.Answers)
}

// BackendInfo describes the server's effective configuration.
type BackendInfo struct {
	Detector     string         `json:"detector"`
	Dictionaries []string       `json:"dictionaries"`
	OCR          ocr.Info       `json:"ocr"`
	ReadConfig   omr.ReadConfig `json:"read_config"`
	Version      string         `json:"version"`
}

func (s *Server) handleBackendInfo() (interface{}, error) {
	return &BackendInfo{
		Detector:     s.detector().Name(),
		Dictionaries: detection.SupportedDictionaries(),
		OCR:          ocr.GetInfo(),
		ReadConfig:   s.readConfig(readParams{}),
		Version:      Version,
	}, nil
}

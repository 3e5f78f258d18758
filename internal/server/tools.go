package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

var (
	imagePathProp = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the photographed answer sheet",
	}
	templatePathProp = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the template metadata JSON",
	}
	pxPerMMProp = map[string]interface{}{
		"type":        "number",
		"description": "Aligned canvas density in pixels per millimetre (default: 10)",
	}
)

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Template
		{
			Name:        "omr_validate_template",
			Description: "Parse and validate template metadata, including that every corner marker id can be decoded. Returns the template summary and any bubbles not bound to a question.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"template_path": templatePathProp,
				},
				"required": []string{"template_path"},
			},
		},

		// Alignment
		{
			Name:        "omr_detect_markers",
			Description: "Detect fiducial markers in a photo. Returns each marker id with its corners and center in photo pixels.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_path": imagePathProp,
					"dictionary": map[string]interface{}{
						"type":        "string",
						"description": "Marker dictionary (default: DICT_4X4_50)",
					},
				},
				"required": []string{"image_path"},
			},
		},
		{
			Name:        "omr_align",
			Description: "Rectify a photo onto the template canvas using its corner markers. Reports capture quality and the homography; optionally returns the aligned sheet as base64 PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_path":    imagePathProp,
					"template_path": templatePathProp,
					"px_per_mm":     pxPerMMProp,
					"include_image": map[string]interface{}{
						"type":        "boolean",
						"description": "Return the aligned sheet as base64 PNG (default: false)",
					},
				},
				"required": []string{"image_path", "template_path"},
			},
		},

		// Reading
		{
			Name:        "omr_read",
			Description: "Read a photographed answer sheet. Returns the per-question marked and ambiguous options, the quality summary and the auxiliary blocks.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_path":    imagePathProp,
					"template_path": templatePathProp,
					"px_per_mm":     pxPerMMProp,
					"marked_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Fill ratio at or above which a bubble is marked (default: 0.33)",
					},
					"unmarked_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Fill ratio at or below which a bubble is unmarked (default: 0.18)",
					},
					"robust_mode": map[string]interface{}{
						"type":        "boolean",
						"description": "Flatten illumination and threshold adaptively before reading (default: false)",
					},
				},
				"required": []string{"image_path", "template_path"},
			},
		},
		{
			Name:        "omr_annotate",
			Description: "Read a sheet and draw the result on the aligned image: each bubble outlined in the color of its state. Returns base64 PNG or writes it to output_path.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_path":    imagePathProp,
					"template_path": templatePathProp,
					"output_path": map[string]interface{}{
						"type":        "string",
						"description": "Write the PNG here instead of returning it",
					},
					"marked_color": map[string]interface{}{
						"type":        "string",
						"description": "Hex color for marked bubbles (default: green)",
					},
					"unmarked_color": map[string]interface{}{
						"type":        "string",
						"description": "Hex color for unmarked bubbles (default: gray)",
					},
					"ambiguous_color": map[string]interface{}{
						"type":        "string",
						"description": "Hex color for ambiguous bubbles (default: orange)",
					},
				},
				"required": []string{"image_path", "template_path"},
			},
		},

		// External reading
		{
			Name:        "omr_prepare_external_crop",
			Description: "Align a photo and return the contrast-enhanced question block as base64 JPEG for an external reader.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"image_path":    imagePathProp,
					"template_path": templatePathProp,
				},
				"required": []string{"image_path", "template_path"},
			},
		},
		{
			Name:        "omr_read_external",
			Description: "Convert answers returned by an external reader into a standard report. Questions left unanswered are flagged unreadable.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"template_path": templatePathProp,
					"answers": map[string]interface{}{
						"type":        "array",
						"description": "One entry per question",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"question_number": map[string]interface{}{"type": "integer"},
								"marked_options": map[string]interface{}{
									"type":  "array",
									"items": map[string]interface{}{"type": "string"},
								},
								"status": map[string]interface{}{
									"type":        "string",
									"description": "OK or REVISAR",
								},
							},
							"required": []string{"question_number"},
						},
					},
				},
				"required": []string{"template_path", "answers"},
			},
		},
		{
			Name:        "omr_backend_info",
			Description: "Report the marker detector, handwriting recognizer and effective read configuration.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

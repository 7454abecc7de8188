package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to a DICOM file, or to a PNG/JPEG/GIF frame export",
	}
}

func modelProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Capture device model. Overrides the model read from the file; required for image exports",
	}
}

func boxProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "array",
		"description": "Explicit box [[x0,y0],[x1,y1]]; takes precedence over the model box",
		"items": map[string]interface{}{
			"type":     "array",
			"items":    map[string]interface{}{"type": "integer"},
			"minItems": 2,
			"maxItems": 2,
		},
		"minItems": 2,
		"maxItems": 2,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Tag resolution
		{
			Name:        "tag_extract",
			Description: "Read the probe tag burned into an ultrasound frame. Returns the tag (a vocabulary entry, or Unknown, Undecided or No tag), the OCR confidence and the preprocessing configuration that produced it.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"model": modelProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "tag_extract_fields",
			Description: "Read the pattern fields (depth, gain, gestational age, obesity marker) from an ultrasound frame. Fields restricted to particular tags are skipped for other tags.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"model": modelProperty(),
					"tag": map[string]interface{}{
						"type":        "string",
						"description": "Probe tag of the frame. Resolved with tag_extract when omitted",
					},
				},
				"required": []string{"path"},
			},
		},

		// Inspection
		{
			Name:        "tag_preprocess",
			Description: "Return the preprocessed candidate images for the tag box, in the order the resolver tries them, as base64 PNGs.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"model": modelProperty(),
					"box":   boxProperty(),
					"index": map[string]interface{}{
						"type":        "integer",
						"description": "Only return this candidate (0-11). Default -1 returns all",
						"default":     -1,
					},
					"rescale": map[string]interface{}{
						"type":        "boolean",
						"description": "Stretch the region to 0..255 first, as field extraction does",
						"default":     false,
					},
					"invert": map[string]interface{}{
						"type":        "boolean",
						"description": "Render dark text on a light background",
						"default":     false,
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "tag_box_overlay",
			Description: "Render the frame with the tag box outlined and its corners labelled, to check a box against the burned-in text.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"model": modelProperty(),
					"box":   boxProperty(),
					"color": map[string]interface{}{
						"type":        "string",
						"description": "Box color as hex (e.g. #FF0000). Default red",
						"default":     "#FF0000",
					},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "tag_suggest_box",
			Description: "Find areas of the frame that look like burned-in annotation text, best first, to choose a tag box for a model that has none.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"min_score": map[string]interface{}{
						"type":        "number",
						"description": "Minimum text score (0-1)",
						"default":     0.3,
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of regions returned",
						"default":     5,
					},
				},
				"required": []string{"path"},
			},
		},

		// Configuration
		{
			Name:        "tag_models",
			Description: "List the capture device models with a tag box, and the configured pattern fields.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "tag_vocabulary",
			Description: "List the tags the resolver accepts, plus the sentinel results.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}

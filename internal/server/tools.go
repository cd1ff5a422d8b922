package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func thumbnailProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "boolean",
		"description": "Include base64-encoded PNG thumbnails. Default false",
		"default":     false,
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		// Detection Session
		{
			Name:        "slide_process_frame",
			Description: "Submit a captured screen frame to the slide detector. With flush (the default) the frame is analyzed immediately and the resulting change event, or null, is returned. Without flush the frame waits for the debounce window and any change is announced with a notifications/slide_changed message.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the captured frame"),
					"timestamp_ms": map[string]interface{}{
						"type":        "integer",
						"description": "Capture time in Unix milliseconds. Default is the current time",
					},
					"id": map[string]interface{}{
						"type":        "string",
						"description": "Frame identifier. A UUID is generated if omitted",
					},
					"flush": map[string]interface{}{
						"type":        "boolean",
						"description": "Analyze immediately instead of waiting for the debounce window. Default true",
						"default":     true,
					},
					"include_thumbnail": thumbnailProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "slide_history",
			Description: "List every slide accepted since the session started or was reset, oldest first.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"include_thumbnails": thumbnailProperty(),
				},
			},
		},
		{
			Name:        "slide_current",
			Description: "Get the slide currently on screen: layout, metadata and dominant colors.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"include_thumbnail": thumbnailProperty(),
				},
			},
		},
		{
			Name:        "slide_stats",
			Description: "Get the number of slides seen, the average time per slide, the last change time and the active settings.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "slide_reset",
			Description: "Forget all frames and slides. The next frame starts a new presentation.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "slide_update_settings",
			Description: "Change detection settings. Only the fields provided are updated; the full settings are returned.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"sensitivity_threshold": map[string]interface{}{
						"type":        "number",
						"description": "Overall difference (0-1) a change must exceed. Default 0.3",
					},
					"minimum_time_between_changes_ms": map[string]interface{}{
						"type":        "integer",
						"description": "Cooldown after an accepted change, in milliseconds. Default 2000",
					},
					"ignore_minor_changes": map[string]interface{}{
						"type":        "boolean",
						"description": "Suppress content updates scoring below 0.5. Default true",
					},
					"enable_structural_analysis": map[string]interface{}{"type": "boolean"},
					"enable_color_analysis":      map[string]interface{}{"type": "boolean"},
					"enable_edge_detection":      map[string]interface{}{"type": "boolean"},
					"debounce_time_ms": map[string]interface{}{
						"type":        "integer",
						"description": "How long a frame must stay the latest before it is analyzed. Default 500",
					},
					"visual_sample_stride": map[string]interface{}{
						"type":        "integer",
						"description": "Pixel stride for the visual difference. Default 4",
					},
					"histogram_sample_stride": map[string]interface{}{
						"type":        "integer",
						"description": "Pixel stride for color histograms. Default 16",
					},
					"thumbnail_width":  map[string]interface{}{"type": "integer"},
					"thumbnail_height": map[string]interface{}{"type": "integer"},
					"layout": map[string]interface{}{
						"type":        "object",
						"description": "Layout heuristic thresholds; only the named ones change",
					},
				},
			},
		},

		// Frame Analysis
		{
			Name:        "frame_compare",
			Description: "Compare two frames without touching the session. Returns the visual, structural, color and edge differences, the weighted overall score and the change type they would be classified as.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path_a": pathProperty("Absolute path to the earlier frame"),
					"path_b": pathProperty("Absolute path to the later frame"),
				},
				"required": []string{"path_a", "path_b"},
			},
		},
		{
			Name:        "frame_layout",
			Description: "Analyze the layout of a single frame: title, bullet points, images, charts, text regions, brightness, complexity and dominant colors.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty("Absolute path to the frame"),
				},
				"required": []string{"path"},
			},
		},

		// OCR
		{
			Name:        "slide_extract_text",
			Description: "Read the text of a slide with Tesseract OCR. Uses the detected text regions of the slide; falls back to the whole frame when none were found.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"slide_id": map[string]interface{}{
						"type":        "string",
						"description": "Slide to read. Default is the current slide",
					},
					"path": pathProperty("Read this frame instead of a slide from the history"),
				},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/slide-detect-mcp/internal/classify"
	"github.com/ironsheep/slide-detect-mcp/internal/detection"
	"github.com/ironsheep/slide-detect-mcp/internal/imaging"
	"github.com/ironsheep/slide-detect-mcp/internal/session"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "slide_process_frame", "frame_compare").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors, including a panic inside a handler, return a JSON-RPC
// error response with code -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	start := time.Now()
	result, err := s.callTool(params.Name, params.Arguments)
	if err != nil {
		s.logger.Warn("tool failed",
			zap.String("tool", params.Name),
			zap.Error(err))
		return s.errorResponse(req.ID, -32000, "Tool execution failed", err.Error())
	}
	s.logger.Debug("tool completed",
		zap.String("tool", params.Name),
		zap.Duration("elapsed", time.Since(start)))

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

// callTool runs executeTool and turns a handler panic into an error.
func (s *Server) callTool(name string, args json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("tool panicked",
				zap.String("tool", name),
				zap.Any("panic", r))
			result, err = nil, fmt.Errorf("internal error in %s: %v", name, r)
		}
	}()
	return s.executeTool(name, args)
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Loads frames from disk or the cache as needed
//  4. Calls the session, imaging, detection or ocr function
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	switch name {
	// Detection Session
	case "slide_process_frame":
		return s.handleSlideProcessFrame(args)
	case "slide_history":
		return s.handleSlideHistory(args)
	case "slide_current":
		return s.handleSlideCurrent(args)
	case "slide_stats":
		return s.handleSlideStats(args)
	case "slide_reset":
		return s.handleSlideReset(args)
	case "slide_update_settings":
		return s.handleSlideUpdateSettings(args)

	// Frame Analysis
	case "frame_compare":
		return s.handleFrameCompare(args)
	case "frame_layout":
		return s.handleFrameLayout(args)

	// OCR
	case "slide_extract_text":
		return s.handleSlideExtractText(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
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

// === Result Types ===

// slideResult is a SlideInfo with its thumbnail optionally inlined.
type slideResult struct {
	session.SlideInfo
	ThumbnailPNG string `json:"thumbnail_png_base64,omitempty"`
}

func newSlideResult(slide session.SlideInfo, withThumbnail bool) *slideResult {
	r := &slideResult{SlideInfo: slide}
	if withThumbnail && slide.Thumbnail != nil {
		if enc, err := imaging.EncodePNGBase64(slide.Thumbnail); err == nil {
			r.ThumbnailPNG = enc
		}
	}
	return r
}

// eventResult is the wire form of a SlideChangeEvent.
type eventResult struct {
	ID            string              `json:"id"`
	Timestamp     time.Time           `json:"timestamp"`
	FrameID       string              `json:"frame_id"`
	ChangeType    classify.ChangeType `json:"change_type"`
	Confidence    float64             `json:"confidence"`
	PreviousSlide *slideResult        `json:"previous_slide"`
	CurrentSlide  *slideResult        `json:"current_slide"`
	Metrics       classify.Metrics    `json:"metrics"`
}

func newEventResult(ev session.SlideChangeEvent, withThumbnail bool) *eventResult {
	r := &eventResult{
		ID:           ev.ID,
		Timestamp:    ev.Timestamp,
		FrameID:      ev.FrameID,
		ChangeType:   ev.ChangeType,
		Confidence:   ev.Confidence,
		CurrentSlide: newSlideResult(ev.CurrentSlide, withThumbnail),
		Metrics:      ev.Metrics,
	}
	if ev.PreviousSlide != nil {
		r.PreviousSlide = newSlideResult(*ev.PreviousSlide, false)
	}
	return r
}

// === Detection Session Handlers ===

type slideProcessFrameArgs struct {
	Path             string `json:"path"`
	TimestampMs      *int64 `json:"timestamp_ms"`
	ID               string `json:"id"`
	Flush            *bool  `json:"flush"`
	IncludeThumbnail bool   `json:"include_thumbnail"`
}

func (s *Server) handleSlideProcessFrame(args json.RawMessage) (interface{}, error) {
	var a slideProcessFrameArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if a.Path == "" {
		return nil, errors.New("path is required")
	}

	img, err := imaging.LoadFrame(a.Path, s.maxFrameSide)
	if err != nil {
		return nil, err
	}
	ts := time.Now()
	if a.TimestampMs != nil {
		ts = time.UnixMilli(*a.TimestampMs)
	}

	frame := session.NewFrame(a.ID, ts, img)
	s.rememberFrame(frame.ID, a.Path)
	s.session.ProcessFrame(frame)

	flush := a.Flush == nil || *a.Flush
	result := map[string]interface{}{
		"frame_id": frame.ID,
		"width":    frame.Width(),
		"height":   frame.Height(),
		"analyzed": flush,
		"event":    nil,
	}
	if flush {
		if ev, ok := s.session.Flush(); ok {
			s.rememberSlide(ev)
			result["event"] = newEventResult(ev, a.IncludeThumbnail)
		}
	}
	return result, nil
}

type slideListArgs struct {
	IncludeThumbnails bool `json:"include_thumbnails"`
	IncludeThumbnail  bool `json:"include_thumbnail"`
}

func (s *Server) handleSlideHistory(args json.RawMessage) (interface{}, error) {
	var a slideListArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	history := s.session.SlideHistory()
	slides := make([]*slideResult, 0, len(history))
	for _, slide := range history {
		slides = append(slides, newSlideResult(slide, a.IncludeThumbnails))
	}
	return map[string]interface{}{
		"slides": slides,
		"count":  len(slides),
	}, nil
}

func (s *Server) handleSlideCurrent(args json.RawMessage) (interface{}, error) {
	var a slideListArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	current := s.session.CurrentSlide()
	if current == nil {
		return map[string]interface{}{"slide": nil}, nil
	}
	return map[string]interface{}{
		"slide": newSlideResult(*current, a.IncludeThumbnail),
	}, nil
}

func (s *Server) handleSlideStats(args json.RawMessage) (interface{}, error) {
	st := s.session.Stats()

	var lastChange interface{}
	if !st.LastChangeTime.IsZero() {
		lastChange = st.LastChangeTime
	}
	return map[string]interface{}{
		"total_slides":          st.TotalSlides,
		"average_slide_time_ms": st.AverageSlideTime.Milliseconds(),
		"last_change_time":      lastChange,
		"settings":              st.Settings,
		"frames_in_history":     len(s.session.FrameHistory()),
	}, nil
}

func (s *Server) handleSlideReset(args json.RawMessage) (interface{}, error) {
	s.session.Reset()
	s.forgetSlides()
	s.cache.Clear()
	return map[string]interface{}{"reset": true}, nil
}

func (s *Server) handleSlideUpdateSettings(args json.RawMessage) (interface{}, error) {
	if err := s.session.ApplySettingsJSON(args); err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"settings": s.session.Settings(),
	}, nil
}

// === Frame Analysis Handlers ===

type frameCompareArgs struct {
	PathA string `json:"path_a"`
	PathB string `json:"path_b"`
}

// handleFrameCompare scores two frames the way the session would, without
// changing session state. Disabled signals are reported as 0.
func (s *Server) handleFrameCompare(args json.RawMessage) (interface{}, error) {
	var a frameCompareArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	imgA, err := s.cache.Load(a.PathA)
	if err != nil {
		return nil, err
	}
	imgB, err := s.cache.Load(a.PathB)
	if err != nil {
		return nil, err
	}

	settings := s.session.Settings()
	toggles := settings.Toggles()
	m := compareFrames(imgA, imgB, settings, toggles)
	overall := classify.Overall(m, toggles)
	changeType := classify.Classify(overall, m)

	return map[string]interface{}{
		"metrics":           m,
		"overall":           overall,
		"change_type":       changeType,
		"confidence":        classify.Confidence(overall),
		"exceeds_threshold": classify.Exceeds(overall, settings.SensitivityThreshold),
		"minor":             classify.Minor(changeType, overall),
		"dimensions_match":  imgA.Rect.Size() == imgB.Rect.Size(),
	}, nil
}

func compareFrames(a, b *image.RGBA, settings session.Settings, toggles classify.Toggles) classify.Metrics {
	m := classify.Metrics{
		Visual: imaging.VisualDifferenceStride(a, b, settings.VisualStride()),
	}
	if a.Rect.Size() != b.Rect.Size() {
		m = classify.Uniform(1)
	} else if toggles.Structural || toggles.Edge {
		ea, eb := imaging.EdgeMap(a), imaging.EdgeMap(b)
		m.Structural = imaging.StructuralDifferenceMaps(ea, eb)
		m.Edge = imaging.EdgeDifferenceMaps(ea, eb)
	}
	if toggles.Color && a.Rect.Size() == b.Rect.Size() {
		stride := settings.HistogramStride()
		m.Color = imaging.ColorDifferenceHistograms(
			imaging.ColorHistogramStride(a, stride),
			imaging.ColorHistogramStride(b, stride))
	}
	if !toggles.Structural {
		m.Structural = 0
	}
	if !toggles.Color {
		m.Color = 0
	}
	if !toggles.Edge {
		m.Edge = 0
	}
	return m
}

type frameLayoutArgs struct {
	Path string `json:"path"`
}

func (s *Server) handleFrameLayout(args json.RawMessage) (interface{}, error) {
	var a frameLayoutArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	img, err := s.cache.Load(a.Path)
	if err != nil {
		return nil, err
	}

	settings := s.session.Settings()
	analysis := detection.Analyze(img, nil, settings.Layout, settings.HistogramStride())
	return map[string]interface{}{
		"width":           img.Rect.Dx(),
		"height":          img.Rect.Dy(),
		"layout":          analysis.Layout,
		"metadata":        analysis.Metadata,
		"dominant_colors": analysis.DominantColors,
	}, nil
}

// === OCR Handlers ===

type slideExtractTextArgs struct {
	SlideID string `json:"slide_id"`
	Path    string `json:"path"`
}

// handleSlideExtractText reads the text of a slide. Slides are located by id
// (default: the current slide) and re-read from the file they were captured
// from, since the session only keeps thumbnails.
func (s *Server) handleSlideExtractText(args json.RawMessage) (interface{}, error) {
	var a slideExtractTextArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}

	var (
		slideID string
		path    = a.Path
		regions []detection.TextRegion
	)
	if path == "" {
		slide, err := s.findSlide(a.SlideID)
		if err != nil {
			return nil, err
		}
		p, ok := s.slidePath(slide.ID)
		if !ok {
			return nil, fmt.Errorf("source frame of slide %s is not available", slide.ID)
		}
		slideID, path, regions = slide.ID, p, slide.Layout.TextRegions
	}

	img, err := s.cache.Load(path)
	if err != nil {
		return nil, err
	}
	if a.Path != "" {
		settings := s.session.Settings()
		regions = detection.Analyze(img, nil, settings.Layout, settings.HistogramStride()).Layout.TextRegions
	}

	result := map[string]interface{}{
		"slide_id": slideID,
		"language": s.ocr.Language(),
	}
	if len(regions) == 0 {
		text, err := s.ocr.ExtractText(img)
		if err != nil {
			return nil, err
		}
		result["full_text"] = strings.TrimSpace(text.FullText)
		result["words"] = text.Words
		result["regions"] = []detection.TextRegion{}
		return result, nil
	}

	annotated, err := s.ocr.AnnotateRegions(img, regions)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(annotated))
	for _, r := range annotated {
		if r.Text != "" {
			lines = append(lines, r.Text)
		}
	}
	result["full_text"] = strings.Join(lines, "\n")
	result["regions"] = annotated
	return result, nil
}

func (s *Server) findSlide(id string) (*session.SlideInfo, error) {
	if id == "" {
		current := s.session.CurrentSlide()
		if current == nil {
			return nil, errors.New("no slide has been detected yet")
		}
		return current, nil
	}
	for _, slide := range s.session.SlideHistory() {
		if slide.ID == id {
			return &slide, nil
		}
	}
	return nil, fmt.Errorf("slide not found: %s", id)
}

package server

import (
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ironsheep/slide-detect-mcp/internal/session"
)

var (
	t0    = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
)

// panelImage creates a size×size image filled with bg and a square panel of
// fg covering (x, y)-(x+panel, y+panel).
func panelImage(size int, bg, fg color.RGBA, x, y, panel int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for py := 0; py < size; py++ {
		for px := 0; px < size; px++ {
			c := bg
			if px >= x && px < x+panel && py >= y && py < y+panel {
				c = fg
			}
			img.SetRGBA(px, py, c)
		}
	}
	return img
}

// writeFrame saves img as a PNG in the test's temp dir and returns its path.
func writeFrame(t *testing.T, name string, img image.Image) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name+".png")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
	return path
}

// stripeImage creates a 100x100 image of 5px vertical stripes cycling through
// a fixed palette.
func stripeImage() *image.RGBA {
	palette := []color.RGBA{
		{255, 0, 0, 255}, {0, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 96, 255}, {255, 0, 255, 255},
		{0, 0, 0, 255}, {0, 160, 160, 255}, {64, 0, 0, 255}, {192, 96, 0, 255}, {0, 0, 0, 255},
	}
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for py := 0; py < 100; py++ {
		for px := 0; px < 100; px++ {
			img.SetRGBA(px, py, palette[(px/5)%len(palette)])
		}
	}
	return img
}

// slideFiles writes a panel frame and a striped frame that differ in color
// distribution, content and structure.
func slideFiles(t *testing.T) (string, string) {
	t.Helper()
	a := writeFrame(t, "slide-a", panelImage(100, white, black, 10, 10, 20))
	b := writeFrame(t, "slide-b", stripeImage())
	return a, b
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return New(
		WithLogger(logger),
		WithSession(session.New(session.WithLogger(logger))),
	)
}

// call runs a tool and returns its result decoded from JSON.
func call(t *testing.T, s *Server, name string, args interface{}) map[string]interface{} {
	t.Helper()

	raw, err := json.Marshal(args)
	require.NoError(t, err)
	result, err := s.executeTool(name, raw)
	require.NoError(t, err, "executeTool(%s)", name)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(mustMarshalJSON(result)), &decoded))
	return decoded
}

func callErr(t *testing.T, s *Server, name string, args interface{}) error {
	t.Helper()

	raw, err := json.Marshal(args)
	require.NoError(t, err)
	_, err = s.executeTool(name, raw)
	return err
}

func TestHandleSlideProcessFrame(t *testing.T) {
	s := newTestServer(t)
	pathA, pathB := slideFiles(t)

	first := call(t, s, "slide_process_frame", map[string]interface{}{
		"path": pathA, "id": "f1", "timestamp_ms": 1_000,
	})
	assert.Equal(t, "f1", first["frame_id"])
	assert.Equal(t, float64(100), first["width"])
	assert.Equal(t, true, first["analyzed"])

	ev, ok := first["event"].(map[string]interface{})
	require.True(t, ok, "first frame should produce an event")
	assert.Equal(t, "slide_change", ev["change_type"])
	assert.Equal(t, float64(1), ev["confidence"])
	assert.Nil(t, ev["previous_slide"])
	current := ev["current_slide"].(map[string]interface{})
	assert.Equal(t, "f1", current["frame_id"])
	assert.NotContains(t, current, "thumbnail_png_base64")

	second := call(t, s, "slide_process_frame", map[string]interface{}{
		"path": pathB, "id": "f2", "timestamp_ms": 6_000, "include_thumbnail": true,
	})
	ev, ok = second["event"].(map[string]interface{})
	require.True(t, ok, "different slide should produce an event")
	assert.Equal(t, "slide_change", ev["change_type"])
	assert.NotNil(t, ev["previous_slide"])
	current = ev["current_slide"].(map[string]interface{})
	assert.NotEmpty(t, current["thumbnail_png_base64"])

	third := call(t, s, "slide_process_frame", map[string]interface{}{
		"path": pathB, "id": "f3", "timestamp_ms": 12_000,
	})
	assert.Nil(t, third["event"], "identical frame should not produce an event")
}

func TestHandleSlideProcessFrame_NoFlush(t *testing.T) {
	s := newTestServer(t)
	pathA, _ := slideFiles(t)

	result := call(t, s, "slide_process_frame", map[string]interface{}{
		"path": pathA, "flush": false,
	})
	assert.Equal(t, false, result["analyzed"])
	assert.Nil(t, result["event"])
	assert.NotEmpty(t, result["frame_id"], "frame id should be generated")

	history := call(t, s, "slide_history", map[string]interface{}{})
	assert.Equal(t, float64(0), history["count"])

	_, ok := s.session.Flush()
	assert.True(t, ok, "pending frame should be analyzed on flush")
}

func TestHandleSlideProcessFrame_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing path", map[string]interface{}{}},
		{"nonexistent file", map[string]interface{}{"path": "/nonexistent/frame.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, callErr(t, s, "slide_process_frame", tt.args))
		})
	}
}

func TestHandleSlideHistoryCurrentStats(t *testing.T) {
	s := newTestServer(t)
	pathA, pathB := slideFiles(t)

	current := call(t, s, "slide_current", map[string]interface{}{})
	assert.Nil(t, current["slide"])

	stats := call(t, s, "slide_stats", nil)
	assert.Equal(t, float64(0), stats["total_slides"])
	assert.Nil(t, stats["last_change_time"])

	call(t, s, "slide_process_frame", map[string]interface{}{"path": pathA, "id": "a", "timestamp_ms": 0})
	call(t, s, "slide_process_frame", map[string]interface{}{"path": pathB, "id": "b", "timestamp_ms": 5_000})

	history := call(t, s, "slide_history", map[string]interface{}{"include_thumbnails": true})
	assert.Equal(t, float64(2), history["count"])
	slides := history["slides"].([]interface{})
	require.Len(t, slides, 2)
	assert.Equal(t, "a", slides[0].(map[string]interface{})["frame_id"])
	assert.Equal(t, "b", slides[1].(map[string]interface{})["frame_id"])
	assert.NotEmpty(t, slides[0].(map[string]interface{})["thumbnail_png_base64"])

	current = call(t, s, "slide_current", map[string]interface{}{})
	slide := current["slide"].(map[string]interface{})
	assert.Equal(t, "b", slide["frame_id"])
	assert.Contains(t, slide, "layout")
	assert.Contains(t, slide, "metadata")

	stats = call(t, s, "slide_stats", nil)
	assert.Equal(t, float64(2), stats["total_slides"])
	assert.Equal(t, float64(5000), stats["average_slide_time_ms"])
	assert.NotNil(t, stats["last_change_time"])
	settings := stats["settings"].(map[string]interface{})
	assert.Equal(t, 0.3, settings["sensitivity_threshold"])
	assert.Equal(t, float64(2000), settings["minimum_time_between_changes_ms"])
}

func TestHandleSlideReset(t *testing.T) {
	s := newTestServer(t)
	pathA, _ := slideFiles(t)

	call(t, s, "slide_process_frame", map[string]interface{}{"path": pathA})
	call(t, s, "frame_layout", map[string]interface{}{"path": pathA})
	require.Equal(t, 1, s.cache.Len())

	result := call(t, s, "slide_reset", nil)
	assert.Equal(t, true, result["reset"])

	assert.Empty(t, s.session.SlideHistory())
	assert.Nil(t, s.session.CurrentSlide())
	assert.Equal(t, 0, s.cache.Len())
	_, ok := s.slidePath("anything")
	assert.False(t, ok)
}

func TestHandleSlideUpdateSettings(t *testing.T) {
	s := newTestServer(t)

	result := call(t, s, "slide_update_settings", map[string]interface{}{
		"sensitivity_threshold": 0.9,
		"debounce_time_ms":      250,
		"layout":                map[string]interface{}{"title_band": 0.25},
	})
	settings := result["settings"].(map[string]interface{})
	assert.Equal(t, 0.9, settings["sensitivity_threshold"])
	assert.Equal(t, float64(250), settings["debounce_time_ms"])

	got := s.session.Settings()
	assert.Equal(t, 0.9, got.SensitivityThreshold)
	assert.Equal(t, 0.25, got.Layout.TitleBand)
	assert.Equal(t, session.DefaultSettings().Layout.TileVariance, got.Layout.TileVariance)
	assert.True(t, got.EnableColorAnalysis, "fields not named should keep their value")

	err := callErr(t, s, "slide_update_settings", map[string]interface{}{"sensitivity": 0.5})
	assert.Error(t, err, "unknown fields should be rejected")
	assert.Equal(t, 0.9, s.session.Settings().SensitivityThreshold)
}

func TestHandleFrameCompare(t *testing.T) {
	s := newTestServer(t)
	pathA, pathB := slideFiles(t)
	small := writeFrame(t, "small", panelImage(50, white, black, 0, 0, 10))

	t.Run("identical", func(t *testing.T) {
		result := call(t, s, "frame_compare", map[string]interface{}{"path_a": pathA, "path_b": pathA})
		assert.Equal(t, float64(0), result["overall"])
		assert.Equal(t, false, result["exceeds_threshold"])
		assert.Equal(t, true, result["dimensions_match"])
	})

	t.Run("different slides", func(t *testing.T) {
		result := call(t, s, "frame_compare", map[string]interface{}{"path_a": pathA, "path_b": pathB})
		assert.Equal(t, "slide_change", result["change_type"])
		assert.Equal(t, true, result["exceeds_threshold"])
		metrics := result["metrics"].(map[string]interface{})
		assert.Greater(t, metrics["visual"].(float64), 0.7)
		assert.Equal(t, float64(1), metrics["color"])
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		result := call(t, s, "frame_compare", map[string]interface{}{"path_a": pathA, "path_b": small})
		assert.Equal(t, false, result["dimensions_match"])
		assert.Equal(t, float64(1), result["overall"])
	})

	t.Run("zero strides use the defaults", func(t *testing.T) {
		defaults := call(t, s, "frame_compare", map[string]interface{}{"path_a": pathA, "path_b": pathB})

		call(t, s, "slide_update_settings", map[string]interface{}{
			"visual_sample_stride":    0,
			"histogram_sample_stride": 0,
		})
		require.Equal(t, 0, s.session.Settings().VisualSampleStride)

		zero := call(t, s, "frame_compare", map[string]interface{}{"path_a": pathA, "path_b": pathB})
		assert.Equal(t, defaults["metrics"], zero["metrics"])
		assert.Equal(t, defaults["overall"], zero["overall"])

		call(t, s, "slide_update_settings", map[string]interface{}{
			"visual_sample_stride":    4,
			"histogram_sample_stride": 16,
		})
	})

	t.Run("disabled signals report zero", func(t *testing.T) {
		call(t, s, "slide_update_settings", map[string]interface{}{
			"enable_structural_analysis": false,
			"enable_color_analysis":      false,
			"enable_edge_detection":      false,
		})
		result := call(t, s, "frame_compare", map[string]interface{}{"path_a": pathA, "path_b": pathB})
		metrics := result["metrics"].(map[string]interface{})
		assert.Equal(t, float64(0), metrics["structural"])
		assert.Equal(t, float64(0), metrics["color"])
		assert.Equal(t, float64(0), metrics["edge"])
		assert.InDelta(t, metrics["visual"].(float64), result["overall"].(float64), 1e-9)
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Error(t, callErr(t, s, "frame_compare", map[string]interface{}{"path_a": pathA, "path_b": "/nonexistent.png"}))
	})
}

func TestHandleFrameLayout(t *testing.T) {
	s := newTestServer(t)
	pathA, _ := slideFiles(t)

	result := call(t, s, "frame_layout", map[string]interface{}{"path": pathA})
	assert.Equal(t, float64(100), result["width"])
	assert.Equal(t, float64(100), result["height"])

	layout := result["layout"].(map[string]interface{})
	assert.Contains(t, layout, "has_title")
	assert.Contains(t, layout, "text_regions")

	metadata := result["metadata"].(map[string]interface{})
	assert.Equal(t, float64(1), metadata["aspect_ratio"])

	colors := result["dominant_colors"].([]interface{})
	require.NotEmpty(t, colors)
	assert.Equal(t, "#e0e0e0", colors[0], "white background should dominate")
}

func TestHandleSlideExtractText_Errors(t *testing.T) {
	s := newTestServer(t)

	err := callErr(t, s, "slide_extract_text", map[string]interface{}{})
	assert.ErrorContains(t, err, "no slide")

	err = callErr(t, s, "slide_extract_text", map[string]interface{}{"slide_id": "missing"})
	assert.ErrorContains(t, err, "slide not found")

	// Slides analyzed without going through a file have no source frame.
	ev, ok := s.session.Analyze(session.NewFrame("mem", t0, panelImage(100, white, black, 10, 10, 20)))
	require.True(t, ok)
	err = callErr(t, s, "slide_extract_text", map[string]interface{}{"slide_id": ev.CurrentSlide.ID})
	assert.ErrorContains(t, err, "not available")
}

func TestNewEventResult(t *testing.T) {
	s := session.New()
	first, ok := s.Analyze(session.NewFrame("a", t0, panelImage(100, white, black, 10, 10, 20)))
	require.True(t, ok)

	r := newEventResult(first, false)
	assert.Equal(t, first.ID, r.ID)
	assert.Nil(t, r.PreviousSlide)
	assert.Empty(t, r.CurrentSlide.ThumbnailPNG)

	r = newEventResult(first, true)
	assert.NotEmpty(t, r.CurrentSlide.ThumbnailPNG)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "previous_slide")
	assert.Equal(t, "slide_change", decoded["change_type"])
}

func TestExecuteTool_AllTools(t *testing.T) {
	s := newTestServer(t)
	pathA, pathB := slideFiles(t)

	// slide_extract_text needs Tesseract and is covered in the ocr package.
	toolTests := []struct {
		name string
		args map[string]interface{}
	}{
		{"slide_process_frame", map[string]interface{}{"path": pathA}},
		{"slide_history", map[string]interface{}{}},
		{"slide_current", map[string]interface{}{"include_thumbnail": true}},
		{"slide_stats", map[string]interface{}{}},
		{"slide_update_settings", map[string]interface{}{"ignore_minor_changes": false}},
		{"frame_compare", map[string]interface{}{"path_a": pathA, "path_b": pathB}},
		{"frame_layout", map[string]interface{}{"path": pathB}},
		{"slide_reset", map[string]interface{}{}},
	}

	for _, tt := range toolTests {
		t.Run(tt.name, func(t *testing.T) {
			argsJSON, _ := json.Marshal(tt.args)
			result, err := s.executeTool(tt.name, argsJSON)
			if err != nil {
				t.Fatalf("executeTool(%s) failed: %v", tt.name, err)
			}
			if result == nil {
				t.Errorf("executeTool(%s) returned nil result", tt.name)
			}
		})
	}
}

func TestExecuteTool_UnknownTool(t *testing.T) {
	s := New()

	_, err := s.executeTool("unknown_tool", json.RawMessage(`{}`))
	if err == nil {
		t.Error("executeTool should fail for unknown tool")
	}
}

func TestExecuteTool_InvalidJSON(t *testing.T) {
	s := New()

	_, err := s.executeTool("frame_layout", json.RawMessage(`{invalid`))
	if err == nil {
		t.Error("executeTool should fail for invalid JSON")
	}
}

func TestExecuteTool_NullArguments(t *testing.T) {
	s := New()

	if _, err := s.executeTool("slide_stats", nil); err != nil {
		t.Errorf("slide_stats with no arguments: %v", err)
	}
	if _, err := s.executeTool("slide_history", json.RawMessage(`null`)); err != nil {
		t.Errorf("slide_history with null arguments: %v", err)
	}
}

func TestHandleToolsCall_ToolError(t *testing.T) {
	s := New()
	params, _ := json.Marshal(map[string]interface{}{
		"name":      "frame_layout",
		"arguments": map[string]interface{}{"path": "/nonexistent/frame.png"},
	})

	resp := s.handleToolsCall(&MCPRequest{JSONRPC: "2.0", ID: 7, Params: params})

	if resp.Error == nil {
		t.Fatal("Expected error for missing frame")
	}
	if resp.Error.Code != -32000 {
		t.Errorf("Error code: got %d, want -32000", resp.Error.Code)
	}
}

func TestHandleToolsCall_RecoversPanic(t *testing.T) {
	s := New()
	s.session = nil
	params, _ := json.Marshal(map[string]interface{}{"name": "slide_stats"})

	resp := s.handleToolsCall(&MCPRequest{JSONRPC: "2.0", ID: 9, Params: params})

	require.NotNil(t, resp.Error, "handler panic should become an error response")
	assert.Equal(t, -32000, resp.Error.Code)
	assert.Equal(t, 9, resp.ID)
}

func TestHandleFrameLayout_OutOfRangeLayoutSettings(t *testing.T) {
	s := newTestServer(t)
	pathA, pathB := slideFiles(t)

	call(t, s, "slide_update_settings", map[string]interface{}{
		"layout": map[string]interface{}{"title_band": 2, "bullet_bottom": 1.5, "bullet_row_step": 0},
	})
	assert.Equal(t, 2.0, s.session.Settings().Layout.TitleBand)

	result := call(t, s, "frame_layout", map[string]interface{}{"path": pathA})
	assert.Contains(t, result, "layout")

	first := call(t, s, "slide_process_frame", map[string]interface{}{"path": pathA, "timestamp_ms": 0})
	assert.NotNil(t, first["event"], "analysis keeps working with out-of-range layout settings")
	second := call(t, s, "slide_process_frame", map[string]interface{}{"path": pathB, "timestamp_ms": 5_000})
	assert.NotNil(t, second["event"])
}

func TestHandleToolsCall_InvalidParams(t *testing.T) {
	s := New()

	resp := s.handleToolsCall(&MCPRequest{JSONRPC: "2.0", ID: 1, Params: json.RawMessage(`[1,2]`)})

	if resp.Error == nil {
		t.Fatal("Expected error for invalid params")
	}
	if resp.Error.Code != -32602 {
		t.Errorf("Error code: got %d, want -32602", resp.Error.Code)
	}
}

func TestHandleToolsCall_ContentFormat(t *testing.T) {
	s := newTestServer(t)
	pathA, _ := slideFiles(t)
	params, _ := json.Marshal(map[string]interface{}{
		"name":      "frame_layout",
		"arguments": map[string]interface{}{"path": pathA},
	})

	resp := s.handleToolsCall(&MCPRequest{JSONRPC: "2.0", ID: 1, Params: params})
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]interface{})
	content := result["content"].([]map[string]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0]["type"])

	var layout map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(content[0]["text"].(string)), &layout))
	assert.Contains(t, layout, "layout")
}

package server

import (
	"encoding/json"
	"reflect"
	"sort"
	"testing"
)

func toolMap() map[string]Tool {
	m := make(map[string]Tool)
	for _, tool := range GetToolDefinitions() {
		m[tool.Name] = tool
	}
	return m
}

func TestGetToolDefinitions(t *testing.T) {
	tools := toolMap()

	expectedTools := []string{
		"slide_process_frame",
		"slide_history",
		"slide_current",
		"slide_stats",
		"slide_reset",
		"slide_update_settings",
		"frame_compare",
		"frame_layout",
		"slide_extract_text",
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("Expected tool %s not found", name)
		}
	}
	if len(tools) != len(expectedTools) {
		t.Errorf("Tool count: got %d, want %d", len(tools), len(expectedTools))
	}
}

func TestToolDefinitions_Structure(t *testing.T) {
	for _, tool := range GetToolDefinitions() {
		t.Run(tool.Name, func(t *testing.T) {
			if tool.Description == "" {
				t.Error("Tool description is empty")
			}
			if tool.InputSchema["type"] != "object" {
				t.Errorf("InputSchema type: got %v, want 'object'", tool.InputSchema["type"])
			}
			props, ok := tool.InputSchema["properties"].(map[string]interface{})
			if !ok {
				t.Fatal("InputSchema properties should be a map")
			}

			// Every required parameter must be declared.
			required, _ := tool.InputSchema["required"].([]string)
			for _, r := range required {
				if _, ok := props[r]; !ok {
					t.Errorf("required parameter %q is not a property", r)
				}
			}
		})
	}
}

func TestToolDefinitions_Required(t *testing.T) {
	tests := []struct {
		tool string
		want []string
	}{
		{"slide_process_frame", []string{"path"}},
		{"frame_compare", []string{"path_a", "path_b"}},
		{"frame_layout", []string{"path"}},
		{"slide_history", nil},
		{"slide_extract_text", nil},
	}

	tools := toolMap()
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			got, _ := tools[tt.tool].InputSchema["required"].([]string)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("required: got %v, want %v", got, tt.want)
			}
		})
	}
}

// The settings tool must accept exactly the fields the session understands.
func TestToolDefinitions_SettingsMatchSession(t *testing.T) {
	props := toolMap()["slide_update_settings"].InputSchema["properties"].(map[string]interface{})

	data, err := json.Marshal(New().session.Settings())
	if err != nil {
		t.Fatalf("Failed to marshal settings: %v", err)
	}
	var settings map[string]interface{}
	if err := json.Unmarshal(data, &settings); err != nil {
		t.Fatalf("Failed to unmarshal settings: %v", err)
	}

	var declared, accepted []string
	for k := range props {
		declared = append(declared, k)
	}
	for k := range settings {
		accepted = append(accepted, k)
	}
	sort.Strings(declared)
	sort.Strings(accepted)

	if !reflect.DeepEqual(declared, accepted) {
		t.Errorf("declared settings %v, session settings %v", declared, accepted)
	}
}

func TestToolDefinitions_OptionalDefaults(t *testing.T) {
	tests := []struct {
		tool, param string
		want        interface{}
	}{
		{"slide_process_frame", "flush", true},
		{"slide_process_frame", "include_thumbnail", false},
		{"slide_history", "include_thumbnails", false},
		{"slide_current", "include_thumbnail", false},
	}

	tools := toolMap()
	for _, tt := range tests {
		t.Run(tt.tool+"."+tt.param, func(t *testing.T) {
			props := tools[tt.tool].InputSchema["properties"].(map[string]interface{})
			param, ok := props[tt.param].(map[string]interface{})
			if !ok {
				t.Fatalf("parameter %s not declared", tt.param)
			}
			if param["default"] != tt.want {
				t.Errorf("default: got %v, want %v", param["default"], tt.want)
			}
		})
	}
}

func TestHandleToolsList(t *testing.T) {
	s := New()
	resp := s.handleToolsList(&MCPRequest{JSONRPC: "2.0", ID: 1})

	if resp == nil {
		t.Fatal("handleToolsList returned nil")
	}
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("Result should be a map")
	}
	toolsList, ok := result["tools"].([]Tool)
	if !ok {
		t.Fatal("tools should be a slice of Tool")
	}
	if len(toolsList) != len(GetToolDefinitions()) {
		t.Errorf("Tool count: got %d, want %d", len(toolsList), len(GetToolDefinitions()))
	}
}

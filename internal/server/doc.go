// Package server implements the MCP (Model Context Protocol) server for slide
// change detection.
//
// This package provides a JSON-RPC 2.0 server that exposes a detection session
// through the MCP protocol. A client such as a screen recorder or a meeting
// assistant submits captured frames and is told whenever the presenter moves
// to a new slide.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses and notifications on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// Accepted changes are also pushed as notifications/slide_changed messages,
// including changes found by the debounce ticker after a frame was submitted
// with flush=false.
//
// # Available Tools
//
// Detection Session:
//   - slide_process_frame: Submit a frame, optionally analyzing it at once
//   - slide_history: List accepted slides
//   - slide_current: Get the slide on screen
//   - slide_stats: Slide count, average slide time and settings
//   - slide_reset: Forget all frames and slides
//   - slide_update_settings: Change sensitivity, timing and signal toggles
//
// Frame Analysis:
//   - frame_compare: Score two frames without touching the session
//   - frame_layout: Layout and metadata of a single frame
//
// OCR:
//   - slide_extract_text: Read the text of a detected slide
//
// # Frame Caching
//
// Frames read by frame_compare, frame_layout and slide_extract_text are cached
// by path. slide_reset clears the cache.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32000 (tool execution failure) or standard JSON-RPC codes
//   - message: Human-readable error description
//   - data: Additional error details (typically the Go error string)
//
// # Usage
//
// The server is typically started by an MCP client:
//
//	srv := server.New(server.WithLogger(logger))
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

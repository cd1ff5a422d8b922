package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/slide-detect-mcp/internal/imaging"
	"github.com/ironsheep/slide-detect-mcp/internal/ocr"
	"github.com/ironsheep/slide-detect-mcp/internal/session"
)

const (
	serverName    = "slide-detect-mcp"
	serverVersion = "0.1.0"

	// DefaultMaxFrameSide caps decoded frames; larger captures are downscaled.
	DefaultMaxFrameSide = 1920

	// slideChangedMethod announces every accepted change to the client.
	slideChangedMethod = "notifications/slide_changed"
)

// Server handles MCP protocol communication
type Server struct {
	session *session.Session
	cache   *imaging.FrameCache
	ocr     *ocr.Extractor
	logger  *zap.Logger

	maxFrameSide int
	tick         time.Duration

	pathsMu sync.Mutex
	paths   *framePaths

	writeMu sync.Mutex
	encoder *json.Encoder
}

// Option configures a Server.
type Option func(*Server)

// WithSession serves an existing detection session.
func WithSession(sess *session.Session) Option {
	return func(s *Server) {
		s.session = sess
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithOCR sets the Tesseract configuration used by slide_extract_text.
func WithOCR(cfg ocr.Config) Option {
	return func(s *Server) {
		s.ocr = ocr.NewExtractor(cfg)
	}
}

// WithMaxFrameSide caps the resolution of decoded frames. Zero disables the cap.
func WithMaxFrameSide(n int) Option {
	return func(s *Server) {
		s.maxFrameSide = n
	}
}

// WithTickInterval sets how often debounced frames are checked.
func WithTickInterval(d time.Duration) Option {
	return func(s *Server) {
		s.tick = d
	}
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(opts ...Option) *Server {
	s := &Server{
		logger:       zap.NewNop(),
		maxFrameSide: DefaultMaxFrameSide,
		tick:         session.DefaultTickInterval,
		paths:        newFramePaths(session.HistoryLimit),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.session == nil {
		s.session = session.New(session.WithLogger(s.logger))
	}
	if s.ocr == nil {
		s.ocr = ocr.NewExtractor(ocr.Config{})
	}
	s.cache = imaging.NewFrameCache(s.maxFrameSide)
	return s
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve handles requests from r until it is exhausted or ctx is done.
//
// Alongside the request loop it drives the session's debounce ticker and
// forwards accepted changes to the client as notifications.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.encoder = json.NewEncoder(w)

	ctx, cancel := context.WithCancel(ctx)
	events, unsubscribe := s.session.Subscribe(16)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.session.Run(gctx, s.tick); err != nil && err != context.Canceled {
			return err
		}
		return nil
	})
	g.Go(func() error {
		for ev := range events {
			s.rememberSlide(ev)
			s.send(&MCPNotification{
				JSONRPC: "2.0",
				Method:  slideChangedMethod,
				Params:  newEventResult(ev, false),
			})
		}
		return nil
	})

	err := s.readLoop(ctx, r)

	cancel()
	unsubscribe()
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

func (s *Server) readLoop(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	// Increase buffer size for large requests
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("failed to parse request", zap.Error(err))
			continue
		}

		if resp := s.handleRequest(&req); resp != nil {
			s.send(resp)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// send writes one message. Responses and notifications share the writer.
func (s *Server) send(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.encoder.Encode(v); err != nil {
		s.logger.Error("failed to encode message", zap.Error(err))
	}
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *MCPRequest) *MCPResponse {
	s.logger.Debug("request", zap.String("method", req.Method), zap.Any("id", req.ID))

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    serverName,
				"version": serverVersion,
			},
		},
	}
}

// framePaths remembers which file each recent frame was read from, so text
// can be extracted from a slide after its frame left the session history.
type framePaths struct {
	limit  int
	order  []string
	frames map[string]string // frame id → path
	slides map[string]string // slide id → path
}

func newFramePaths(limit int) *framePaths {
	return &framePaths{
		limit:  limit,
		frames: make(map[string]string),
		slides: make(map[string]string),
	}
}

func (p *framePaths) addFrame(id, path string) {
	if _, ok := p.frames[id]; !ok {
		p.order = append(p.order, id)
	}
	p.frames[id] = path
	for len(p.order) > p.limit {
		delete(p.frames, p.order[0])
		p.order = p.order[1:]
	}
}

func (p *framePaths) addSlide(slideID, frameID string) {
	if path, ok := p.frames[frameID]; ok {
		p.slides[slideID] = path
	}
}

func (s *Server) rememberFrame(id, path string) {
	s.pathsMu.Lock()
	s.paths.addFrame(id, path)
	s.pathsMu.Unlock()
}

func (s *Server) rememberSlide(ev session.SlideChangeEvent) {
	s.pathsMu.Lock()
	s.paths.addSlide(ev.CurrentSlide.ID, ev.FrameID)
	s.pathsMu.Unlock()
}

func (s *Server) slidePath(slideID string) (string, bool) {
	s.pathsMu.Lock()
	defer s.pathsMu.Unlock()
	path, ok := s.paths.slides[slideID]
	return path, ok
}

func (s *Server) forgetSlides() {
	s.pathsMu.Lock()
	s.paths = newFramePaths(s.paths.limit)
	s.pathsMu.Unlock()
}

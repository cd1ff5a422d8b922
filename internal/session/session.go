package session

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/slide-detect-mcp/internal/classify"
	"github.com/ironsheep/slide-detect-mcp/internal/detection"
	"github.com/ironsheep/slide-detect-mcp/internal/imaging"
)

// HistoryLimit is the number of most recent frames a Session remembers.
const HistoryLimit = 10

// DefaultTickInterval is how often Run checks the debounce window.
const DefaultTickInterval = 50 * time.Millisecond

// Option configures a Session.
type Option func(*Session)

// WithID sets the session id used in logs. A random UUID is used otherwise.
func WithID(id string) Option {
	return func(s *Session) {
		s.id = id
	}
}

// WithSettings replaces the default settings.
func WithSettings(settings Settings) Option {
	return func(s *Session) {
		s.settings = settings
	}
}

// WithLogger sets the logger. Sessions log nothing by default.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCollector records session metrics on c.
func WithCollector(c *Collector) Option {
	return func(s *Session) {
		s.metrics = c
	}
}

// WithClock sets the clock used to stamp frame submissions for debouncing.
func WithClock(clock func() time.Time) Option {
	return func(s *Session) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// Session detects slide changes in a stream of frames.
//
// All methods are safe for concurrent use. Analyses are serialized: at most one
// frame is being compared at any time.
type Session struct {
	id      string
	logger  *zap.Logger
	metrics *Collector
	clock   func() time.Time

	analyzeMu sync.Mutex

	mu            sync.Mutex
	settings      Settings
	generation    uint64 // bumped by Reset to discard in-flight analyses
	frames        []Frame
	slides        []SlideInfo
	previous      *Frame // frame of the last accepted change
	previousEdges *image.Gray
	current       *SlideInfo
	lastChange    time.Time
	pending       *Frame
	pendingSince  time.Time

	subMu   sync.Mutex
	subs    map[uint64]chan SlideChangeEvent
	nextSub uint64
}

// New creates a Session in the uninitialized state.
func New(opts ...Option) *Session {
	s := &Session{
		logger:   zap.NewNop(),
		clock:    time.Now,
		settings: DefaultSettings(),
		frames:   make([]Frame, 0, HistoryLimit),
		subs:     make(map[uint64]chan SlideChangeEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// ProcessFrame records a frame and makes it the pending analysis target.
//
// The frame is appended to the frame history (oldest entries beyond
// HistoryLimit are dropped). Any earlier pending frame is discarded and the
// debounce window restarts. ProcessFrame never runs pixel work.
func (s *Session) ProcessFrame(frame Frame) {
	now := s.clock()

	s.mu.Lock()
	if n := len(s.frames); n > 0 && frame.Timestamp.Before(s.frames[n-1].Timestamp) {
		s.logger.Warn("frame timestamp precedes frame history",
			zap.String("frame_id", frame.ID),
			zap.Time("timestamp", frame.Timestamp),
			zap.Time("latest", s.frames[n-1].Timestamp))
	}
	if len(s.frames) == HistoryLimit {
		copy(s.frames, s.frames[1:])
		s.frames = s.frames[:HistoryLimit-1]
	}
	s.frames = append(s.frames, frame)

	if s.pending != nil {
		s.logger.Debug("pending frame superseded",
			zap.String("frame_id", s.pending.ID),
			zap.String("by", frame.ID))
	}
	f := frame
	s.pending = &f
	s.pendingSince = now
	s.mu.Unlock()

	s.metrics.frameProcessed()
}

// Tick analyzes the pending frame if its debounce window has elapsed by now.
// It returns the accepted event, if any.
func (s *Session) Tick(now time.Time) (SlideChangeEvent, bool) {
	s.mu.Lock()
	if s.pending == nil || now.Sub(s.pendingSince) < s.settings.DebounceTime {
		s.mu.Unlock()
		return SlideChangeEvent{}, false
	}
	frame := *s.pending
	s.pending = nil
	s.mu.Unlock()

	return s.Analyze(frame)
}

// Flush analyzes the pending frame immediately, ignoring the debounce window.
func (s *Session) Flush() (SlideChangeEvent, bool) {
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return SlideChangeEvent{}, false
	}
	frame := *s.pending
	s.pending = nil
	s.mu.Unlock()

	return s.Analyze(frame)
}

// Run calls Tick every interval until ctx is done, then returns ctx.Err().
// Events reach callers through Subscribe. A non-positive interval uses
// DefaultTickInterval.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Debug("detection loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("detection loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(s.clock())
		}
	}
}

// snapshot is the state an analysis reads, captured under mu.
type snapshot struct {
	generation    uint64
	settings      Settings
	previous      *Frame
	previousEdges *image.Gray
	previousSlide *SlideInfo
	lastChange    time.Time
}

// outcome is an accepted change waiting to be committed.
type outcome struct {
	event SlideChangeEvent
	edges *image.Gray
}

// Analyze compares frame against the last accepted slide and returns the
// resulting event, if one is accepted.
//
// # Algorithm
//
//  1. Empty frames produce no event.
//  2. Cooldown: if an earlier change was accepted and
//     frame.Timestamp − lastChange < MinimumTimeBetweenChanges, no event.
//  3. First frame after New or Reset: a slide_change event with confidence 1
//     and every metric 1.
//  4. Otherwise the enabled signals are computed concurrently, combined and
//     classified. The overall score must strictly exceed the sensitivity
//     threshold, and minor content updates are dropped when
//     IgnoreMinorChanges is set.
//  5. The accepted frame becomes the comparison baseline, its SlideInfo is
//     appended to the slide history and the event is published.
//
// Analyze never panics on bad input. Failures are logged and yield no event.
// If Reset runs while an analysis is in flight, its result is discarded.
func (s *Session) Analyze(frame Frame) (SlideChangeEvent, bool) {
	s.analyzeMu.Lock()
	defer s.analyzeMu.Unlock()

	start := time.Now()
	defer func() {
		s.metrics.analysisDone(time.Since(start))
	}()

	s.mu.Lock()
	snap := snapshot{
		generation:    s.generation,
		settings:      s.settings,
		previous:      s.previous,
		previousEdges: s.previousEdges,
		lastChange:    s.lastChange,
	}
	if s.current != nil {
		prev := *s.current
		snap.previousSlide = &prev
	}
	s.mu.Unlock()

	logger := s.logger.With(zap.String("frame_id", frame.ID))

	out, reason := s.evaluate(frame, snap, logger)
	if reason != "" {
		s.metrics.suppressed(reason)
		return SlideChangeEvent{}, false
	}

	s.mu.Lock()
	if s.generation != snap.generation {
		s.mu.Unlock()
		logger.Debug("discarding analysis started before reset")
		s.metrics.suppressed(reasonReset)
		return SlideChangeEvent{}, false
	}
	baseline := frame
	slide := out.event.CurrentSlide
	s.previous = &baseline
	s.previousEdges = out.edges
	s.current = &slide
	s.lastChange = frame.Timestamp
	s.slides = append(s.slides, slide)
	s.mu.Unlock()

	logger.Info("slide change detected",
		zap.String("event_id", out.event.ID),
		zap.String("change_type", string(out.event.ChangeType)),
		zap.Float64("confidence", out.event.Confidence),
		zap.String("slide_id", slide.ID))

	s.metrics.eventEmitted(out.event.ChangeType)
	s.publish(out.event)
	return out.event, true
}

// evaluate runs the analysis pipeline. A non-empty reason means no event.
func (s *Session) evaluate(frame Frame, snap snapshot, logger *zap.Logger) (out outcome, reason string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("frame analysis panicked", zap.Any("panic", r))
			s.metrics.failureRecovered()
			out, reason = outcome{}, reasonFailure
		}
	}()

	settings := snap.settings

	if frame.Empty() {
		logger.Debug("skipping empty frame")
		return outcome{}, reasonEmptyFrame
	}

	if snap.previousSlide != nil && frame.Timestamp.Sub(snap.lastChange) < settings.MinimumTimeBetweenChanges {
		logger.Debug("within cooldown",
			zap.Duration("since_last_change", frame.Timestamp.Sub(snap.lastChange)))
		return outcome{}, reasonCooldown
	}

	if snap.previous == nil {
		edges := imaging.EdgeMap(frame.Image)
		ev := newEvent(frame, describeSlide(frame, edges, settings), nil, classify.SlideChange, 1, classify.Uniform(1))
		return outcome{event: ev, edges: edges}, ""
	}

	if frame.Width() != snap.previous.Width() || frame.Height() != snap.previous.Height() {
		logger.Warn("frame dimensions changed without reset",
			zap.Int("width", frame.Width()),
			zap.Int("height", frame.Height()),
			zap.Int("previous_width", snap.previous.Width()),
			zap.Int("previous_height", snap.previous.Height()))
		return outcome{}, reasonDimensionMismatch
	}

	m, edges, err := computeMetrics(snap.previous.Image, snap.previousEdges, frame.Image, settings)
	if err != nil {
		logger.Error("metric computation failed", zap.Error(err))
		s.metrics.failureRecovered()
		return outcome{}, reasonFailure
	}

	overall := classify.Overall(m, settings.Toggles())
	ct := classify.Classify(overall, m)

	if !classify.Exceeds(overall, settings.SensitivityThreshold) {
		logger.Debug("change below threshold",
			zap.Float64("overall", overall),
			zap.Float64("threshold", settings.SensitivityThreshold))
		return outcome{}, reasonBelowThreshold
	}
	if settings.IgnoreMinorChanges && classify.Minor(ct, overall) {
		logger.Debug("ignoring minor change", zap.Float64("overall", overall))
		return outcome{}, reasonMinorChange
	}

	ev := newEvent(frame, describeSlide(frame, edges, settings), snap.previousSlide, ct, classify.Confidence(overall), m)
	return outcome{event: ev, edges: edges}, ""
}

// computeMetrics computes the enabled signals concurrently. Disabled signals
// are reported as 0. The edge map of cur is always computed and returned so
// it can serve as the next baseline.
func computeMetrics(prev *image.RGBA, prevEdges *image.Gray, cur *image.RGBA, settings Settings) (classify.Metrics, *image.Gray, error) {
	var (
		m     classify.Metrics
		edges *image.Gray
		g     errgroup.Group
	)

	g.Go(func() (err error) {
		defer recoverSignal("visual", &err)
		m.Visual = imaging.VisualDifferenceStride(prev, cur, settings.VisualStride())
		return nil
	})

	g.Go(func() (err error) {
		defer recoverSignal("edge", &err)
		edges = imaging.EdgeMap(cur)
		if prevEdges == nil {
			prevEdges = imaging.EdgeMap(prev)
		}
		if settings.EnableStructuralAnalysis {
			m.Structural = imaging.StructuralDifferenceMaps(prevEdges, edges)
		}
		if settings.EnableEdgeDetection {
			m.Edge = imaging.EdgeDifferenceMaps(prevEdges, edges)
		}
		return nil
	})

	if settings.EnableColorAnalysis {
		g.Go(func() (err error) {
			defer recoverSignal("color", &err)
			stride := settings.HistogramStride()
			m.Color = imaging.ColorDifferenceHistograms(
				imaging.ColorHistogramStride(prev, stride),
				imaging.ColorHistogramStride(cur, stride))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return classify.Metrics{}, nil, err
	}
	return m, edges, nil
}

func recoverSignal(signal string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s signal panicked: %v", signal, r)
	}
}

// describeSlide builds the SlideInfo of an accepted frame.
func describeSlide(frame Frame, edges *image.Gray, settings Settings) SlideInfo {
	analysis := detection.Analyze(frame.Image, edges, settings.Layout, settings.HistogramStride())
	w, h := settings.thumbnailSize()
	return SlideInfo{
		ID:             uuid.NewString(),
		FrameID:        frame.ID,
		Timestamp:      frame.Timestamp,
		Thumbnail:      imaging.Thumbnail(frame.Image, w, h),
		DominantColors: analysis.DominantColors,
		Layout:         analysis.Layout,
		Metadata:       analysis.Metadata,
	}
}

func newEvent(frame Frame, slide SlideInfo, previous *SlideInfo, ct classify.ChangeType, confidence float64, m classify.Metrics) SlideChangeEvent {
	return SlideChangeEvent{
		ID:            uuid.NewString(),
		Timestamp:     frame.Timestamp,
		FrameID:       frame.ID,
		ChangeType:    ct,
		Confidence:    confidence,
		PreviousSlide: previous,
		CurrentSlide:  slide,
		Metrics:       m,
	}
}

// Subscribe registers a consumer of accepted events.
//
// Events are sent without blocking; if the channel buffer is full the event is
// dropped for this subscriber. Calling cancel unregisters the subscriber and
// closes the channel. cancel is safe to call more than once.
func (s *Session) Subscribe(buffer int) (<-chan SlideChangeEvent, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan SlideChangeEvent, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			close(ch)
			s.subMu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Session) publish(ev SlideChangeEvent) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.metrics.deliveryDropped()
			s.logger.Warn("subscriber not keeping up, event dropped",
				zap.Uint64("subscriber", id),
				zap.String("event_id", ev.ID))
		}
	}
}

// Reset returns the session to the uninitialized state. Histories, the
// comparison baseline and any pending frame are cleared. Settings and
// subscribers are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	s.generation++
	s.frames = s.frames[:0:0]
	s.slides = nil
	s.previous = nil
	s.previousEdges = nil
	s.current = nil
	s.lastChange = time.Time{}
	s.pending = nil
	s.pendingSince = time.Time{}
	s.mu.Unlock()

	s.logger.Info("session reset")
}

// UpdateSettings merges p over the current settings.
func (s *Session) UpdateSettings(p SettingsPatch) {
	s.mu.Lock()
	s.settings = s.settings.Merge(p)
	current := s.settings
	s.mu.Unlock()

	s.logger.Debug("settings updated", zap.Any("settings", current))
}

// ApplySettingsYAML merges a YAML settings document over the current settings.
// Malformed documents return an error and leave the settings unchanged.
func (s *Session) ApplySettingsYAML(data []byte) error {
	return s.applySettings(data, ParseSettingsYAML)
}

// ApplySettingsJSON is ApplySettingsYAML for a JSON object.
func (s *Session) ApplySettingsJSON(data []byte) error {
	return s.applySettings(data, ParseSettingsJSON)
}

func (s *Session) applySettings(data []byte, parse func([]byte, Settings) (SettingsPatch, error)) error {
	s.mu.Lock()
	p, err := parse(data, s.settings)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings = s.settings.Merge(p)
	current := s.settings
	s.mu.Unlock()

	s.logger.Debug("settings updated", zap.Any("settings", current))
	return nil
}

// Settings returns the current settings.
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SlideHistory returns a copy of the accepted slides, oldest first.
func (s *Session) SlideHistory() []SlideInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SlideInfo(nil), s.slides...)
}

// FrameHistory returns a copy of the most recent frames, oldest first.
func (s *Session) FrameHistory() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Frame(nil), s.frames...)
}

// CurrentSlide returns the latest accepted slide, or nil before the first one.
func (s *Session) CurrentSlide() *SlideInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	slide := *s.current
	return &slide
}

// Stats summarizes the accepted slides and current settings.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalSlides:    len(s.slides),
		LastChangeTime: s.lastChange,
		Settings:       s.settings,
	}
	if n := len(s.slides); n > 1 {
		st.AverageSlideTime = s.slides[n-1].Timestamp.Sub(s.slides[0].Timestamp) / time.Duration(n-1)
	}
	return st
}

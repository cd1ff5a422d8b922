package session

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ironsheep/slide-detect-mcp/internal/classify"
)

// Suppression reasons reported by the Collector.
const (
	reasonCooldown          = "cooldown"
	reasonBelowThreshold    = "below_threshold"
	reasonMinorChange       = "minor_change"
	reasonEmptyFrame        = "empty_frame"
	reasonDimensionMismatch = "dimension_mismatch"
	reasonReset             = "reset"
	reasonFailure           = "failure"
)

// Collector holds the Prometheus metrics of one or more sessions.
//
// A nil *Collector is valid and records nothing, so sessions built without
// WithCollector pay no metrics cost.
type Collector struct {
	framesProcessed   prometheus.Counter
	analyses          prometheus.Counter
	events            *prometheus.CounterVec
	suppressions      *prometheus.CounterVec
	analysisDuration  prometheus.Histogram
	droppedDeliveries prometheus.Counter
	recoveredFailures prometheus.Counter
}

// NewCollector creates the session metrics under the given namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		framesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_processed_total",
			Help:      "Total number of frames submitted to detection sessions",
		}),
		analyses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Total number of frame analyses run",
		}),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "slide_changes_total",
				Help:      "Total number of emitted change events",
			},
			[]string{"change_type"},
		),
		suppressions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "suppressed_analyses_total",
				Help:      "Total number of analyses that produced no event",
			},
			[]string{"reason"}, // cooldown, below_threshold, minor_change, empty_frame, dimension_mismatch, reset, failure
		),
		analysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Histogram of frame analysis duration in seconds",
			Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		droppedDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_deliveries_total",
			Help:      "Total number of events not delivered to a full subscriber",
		}),
		recoveredFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recovered_failures_total",
			Help:      "Total number of analysis panics recovered",
		}),
	}
}

// Register registers every metric with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, m := range c.all() {
		if err := reg.Register(m); err != nil {
			return fmt.Errorf("failed to register session metrics: %w", err)
		}
	}
	return nil
}

func (c *Collector) all() []prometheus.Collector {
	return []prometheus.Collector{
		c.framesProcessed,
		c.analyses,
		c.events,
		c.suppressions,
		c.analysisDuration,
		c.droppedDeliveries,
		c.recoveredFailures,
	}
}

func (c *Collector) frameProcessed() {
	if c == nil {
		return
	}
	c.framesProcessed.Inc()
}

func (c *Collector) analysisDone(d time.Duration) {
	if c == nil {
		return
	}
	c.analyses.Inc()
	c.analysisDuration.Observe(d.Seconds())
}

func (c *Collector) eventEmitted(ct classify.ChangeType) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(string(ct)).Inc()
}

func (c *Collector) suppressed(reason string) {
	if c == nil {
		return
	}
	c.suppressions.WithLabelValues(reason).Inc()
}

func (c *Collector) deliveryDropped() {
	if c == nil {
		return
	}
	c.droppedDeliveries.Inc()
}

func (c *Collector) failureRecovered() {
	if c == nil {
		return
	}
	c.recoveredFailures.Inc()
}

// Package metrics - Prometheus instrumentation for the detector.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "detect"

// Collector owns a private registry with the detector's series.
type Collector struct {
	registry *prometheus.Registry

	FramesTotal      prometheus.Counter
	FramesEmpty      prometheus.Counter
	FramesDropped    prometheus.Counter
	FrameErrors      prometheus.Counter
	DetectionsTotal  *prometheus.CounterVec
	CandidatesTotal  prometheus.Counter
	InferenceSeconds prometheus.Histogram
}

// New creates a collector. withProcess adds the Go runtime and process
// collectors to its registry.
func New(withProcess bool) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		FramesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames run through the model.",
		}),
		FramesEmpty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_empty_total",
			Help:      "Frames that produced no detections.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames dropped because another frame was in flight.",
		}),
		FrameErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_errors_total",
			Help:      "Frames that failed in preprocessing, inference or decoding.",
		}),
		DetectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Boxes kept after suppression, by class name.",
		}, []string{"class"}),
		CandidatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_total",
			Help:      "Boxes that cleared the confidence and range filters, before suppression.",
		}),
		InferenceSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_seconds",
			Help:      "Model run time per frame.",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2, 12),
		}),
	}

	c.registry.MustRegister(
		c.FramesTotal,
		c.FramesEmpty,
		c.FramesDropped,
		c.FrameErrors,
		c.DetectionsTotal,
		c.CandidatesTotal,
		c.InferenceSeconds,
	)
	if withProcess {
		c.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return c
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// ObserveFrame records one processed frame.
//
// Arguments:
//   - inference: The model run time.
//   - candidates: Boxes before suppression.
//   - classes: The class name of every kept box.
func (c *Collector) ObserveFrame(inference time.Duration, candidates int, classes []string) {
	c.FramesTotal.Inc()
	c.InferenceSeconds.Observe(inference.Seconds())
	c.CandidatesTotal.Add(float64(candidates))
	if len(classes) == 0 {
		c.FramesEmpty.Inc()
		return
	}
	for _, name := range classes {
		c.DetectionsTotal.WithLabelValues(name).Inc()
	}
}

// ObserveDropped records a frame rejected while another was in flight.
func (c *Collector) ObserveDropped() {
	c.FramesDropped.Inc()
}

// ObserveError records a failed frame.
func (c *Collector) ObserveError() {
	c.FrameErrors.Inc()
}

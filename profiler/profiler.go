// Package profiler - Windowed timing statistics for the detection pipeline stages.
package profiler

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Stage names recorded by the detector.
const (
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageDecode     = "decode"
	StageFrame      = "frame"
)

// Stats summarizes the retained samples of one stage.
type Stats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Last  time.Duration `json:"last"`
}

// PerSecond is the throughput implied by the average duration.
func (s Stats) PerSecond() float64 {
	if s.Avg <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Avg)
}

// timeTracker keeps the most recent durations of one stage.
type timeTracker struct {
	durations []time.Duration
	total     time.Duration
	count     int64
}

// Options configures a Profiler.
type Options struct {
	// ReportInterval specifies how often Start logs a report (default: 10s).
	ReportInterval time.Duration `json:"report_interval" yaml:"report_interval"`
	// MaxSamples is the window size per stage (default: 300).
	MaxSamples int `json:"max_samples" yaml:"max_samples"`
}

// Profiler tracks per-stage timings over a sliding window. It is safe for
// concurrent use.
type Profiler struct {
	reportInterval time.Duration
	maxSamples     int

	mu     sync.RWMutex
	stages map[string]*timeTracker

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a profiler with the given options.
//
// Arguments:
// - opts: Window and report settings; zero values take defaults.
//
// Returns:
// - A ready Profiler.
func New(opts Options) *Profiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 10 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 300
	}
	return &Profiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		stages:         make(map[string]*timeTracker),
	}
}

// StartOperation begins timing a stage and returns the function that ends it.
//
// @example
// done := p.StartOperation(profiler.StageInference)
// output, err := rt.Run(ctx, input)
// done()
func (p *Profiler) StartOperation(name string) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		d := time.Since(start)
		p.Record(name, d)
		return d
	}
}

// Record adds one duration sample to a stage.
func (p *Profiler) Record(name string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.stages[name]
	if !ok {
		t = &timeTracker{durations: make([]time.Duration, 0, p.maxSamples)}
		p.stages[name] = t
	}
	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > p.maxSamples {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
}

// Stats returns the window summary for one stage.
func (p *Profiler) Stats(name string) (Stats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	t, ok := p.stages[name]
	if !ok || len(t.durations) == 0 {
		return Stats{Name: name}, false
	}
	s := Stats{
		Name:  name,
		Count: t.count,
		Avg:   t.total / time.Duration(len(t.durations)),
		Min:   t.durations[0],
		Max:   t.durations[0],
		Last:  t.durations[len(t.durations)-1],
	}
	for _, d := range t.durations[1:] {
		if d < s.Min {
			s.Min = d
		}
		if d > s.Max {
			s.Max = d
		}
	}
	return s, true
}

// Snapshot returns every stage's summary ordered by name.
func (p *Profiler) Snapshot() []Stats {
	p.mu.RLock()
	names := make([]string, 0, len(p.stages))
	for name := range p.stages {
		names = append(names, name)
	}
	p.mu.RUnlock()

	sort.Strings(names)
	out := make([]Stats, 0, len(names))
	for _, name := range names {
		if s, ok := p.Stats(name); ok {
			out = append(out, s)
		}
	}
	return out
}

// Report logs the current snapshot, one entry per stage.
func (p *Profiler) Report(log *zap.Logger) {
	for _, s := range p.Snapshot() {
		log.Info("stage timings",
			zap.String("stage", s.Name),
			zap.Int64("count", s.Count),
			zap.Duration("avg", s.Avg),
			zap.Duration("min", s.Min),
			zap.Duration("max", s.Max),
			zap.Float64("per_second", s.PerSecond()),
		)
	}
}

// Start logs a report every ReportInterval until Stop. Calling Start on a
// running profiler does nothing.
func (p *Profiler) Start(log *zap.Logger) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.reportInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Report(log)
			}
		}
	}()
}

// Stop ends periodic reporting and waits for the reporter to exit.
func (p *Profiler) Stop() {
	p.runMu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

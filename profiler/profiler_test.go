package profiler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRecordAndStats(t *testing.T) {
	p := New(Options{MaxSamples: 3})

	_, ok := p.Stats(StageInference)
	assert.False(t, ok)

	for _, ms := range []int{40, 10, 20, 30} {
		p.Record(StageInference, time.Duration(ms)*time.Millisecond)
	}

	s, ok := p.Stats(StageInference)
	require.True(t, ok)
	assert.Equal(t, int64(4), s.Count)
	assert.Equal(t, 20*time.Millisecond, s.Avg, "the oldest sample leaves the window")
	assert.Equal(t, 10*time.Millisecond, s.Min)
	assert.Equal(t, 30*time.Millisecond, s.Max)
	assert.Equal(t, 30*time.Millisecond, s.Last)
	assert.InDelta(t, 50, s.PerSecond(), 1e-9)
	assert.Zero(t, Stats{}.PerSecond())
}

func TestStartOperation(t *testing.T) {
	p := New(Options{})
	done := p.StartOperation(StageDecode)
	d := done()

	s, ok := p.Stats(StageDecode)
	require.True(t, ok)
	assert.Equal(t, d, s.Last)
}

func TestSnapshotIsSorted(t *testing.T) {
	p := New(Options{})
	p.Record(StagePreprocess, time.Millisecond)
	p.Record(StageDecode, time.Millisecond)
	p.Record(StageInference, time.Millisecond)

	var names []string
	for _, s := range p.Snapshot() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{StageDecode, StageInference, StagePreprocess}, names)
}

func TestReport(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := New(Options{})
	p.Record(StageFrame, 5*time.Millisecond)

	p.Report(zap.New(core))
	entries := logs.FilterMessage("stage timings").All()
	require.Len(t, entries, 1)
	assert.Equal(t, StageFrame, entries[0].ContextMap()["stage"])
}

func TestStartStop(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := New(Options{ReportInterval: 5 * time.Millisecond})
	p.Record(StageFrame, time.Millisecond)

	p.Start(zap.New(core))
	p.Start(zap.New(core))
	assert.Eventually(t, func() bool { return logs.Len() > 0 }, time.Second, 5*time.Millisecond)
	p.Stop()
	p.Stop()
}

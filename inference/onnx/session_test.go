package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func TestPlanDefaults(t *testing.T) {
	p, err := Options{ModelPath: "yolo11n.onnx"}.plan()
	require.NoError(t, err)
	assert.Equal(t, ort.GraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended), p.level)
	assert.Equal(t, ort.ExecutionMode(ort.ExecutionModeParallel), p.mode)
	assert.Empty(t, p.providers)
	assert.Zero(t, p.intraOp)
	assert.Zero(t, p.interOp)
}

func TestPlanMapping(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		level ort.GraphOptimizationLevel
		mode  ort.ExecutionMode
	}{
		{"disabled", Options{Optimization: OptimizationDisabled}, ort.GraphOptimizationLevelDisableAll, ort.ExecutionModeParallel},
		{"basic", Options{Optimization: OptimizationBasic}, ort.GraphOptimizationLevelEnableBasic, ort.ExecutionModeParallel},
		{"extended", Options{Optimization: OptimizationExtended}, ort.GraphOptimizationLevelEnableExtended, ort.ExecutionModeParallel},
		{"all sequential", Options{Optimization: OptimizationAll, ExecutionMode: ExecutionSequential}, ort.GraphOptimizationLevelEnableAll, ort.ExecutionModeSequential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.opts.plan()
			require.NoError(t, err)
			assert.Equal(t, tt.level, p.level)
			assert.Equal(t, tt.mode, p.mode)
		})
	}
}

func TestPlanProviders(t *testing.T) {
	p, err := Options{
		Providers:      []Provider{ProviderCPU, ProviderCUDA, ProviderOpenVINO, ProviderCUDA, ProviderCoreML},
		DeviceID:       2,
		IntraOpThreads: 4,
		InterOpThreads: 1,
	}.plan()
	require.NoError(t, err)
	assert.Equal(t, []Provider{ProviderCUDA, ProviderOpenVINO, ProviderCoreML}, p.providers)
	assert.Equal(t, 2, p.deviceID)
	assert.Equal(t, 4, p.intraOp)
	assert.Equal(t, 1, p.interOp)
}

func TestPlanRejects(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"unknown level", Options{Optimization: "max"}},
		{"unknown mode", Options{ExecutionMode: "async"}},
		{"unknown provider", Options{Providers: []Provider{"tpu"}}},
		{"negative threads", Options{IntraOpThreads: -1}},
		{"negative warmup", Options{Warmup: -2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.plan()
			assert.Error(t, err)
		})
	}
}

func TestOpenRejectsBadPlanBeforeLoading(t *testing.T) {
	rt, err := Open(Options{ModelPath: "yolo11n.onnx", Providers: []Provider{"tpu"}})
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "unsupported execution provider")
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/models"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, float32(0.7), cfg.Decoder.ConfidenceThreshold)
	assert.Equal(t, float32(0.7), cfg.Decoder.NMS.IoUThreshold)
	assert.False(t, cfg.Decoder.NMS.ClassAware)
	assert.Equal(t, models.DefaultUnknownLabel, cfg.Decoder.UnknownLabel)
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
model:
  path: models/yolo11n_float32.tflite
  runtime: tflite
  threads: 4
decoder:
  confidence_threshold: 0.5
  nms:
    iou_threshold: 0.45
    class_aware: true
server:
  addr: ":9000"
profiler:
  report_interval: 30s
`))
	require.NoError(t, err)

	assert.Equal(t, models.RuntimeTFLite, cfg.Model.Runtime)
	assert.Equal(t, 4, cfg.Model.Threads)
	assert.Equal(t, float32(0.5), cfg.Decoder.ConfidenceThreshold)
	assert.Equal(t, float32(0.45), cfg.Decoder.NMS.IoUThreshold)
	assert.True(t, cfg.Decoder.NMS.ClassAware)
	assert.Equal(t, models.DefaultUnknownLabel, cfg.Decoder.UnknownLabel, "unset fields keep defaults")
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, int64(16<<20), cfg.Server.MaxUploadBytes)
	assert.Equal(t, 30*time.Second, cfg.Profiler.ReportInterval)
}

func TestParseONNXSession(t *testing.T) {
	cfg, err := Parse([]byte(`
model:
  optimization: all
  execution_mode: sequential
  providers: [cuda, openvino]
  device_id: 1
  warmup: 3
`))
	require.NoError(t, err)
	assert.Equal(t, "all", cfg.Model.Optimization)
	assert.Equal(t, "sequential", cfg.Model.ExecutionMode)
	assert.Equal(t, []string{"cuda", "openvino"}, cfg.Model.Providers)
	assert.Equal(t, 1, cfg.Model.DeviceID)
	assert.Equal(t, 3, cfg.Model.Warmup)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown runtime", "model: {runtime: coreml}"},
		{"empty model path", "model: {path: ''}"},
		{"negative threads", "model: {threads: -1}"},
		{"negative warmup", "model: {warmup: -1}"},
		{"confidence of one", "decoder: {confidence_threshold: 1}"},
		{"zero iou", "decoder: {nms: {iou_threshold: 0}}"},
		{"zero upload limit", "server: {max_upload_bytes: 0}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}

	_, err := Parse([]byte("model: [unclosed"))
	assert.Error(t, err)
}

func TestLoadAndMarshal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data, err := Default().Marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLabels(t *testing.T) {
	cfg := Default()
	labels, err := cfg.Labels()
	require.NoError(t, err)
	assert.Equal(t, models.COCOLabels, labels)

	path := filepath.Join(t.TempDir(), "labels.txt")
	require.NoError(t, os.WriteFile(path, []byte("cat\ndog\n"), 0o600))
	cfg.Model.Labels = path
	labels, err = cfg.Labels()
	require.NoError(t, err)
	assert.Equal(t, models.Labels{"cat", "dog"}, labels)
}

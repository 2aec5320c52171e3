// Package config - YAML configuration for the detector binaries.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/yolo11"
	"github.com/nvr-ai/go-detect/profiler"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Model selects the model file and the runtime that executes it.
type Model struct {
	// Path is the .onnx or .tflite model file.
	Path string `json:"path" yaml:"path"`
	// Runtime is "onnx" or "tflite".
	Runtime models.Runtime `json:"runtime" yaml:"runtime"`
	// Labels is a label file, one name per line. Empty uses the COCO labels.
	Labels string `json:"labels" yaml:"labels"`
	// LibraryPath is the onnxruntime shared library.
	LibraryPath string `json:"library_path" yaml:"library_path"`
	// InputName and OutputName pick tensors on multi-io ONNX models.
	InputName  string `json:"input_name" yaml:"input_name"`
	OutputName string `json:"output_name" yaml:"output_name"`
	// Threads is the runtime thread count; 0 keeps the runtime default.
	Threads int `json:"threads" yaml:"threads"`
	// Optimization is the ONNX graph optimization level: disabled, basic,
	// extended or all.
	Optimization string `json:"optimization" yaml:"optimization"`
	// ExecutionMode is the ONNX execution mode: sequential or parallel.
	ExecutionMode string `json:"execution_mode" yaml:"execution_mode"`
	// Providers are ONNX accelerators tried in order (cuda, coreml, openvino).
	Providers []string `json:"providers,omitempty" yaml:"providers,omitempty"`
	// DeviceID selects the GPU for CUDA.
	DeviceID int `json:"device_id" yaml:"device_id"`
	// Warmup is the number of ONNX runs made before the first frame.
	Warmup int `json:"warmup" yaml:"warmup"`
}

// Camera configures the live capture binary.
type Camera struct {
	Device int    `json:"device" yaml:"device"`
	Window string `json:"window" yaml:"window"`
}

// Server configures the HTTP API.
type Server struct {
	Addr string `json:"addr" yaml:"addr"`
	// MaxUploadBytes bounds the size of a posted frame.
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes"`
	// Metrics exposes /metrics when true.
	Metrics bool `json:"metrics" yaml:"metrics"`
}

// Log configures the zap logger.
type Log struct {
	Development bool   `json:"development" yaml:"development"`
	Level       string `json:"level" yaml:"level"`
}

// Config is the complete configuration file.
type Config struct {
	Model    Model            `json:"model" yaml:"model"`
	Decoder  yolo11.Options   `json:"decoder" yaml:"decoder"`
	Camera   Camera           `json:"camera" yaml:"camera"`
	Server   Server           `json:"server" yaml:"server"`
	Log      Log              `json:"log" yaml:"log"`
	Profiler profiler.Options `json:"profiler" yaml:"profiler"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Model: Model{
			Path:    "yolo11n.onnx",
			Runtime: models.RuntimeONNX,
		},
		Decoder: yolo11.DefaultOptions(),
		Camera:  Camera{Device: 0, Window: "detect"},
		Server: Server{
			Addr:           ":8080",
			MaxUploadBytes: 16 << 20,
			Metrics:        true,
		},
		Log: Log{Level: "info"},
	}
}

// Parse decodes YAML over Default() and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "failed to parse config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config %s", path)
	}
	return Parse(data)
}

// Validate checks every field a binary depends on.
func (c Config) Validate() error {
	if c.Model.Path == "" {
		return errors.Wrap(ErrInvalidConfig, "model.path is required")
	}
	if !c.Model.Runtime.Valid() {
		return errors.Wrapf(ErrInvalidConfig, "model.runtime %q, want one of %v", c.Model.Runtime, models.Runtimes)
	}
	if c.Model.Threads < 0 {
		return errors.Wrapf(ErrInvalidConfig, "model.threads %d", c.Model.Threads)
	}
	if c.Model.Warmup < 0 {
		return errors.Wrapf(ErrInvalidConfig, "model.warmup %d", c.Model.Warmup)
	}
	if err := c.Decoder.Validate(); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "server.max_upload_bytes %d", c.Server.MaxUploadBytes)
	}
	return nil
}

// Labels loads the configured label file, or returns the COCO labels.
func (c Config) Labels() (models.Labels, error) {
	if c.Model.Labels == "" {
		return models.COCOLabels, nil
	}
	return models.LoadLabels(c.Model.Labels)
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

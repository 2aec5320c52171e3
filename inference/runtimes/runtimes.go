// Package runtimes - Opens the configured inference runtime.
package runtimes

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/inference/onnx"
	"github.com/nvr-ai/go-detect/inference/tflite"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
)

// Open returns a ready runtime for the configured model.
func Open(cfg config.Model) (inference.Runtime, error) {
	switch cfg.Runtime {
	case models.RuntimeONNX:
		rt, err := onnx.Open(onnxOptions(cfg))
		if err != nil {
			return nil, err
		}
		return rt, nil
	case models.RuntimeTFLite:
		rt, err := tflite.Open(tflite.Options{
			ModelPath: cfg.Path,
			Threads:   cfg.Threads,
		})
		if err != nil {
			return nil, err
		}
		return rt, nil
	default:
		return nil, errors.Errorf("unsupported runtime %q", cfg.Runtime)
	}
}

// onnxOptions maps the model config onto ONNX session options.
func onnxOptions(cfg config.Model) onnx.Options {
	providers := make([]onnx.Provider, len(cfg.Providers))
	for i, p := range cfg.Providers {
		providers[i] = onnx.Provider(p)
	}
	return onnx.Options{
		ModelPath:      cfg.Path,
		LibraryPath:    cfg.LibraryPath,
		InputName:      cfg.InputName,
		OutputName:     cfg.OutputName,
		IntraOpThreads: cfg.Threads,
		Optimization:   onnx.OptimizationLevel(cfg.Optimization),
		ExecutionMode:  onnx.ExecutionMode(cfg.ExecutionMode),
		Providers:      providers,
		DeviceID:       cfg.DeviceID,
		Warmup:         cfg.Warmup,
		Logger:         logger.Named("onnx"),
	}
}

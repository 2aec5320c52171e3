package onnx

import (
	"strconv"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// OptimizationLevel names an ORT graph optimization level.
type OptimizationLevel string

const (
	OptimizationDisabled OptimizationLevel = "disabled"
	OptimizationBasic    OptimizationLevel = "basic"
	OptimizationExtended OptimizationLevel = "extended"
	OptimizationAll      OptimizationLevel = "all"
)

// ExecutionMode names how ORT schedules independent graph nodes.
type ExecutionMode string

const (
	ExecutionSequential ExecutionMode = "sequential"
	ExecutionParallel   ExecutionMode = "parallel"
)

// Provider names an execution provider. The CPU provider is always present
// and serves as the fallback for any accelerator that fails to attach.
type Provider string

const (
	ProviderCPU      Provider = "cpu"
	ProviderCUDA     Provider = "cuda"
	ProviderCoreML   Provider = "coreml"
	ProviderOpenVINO Provider = "openvino"
)

// sessionPlan is Options resolved to ORT values.
type sessionPlan struct {
	level     ort.GraphOptimizationLevel
	mode      ort.ExecutionMode
	intraOp   int
	interOp   int
	providers []Provider
	deviceID  int
}

// plan resolves the session settings in opts. Empty levels and modes take
// the extended and parallel defaults; providers keep their order with
// duplicates and "cpu" removed.
func (opts Options) plan() (sessionPlan, error) {
	p := sessionPlan{
		intraOp:  opts.IntraOpThreads,
		interOp:  opts.InterOpThreads,
		deviceID: opts.DeviceID,
	}

	switch opts.Optimization {
	case "", OptimizationExtended:
		p.level = ort.GraphOptimizationLevelEnableExtended
	case OptimizationDisabled:
		p.level = ort.GraphOptimizationLevelDisableAll
	case OptimizationBasic:
		p.level = ort.GraphOptimizationLevelEnableBasic
	case OptimizationAll:
		p.level = ort.GraphOptimizationLevelEnableAll
	default:
		return sessionPlan{}, errors.Errorf("onnx: unknown optimization level %q", opts.Optimization)
	}

	switch opts.ExecutionMode {
	case "", ExecutionParallel:
		p.mode = ort.ExecutionModeParallel
	case ExecutionSequential:
		p.mode = ort.ExecutionModeSequential
	default:
		return sessionPlan{}, errors.Errorf("onnx: unknown execution mode %q", opts.ExecutionMode)
	}

	if opts.IntraOpThreads < 0 || opts.InterOpThreads < 0 {
		return sessionPlan{}, errors.New("onnx: thread counts must not be negative")
	}
	if opts.Warmup < 0 {
		return sessionPlan{}, errors.New("onnx: warmup runs must not be negative")
	}

	seen := map[Provider]bool{}
	for _, provider := range opts.Providers {
		switch provider {
		case ProviderCPU:
			continue
		case ProviderCUDA, ProviderCoreML, ProviderOpenVINO:
		default:
			return sessionPlan{}, errors.Errorf("onnx: unsupported execution provider %q", provider)
		}
		if !seen[provider] {
			seen[provider] = true
			p.providers = append(p.providers, provider)
		}
	}
	return p, nil
}

// sessionOptions builds ORT session options from a plan.
//
// Arguments:
//   - p: The resolved plan.
//   - log: Receives a warning for every provider that cannot attach.
//
// Returns:
//   - *ort.SessionOptions: Options the caller must Destroy.
//   - []Provider: The providers that attached; CPU runs whatever they do not.
//   - error: An error if the options cannot be created or configured.
func sessionOptions(p sessionPlan, log *zap.Logger) (*ort.SessionOptions, []Provider, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating ORT session options")
	}

	if err := options.SetGraphOptimizationLevel(p.level); err != nil {
		options.Destroy()
		return nil, nil, errors.Wrap(err, "error setting graph optimization level")
	}
	if err := options.SetExecutionMode(p.mode); err != nil {
		options.Destroy()
		return nil, nil, errors.Wrap(err, "error setting execution mode")
	}
	if p.intraOp > 0 {
		if err := options.SetIntraOpNumThreads(p.intraOp); err != nil {
			options.Destroy()
			return nil, nil, errors.Wrap(err, "error setting intra-op threads")
		}
	}
	if p.interOp > 0 {
		if err := options.SetInterOpNumThreads(p.interOp); err != nil {
			options.Destroy()
			return nil, nil, errors.Wrap(err, "error setting inter-op threads")
		}
	}

	var attached []Provider
	for _, provider := range p.providers {
		if err := appendProvider(options, provider, p.deviceID); err != nil {
			log.Warn("execution provider unavailable, falling back",
				zap.String("provider", string(provider)), zap.Error(err))
			continue
		}
		attached = append(attached, provider)
	}
	return options, attached, nil
}

func appendProvider(options *ort.SessionOptions, provider Provider, deviceID int) error {
	switch provider {
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return err
		}
		defer cuda.Destroy()
		if err := cuda.Update(map[string]string{"device_id": strconv.Itoa(deviceID)}); err != nil {
			return err
		}
		return options.AppendExecutionProviderCUDA(cuda)
	case ProviderCoreML:
		return options.AppendExecutionProviderCoreML(0)
	case ProviderOpenVINO:
		return options.AppendExecutionProviderOpenVINO(map[string]string{})
	default:
		return errors.Errorf("unsupported execution provider %q", provider)
	}
}

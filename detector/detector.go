// Package detector - Per-frame object detection over an inference runtime.
//
// A Detector owns one runtime and one decoder. Frames are preprocessed into
// the runtime's input tensor, run, and decoded into suppressed boxes. Detect
// and Submit deliver results to a Listener and drop any frame that arrives
// while another is still being processed.
package detector

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/metrics"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/models/yolo11"
	"github.com/nvr-ai/go-detect/profiler"
)

var (
	// ErrBusy is returned when a frame arrives while another is in flight.
	// The frame is dropped.
	ErrBusy = errors.New("detector: busy, frame dropped")
	// ErrClosed is returned by every call after Close.
	ErrClosed = errors.New("detector: closed")
)

// Listener receives the outcome of every scheduled frame.
type Listener interface {
	// OnEmptyDetect is called when a frame produced no detections.
	OnEmptyDetect()
	// OnDetect is called with the kept boxes, highest confidence first, and
	// the time spent preparing the input and running the model.
	OnDetect(boxes []common.BoundingBox, inferenceTime time.Duration)
}

// ListenerFuncs adapts two functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	Empty  func()
	Detect func(boxes []common.BoundingBox, inferenceTime time.Duration)
}

// OnEmptyDetect implements Listener.
func (f ListenerFuncs) OnEmptyDetect() {
	if f.Empty != nil {
		f.Empty()
	}
}

// OnDetect implements Listener.
func (f ListenerFuncs) OnDetect(boxes []common.BoundingBox, inferenceTime time.Duration) {
	if f.Detect != nil {
		f.Detect(boxes, inferenceTime)
	}
}

// Config holds the decoder thresholds and optional instrumentation.
type Config struct {
	// Options are the decoder thresholds.
	Options yolo11.Options
	// Logger defaults to logger.Named("detector").
	Logger *zap.Logger
	// Metrics is optional.
	Metrics *metrics.Collector
	// Profiler is optional.
	Profiler *profiler.Profiler
}

// Frame is the outcome of one processed frame.
type Frame struct {
	postprocess.Result
	// InferenceTime covers preprocessing and the model run.
	InferenceTime time.Duration `json:"inference_time"`
	// Width and Height are the source frame size, for projecting boxes.
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Detector runs frames through a runtime and decodes the output.
type Detector struct {
	runtime    inference.Runtime
	outputDims []int
	decoder    *yolo11.Decoder
	pre        images.Preprocessor
	listener   Listener

	log      *zap.Logger
	metrics  *metrics.Collector
	profiler *profiler.Profiler

	// mu guards input and serializes runtime access.
	mu    sync.Mutex
	input []float32

	// stateMu orders acquire against Close.
	stateMu sync.Mutex
	busy    atomic.Bool
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// New builds a Detector over a ready runtime. The input geometry and the
// output shape are read from the runtime.
//
// Arguments:
//   - rt: The runtime. The Detector closes it on Close.
//   - labels: Class names indexed by class id.
//   - listener: Receives Detect and Submit outcomes; may be nil when only
//     Process is used.
//   - cfg: Thresholds and instrumentation.
//
// Returns:
//   - *Detector: The ready detector.
//   - error: An unsupported input tensor, yolo11.ErrInvalidShape, or
//     yolo11.ErrInvalidOptions.
func New(rt inference.Runtime, labels models.Labels, listener Listener, cfg Config) (*Detector, error) {
	if rt == nil {
		return nil, errors.New("detector: nil runtime")
	}
	pre, err := inference.NewPreprocessor(rt)
	if err != nil {
		return nil, err
	}
	shape, err := yolo11.ShapeFromDims(rt.Output().Shape)
	if err != nil {
		return nil, err
	}
	decoder, err := yolo11.NewDecoder(shape, labels, cfg.Options)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Named("detector")
	}
	log.Info("detector ready",
		zap.Stringer("input", rt.Input()),
		zap.Stringer("output", rt.Output()),
		zap.Stringer("layout", pre.Order),
		zap.Int("classes", shape.NumClasses()),
		zap.Float32("confidence_threshold", cfg.Options.ConfidenceThreshold),
		zap.Float32("iou_threshold", cfg.Options.NMS.IoUThreshold),
	)

	return &Detector{
		runtime:    rt,
		outputDims: append([]int(nil), rt.Output().Shape...),
		decoder:    decoder,
		pre:        pre,
		listener:   listener,
		log:        log,
		metrics:    cfg.Metrics,
		profiler:   cfg.Profiler,
		input:      make([]float32, pre.Len()),
	}, nil
}

// Decoder returns the detector's decoder.
func (d *Detector) Decoder() *yolo11.Decoder {
	return d.decoder
}

// Preprocessor returns the input preparation settings.
func (d *Detector) Preprocessor() images.Preprocessor {
	return d.pre
}

// Process runs one frame synchronously and returns its result. Concurrent
// calls are serialized; they are not dropped.
func (d *Detector) Process(ctx context.Context, img image.Image) (Frame, error) {
	if d.closed.Load() {
		return Frame{}, ErrClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Close may have run while this call waited for mu.
	if d.closed.Load() {
		return Frame{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if img == nil {
		return Frame{}, errors.Wrap(images.ErrInvalidInput, "nil frame")
	}

	endFrame := d.stage(profiler.StageFrame)
	start := time.Now()

	endPre := d.stage(profiler.StagePreprocess)
	if err := d.pre.PreprocessInto(img, d.input); err != nil {
		d.observeError()
		return Frame{}, errors.Wrap(err, "preprocess failed")
	}
	endPre()

	endRun := d.stage(profiler.StageInference)
	output, err := d.runtime.Run(ctx, d.input)
	if err != nil {
		d.observeError()
		return Frame{}, errors.Wrap(err, "inference failed")
	}
	endRun()
	inferenceTime := time.Since(start)

	endDecode := d.stage(profiler.StageDecode)
	dense, err := yolo11.WrapOutput(d.outputDims, output)
	if err != nil {
		d.observeError()
		return Frame{}, errors.Wrap(err, "decode failed")
	}
	result, err := d.decoder.DecodeDense(dense)
	if err != nil {
		d.observeError()
		return Frame{}, errors.Wrap(err, "decode failed")
	}
	endDecode()
	endFrame()

	if d.metrics != nil {
		classes := make([]string, len(result.Boxes))
		for i, b := range result.Boxes {
			classes[i] = b.ClassName
		}
		d.metrics.ObserveFrame(inferenceTime, result.Candidates, classes)
	}

	b := img.Bounds()
	d.log.Debug("frame processed",
		zap.Int("candidates", result.Candidates),
		zap.Int("detections", len(result.Boxes)),
		zap.Duration("inference_time", inferenceTime),
	)
	return Frame{Result: result, InferenceTime: inferenceTime, Width: b.Dx(), Height: b.Dy()}, nil
}

// TryProcess is Process with Detect's scheduling: when another frame is in
// flight it returns ErrBusy without touching the runtime.
func (d *Detector) TryProcess(ctx context.Context, img image.Image) (Frame, error) {
	if err := d.acquire(false); err != nil {
		return Frame{}, err
	}
	defer d.busy.Store(false)
	return d.Process(ctx, img)
}

// Detect processes a frame and reports it to the listener. When another
// Detect or Submit is in flight the frame is dropped and ErrBusy returned.
func (d *Detector) Detect(ctx context.Context, img image.Image) error {
	if err := d.acquire(false); err != nil {
		return err
	}
	defer d.busy.Store(false)
	return d.deliver(ctx, img)
}

// Submit schedules a frame in the background and reports whether it was
// accepted. A frame is refused while another is in flight or after Close.
// Failures are logged; results go to the listener.
func (d *Detector) Submit(ctx context.Context, img image.Image) bool {
	if err := d.acquire(true); err != nil {
		return false
	}
	go func() {
		defer d.wg.Done()
		defer d.busy.Store(false)
		_ = d.deliver(ctx, img)
	}()
	return true
}

// Busy reports whether a scheduled frame is in flight.
func (d *Detector) Busy() bool {
	return d.busy.Load()
}

// Close waits for a submitted frame to finish and closes the runtime.
func (d *Detector) Close() error {
	d.stateMu.Lock()
	if d.closed.Load() {
		d.stateMu.Unlock()
		return ErrClosed
	}
	d.closed.Store(true)
	d.stateMu.Unlock()
	d.wg.Wait()

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.runtime.Close(); err != nil {
		return errors.Wrap(err, "failed to close runtime")
	}
	d.log.Info("detector closed")
	return nil
}

// acquire claims the in-flight slot. async also registers the frame with
// the WaitGroup Close waits on.
func (d *Detector) acquire(async bool) error {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	if d.closed.Load() {
		return ErrClosed
	}
	if !d.busy.CompareAndSwap(false, true) {
		if d.metrics != nil {
			d.metrics.ObserveDropped()
		}
		d.log.Debug("frame dropped, detector busy")
		return ErrBusy
	}
	if async {
		d.wg.Add(1)
	}
	return nil
}

func (d *Detector) deliver(ctx context.Context, img image.Image) error {
	frame, err := d.Process(ctx, img)
	if err != nil {
		d.log.Warn("frame failed", zap.Error(err))
		return err
	}
	if d.listener == nil {
		return nil
	}
	if frame.Empty() {
		d.listener.OnEmptyDetect()
		return nil
	}
	d.listener.OnDetect(frame.Boxes, frame.InferenceTime)
	return nil
}

func (d *Detector) observeError() {
	if d.metrics != nil {
		d.metrics.ObserveError()
	}
}

func (d *Detector) stage(name string) func() time.Duration {
	if d.profiler == nil {
		return func() time.Duration { return 0 }
	}
	return d.profiler.StartOperation(name)
}

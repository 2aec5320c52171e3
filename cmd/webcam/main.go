package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"os/signal"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference/runtimes"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/overlay"
	"github.com/nvr-ai/go-detect/profiler"
)

// latest holds the boxes of the most recent completed frame.
type latest struct {
	mu            sync.Mutex
	boxes         []common.BoundingBox
	inferenceTime time.Duration
}

func (l *latest) OnEmptyDetect() {
	l.mu.Lock()
	l.boxes = nil
	l.mu.Unlock()
}

func (l *latest) OnDetect(boxes []common.BoundingBox, inferenceTime time.Duration) {
	l.mu.Lock()
	l.boxes = boxes
	l.inferenceTime = inferenceTime
	l.mu.Unlock()
}

func (l *latest) get() ([]common.BoundingBox, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.boxes, l.inferenceTime
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	device := flag.Int("device", -1, "Override camera.device")
	dev := flag.Bool("dev", false, "Development logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
	if *device >= 0 {
		cfg.Camera.Device = *device
	}

	if err := logger.Init(*dev || cfg.Log.Development, cfg.Log.Level); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	log := logger.Log()

	labels, err := cfg.Labels()
	if err != nil {
		log.Fatal("failed to read labels", zap.Error(err))
	}
	rt, err := runtimes.Open(cfg.Model)
	if err != nil {
		log.Fatal("failed to open model", zap.String("path", cfg.Model.Path), zap.Error(err))
	}

	prof := profiler.New(cfg.Profiler)
	prof.Start(log.Named("profiler"))
	defer prof.Stop()

	state := &latest{}
	det, err := detector.New(rt, labels, state, detector.Config{
		Options:  cfg.Decoder,
		Logger:   log.Named("detector"),
		Profiler: prof,
	})
	if err != nil {
		_ = rt.Close()
		log.Fatal("failed to create detector", zap.Error(err))
	}
	defer det.Close()

	webcam, err := gocv.OpenVideoCapture(cfg.Camera.Device)
	if err != nil {
		log.Error("failed to open camera", zap.Int("device", cfg.Camera.Device), zap.Error(err))
		return
	}
	defer webcam.Close()

	window := gocv.NewWindow(cfg.Camera.Window)
	defer window.Close()

	img := gocv.NewMat()
	defer img.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fps := 0.0
	frameCount := 0
	lastTime := time.Now()
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black := color.RGBA{A: 255}

	log.Info("reading camera", zap.Int("device", cfg.Camera.Device))
	for ctx.Err() == nil {
		if ok := webcam.Read(&img); !ok {
			log.Error("cannot read camera", zap.Int("device", cfg.Camera.Device))
			return
		}
		if img.Empty() {
			continue
		}

		frameCount++
		now := time.Now()
		if elapsed := now.Sub(lastTime).Seconds(); elapsed >= 1.0 {
			fps = float64(frameCount) / elapsed
			frameCount = 0
			lastTime = now
		}

		// Frames arriving while one is in flight are dropped.
		if !det.Busy() {
			frame, err := img.ToImage()
			if err != nil {
				log.Warn("failed to convert frame", zap.Error(err))
			} else {
				det.Submit(ctx, frame)
			}
		}

		boxes, inferenceTime := state.get()
		for _, box := range boxes {
			rect := overlay.PixelRect(box, img.Cols(), img.Rows())
			c := overlay.ColorForClass(box.Class)
			gocv.Rectangle(&img, rect, c, overlay.StrokeWidth)
			caption := overlay.Caption(box)
			size := gocv.GetTextSize(caption, gocv.FontHersheySimplex, 0.6, 1)
			bg := image.Rect(rect.Min.X, rect.Min.Y,
				rect.Min.X+size.X+overlay.TextPadding, rect.Min.Y+size.Y+overlay.TextPadding*2)
			gocv.Rectangle(&img, bg, black, -1)
			gocv.PutText(&img, caption,
				image.Pt(rect.Min.X+overlay.TextPadding/2, rect.Min.Y+size.Y+overlay.TextPadding/2),
				gocv.FontHersheySimplex, 0.6, white, 1)
		}
		status := fmt.Sprintf("FPS: %.1f | inference: %s | objects: %d", fps, inferenceTime.Round(time.Millisecond), len(boxes))
		gocv.PutText(&img, status, image.Pt(10, 24), gocv.FontHersheySimplex, 0.6, white, 2)

		window.IMShow(img)
		if window.WaitKey(1) == 27 {
			return
		}
	}
}

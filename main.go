package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/inference/runtimes"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/overlay"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/util"
)

func main() {
	var (
		configPath string
		imagePath  string
		dirPath    string
		outputDir  string
		modelPath  string
		runtime    string
		dev        bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&imagePath, "image", "", "Path to an image file (.jpg, .jpeg, .png, .webp)")
	flag.StringVar(&dirPath, "dir", "", "Directory of frame-N images, processed in frame order")
	flag.StringVar(&outputDir, "out", "", "Write annotated PNGs to this directory")
	flag.StringVar(&modelPath, "model", "", "Override model.path")
	flag.StringVar(&runtime, "runtime", "", "Override model.runtime (onnx, tflite)")
	flag.BoolVar(&dev, "dev", false, "Development logging")
	flag.Parse()

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			fatal(err)
		}
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if runtime != "" {
		cfg.Model.Runtime = models.Runtime(runtime)
	}
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	if err := logger.Init(dev || cfg.Log.Development, cfg.Log.Level); err != nil {
		fatal(err)
	}
	defer logger.Sync()
	log := logger.Log()

	files, err := inputFiles(imagePath, dirPath)
	if err != nil {
		log.Fatal("invalid input", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, files, outputDir, log); err != nil {
		log.Fatal("detection failed", zap.Error(err))
	}
}

func inputFiles(imagePath, dirPath string) ([]util.ImageFile, error) {
	switch {
	case imagePath != "" && dirPath != "":
		return nil, errors.New("use either -image or -dir, not both")
	case imagePath != "":
		if !util.IsImageFile(imagePath) {
			return nil, errors.Errorf("unsupported image file %s", imagePath)
		}
		f, err := util.LoadImageFile(imagePath)
		if err != nil {
			return nil, err
		}
		return []util.ImageFile{f}, nil
	case dirPath != "":
		files, err := util.LoadDirectoryImageFiles(dirPath)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errors.Errorf("no images in %s", dirPath)
		}
		return files, nil
	default:
		return nil, errors.New("one of -image or -dir is required")
	}
}

func run(ctx context.Context, cfg config.Config, files []util.ImageFile, outputDir string, log *zap.Logger) error {
	labels, err := cfg.Labels()
	if err != nil {
		return err
	}
	rt, err := runtimes.Open(cfg.Model)
	if err != nil {
		return err
	}

	prof := profiler.New(cfg.Profiler)
	det, err := detector.New(rt, labels, nil, detector.Config{
		Options:  cfg.Decoder,
		Logger:   log.Named("detector"),
		Profiler: prof,
	})
	if err != nil {
		_ = rt.Close()
		return err
	}
	defer det.Close()

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return errors.Wrap(err, "failed to create output directory")
		}
	}

	palette := overlay.NewPalette()
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, _, err := images.Decode(f.Data)
		if err != nil {
			log.Warn("skipping frame", zap.String("path", f.Path), zap.Error(err))
			continue
		}
		frame, err := det.Process(ctx, img)
		if err != nil {
			return errors.Wrapf(err, "frame %s", f.Path)
		}

		log.Info("frame",
			zap.String("path", f.Path),
			zap.Int("detections", len(frame.Boxes)),
			zap.Duration("inference_time", frame.InferenceTime),
		)
		for _, b := range frame.Boxes {
			log.Info("detection",
				zap.String("caption", overlay.Caption(b)),
				zap.Stringer("rect", overlay.PixelRect(b, frame.Width, frame.Height)),
			)
		}

		if outputDir != "" {
			if err := writeAnnotated(outputDir, f.Path, img, frame.Boxes, palette); err != nil {
				return err
			}
		}
	}

	prof.Report(log)
	return nil
}

func writeAnnotated(dir, src string, img image.Image, boxes []common.BoundingBox, palette *overlay.Palette) error {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Src)
	palette.Draw(canvas, boxes)

	name := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src)) + ".png"
	out, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return errors.Wrap(err, "failed to create output image")
	}
	defer out.Close()
	return png.Encode(out, canvas)
}

// fatal reports errors that happen before the logger is configured.
func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

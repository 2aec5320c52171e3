package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference/runtimes"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/metrics"
	"github.com/nvr-ai/go-detect/profiler"
	"github.com/nvr-ai/go-detect/server"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	addr := flag.String("addr", "", "Override server.addr")
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
	if *addr != "" {
		cfg.Server.Addr = *addr
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

	var collector *metrics.Collector
	if cfg.Server.Metrics {
		collector = metrics.New(true)
	}
	prof := profiler.New(cfg.Profiler)
	prof.Start(log.Named("profiler"))
	defer prof.Stop()

	det, err := detector.New(rt, labels, nil, detector.Config{
		Options:  cfg.Decoder,
		Logger:   log.Named("detector"),
		Metrics:  collector,
		Profiler: prof,
	})
	if err != nil {
		_ = rt.Close()
		log.Fatal("failed to create detector", zap.Error(err))
	}
	defer det.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(det, labels, server.Options{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Metrics:        collector,
		Logger:         log.Named("server"),
	})
	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		log.Error("server stopped", zap.Error(err))
	}
}

// Package server - HTTP API over a detector.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/common"
	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/logger"
	"github.com/nvr-ai/go-detect/metrics"
	"github.com/nvr-ai/go-detect/models"
)

// RequestIDHeader carries the id of every request and detection.
const RequestIDHeader = "X-Request-ID"

// DetectResponse is the body of a successful POST /api/detect.
type DetectResponse struct {
	ID          string               `json:"id"`
	Empty       bool                 `json:"empty"`
	Boxes       []common.BoundingBox `json:"boxes"`
	Candidates  int                  `json:"candidates"`
	InferenceMS float64              `json:"inference_ms"`
	Width       int                  `json:"width"`
	Height      int                  `json:"height"`
}

// Options configures the server.
type Options struct {
	// MaxUploadBytes bounds a posted frame; 0 means 16 MiB.
	MaxUploadBytes int64
	// Metrics, when set, is served on /metrics.
	Metrics *metrics.Collector
	// Logger defaults to logger.Named("server").
	Logger *zap.Logger
}

// Server routes HTTP requests to a detector.
type Server struct {
	det       *detector.Detector
	labels    models.Labels
	metrics   *metrics.Collector
	log       *zap.Logger
	maxUpload int64
	engine    *gin.Engine
}

// New builds the routes.
//
// Arguments:
//   - det: The detector frames are run through.
//   - labels: Served on /api/labels.
//   - opts: Upload limit, metrics and logger.
//
// Returns:
//   - *Server: The server; serve it with Handler or Run.
func New(det *detector.Detector, labels models.Labels, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 16 << 20
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("server")
	}

	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		det:       det,
		labels:    labels,
		metrics:   opts.Metrics,
		log:       log,
		maxUpload: opts.MaxUploadBytes,
		engine:    gin.New(),
	}

	s.engine.Use(gin.Recovery(), s.requestID(), s.accessLog())
	s.engine.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	s.engine.GET("/api/labels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": s.labels})
	})
	s.engine.POST("/api/detect", s.detect)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	return s
}

// Handler returns the routes as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown failed")
	}
	return <-errCh
}

func (s *Server) detect(c *gin.Context) {
	data, err := s.readFrame(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	img, _, err := images.Decode(data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	frame, err := s.det.TryProcess(c.Request.Context(), img)
	switch {
	case errors.Is(err, detector.ErrBusy), errors.Is(err, detector.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.log.Error("detect failed", zap.String("id", c.GetString(RequestIDHeader)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	boxes := frame.Boxes
	if boxes == nil {
		boxes = []common.BoundingBox{}
	}
	c.JSON(http.StatusOK, DetectResponse{
		ID:          c.GetString(RequestIDHeader),
		Empty:       frame.Empty(),
		Boxes:       boxes,
		Candidates:  frame.Candidates,
		InferenceMS: float64(frame.InferenceTime.Microseconds()) / 1000,
		Width:       frame.Width,
		Height:      frame.Height,
	})
}

// readFrame takes the multipart field "file" or, for any other content
// type, the raw body.
func (s *Server) readFrame(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, errors.Wrap(err, "file upload failed")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(err, "file upload failed")
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read body")
	}
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	return data, nil
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("id", c.GetString(RequestIDHeader)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

package client

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/detector"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/yolo11"
	"github.com/nvr-ai/go-detect/server"
)

func newBackend(t *testing.T, output []float32) (*httptest.Server, *inference.MockRuntime) {
	t.Helper()
	rt := inference.NewMockRuntime([]int{1, 3, 8, 8}, []int{1, 5, 2}, output)
	det, err := detector.New(rt, models.Labels{"person"}, nil, detector.Config{
		Options: yolo11.DefaultOptions(),
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)

	srv := httptest.NewServer(server.New(det, models.Labels{"person"}, server.Options{Logger: zap.NewNop()}).Handler())
	t.Cleanup(srv.Close)
	return srv, rt
}

func frame(t *testing.T) *bytes.Reader {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, inference.NewMockFrame(8, 8)))
	return bytes.NewReader(buf.Bytes())
}

func TestPingAndLabels(t *testing.T) {
	srv, _ := newBackend(t, nil)
	c := New(srv.URL + "/")

	require.NoError(t, c.Ping(context.Background()))

	labels, err := c.Labels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Labels{"person"}, labels)
}

func TestDetect(t *testing.T) {
	// anchor 1: center box, person 0.8
	output := []float32{
		0, 0.5,
		0, 0.5,
		0, 0.2,
		0, 0.2,
		0, 0.8,
	}
	srv, _ := newBackend(t, output)
	c := New(srv.URL)

	resp, err := c.Detect(context.Background(), "frame.png", frame(t))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.ID)
	assert.False(t, resp.Empty)
	require.Len(t, resp.Boxes, 1)
	assert.Equal(t, "person", resp.Boxes[0].ClassName)
	assert.Equal(t, float32(0.8), resp.Boxes[0].Confidence)
}

func TestDetectErrors(t *testing.T) {
	srv, _ := newBackend(t, nil)
	c := New(srv.URL)

	_, err := c.Detect(context.Background(), "notes.txt", strings.NewReader("not an image"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Error(), "unsupported image format")
}

func TestBusyMapsToErrBusy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"detector: busy, frame dropped"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Detect(context.Background(), "frame.png", frame(t))
	assert.True(t, errors.Is(err, ErrBusy))
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Ping(context.Background())
	assert.Error(t, err)
}

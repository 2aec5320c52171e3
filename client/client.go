// Package client - Go client for the detection HTTP API.
package client

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/server"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 5 * time.Second

// ErrBusy is returned by Detect when the server dropped the frame.
var ErrBusy = errors.New("client: detector busy")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return "client: server returned " + e.Message
}

type errorBody struct {
	Error string `json:"error"`
}

// Client calls one detection server.
type Client struct {
	http *resty.Client
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(DefaultTimeout).
			SetError(&errorBody{}),
	}
}

// SetTimeout overrides DefaultTimeout.
func (c *Client) SetTimeout(d time.Duration) *Client {
	c.http.SetTimeout(d)
	return c
}

// Ping checks that the server is up.
func (c *Client) Ping(ctx context.Context) error {
	var body struct {
		Message string `json:"message"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/api/ping")
	if err := check(resp, err); err != nil {
		return err
	}
	if body.Message != "pong" {
		return errors.Errorf("client: unexpected ping reply %q", body.Message)
	}
	return nil
}

// Labels fetches the server's class names.
func (c *Client) Labels(ctx context.Context) (models.Labels, error) {
	var body struct {
		Data models.Labels `json:"data"`
	}
	resp, err := c.http.R().SetContext(ctx).SetResult(&body).Get("/api/labels")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// Detect uploads one encoded frame as the multipart field "file".
//
// Arguments:
//   - ctx: Request context.
//   - name: The file name sent with the upload.
//   - frame: JPEG, PNG or WebP bytes.
//
// Returns:
//   - *server.DetectResponse: The detections.
//   - error: ErrBusy when the frame was dropped, *APIError on other failures.
func (c *Client) Detect(ctx context.Context, name string, frame io.Reader) (*server.DetectResponse, error) {
	var body server.DetectResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", name, frame).
		SetResult(&body).
		Post("/api/detect")
	if err := check(resp, err); err != nil {
		return nil, err
	}
	return &body, nil
}

func check(resp *resty.Response, err error) error {
	if err != nil {
		return errors.Wrap(err, "client: request failed")
	}
	if !resp.IsError() {
		return nil
	}
	if resp.StatusCode() == 503 {
		return ErrBusy
	}
	msg := resp.Status()
	if e, ok := resp.Error().(*errorBody); ok && e.Error != "" {
		msg = e.Error
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}

package tflite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/go-detect/inference"
)

func TestOpenErrors(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)

	_, err = Open(Options{ModelPath: filepath.Join(t.TempDir(), "missing.tflite")})
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.tflite")
	require.NoError(t, os.WriteFile(garbage, []byte("not a flatbuffer"), 0o600))
	_, err = Open(Options{ModelPath: garbage})
	assert.Error(t, err)
}

func TestClosedRuntimeIsNotReady(t *testing.T) {
	r := &Runtime{}
	require.NoError(t, r.Close())
	_, err := r.Run(context.Background(), nil)
	assert.True(t, errors.Is(err, inference.ErrNotReady))
}

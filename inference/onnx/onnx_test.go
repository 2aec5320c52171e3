package onnx

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func TestOpenRequiresModelPath(t *testing.T) {
	rt, err := Open(Options{})
	assert.Error(t, err)
	assert.Nil(t, rt)
}

func TestOpenMissingLibrary(t *testing.T) {
	if ort.IsInitialized() {
		t.Skip("onnxruntime already initialized in this process")
	}
	rt, err := Open(Options{
		ModelPath:   "yolo11n.onnx",
		LibraryPath: filepath.Join(t.TempDir(), "libonnxruntime.so"),
	})
	require.Error(t, err)
	assert.Nil(t, rt)
	assert.Contains(t, err.Error(), "onnxruntime library not found")
}

func TestPick(t *testing.T) {
	infos := []ort.InputOutputInfo{{Name: "images"}, {Name: "mask"}}

	got, err := pick(infos, "", "input")
	require.NoError(t, err)
	assert.Equal(t, "images", got.Name)

	got, err = pick(infos, "mask", "input")
	require.NoError(t, err)
	assert.Equal(t, "mask", got.Name)

	_, err = pick(infos, "boxes", "input")
	assert.Error(t, err)
	_, err = pick(nil, "", "output")
	assert.Error(t, err)
}

func TestDims(t *testing.T) {
	assert.Equal(t, []int{1, 84, 8400}, dims(ort.NewShape(-1, 84, 8400)))
	assert.Equal(t, []int{1, 3, 640, 640}, dims(ort.NewShape(1, 3, 640, 640)))
	assert.Equal(t, []int64{1, 3}, int64s([]int{1, 3}))
}

func TestClosedRuntimeIsNotReady(t *testing.T) {
	r := &Runtime{}
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	_, err := r.Run(t.Context(), nil)
	assert.Error(t, err)
	assert.NotEmpty(t, DefaultLibraryPath())
}

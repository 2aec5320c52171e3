// Package models - Model families and class label sets.
package models

// Family is the family of models.
type Family string

const (
	// FamilyYOLO11 is the anchor-free YOLO head with a [1, 4+classes, anchors] output.
	FamilyYOLO11 Family = "yolo11"
)

// Runtime names the tensor runtime a model file is executed with.
type Runtime string

const (
	// RuntimeONNX runs .onnx models through onnxruntime.
	RuntimeONNX Runtime = "onnx"
	// RuntimeTFLite runs .tflite models through TensorFlow Lite.
	RuntimeTFLite Runtime = "tflite"
)

// Runtimes is a list of all supported runtimes.
var Runtimes = []Runtime{RuntimeONNX, RuntimeTFLite}

// Valid reports whether r is one of Runtimes.
func (r Runtime) Valid() bool {
	for _, known := range Runtimes {
		if r == known {
			return true
		}
	}
	return false
}

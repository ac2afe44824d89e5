package opencv

import (
	"context"
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"webclassifier/internal/models"
	"webclassifier/internal/service/ai"
	"webclassifier/internal/service/decode"
)

var _ ai.Model = (*Model)(nil)

// Model runs a classification network through the OpenCV DNN module.
// It accepts anything gocv.ReadNet understands (ONNX, Caffe, TensorFlow).
type Model struct {
	net     gocv.Net
	pre     ai.Preprocess
	ranking ai.Ranking
}

// NewModel loads the network from modelPath; configPath may be empty
// for single-file formats.
func NewModel(modelPath, configPath string, pre ai.Preprocess, ranking ai.Ranking) (*Model, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	return &Model{net: net, pre: pre, ranking: ranking}, nil
}

// Classify runs one forward pass. Not safe for concurrent use.
func (m *Model) Classify(ctx context.Context, in *decode.Result) ([]models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mat, err := m.toMat(in)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	mean := gocv.NewScalar(m.pre.Mean[0], m.pre.Mean[1], m.pre.Mean[2], 0)
	size := image.Pt(m.pre.InputSize, m.pre.InputSize)
	blob := gocv.BlobFromImage(mat, m.pre.Scale, size, mean, m.pre.SwapRB, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	output := m.net.Forward("")
	defer output.Close()

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read network output: %w", err)
	}
	scores := make([]float32, len(data))
	copy(scores, data)

	return ai.TopK(scores, m.ranking)
}

// toMat prefers OpenCV's own decoder and falls back to the already decoded
// image for formats OpenCV lacks (GIF).
func (m *Model) toMat(in *decode.Result) (gocv.Mat, error) {
	if len(in.Data) > 0 {
		mat, err := gocv.IMDecode(in.Data, gocv.IMReadColor)
		if err == nil && !mat.Empty() {
			return mat, nil
		}
		if err == nil {
			mat.Close()
		}
	}
	if in.Image == nil {
		return gocv.Mat{}, fmt.Errorf("decoded image is empty")
	}
	mat, err := gocv.ImageToMatRGB(in.Image)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("failed to convert image: %w", err)
	}
	return mat, nil
}

func (m *Model) Close() error {
	return m.net.Close()
}

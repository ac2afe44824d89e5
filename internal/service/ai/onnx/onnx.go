package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"webclassifier/internal/models"
	"webclassifier/internal/service/ai"
	"webclassifier/internal/service/decode"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// Init initialises the ONNX Runtime environment once per process.
func Init(libraryPath string) error {
	ortOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			ortErr = fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	})
	return ortErr
}

// Shutdown tears the environment down after every Model is closed.
func Shutdown() {
	if ort.IsInitialized() {
		ort.DestroyEnvironment()
	}
}

// Model runs a classification network through ONNX Runtime with
// preallocated NCHW input and output tensors.
type Model struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	pre          ai.Preprocess
	ranking      ai.Ranking
}

var _ ai.Model = (*Model)(nil)

// Graph names the input and output tensors. Classes is the width of the
// output; zero means one output per label.
type Graph struct {
	Input   string
	Output  string
	Classes int
}

// NewModel opens an ONNX Runtime session; Init must have succeeded first.
func NewModel(modelPath string, graph Graph, pre ai.Preprocess, ranking ai.Ranking) (*Model, error) {
	classes := graph.Classes
	if classes <= 0 {
		classes = len(ranking.Labels)
	}
	if classes == 0 {
		return nil, fmt.Errorf("onnx backend needs labels or a class count to size the output tensor")
	}

	s := int64(pre.InputSize)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, s, s))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(classes)))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{graph.Input}, []string{graph.Output},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		pre:          pre,
		ranking:      ranking,
	}, nil
}

// Classify runs one forward pass. Not safe for concurrent use.
func (m *Model) Classify(ctx context.Context, in *decode.Result) ([]models.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if in.Image == nil {
		return nil, fmt.Errorf("decoded image is empty")
	}

	copy(m.inputTensor.GetData(), ai.ToCHW(in.Image, m.pre))

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out := m.outputTensor.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)

	return ai.TopK(scores, m.ranking)
}

func (m *Model) Close() error {
	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		return m.session.Destroy()
	}
	return nil
}

package app

import (
	"fmt"
	"sync"

	"webclassifier/internal/config"
	"webclassifier/internal/logger"
	"webclassifier/internal/service/ai"
	"webclassifier/internal/service/ai/onnx"
	"webclassifier/internal/service/ai/opencv"
)

// NewModelFactory returns a factory for the configured backend. Labels are
// read on the first call so a missing labels file fails the model load
// instead of the process.
func NewModelFactory(cfg *config.Config, log *logger.Logger) ai.Factory {
	var (
		once      sync.Once
		labels    []string
		labelsErr error
	)
	loadLabels := func() ([]string, error) {
		once.Do(func() {
			labels, labelsErr = ai.LoadLabels(cfg.LabelsPath)
			if labelsErr == nil {
				log.Info("Loaded %d labels from %s", len(labels), cfg.LabelsPath)
			}
		})
		return labels, labelsErr
	}

	pre := ai.Preprocess{
		InputSize: cfg.InputSize,
		Mean:      cfg.Mean,
		Scale:     cfg.Scale,
		SwapRB:    cfg.SwapRB,
	}

	return func() (ai.Model, error) {
		labels, err := loadLabels()
		if err != nil {
			return nil, err
		}
		ranking := ai.Ranking{Labels: labels, TopK: cfg.TopK, Softmax: cfg.Softmax}

		switch cfg.ModelBackend {
		case config.BackendONNX:
			if err := onnx.Init(cfg.ONNXLibraryPath); err != nil {
				return nil, err
			}
			return onnx.NewModel(cfg.ModelPath, onnx.Graph{
				Input:   cfg.ONNXInputName,
				Output:  cfg.ONNXOutputName,
				Classes: cfg.ONNXClasses,
			}, pre, ranking)
		case config.BackendOpenCV:
			return opencv.NewModel(cfg.ModelPath, cfg.ModelConfigPath, pre, ranking)
		default:
			return nil, fmt.Errorf("unknown model backend %q", cfg.ModelBackend)
		}
	}
}

package ai

import (
	"context"

	"webclassifier/internal/models"
	"webclassifier/internal/service/decode"
)

// Model is a loaded classifier. Implementations are not required to be safe
// for concurrent use; the Manager gives every worker its own replica.
type Model interface {
	Classify(ctx context.Context, in *decode.Result) ([]models.Prediction, error)
	Close() error
}

// Factory builds one model replica.
type Factory func() (Model, error)

// Preprocess describes how an image is turned into network input.
type Preprocess struct {
	InputSize int
	Mean      [3]float64
	Scale     float64
	SwapRB    bool
}

// Ranking controls how raw network scores become predictions.
type Ranking struct {
	Labels  []string
	TopK    int
	Softmax bool
}

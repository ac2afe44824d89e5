package models

// Prediction is one ranked (label, probability) pair produced by a classifier.
type Prediction struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

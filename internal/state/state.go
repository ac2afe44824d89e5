// Package state holds the upload/classify controller as an explicit state
// value with pure transitions. Apply never performs I/O; it returns the next
// state plus the effects the caller must run.
package state

import (
	"errors"
	"fmt"

	"webclassifier/internal/models"
)

var (
	ErrModelLoad           = errors.New("model failed to load")
	ErrNoFileSelected      = errors.New("no file selected")
	ErrClassifyBeforeReady = errors.New("model is not loaded yet")
	ErrDecode              = errors.New("image could not be decoded")
	ErrClassify            = errors.New("classification failed")
)

// Phase is the model lifecycle as seen by one session.
type Phase string

const (
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// Status is the progress of the classification pipeline for the current image.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusDecoding  Status = "decoding"
	StatusInferring Status = "inferring"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// Policy decides which completion is allowed to update the display.
type Policy int

const (
	// LatestSelectionWins drops results whose generation is not the current one.
	LatestSelectionWins Policy = iota
	// CompletionOrder applies every completion as it arrives, so the last one
	// to finish is displayed even if it belongs to an older selection.
	CompletionOrder
)

// ParsePolicy maps "completion" to CompletionOrder and anything else to
// LatestSelectionWins.
func ParsePolicy(s string) Policy {
	if s == "completion" {
		return CompletionOrder
	}
	return LatestSelectionWins
}

func (p Policy) String() string {
	if p == CompletionOrder {
		return "completion"
	}
	return "latest"
}

// Image describes a selected upload. The bytes live in the preview store
// under ID; PreviewURL is its display handle.
type Image struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	PreviewURL  string `json:"preview_url"`
}

// Options parameterise Apply.
type Options struct {
	Policy       Policy
	ProgressStep int
	ProgressCap  int
}

// DefaultOptions ticks 5% at a time up to 95%.
func DefaultOptions() Options {
	return Options{Policy: LatestSelectionWins, ProgressStep: 5, ProgressCap: 95}
}

type State struct {
	Phase       Phase
	Progress    int
	Image       *Image
	Predictions []models.Prediction
	Rendered    string
	Status      Status
	Generation  uint64
	Err         error
}

// Initial is the state of a session opened while the model is still loading.
func Initial() State {
	return State{Phase: PhaseLoading, Status: StatusIdle}
}

// Ready is the state of a session opened after the model finished loading.
func Ready() State {
	return State{Phase: PhaseReady, Progress: 100, Status: StatusIdle}
}

// Failed is the state of a session opened after the model failed to load.
func Failed(err error) State {
	return State{Phase: PhaseFailed, Status: StatusIdle, Err: fmt.Errorf("%w: %v", ErrModelLoad, err)}
}

// Loading reports whether the upload UI should still be hidden.
func (s State) Loading() bool {
	return s.Phase == PhaseLoading
}

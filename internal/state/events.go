package state

import "webclassifier/internal/models"

// Event is an input to Apply.
type Event interface {
	event()
}

// Tick advances the cosmetic load progress.
type Tick struct{}

// ModelLoaded fires once when the model handle becomes available.
type ModelLoaded struct{}

// ModelFailed fires once when the model could not be loaded.
type ModelFailed struct {
	Err error
}

// FileSelected carries the user's selection; a nil Image is an empty selection.
type FileSelected struct {
	Image *Image
}

// Decoded reports that the payload of a generation was decoded. Input is
// opaque to the state machine and is handed back in StartClassify.
type Decoded struct {
	Generation uint64
	Image      Image
	Input      any
}

type DecodeFailed struct {
	Generation uint64
	Err        error
}

type Classified struct {
	Generation  uint64
	Image       Image
	Predictions []models.Prediction
}

type ClassifyFailed struct {
	Generation uint64
	Err        error
}

func (Tick) event()           {}
func (ModelLoaded) event()    {}
func (ModelFailed) event()    {}
func (FileSelected) event()   {}
func (Decoded) event()        {}
func (DecodeFailed) event()   {}
func (Classified) event()     {}
func (ClassifyFailed) event() {}

// Effect is a side effect requested by Apply.
type Effect interface {
	effect()
}

// StopTicker tears down the progress ticker.
type StopTicker struct{}

// StartDecode decodes the payload of Image for Generation.
type StartDecode struct {
	Generation uint64
	Image      Image
}

// StartClassify runs the model on a decoded input.
type StartClassify struct {
	Generation uint64
	Image      Image
	Input      any
}

// ReleaseImage frees the display handle of a superseded selection.
type ReleaseImage struct {
	Image Image
}

// Publish pushes the new state to the display surface.
type Publish struct{}

// Record stores an accepted classification.
type Record struct {
	Generation  uint64
	Image       Image
	Predictions []models.Prediction
	Rendered    string
}

// Report logs an error.
type Report struct {
	Err error
}

func (StopTicker) effect()    {}
func (StartDecode) effect()   {}
func (StartClassify) effect() {}
func (ReleaseImage) effect()  {}
func (Publish) effect()       {}
func (Record) effect()        {}
func (Report) effect()        {}

package dto

import (
	"webclassifier/internal/models"
	"webclassifier/internal/state"
)

// StateResponse is the JSON form of a session's state, pushed over the
// websocket and returned by GET /api/state.
type StateResponse struct {
	Type        string              `json:"type"`
	Phase       state.Phase         `json:"phase"`
	Loading     bool                `json:"loading"`
	Progress    int                 `json:"progress"`
	Status      state.Status        `json:"status"`
	Generation  uint64              `json:"generation"`
	Image       *state.Image        `json:"image,omitempty"`
	Predictions []models.Prediction `json:"predictions"`
	Rendered    string              `json:"rendered"`
	Error       string              `json:"error,omitempty"`
}

// NewStateResponse converts a state value for the wire.
func NewStateResponse(s state.State) StateResponse {
	resp := StateResponse{
		Type:        "state",
		Phase:       s.Phase,
		Loading:     s.Loading(),
		Progress:    s.Progress,
		Status:      s.Status,
		Generation:  s.Generation,
		Image:       s.Image,
		Predictions: s.Predictions,
		Rendered:    s.Rendered,
	}
	if resp.Predictions == nil {
		resp.Predictions = []models.Prediction{}
	}
	if s.Err != nil {
		resp.Error = s.Err.Error()
	}
	return resp
}

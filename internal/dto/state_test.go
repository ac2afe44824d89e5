package dto

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webclassifier/internal/state"
)

func TestNewStateResponse_Loading(t *testing.T) {
	s := state.Initial()
	s.Progress = 35

	resp := NewStateResponse(s)

	assert.Equal(t, "state", resp.Type)
	assert.True(t, resp.Loading)
	assert.Equal(t, 35, resp.Progress)
	assert.NotNil(t, resp.Predictions, "predictions encode as [] rather than null")
	assert.Empty(t, resp.Error)
}

func TestNewStateResponse_JSON(t *testing.T) {
	s := state.Ready()
	s.Err = errors.New("boom")

	data, err := json.Marshal(NewStateResponse(s))
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "ready", m["phase"])
	assert.Equal(t, false, m["loading"])
	assert.Equal(t, float64(100), m["progress"])
	assert.Equal(t, "boom", m["error"])
	assert.Equal(t, []interface{}{}, m["predictions"])
	_, hasImage := m["image"]
	assert.False(t, hasImage)
}

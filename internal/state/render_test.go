package state

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"webclassifier/internal/models"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		preds []models.Prediction
		want  string
	}{
		{
			name:  "two predictions",
			preds: []models.Prediction{{Label: "cat", Probability: 0.873}, {Label: "dog", Probability: 0.021}},
			want:  "cat: 0.87<br />dog: 0.02",
		},
		{
			name:  "not scaled to percent",
			preds: []models.Prediction{{Label: "goldfish", Probability: 1}},
			want:  "goldfish: 1.00",
		},
		{
			name:  "exact halves round to even",
			preds: []models.Prediction{{Label: "a", Probability: 0.125}, {Label: "b", Probability: 0.0049}},
			want:  "a: 0.12<br />b: 0.00",
		},
		{
			name:  "escapes labels",
			preds: []models.Prediction{{Label: "jack-o'-lantern", Probability: 0.5}},
			want:  "jack-o&#39;-lantern: 0.50",
		},
		{
			name: "empty",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.preds))
		})
	}
}

package ai

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"webclassifier/internal/models"
)

var ErrNoScores = errors.New("model returned no scores")

// TopK ranks scores and returns the k most probable labels. When the network
// has one more output than there are labels, output 0 is treated as the
// background class and skipped.
func TopK(scores []float32, r Ranking) ([]models.Prediction, error) {
	if len(scores) == 0 {
		return nil, ErrNoScores
	}

	offset := 0
	if len(r.Labels) > 0 && len(scores) == len(r.Labels)+1 {
		offset = 1
	}
	scores = scores[offset:]

	probs := make([]float64, len(scores))
	if r.Softmax {
		softmax(scores, probs)
	} else {
		for i, s := range scores {
			probs[i] = float64(s)
		}
	}

	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return probs[idx[a]] > probs[idx[b]]
	})

	k := r.TopK
	if k <= 0 || k > len(idx) {
		k = len(idx)
	}

	out := make([]models.Prediction, 0, k)
	for _, i := range idx[:k] {
		out = append(out, models.Prediction{
			Label:       labelFor(r.Labels, i),
			Probability: probs[i],
		})
	}
	return out, nil
}

func softmax(scores []float32, out []float64) {
	max := math.Inf(-1)
	for _, s := range scores {
		if float64(s) > max {
			max = float64(s)
		}
	}
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(float64(s) - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}

func labelFor(labels []string, i int) string {
	if i < len(labels) && labels[i] != "" {
		return labels[i]
	}
	return fmt.Sprintf("class_%d", i)
}

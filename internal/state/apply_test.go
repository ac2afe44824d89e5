package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webclassifier/internal/models"
)

func img(id string) *Image {
	return &Image{ID: id, Name: id + ".jpg", ContentType: "image/jpeg", Size: 10, PreviewURL: "/api/previews/" + id}
}

func hasEffect[T Effect](effects []Effect) bool {
	for _, e := range effects {
		if _, ok := e.(T); ok {
			return true
		}
	}
	return false
}

func effectOf[T Effect](t *testing.T, effects []Effect) T {
	t.Helper()
	for _, e := range effects {
		if v, ok := e.(T); ok {
			return v
		}
	}
	var zero T
	t.Fatalf("effect %T not found in %#v", zero, effects)
	return zero
}

func TestTick_NeverExceedsCapWhileLoading(t *testing.T) {
	opts := DefaultOptions()
	s := Initial()

	last := s.Progress
	for i := 0; i < 500; i++ {
		s, _ = Apply(s, Tick{}, opts)
		require.LessOrEqual(t, s.Progress, 95)
		require.GreaterOrEqual(t, s.Progress, last, "progress must not decrease")
		require.True(t, s.Loading())
		last = s.Progress
	}
	assert.Equal(t, 95, s.Progress)
}

func TestTick_AtCapPublishesNothing(t *testing.T) {
	opts := DefaultOptions()
	s := Initial()
	s.Progress = 95

	next, effects := Apply(s, Tick{}, opts)
	assert.Equal(t, s, next)
	assert.Empty(t, effects)
}

func TestTick_OddStepClampsToCap(t *testing.T) {
	opts := Options{ProgressStep: 7, ProgressCap: 95}
	s := Initial()
	for i := 0; i < 20; i++ {
		s, _ = Apply(s, Tick{}, opts)
	}
	assert.Equal(t, 95, s.Progress)
}

func TestModelLoaded_PinsProgressAndStopsTicker(t *testing.T) {
	opts := DefaultOptions()
	s := Initial()
	s, _ = Apply(s, Tick{}, opts)
	s, _ = Apply(s, Tick{}, opts)

	s, effects := Apply(s, ModelLoaded{}, opts)

	assert.Equal(t, PhaseReady, s.Phase)
	assert.Equal(t, 100, s.Progress)
	assert.True(t, hasEffect[StopTicker](effects))
	assert.True(t, hasEffect[Publish](effects))

	after, effects := Apply(s, Tick{}, opts)
	assert.Equal(t, s, after, "ticks after load must not change state")
	assert.Empty(t, effects)
}

func TestModelFailed_SurfacesErrorWithoutReaching100(t *testing.T) {
	opts := DefaultOptions()
	s := Initial()
	s, _ = Apply(s, Tick{}, opts)

	s, effects := Apply(s, ModelFailed{Err: errors.New("no backend")}, opts)

	assert.Equal(t, PhaseFailed, s.Phase)
	assert.Less(t, s.Progress, 100)
	assert.ErrorIs(t, s.Err, ErrModelLoad)
	assert.Contains(t, s.Err.Error(), "no backend")
	assert.True(t, hasEffect[StopTicker](effects))
	assert.True(t, hasEffect[Report](effects))

	again, effects := Apply(s, ModelLoaded{}, opts)
	assert.Equal(t, s, again)
	assert.Empty(t, effects)
}

func TestFileSelected_EmptySelectionIsNoop(t *testing.T) {
	opts := DefaultOptions()
	s := Ready()
	s, _ = Apply(s, FileSelected{Image: img("a")}, opts)
	s, _ = Apply(s, Decoded{Generation: 1, Image: *img("a")}, opts)
	s, _ = Apply(s, Classified{Generation: 1, Image: *img("a"), Predictions: []models.Prediction{{Label: "cat", Probability: 0.9}}}, opts)

	next, effects := Apply(s, FileSelected{}, opts)

	assert.Equal(t, s, next)
	assert.Empty(t, effects)
	assert.Equal(t, "a", next.Image.ID)
	assert.Equal(t, "cat: 0.90", next.Rendered)
}

func TestFileSelected_ReleasesSupersededImage(t *testing.T) {
	opts := DefaultOptions()
	s := Ready()

	s, effects := Apply(s, FileSelected{Image: img("a")}, opts)
	assert.False(t, hasEffect[ReleaseImage](effects))
	assert.Equal(t, uint64(1), effectOf[StartDecode](t, effects).Generation)

	s, effects = Apply(s, FileSelected{Image: img("b")}, opts)
	assert.Equal(t, "a", effectOf[ReleaseImage](t, effects).Image.ID)
	assert.Equal(t, uint64(2), s.Generation)
	assert.Equal(t, "b", s.Image.ID)
	assert.Equal(t, StatusDecoding, s.Status)
}

func TestDecoded_BeforeReadyNeverClassifies(t *testing.T) {
	opts := DefaultOptions()
	s := Initial()

	s, _ = Apply(s, FileSelected{Image: img("a")}, opts)
	s, effects := Apply(s, Decoded{Generation: 1, Image: *img("a")}, opts)

	assert.False(t, hasEffect[StartClassify](effects))
	assert.ErrorIs(t, s.Err, ErrClassifyBeforeReady)
	assert.Equal(t, StatusError, s.Status)
	assert.ErrorIs(t, effectOf[Report](t, effects).Err, ErrClassifyBeforeReady)
}

func TestDecodeFailed_SetsVisibleError(t *testing.T) {
	opts := DefaultOptions()
	s := Ready()
	s, _ = Apply(s, FileSelected{Image: img("a")}, opts)

	s, effects := Apply(s, DecodeFailed{Generation: 1, Err: errors.New("unknown format")}, opts)

	assert.Equal(t, StatusError, s.Status)
	assert.ErrorIs(t, s.Err, ErrDecode)
	assert.True(t, hasEffect[Report](effects))
	assert.True(t, hasEffect[Publish](effects))
}

func TestPipeline_HappyPath(t *testing.T) {
	opts := DefaultOptions()
	s := Ready()
	preds := []models.Prediction{{Label: "cat", Probability: 0.873}, {Label: "dog", Probability: 0.021}}

	s, _ = Apply(s, FileSelected{Image: img("a")}, opts)
	s, effects := Apply(s, Decoded{Generation: 1, Image: *img("a"), Input: "decoded"}, opts)
	start := effectOf[StartClassify](t, effects)
	assert.Equal(t, "decoded", start.Input)
	assert.Equal(t, StatusInferring, s.Status)

	s, effects = Apply(s, Classified{Generation: 1, Image: *img("a"), Predictions: preds}, opts)

	assert.Equal(t, StatusDone, s.Status)
	assert.Equal(t, "cat: 0.87<br />dog: 0.02", s.Rendered)
	rec := effectOf[Record](t, effects)
	assert.Equal(t, "a", rec.Image.ID)
	assert.Equal(t, s.Rendered, rec.Rendered)

	preds[0].Label = "mutated"
	assert.Equal(t, "cat", s.Predictions[0].Label, "state must not alias the caller's slice")
}

func TestClassified_IsDeterministicForSameInput(t *testing.T) {
	opts := DefaultOptions()
	preds := []models.Prediction{{Label: "tabby", Probability: 0.6}, {Label: "tiger cat", Probability: 0.3}}

	run := func() State {
		s := Ready()
		s, _ = Apply(s, FileSelected{Image: img("a")}, opts)
		s, _ = Apply(s, Decoded{Generation: 1, Image: *img("a")}, opts)
		s, _ = Apply(s, Classified{Generation: 1, Image: *img("a"), Predictions: preds}, opts)
		return s
	}

	assert.Equal(t, run(), run())
}

// Two selections whose classifications complete in reverse order.
func raceOutOfOrder(opts Options) State {
	first := []models.Prediction{{Label: "first", Probability: 0.5}}
	second := []models.Prediction{{Label: "second", Probability: 0.5}}

	s := Ready()
	s, _ = Apply(s, FileSelected{Image: img("a")}, opts)
	s, _ = Apply(s, Decoded{Generation: 1, Image: *img("a")}, opts)
	s, _ = Apply(s, FileSelected{Image: img("b")}, opts)
	s, _ = Apply(s, Decoded{Generation: 2, Image: *img("b")}, opts)
	s, _ = Apply(s, Classified{Generation: 2, Image: *img("b"), Predictions: second}, opts)
	s, _ = Apply(s, Classified{Generation: 1, Image: *img("a"), Predictions: first}, opts)
	return s
}

func TestRace_LatestSelectionWins(t *testing.T) {
	opts := DefaultOptions()

	s := raceOutOfOrder(opts)

	assert.Equal(t, "b", s.Image.ID)
	assert.Equal(t, "second: 0.50", s.Rendered)
	assert.Equal(t, StatusDone, s.Status)
}

func TestRace_CompletionOrderKeepsLegacyBehaviour(t *testing.T) {
	opts := DefaultOptions()
	opts.Policy = CompletionOrder

	s := raceOutOfOrder(opts)

	assert.Equal(t, "b", s.Image.ID)
	assert.Equal(t, "first: 0.50", s.Rendered, "last completion overwrites the display")
}

func TestStaleFailuresAreIgnoredUnderLatestPolicy(t *testing.T) {
	opts := DefaultOptions()
	s := Ready()
	s, _ = Apply(s, FileSelected{Image: img("a")}, opts)
	s, _ = Apply(s, FileSelected{Image: img("b")}, opts)

	next, effects := Apply(s, DecodeFailed{Generation: 1, Err: errors.New("bad")}, opts)
	assert.Equal(t, s, next)
	assert.Empty(t, effects)

	next, effects = Apply(s, ClassifyFailed{Generation: 1, Err: errors.New("bad")}, opts)
	assert.Equal(t, s, next)
	assert.Empty(t, effects)
}

func TestFutureGenerationIsRejected(t *testing.T) {
	for _, p := range []Policy{LatestSelectionWins, CompletionOrder} {
		opts := DefaultOptions()
		opts.Policy = p
		s := Ready()

		next, effects := Apply(s, Classified{Generation: 3}, opts)
		assert.Equal(t, s, next, p.String())
		assert.Empty(t, effects, p.String())
	}
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, CompletionOrder, ParsePolicy("completion"))
	assert.Equal(t, LatestSelectionWins, ParsePolicy("latest"))
	assert.Equal(t, LatestSelectionWins, ParsePolicy(""))
	assert.Equal(t, "completion", CompletionOrder.String())
}

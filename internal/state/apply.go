package state

import (
	"fmt"

	"webclassifier/internal/models"
)

// Apply computes the next state for e. It is pure: s is not modified and the
// returned effects must be executed by the caller in order.
func Apply(s State, e Event, opts Options) (State, []Effect) {
	switch ev := e.(type) {
	case Tick:
		if s.Phase != PhaseLoading {
			return s, nil
		}
		next := s.Progress + opts.ProgressStep
		if next > opts.ProgressCap {
			next = opts.ProgressCap
		}
		if next <= s.Progress {
			return s, nil
		}
		s.Progress = next
		return s, []Effect{Publish{}}

	case ModelLoaded:
		if s.Phase != PhaseLoading {
			return s, nil
		}
		s.Phase = PhaseReady
		s.Progress = 100
		return s, []Effect{StopTicker{}, Publish{}}

	case ModelFailed:
		if s.Phase != PhaseLoading {
			return s, nil
		}
		s.Phase = PhaseFailed
		s.Err = fmt.Errorf("%w: %v", ErrModelLoad, ev.Err)
		return s, []Effect{StopTicker{}, Report{Err: s.Err}, Publish{}}

	case FileSelected:
		if ev.Image == nil {
			return s, nil
		}
		var effects []Effect
		if s.Image != nil && s.Image.ID != ev.Image.ID {
			effects = append(effects, ReleaseImage{Image: *s.Image})
		}
		img := *ev.Image
		s.Generation++
		s.Image = &img
		s.Status = StatusDecoding
		s.Err = nil
		if opts.Policy == LatestSelectionWins {
			s.Predictions = nil
			s.Rendered = ""
		}
		return s, append(effects, StartDecode{Generation: s.Generation, Image: img}, Publish{})

	case Decoded:
		if !accepts(s, ev.Generation, opts) {
			return s, nil
		}
		if s.Phase != PhaseReady {
			if ev.Generation == s.Generation {
				s.Status = StatusError
				s.Err = ErrClassifyBeforeReady
			}
			return s, []Effect{Report{Err: ErrClassifyBeforeReady}, Publish{}}
		}
		if ev.Generation == s.Generation {
			s.Status = StatusInferring
		}
		return s, []Effect{StartClassify{Generation: ev.Generation, Image: ev.Image, Input: ev.Input}, Publish{}}

	case DecodeFailed:
		if !accepts(s, ev.Generation, opts) {
			return s, nil
		}
		err := fmt.Errorf("%w: %v", ErrDecode, ev.Err)
		s.Status = StatusError
		s.Err = err
		return s, []Effect{Report{Err: err}, Publish{}}

	case Classified:
		if !accepts(s, ev.Generation, opts) {
			return s, nil
		}
		preds := make([]models.Prediction, len(ev.Predictions))
		copy(preds, ev.Predictions)
		s.Predictions = preds
		s.Rendered = Render(preds)
		s.Status = StatusDone
		s.Err = nil
		return s, []Effect{
			Record{Generation: ev.Generation, Image: ev.Image, Predictions: preds, Rendered: s.Rendered},
			Publish{},
		}

	case ClassifyFailed:
		if !accepts(s, ev.Generation, opts) {
			return s, nil
		}
		err := fmt.Errorf("%w: %v", ErrClassify, ev.Err)
		s.Status = StatusError
		s.Err = err
		return s, []Effect{Report{Err: err}, Publish{}}
	}
	return s, nil
}

// accepts applies the race policy to a completion for generation gen.
func accepts(s State, gen uint64, opts Options) bool {
	if gen == 0 || gen > s.Generation {
		return false
	}
	if opts.Policy == CompletionOrder {
		return true
	}
	return gen == s.Generation
}

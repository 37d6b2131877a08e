package quill

// State is the observable result of folding frames for one session.
//
// Invariants:
//   - Text and Thinking are append-only while Active is true.
//   - Once Active becomes false no field changes until the next
//     FrameStart.
//   - Err is set only by a FrameError; cancellation leaves it empty.
type State struct {
	Active    bool
	Text      string
	Thinking  string
	Citations []Citation
	Usage     Usage
	Err       string
}

// Hooks carries optional per-kind callbacks invoked synchronously during
// reduction, for incremental delivery to a consumer (e.g. a renderer).
// Nil fields are skipped.
type Hooks struct {
	OnText      func(delta string)
	OnThinking  func(delta string)
	OnCitations func(citations []Citation)
	OnUsage     func(usage Usage)
	OnComplete  func()
	OnError     func(message string)
}

// Accumulator folds frames into a State. It is not safe for concurrent
// use; the session layer guarantees frames are applied sequentially by a
// single pipeline.
type Accumulator struct {
	state State
	hooks Hooks
}

// NewAccumulator creates an Accumulator with the given hooks.
func NewAccumulator(hooks Hooks) *Accumulator {
	return &Accumulator{hooks: hooks}
}

// Apply folds one frame into the state. Frames arriving while the state
// is inactive are dropped, which makes terminal outcomes final even when
// late or duplicate frames arrive.
func (a *Accumulator) Apply(f Frame) {
	if _, ok := f.(FrameStart); ok {
		a.state = State{Active: true}
		return
	}
	if !a.state.Active {
		return
	}

	switch fr := f.(type) {
	case FrameThinkingDelta:
		a.state.Thinking += fr.Delta
		if a.hooks.OnThinking != nil {
			a.hooks.OnThinking(fr.Delta)
		}
	case FrameTextDelta:
		a.state.Text += fr.Delta
		if a.hooks.OnText != nil {
			a.hooks.OnText(fr.Delta)
		}
	case FrameCitations:
		a.state.Citations = append([]Citation(nil), fr.Citations...)
		if a.hooks.OnCitations != nil {
			a.hooks.OnCitations(a.state.Citations)
		}
	case FrameUsage:
		a.state.Usage.merge(fr)
		if a.hooks.OnUsage != nil {
			a.hooks.OnUsage(a.state.Usage)
		}
	case FrameError:
		a.state.Err = fr.Message
		a.state.Active = false
		if a.hooks.OnError != nil {
			a.hooks.OnError(fr.Message)
		}
	case FrameComplete:
		a.state.Active = false
		if a.hooks.OnComplete != nil {
			a.hooks.OnComplete()
		}
	case FrameThinkingStart, FrameTextStart, FrameBlockStop:
		// Block boundaries carry no accumulated data.
	}
}

// Deactivate marks the state inactive without recording an error.
// Cancellation is a terminal outcome, not a failure.
func (a *Accumulator) Deactivate() {
	a.state.Active = false
}

// Reset clears the state to its zero value.
func (a *Accumulator) Reset() {
	a.state = State{}
}

// Active reports whether the state is currently accumulating.
func (a *Accumulator) Active() bool {
	return a.state.Active
}

// Snapshot returns a copy of the current state. The citations slice is
// copied so callers cannot alias internal storage.
func (a *Accumulator) Snapshot() State {
	s := a.state
	if s.Citations != nil {
		s.Citations = append([]Citation(nil), s.Citations...)
	}
	return s
}

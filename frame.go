package quill

// Frame is a sealed interface representing one decoded unit of the
// streaming protocol. Frames are purely semantic and ephemeral: they are
// folded into an Accumulator, never stored. Transport errors come from
// the session layer, not from frames. The unexported marker method
// prevents external implementations.
type Frame interface {
	frame()
}

// FrameStart signals that generation began. It resets accumulated state.
type FrameStart struct{}

func (FrameStart) frame() {}

// FrameThinkingStart signals the start of a reasoning-trace block.
type FrameThinkingStart struct{}

func (FrameThinkingStart) frame() {}

// FrameTextStart signals the start of a primary text block.
type FrameTextStart struct{}

func (FrameTextStart) frame() {}

// FrameThinkingDelta carries an increment of side-channel text.
type FrameThinkingDelta struct {
	Delta string
}

func (FrameThinkingDelta) frame() {}

// FrameTextDelta carries an increment of primary text.
type FrameTextDelta struct {
	Delta string
}

func (FrameTextDelta) frame() {}

// FrameBlockStop signals the end of the current block.
type FrameBlockStop struct{}

func (FrameBlockStop) frame() {}

// FrameCitations carries the full citation list. It replaces any
// previously accumulated citations wholesale.
type FrameCitations struct {
	Citations []Citation
}

func (FrameCitations) frame() {}

// FrameUsage carries token counters. Nil fields were absent on the wire
// and leave the accumulated value untouched.
type FrameUsage struct {
	InputTokens  *int
	OutputTokens *int
}

func (FrameUsage) frame() {}

// FrameComplete signals normal termination of the stream.
type FrameComplete struct{}

func (FrameComplete) frame() {}

// FrameError carries a server-reported failure. It terminates the stream.
type FrameError struct {
	Message string
}

func (FrameError) frame() {}

// Citation references a source passage that grounded the generated text.
type Citation struct {
	Index      int
	Content    string
	Similarity float64
}

// Interface compliance checks.
var (
	_ Frame = FrameStart{}
	_ Frame = FrameThinkingStart{}
	_ Frame = FrameTextStart{}
	_ Frame = FrameThinkingDelta{}
	_ Frame = FrameTextDelta{}
	_ Frame = FrameBlockStop{}
	_ Frame = FrameCitations{}
	_ Frame = FrameUsage{}
	_ Frame = FrameComplete{}
	_ Frame = FrameError{}
)

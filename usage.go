package quill

// Usage tracks token consumption for one session.
//
// Usage frames merge rather than overwrite: a frame that carries only
// output_tokens leaves the accumulated InputTokens untouched. Each field
// is last-write-wins when present.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// merge applies the present fields of a usage frame.
func (u *Usage) merge(f FrameUsage) {
	if f.InputTokens != nil {
		u.InputTokens = *f.InputTokens
	}
	if f.OutputTokens != nil {
		u.OutputTokens = *f.OutputTokens
	}
}

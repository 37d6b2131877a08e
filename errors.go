package quill

import "errors"

// Sentinel errors for common failure modes.
var (
	// ErrChannelClosed indicates an operation on a live channel that has
	// been torn down.
	ErrChannelClosed = errors.New("channel closed")
)

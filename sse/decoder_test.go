package sse_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/quillworks/quill"
	"github.com/quillworks/quill/sse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordLogger captures warnings for assertions.
type recordLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordLogger) Debug(string, ...any) {}
func (l *recordLogger) Info(string, ...any)  {}
func (l *recordLogger) Error(string, ...any) {}

func (l *recordLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recordLogger) warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warns...)
}

func decodeAll(d *sse.Decoder, chunks ...string) []quill.Frame {
	var frames []quill.Frame
	for _, c := range chunks {
		frames = append(frames, d.Feed([]byte(c))...)
	}
	return append(frames, d.Flush()...)
}

// wireStream is a representative stream exercising every frame kind.
const wireStream = "event: start\ndata: {}\n\n" +
	"event: thinking_start\ndata: {}\n\n" +
	"event: thinking\ndata: {\"content\":\"pondering\"}\n\n" +
	"event: block_stop\ndata: {}\n\n" +
	"event: text_start\ndata: {}\n\n" +
	"event: text\ndata: {\"content\":\"Hello, \\u4e16\\u754c\"}\n\n" +
	"event: citations\ndata: {\"citations\":[{\"index\":1,\"content\":\"src\",\"similarity\":0.87}]}\n\n" +
	"event: usage\ndata: {\"input_tokens\":12,\"output_tokens\":34}\n\n" +
	"event: complete\ndata: {}\n"

func wantWireFrames(t *testing.T, frames []quill.Frame) {
	t.Helper()
	in, out := 12, 34
	require.Equal(t, []quill.Frame{
		quill.FrameStart{},
		quill.FrameThinkingStart{},
		quill.FrameThinkingDelta{Delta: "pondering"},
		quill.FrameBlockStop{},
		quill.FrameTextStart{},
		quill.FrameTextDelta{Delta: "Hello, 世界"},
		quill.FrameCitations{Citations: []quill.Citation{{Index: 1, Content: "src", Similarity: 0.87}}},
		quill.FrameUsage{InputTokens: &in, OutputTokens: &out},
		quill.FrameComplete{},
	}, frames)
}

func TestDecoder_WholeInput(t *testing.T) {
	t.Parallel()
	frames := decodeAll(sse.NewDecoder(), wireStream)
	wantWireFrames(t, frames)
}

func TestDecoder_ChunkBoundaryInvariance(t *testing.T) {
	t.Parallel()
	// Splitting at every byte position must decode identically to the
	// whole input.
	for i := 1; i < len(wireStream)-1; i++ {
		frames := decodeAll(sse.NewDecoder(), wireStream[:i], wireStream[i:])
		wantWireFrames(t, frames)
	}
}

func TestDecoder_MidRuneSplit(t *testing.T) {
	t.Parallel()
	// The payload carries raw UTF-8 (not \u escapes), so most split
	// points fall inside a multi-byte encoding.
	const input = "event: text\ndata: {\"content\":\"héllo 世界 🙂\"}\n\n"
	for i := 1; i < len(input)-1; i++ {
		frames := decodeAll(sse.NewDecoder(), input[:i], input[i:])
		require.Len(t, frames, 1, "split at byte %d", i)
		assert.Equal(t, quill.FrameTextDelta{Delta: "héllo 世界 🙂"}, frames[0], "split at byte %d", i)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	var frames []quill.Frame
	for i := 0; i < len(wireStream); i++ {
		frames = append(frames, d.Feed([]byte{wireStream[i]})...)
	}
	frames = append(frames, d.Flush()...)
	wantWireFrames(t, frames)
}

func TestDecoder_SplitMidPayload(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()

	frames := d.Feed([]byte("event: text\ndata: {\"content\":\"Hel"))
	assert.Empty(t, frames)

	frames = d.Feed([]byte("lo\"}\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameTextDelta{Delta: "Hello"}, frames[0])
}

func TestDecoder_EmptyChunkIsNoOp(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	assert.Empty(t, d.Feed(nil))
	assert.Empty(t, d.Feed([]byte{}))
}

func TestDecoder_NoTrailingNewline(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()

	frames := d.Feed([]byte("event: text\ndata: {\"content\":\"end\"}"))
	assert.Empty(t, frames, "data line is not complete until stream end")

	frames = d.Flush()
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameTextDelta{Delta: "end"}, frames[0])
}

func TestDecoder_MalformedPayloadDroppedWithWarning(t *testing.T) {
	t.Parallel()
	logger := &recordLogger{}
	d := sse.NewDecoder(sse.WithLogger(logger))

	input := "event: text\ndata: {not json}\n\n" +
		"event: text\ndata: {\"content\":\"ok\"}\n\n"
	frames := decodeAll(d, input)

	require.Len(t, frames, 1, "stream continues past the bad payload")
	assert.Equal(t, quill.FrameTextDelta{Delta: "ok"}, frames[0])
	require.Len(t, logger.warnings(), 1)
	assert.Contains(t, logger.warnings()[0], "malformed")
}

func TestDecoder_UnknownKindIgnored(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	frames := decodeAll(d, "event: shiny_new_thing\ndata: {}\n\nevent: complete\ndata: {}\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameComplete{}, frames[0])
}

func TestDecoder_PayloadWithoutMarkerDropped(t *testing.T) {
	t.Parallel()
	logger := &recordLogger{}
	d := sse.NewDecoder(sse.WithLogger(logger))

	frames := decodeAll(d, "data: {\"content\":\"orphan\"}\n\n")
	assert.Empty(t, frames)
	require.Len(t, logger.warnings(), 1)
}

func TestDecoder_UnpairedMarkerHeldAcrossChunks(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()

	assert.Empty(t, d.Feed([]byte("event: text\n")))
	assert.Empty(t, d.Feed([]byte("\n"))) // separator before the payload arrives

	frames := d.Feed([]byte("data: {\"content\":\"x\"}\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameTextDelta{Delta: "x"}, frames[0])
}

func TestDecoder_UnpairedMarkerAtEndOfStream(t *testing.T) {
	t.Parallel()
	logger := &recordLogger{}
	d := sse.NewDecoder(sse.WithLogger(logger))

	d.Feed([]byte("event: text\n"))
	assert.Empty(t, d.Flush())
	require.Len(t, logger.warnings(), 1)
	assert.Contains(t, logger.warnings()[0], "unpaired")
}

func TestDecoder_CRLFLineEndings(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	input := strings.ReplaceAll("event: text\ndata: {\"content\":\"hi\"}\n\n", "\n", "\r\n")
	frames := decodeAll(d, input)
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameTextDelta{Delta: "hi"}, frames[0])
}

func TestDecoder_CommentsIgnored(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	frames := decodeAll(d, ": keepalive\n\nevent: complete\ndata: {}\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameComplete{}, frames[0])
}

func TestDecoder_ErrorFramePayload(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	frames := decodeAll(d, "event: error\ndata: {\"error\":\"boom\"}\n\n")
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameError{Message: "boom"}, frames[0])
}

func TestDecoder_UsageOmittedFieldsAreNil(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	frames := decodeAll(d, "event: usage\ndata: {\"output_tokens\":9}\n\n")
	require.Len(t, frames, 1)
	u, ok := frames[0].(quill.FrameUsage)
	require.True(t, ok, "expected FrameUsage, got %T", frames[0])
	assert.Nil(t, u.InputTokens)
	require.NotNil(t, u.OutputTokens)
	assert.Equal(t, 9, *u.OutputTokens)
}

func TestDecoder_ChunkWithoutNewlineOnlyBuffers(t *testing.T) {
	t.Parallel()
	d := sse.NewDecoder()
	assert.Empty(t, d.Feed([]byte("event: te")))
	assert.Empty(t, d.Feed([]byte("xt")))
	frames := d.Feed([]byte("\ndata: {\"content\":\"y\"}\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, quill.FrameTextDelta{Delta: "y"}, frames[0])
}

func ExampleDecoder() {
	d := sse.NewDecoder()
	frames := d.Feed([]byte("event: text\ndata: {\"content\":\"Hello\"}\n"))
	for _, f := range frames {
		fmt.Printf("%T\n", f)
	}
	// Output: quill.FrameTextDelta
}

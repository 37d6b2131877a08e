// Package sse decodes the text event-stream wire protocol into
// [quill.Frame] values.
//
// The decoder is incremental: chunks are fed in as they arrive off the
// network and may split the stream anywhere, including mid-field or
// mid-rune. Complete frames are returned as soon as both of their lines
// have been seen. Malformed payload lines are dropped with a warning;
// the stream continues.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/quillworks/quill"
)

// Wire frame kinds.
const (
	kindStart         = "start"
	kindThinkingStart = "thinking_start"
	kindTextStart     = "text_start"
	kindThinking      = "thinking"
	kindText          = "text"
	kindBlockStop     = "block_stop"
	kindCitations     = "citations"
	kindUsage         = "usage"
	kindComplete      = "complete"
	kindError         = "error"
)

// Decoder turns a chunked byte stream into complete frames. One Decoder
// serves one connection; it is not safe for concurrent use.
type Decoder struct {
	buf     []byte
	kind    string
	hasKind bool
	logger  quill.Logger
}

// Option configures a [Decoder].
type Option func(*Decoder)

// WithLogger sets the logger used for decode warnings.
func WithLogger(l quill.Logger) Option {
	return func(d *Decoder) { d.logger = l }
}

// NewDecoder creates a Decoder. Without options, decode warnings are
// discarded.
func NewDecoder(opts ...Option) *Decoder {
	d := &Decoder{logger: quill.NopLogger{}}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Feed appends a chunk to the internal buffer and returns all frames
// whose two lines are now complete, in wire order. Empty chunks are
// no-ops. A trailing partial line is buffered until the next chunk, so
// the buffer is the only state that survives between calls.
func (d *Decoder) Feed(chunk []byte) []quill.Frame {
	if len(chunk) == 0 {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var frames []quill.Frame
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		if f := d.consumeLine(line); f != nil {
			frames = append(frames, f)
		}
	}
	return frames
}

// Flush processes any final unterminated line. A stream that ends
// without a trailing newline still yields its last frame when both
// lines are present in the buffer. Call once, at end of stream.
func (d *Decoder) Flush() []quill.Frame {
	var frames []quill.Frame
	if len(d.buf) > 0 {
		line := string(d.buf)
		d.buf = nil
		if f := d.consumeLine(line); f != nil {
			frames = append(frames, f)
		}
	}
	if d.hasKind {
		d.logger.Warn("stream ended with unpaired frame marker", "kind", d.kind)
		d.hasKind = false
		d.kind = ""
	}
	return frames
}

// consumeLine folds one complete line into the decoder state and
// returns a frame when the line completes one.
func (d *Decoder) consumeLine(line string) quill.Frame {
	line = strings.TrimSuffix(line, "\r")

	switch {
	case line == "":
		// Event separator.
		return nil
	case strings.HasPrefix(line, ":"):
		// SSE comment.
		return nil
	case strings.HasPrefix(line, "event: "):
		if d.hasKind {
			d.logger.Warn("frame marker without payload dropped", "kind", d.kind)
		}
		d.kind = strings.TrimPrefix(line, "event: ")
		d.hasKind = true
		return nil
	case strings.HasPrefix(line, "data: "):
		if !d.hasKind {
			d.logger.Warn("payload line without frame marker dropped")
			return nil
		}
		kind := d.kind
		d.kind = ""
		d.hasKind = false
		f, err := decodeFrame(kind, strings.TrimPrefix(line, "data: "))
		if err != nil {
			d.logger.Warn("dropping malformed frame payload", "kind", kind, "error", err)
			return nil
		}
		return f
	default:
		// Unknown field, ignored per the SSE contract.
		return nil
	}
}

// Wire payload shapes.

type contentPayload struct {
	Content string `json:"content"`
}

type citationsPayload struct {
	Citations []citationPayload `json:"citations"`
}

type citationPayload struct {
	Index      int     `json:"index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

type usagePayload struct {
	InputTokens  *int `json:"input_tokens"`
	OutputTokens *int `json:"output_tokens"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// decodeFrame maps one kind/payload pair to a frame. Unknown kinds
// decode to nil without error so new server-side frame kinds do not
// break older clients.
func decodeFrame(kind, payload string) (quill.Frame, error) {
	data := []byte(payload)

	switch kind {
	case kindStart:
		if err := json.Unmarshal(data, &struct{}{}); err != nil {
			return nil, err
		}
		return quill.FrameStart{}, nil
	case kindThinkingStart:
		if err := json.Unmarshal(data, &struct{}{}); err != nil {
			return nil, err
		}
		return quill.FrameThinkingStart{}, nil
	case kindTextStart:
		if err := json.Unmarshal(data, &struct{}{}); err != nil {
			return nil, err
		}
		return quill.FrameTextStart{}, nil
	case kindThinking:
		var p contentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return quill.FrameThinkingDelta{Delta: p.Content}, nil
	case kindText:
		var p contentPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return quill.FrameTextDelta{Delta: p.Content}, nil
	case kindBlockStop:
		if err := json.Unmarshal(data, &struct{}{}); err != nil {
			return nil, err
		}
		return quill.FrameBlockStop{}, nil
	case kindCitations:
		var p citationsPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		citations := make([]quill.Citation, len(p.Citations))
		for i, c := range p.Citations {
			citations[i] = quill.Citation{Index: c.Index, Content: c.Content, Similarity: c.Similarity}
		}
		return quill.FrameCitations{Citations: citations}, nil
	case kindUsage:
		var p usagePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return quill.FrameUsage{InputTokens: p.InputTokens, OutputTokens: p.OutputTokens}, nil
	case kindComplete:
		if err := json.Unmarshal(data, &struct{}{}); err != nil {
			return nil, err
		}
		return quill.FrameComplete{}, nil
	case kindError:
		var p errorPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return quill.FrameError{Message: p.Error}, nil
	default:
		return nil, nil
	}
}

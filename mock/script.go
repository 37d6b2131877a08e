// Package mock provides test doubles for the streaming endpoints.
// Host applications script a frame sequence and serve it from an
// httptest server to exercise their session handling without a live
// backend.
package mock

import (
	"fmt"
	"net/http"
)

// Event is one scripted wire frame: a kind marker and its JSON payload.
type Event struct {
	Kind string
	Data string
}

// Script is an ordered frame sequence rendered as an event stream.
type Script []Event

// Handler serves the script as a text event-stream, flushing after each
// frame so chunk boundaries land between frames the way a real backend's
// do.
func (s Script) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, e := range s {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, e.Data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// TextStream scripts a minimal successful generation: start, a text
// block carrying the given deltas, and a complete frame.
func TextStream(deltas ...string) Script {
	s := Script{
		{Kind: "start", Data: "{}"},
		{Kind: "text_start", Data: "{}"},
	}
	for _, d := range deltas {
		s = append(s, Event{Kind: "text", Data: fmt.Sprintf("{%q: %q}", "content", d)})
	}
	s = append(s,
		Event{Kind: "block_stop", Data: "{}"},
		Event{Kind: "complete", Data: "{}"},
	)
	return s
}

// ErrorStream scripts a generation that fails server-side after the
// given deltas.
func ErrorStream(message string, deltas ...string) Script {
	s := Script{
		{Kind: "start", Data: "{}"},
		{Kind: "text_start", Data: "{}"},
	}
	for _, d := range deltas {
		s = append(s, Event{Kind: "text", Data: fmt.Sprintf("{%q: %q}", "content", d)})
	}
	s = append(s, Event{Kind: "error", Data: fmt.Sprintf("{%q: %q}", "error", message)})
	return s
}

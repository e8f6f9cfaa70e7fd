package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/desertthunder/rankwatch/internal/tasks"
)

// eventStream writes server-sent events, one JSON object per `data:` frame.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by %T", w)
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &eventStream{w: w, flusher: flusher}, nil
}

// Send writes one frame and flushes it.
func (s *eventStream) Send(ev tasks.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Relay forwards events until the producer closes the channel.
//
// After a write failure remaining events are drained so the producer never blocks on a gone client.
func (s *eventStream) Relay(events <-chan tasks.Event) {
	broken := false
	for ev := range events {
		if broken {
			continue
		}
		if err := s.Send(ev); err != nil {
			broken = true
		}
	}
}

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	contentTypeEventStream = "text/event-stream"

	eventExperiments = "experiments"
	eventError       = "error"
)

// handleStreamExperiments sends the full experiment collection as an
// "experiments" event on connect and again after every poll or write.
// A failed listing is reported as an "error" event and the stream goes on.
func (s *Server) handleStreamExperiments(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// Streams outlive the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	h := w.Header()
	h.Set("Content-Type", contentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Error("streaming not supported", "error", err)
		return
	}

	s.logger.Debug("stream opened", "request_id", RequestIDFromContext(r.Context()))
	defer s.logger.Debug("stream closed", "request_id", RequestIDFromContext(r.Context()))

	for snap := range s.poller.Subscribe(r.Context()) {
		var err error
		if snap.Err != nil {
			err = writeEvent(w, eventError, errorResponse{Message: snap.Err.Error()})
		} else {
			err = writeEvent(w, eventExperiments, snap.Experiments)
		}
		if err == nil {
			err = rc.Flush()
		}
		if err != nil {
			s.logger.Debug("stream write failed", "error", err)
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

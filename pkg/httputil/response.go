package httputil

import (
	"encoding/json"
	"io"
	"log"
	"net/http"

	"assistant-backend/internal/models"
)

// RespondJSON writes a JSON response with the given status code and payload.
func RespondJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		// Headers are already sent.
		log.Printf("WARN [httputil] Encoding JSON response: %v", err)
	}
}

// RespondError writes a JSON error response with the given status code and message.
func RespondError(w http.ResponseWriter, statusCode int, message string) {
	RespondJSON(w, statusCode, models.ErrorResponse{Error: message})
}

// RespondText writes a plain-text body.
func RespondText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	if _, err := io.WriteString(w, body); err != nil {
		log.Printf("WARN [httputil] Writing text response: %v", err)
	}
}

// Stream writes pre-framed event-stream fragments, flushing after each one.
type Stream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// StartStream sends the event-stream headers (plus any extra ones) with a 200
// status and returns a Stream for the body.
func StartStream(w http.ResponseWriter, extra map[string]string) *Stream {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	for k, v := range extra {
		header.Set(k, v)
	}
	w.WriteHeader(http.StatusOK)

	s := &Stream{w: w}
	s.flusher, _ = w.(http.Flusher)
	s.flush()
	return s
}

// Write sends one fragment. An error means the client is gone.
func (s *Stream) Write(fragment string) error {
	if _, err := io.WriteString(s.w, fragment); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *Stream) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

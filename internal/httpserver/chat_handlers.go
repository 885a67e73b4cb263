package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tokligence/chatrelay/internal/adapter"
	"github.com/tokligence/chatrelay/internal/chat"
	"github.com/tokligence/chatrelay/internal/stream"
)

// handleChat validates the posted conversation and streams the completion.
// Failures before the first byte get a JSON status; later ones are framed in-band
// (SSE) or cut the connection (raw).
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		s.respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	res, err := chat.Decode(body, s.mode)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if !res.OK() {
		for _, issue := range res.Issues {
			s.metrics.RecordValidationFailure(string(issue.Code))
		}
		s.logger.Debug("chat.rejected",
			"request_id", middleware.GetReqID(r.Context()),
			"issues", len(res.Issues),
			"first", res.Issues[0].Message,
		)
		s.respondJSON(w, http.StatusBadRequest, errorBody{
			Error:   "Validation Error",
			Message: res.Issues[0].Message,
			Details: res.Issues,
		})
		return
	}

	streamID := uuid.NewString()
	w.Header().Set("X-Stream-ID", streamID)
	log := s.logger.With(
		"request_id", middleware.GetReqID(r.Context()),
		"stream_id", streamID,
	)

	comp, err := s.completer.Open(r.Context(), res.Conversation)
	if err != nil {
		var uerr *adapter.UpstreamError
		if errors.As(err, &uerr) {
			s.metrics.RecordUpstreamError(uerr.Provider, string(uerr.Phase))
		}
		log.Error("chat.open_failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Internal Server Error", err)
		return
	}
	defer comp.Stream.Close()

	done := s.metrics.StreamStarted()
	result, err := stream.Pump(r.Context(), w, comp.Stream, s.framer)
	done()

	s.metrics.RecordStream(comp.Provider, string(result.Outcome), result.Fragments, result.Duration)
	attrs := []any{
		"provider", comp.Provider,
		"model", comp.Model,
		"fragments", result.Fragments,
		"bytes", result.Bytes,
		"ttfb_ms", durationMS(result.FirstByte),
		"total_ms", durationMS(result.Duration),
		"outcome", string(result.Outcome),
	}
	switch result.Outcome {
	case stream.OutcomeAborted:
		var uerr *adapter.UpstreamError
		if errors.As(err, &uerr) {
			s.metrics.RecordUpstreamError(uerr.Provider, string(uerr.Phase))
		} else {
			s.metrics.RecordUpstreamError(comp.Provider, string(adapter.PhaseStream))
		}
		log.Warn("chat.stream", append(attrs, "error", err)...)
	case stream.OutcomeClientGone:
		log.Info("chat.stream", append(attrs, "error", err)...)
	default:
		log.Info("chat.stream", attrs...)
	}

	if result.Truncate {
		// Raw framing has no in-band error; cut the connection so the client
		// sees a truncated body rather than a clean end.
		panic(http.ErrAbortHandler)
	}
}

func durationMS(d time.Duration) int64 {
	return d.Milliseconds()
}

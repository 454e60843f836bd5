package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/eclipse-efbt/efbt-sub000/internal/ingest"
	"github.com/eclipse-efbt/efbt-sub000/internal/schema"
	"github.com/eclipse-efbt/efbt-sub000/pkg/core"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failed request.
type ErrorDetail struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	TrailID    int64  `json:"trail_id,omitempty"`
	EventIndex *int   `json:"event_index,omitempty"`
}

// badRequestError marks malformed input that never reached the core.
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

var errorCodes = []struct {
	target error
	status int
	code   string
}{
	{core.ErrNotFound, http.StatusNotFound, "not_found"},
	{core.ErrInvalidValue, http.StatusBadRequest, "invalid_value"},
	{core.ErrConflict, http.StatusConflict, "conflict"},
	{core.ErrUnknownColumn, http.StatusBadRequest, "unknown_column"},
	{core.ErrUnknownFunction, http.StatusBadRequest, "unknown_function"},
	{core.ErrUnknownTable, http.StatusBadRequest, "unknown_table"},
	{core.ErrInvalidReferenceType, http.StatusBadRequest, "invalid_reference_type"},
	{core.ErrCycle, http.StatusConflict, "cycle"},
	{core.ErrDuplicateName, http.StatusConflict, "duplicate_name"},
	{schema.ErrNoSnapshot, http.StatusConflict, "schema_static"},
}

// respondJSON encodes data before the status line is written, so a value
// that cannot be encoded turns into an internal error instead of an empty
// 200.
func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		s.respondError(w, r, fmt.Errorf("failed to encode response: %w", err), 0)
		return
	}
	writeJSON(w, status, buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// respondError maps err onto a status and code. Faults outside the error
// taxonomy are logged and reported as a generic internal error.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, trailID int64) {
	detail := ErrorDetail{TrailID: trailID}

	var evErr *ingest.EventError
	if errors.As(err, &evErr) {
		idx := evErr.Index
		detail.EventIndex = &idx
	}

	status := http.StatusInternalServerError
	var bad *badRequestError
	switch {
	case errors.As(err, &bad):
		status, detail.Code, detail.Message = http.StatusBadRequest, "bad_request", bad.msg
	default:
		for _, c := range errorCodes {
			if errors.Is(err, c.target) {
				status, detail.Code, detail.Message = c.status, c.code, err.Error()
				break
			}
		}
	}

	if detail.Code == "" {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		detail.Code = "internal"
		detail.Message = "internal server error"
		if detail.EventIndex != nil {
			detail.Message = "internal server error while applying ingest document"
		}
	}

	body, _ := json.Marshal(ErrorBody{Error: detail})
	writeJSON(w, status, append(body, '\n'))
}

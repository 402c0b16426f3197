// Package httputil provides JSON request/response helpers shared by the HTTP handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

// MaxBodyBytes bounds request bodies read by ReadJSON.
const MaxBodyBytes = 1 << 20

var exposeCauses atomic.Bool

// SetExposeCauses toggles inclusion of the underlying cause in error bodies (development only).
func SetExposeCauses(v bool) {
	exposeCauses.Store(v)
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	TraceID string                 `json:"trace_id,omitempty"`
	Cause   string                 `json:"cause,omitempty"`
}

// WriteJSON writes data as JSON with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes an error body with an explicit code and status.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]interface{}) {
	resp := ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
	if r != nil {
		resp.TraceID = logging.GetTraceID(r.Context())
	}
	WriteJSON(w, status, resp)
}

// WriteError renders err according to the error taxonomy. Foreign errors become INTERNAL_ERROR.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	se := errors.GetServiceError(err)
	if se == nil {
		se = errors.Internal("", err)
	}
	resp := ErrorResponse{
		Code:    string(se.Code),
		Message: se.Message,
		Details: se.Details,
	}
	if r != nil {
		resp.TraceID = logging.GetTraceID(r.Context())
	}
	if exposeCauses.Load() && se.Err != nil {
		resp.Cause = se.Err.Error()
	}
	status := se.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, resp)
}

// ReadJSON decodes the request body into v. Unknown fields are tolerated.
func ReadJSON(r *http.Request, v any) error {
	return readJSON(r, v, false)
}

// ReadOptionalJSON is ReadJSON for bodies that may be omitted. An empty body leaves v unchanged.
func ReadOptionalJSON(r *http.Request, v any) error {
	return readJSON(r, v, true)
}

func readJSON(r *http.Request, v any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return errors.Validation("body", "empty request body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			if optional {
				return nil
			}
			return errors.Validation("body", "empty request body")
		}
		return errors.Validation("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

func NotFound(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorResponse(w, r, http.StatusNotFound, string(errors.CodeNotFound), message, nil)
}

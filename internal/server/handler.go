// Generic HTTP handler wrappers that decode requests, validate, call a typed
// handler function, and encode JSON responses or structured errors.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/morphlabs/morphd/internal/server/dto"
)

// handle wraps a typed handler function into an http.HandlerFunc. It reads
// the JSON body (with DisallowUnknownFields), validates, calls fn, and
// writes the JSON response or structured error.
func handle[In any, PtrIn interface {
	*In
	dto.Validatable
}, Out any](fn func(context.Context, PtrIn) (*Out, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		in := PtrIn(new(In))
		if !readAndDecodeBody(w, r, in) {
			return
		}
		if err := in.Validate(); err != nil {
			writeError(w, err)
			return
		}
		out, err := fn(r.Context(), in)
		writeJSONResponse(w, out, err)
	}
}

// readAndDecodeBody reads the request body and decodes JSON into input. It
// skips decoding for EmptyReq. Unknown JSON fields are rejected. Returns
// false if an error was written to the response.
func readAndDecodeBody[In any](w http.ResponseWriter, r *http.Request, input *In) bool {
	if _, isEmpty := any(input).(*dto.EmptyReq); isEmpty {
		return true
	}
	body, err := io.ReadAll(r.Body)
	if err2 := r.Body.Close(); err == nil {
		err = err2
	}
	if err != nil {
		writeError(w, dto.BadRequest("failed to read request body"))
		return false
	}
	if len(body) == 0 {
		return true
	}
	d := json.NewDecoder(bytes.NewReader(body))
	d.DisallowUnknownFields()
	if err := d.Decode(input); err != nil {
		slog.Error("failed to decode request body", "err", err)
		writeError(w, dto.BadRequest("invalid request body"))
		return false
	}
	return true
}

// writeJSONResponse writes out as JSON, or the structured error when err is
// non-nil.
func writeJSONResponse(w http.ResponseWriter, out any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

// writeError maps err to an ErrorResponse body. Unrecognized errors become
// 500 internal, with the detail logged rather than leaked.
func writeError(w http.ResponseWriter, err error) {
	var ae *dto.APIError
	if !errors.As(err, &ae) {
		slog.Error("internal error", "err", err)
		ae = &dto.APIError{Status: http.StatusInternalServerError, Code: dto.CodeInternal, Message: "internal error"}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status)
	body := dto.ErrorResponse{Error: dto.ErrorDetails{Code: ae.Code, Message: ae.Message}}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode error response", "err", err)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/EhsanAmini770/charity-info-sub000/internal/api"
)

const maxJSONBodyBytes = 1 << 20

// writeErrorReq is the single error responder. 5xx details are logged and
// replaced by "internal error" on the wire.
func (s *Server) writeErrorReq(w http.ResponseWriter, r *http.Request, status int, err error) {
	if err == nil {
		err = errors.New(http.StatusText(status))
	}
	kind := describeError(status, err)
	message := err.Error()

	fields := []any{"status", status, "code", kind.code, "error_code", kind.errCode, "error", err}
	if r != nil {
		fields = append(fields, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
	}
	switch {
	case status >= 500:
		s.log().Error("request error", fields...)
		message = "internal error"
	case status >= 400 && shouldWarnClientError(kind):
		s.log().Warn("request rejected", fields...)
	case status >= 400:
		s.log().Debug("request rejected", fields...)
	}

	s.writeJSON(w, status, api.ErrorResponse{Error: message, Code: kind.code, ErrorCode: kind.errCode})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("write json response", "status", status, "error", err)
	}
}

// readJSON decodes a capped request body into dst. An empty body is an
// error unless optional is set, in which case dst is left untouched.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		err = badRequestCode(fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit), ErrCodeRequestTooLarge)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		err = badRequestCode(errors.New("invalid JSON payload"), ErrCodeInvalidJSON)
	default:
		err = badRequestCode(fmt.Errorf("invalid JSON payload: %w", err), ErrCodeInvalidJSON)
	}
	s.writeErrorReq(w, r, http.StatusBadRequest, err)
	return false
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, httpStatusFromError(err), err)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeErrorReq(w, r, http.StatusInternalServerError, storeFailure(err))
}

// queryParams collects the first parse failure so handlers can read several
// parameters and check once.
type queryParams struct {
	values url.Values
	err    error
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query()}
}

func (q *queryParams) raw(key string) string {
	return strings.TrimSpace(q.values.Get(key))
}

func (q *queryParams) fail(key string, reason string) {
	if q.err == nil {
		q.err = badRequestCode(fmt.Errorf("query parameter %s %s", key, reason), ErrCodeInvalidQuery)
	}
}

// Count returns a non-negative integer parameter, or def when absent.
func (q *queryParams) Count(key string, def int) int {
	value := q.raw(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	switch {
	case err != nil:
		q.fail(key, "must be an integer")
	case parsed < 0:
		q.fail(key, "must be >= 0")
	default:
		return parsed
	}
	return def
}

// Bool returns nil when the parameter is absent.
func (q *queryParams) Bool(key string) *bool {
	value := q.raw(key)
	if value == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		q.fail(key, "must be true or false")
		return nil
	}
	return &parsed
}

func (q *queryParams) Err() error {
	return q.err
}

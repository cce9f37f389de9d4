package server

import (
	"errors"
	"net/http"

	"github.com/EhsanAmini770/charity-info-sub000/internal/store"
)

// apiError carries the HTTP status and both wire codes for a failure.
type apiError struct {
	status  int
	code    string
	errCode int
	err     error
}

func (e apiError) Error() string {
	if e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e apiError) Unwrap() error {
	return e.err
}

// errorKind is the (status, code, error_code) triple of one failure class.
type errorKind struct {
	status  int
	code    string
	errCode int
}

var (
	kindUnauthorized    = errorKind{http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized}
	kindForbidden       = errorKind{http.StatusForbidden, "forbidden", ErrCodeForbidden}
	kindInternal        = errorKind{http.StatusInternalServerError, "internal", ErrCodeInternal}
	kindStoreFailure    = errorKind{http.StatusInternalServerError, "internal", ErrCodeStoreFailure}
	kindUploadFailed    = errorKind{http.StatusInternalServerError, "upload_failed", ErrCodeUploadFailed}
	kindStorageFailure  = errorKind{http.StatusInternalServerError, "storage_failure", ErrCodeStorageFailure}
	kindBlobMissing     = errorKind{http.StatusNotFound, "blob_missing", ErrCodeBlobMissing}
	kindUnsupportedView = errorKind{http.StatusBadRequest, "unsupported_view", ErrCodeUnsupportedView}
)

// statusDefaults fills in codes for errors that carry only a status.
var statusDefaults = map[int]errorKind{
	http.StatusBadRequest:          {http.StatusBadRequest, "invalid_argument", ErrCodeInvalidArgument},
	http.StatusUnauthorized:        kindUnauthorized,
	http.StatusForbidden:           kindForbidden,
	http.StatusNotFound:            {http.StatusNotFound, "not_found", ErrCodeAttachmentNotFound},
	http.StatusConflict:            {http.StatusConflict, "conflict", ErrCodeConflict},
	http.StatusTooManyRequests:     {http.StatusTooManyRequests, "resource_exhausted", ErrCodeResourceExhausted},
	http.StatusInternalServerError: kindInternal,
	http.StatusNotImplemented:      {http.StatusNotImplemented, "not_implemented", ErrCodeNotImplemented},
}

// wrap tags err with k unless err is already an apiError with a status.
func (k errorKind) wrap(err error) error {
	if err == nil {
		err = errors.New(http.StatusText(k.status))
	}
	var existing apiError
	if errors.As(err, &existing) && existing.status != 0 {
		return existing
	}
	return apiError{status: k.status, code: k.code, errCode: k.errCode, err: err}
}

func makeAPIError(status int, code string, errCode int, err error) error {
	return errorKind{status, code, errCode}.wrap(err)
}

func badRequest(err error) error { return badRequestCode(err, ErrCodeInvalidArgument) }

func badRequestCode(err error, code int) error {
	return makeAPIError(http.StatusBadRequest, "invalid_argument", code, err)
}

func notFoundCode(err error, code int) error {
	return makeAPIError(http.StatusNotFound, "not_found", code, err)
}

func conflictCode(err error, code int) error {
	return makeAPIError(http.StatusConflict, "conflict", code, err)
}

func unauthorized(err error) error    { return kindUnauthorized.wrap(err) }
func forbidden(err error) error       { return kindForbidden.wrap(err) }
func internalError(err error) error   { return kindInternal.wrap(err) }
func storeFailure(err error) error    { return kindStoreFailure.wrap(err) }
func uploadFailed(err error) error    { return kindUploadFailed.wrap(err) }
func storageFailure(err error) error  { return kindStorageFailure.wrap(err) }
func blobMissing(err error) error     { return kindBlobMissing.wrap(err) }
func unsupportedView(err error) error { return kindUnsupportedView.wrap(err) }

// describeError resolves the wire triple for err answered with status.
func describeError(status int, err error) errorKind {
	out := statusDefaults[status]
	out.status = status
	var apiErr apiError
	if errors.As(err, &apiErr) {
		if apiErr.code != "" {
			out.code = apiErr.code
		}
		if apiErr.errCode > 0 {
			out.errCode = apiErr.errCode
		}
	}
	return out
}

func httpStatusFromError(err error) int {
	var apiErr apiError
	if errors.As(err, &apiErr) && apiErr.status != 0 {
		return apiErr.status
	}
	return http.StatusInternalServerError
}

// shouldWarnClientError picks out rejections an operator should see at the
// default level. A missing blob is a 404 but always means an orphan exists.
func shouldWarnClientError(kind errorKind) bool {
	switch kind.status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return kind.code == kindBlobMissing.code
}

func isUniqueConstraint(err error) bool {
	return store.IsUniqueConstraint(err)
}

package server

const (
	// Validation (1xxx)
	ErrCodeInvalidArgument   = 1000
	ErrCodeInvalidJSON       = 1001
	ErrCodeRequestTooLarge   = 1002
	ErrCodeInvalidQuery      = 1003
	ErrCodeInvalidID         = 1004
	ErrCodeInvalidMediaType  = 1005
	ErrCodeInvalidFilename   = 1006
	ErrCodeInvalidLimit      = 1007
	ErrCodeInvalidResolution = 1008
	ErrCodeMissingRequired   = 1009
	ErrCodeUnsupportedView   = 1015

	// Domain state (2xxx)
	ErrCodeArticleNotFound    = 2001
	ErrCodeAttachmentNotFound = 2003
	ErrCodeBlobMissing        = 2005
	ErrCodeOrphanNotFound     = 2006
	ErrCodeConflict           = 2102
	ErrCodeScanInProgress     = 2103

	// Auth & limits (3xxx)
	ErrCodeUnauthorized      = 3001
	ErrCodeForbidden         = 3002
	ErrCodeResourceExhausted = 3003

	// Internal/system (4xxx)
	ErrCodeInternal       = 4001
	ErrCodeStoreFailure   = 4002
	ErrCodeNotImplemented = 4005
	ErrCodeUploadFailed   = 4006
	ErrCodeStorageFailure = 4007
)

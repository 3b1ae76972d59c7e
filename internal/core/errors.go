package core

import "errors"

// Fatal upload errors. Anything that wraps one of these aborts the upload
// and marks its operation FAILED.
var (
	ErrNoFile        = errors.New("no file provided")
	ErrFileTooLarge  = errors.New("file too large")
	ErrInvalidCSV    = errors.New("invalid csv")
	ErrUploadTimeout = errors.New("upload deadline exceeded")
	ErrPersistence   = errors.New("persistence unavailable")
)

// ErrTooManyUploads is returned when all upload slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

// Operation store errors.
var (
	ErrOperationNotFound = errors.New("operation not found")
	ErrInvalidTransition = errors.New("invalid operation status transition")
)

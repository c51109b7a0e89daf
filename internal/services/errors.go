package services

import "fmt"

// ImportErrorKind classifies an import failure. The worker uses the kind to
// decide logging detail; the retry budget applies uniformly (a validation
// failure burns its retries rather than short-circuiting them).
type ImportErrorKind string

const (
	ErrKindDownloadNotFound  ImportErrorKind = "download_not_found"
	ErrKindDownloadServer    ImportErrorKind = "download_server_error"
	ErrKindDownloadTransport ImportErrorKind = "download_transport"
	ErrKindParse             ImportErrorKind = "parse"
	ErrKindValidation        ImportErrorKind = "validation"
	ErrKindStorage           ImportErrorKind = "storage"
	ErrKindNoReadings        ImportErrorKind = "no_readings"
)

// ImportError is the closed error surface of the import service. Storage and
// transport errors are never passed through opaquely; every failure leaving
// Import carries one of the kinds above.
type ImportError struct {
	Kind ImportErrorKind
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

func newImportError(kind ImportErrorKind, err error) *ImportError {
	return &ImportError{Kind: kind, Err: err}
}

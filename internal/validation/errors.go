package validation

import "errors"

var (
	ErrMissingCredentials    = errors.New("missing credentials")
	ErrMissingCSV            = errors.New("missing csv file")
	ErrMissingAttachment     = errors.New("missing attachment")
	ErrInvalidAttachmentType = errors.New("invalid attachment type")
	ErrMissingDescription    = errors.New("missing description")
)

// PreconditionError rejects a submission before any parsing or sending.
// Reason is safe to show to the caller.
type PreconditionError struct {
	Field  string
	Reason string
	err    error
}

func (e *PreconditionError) Error() string { return e.Reason }

func (e *PreconditionError) Unwrap() error { return e.err }

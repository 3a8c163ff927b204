package validation

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// AllowedAttachmentTypes lists the media types accepted for the CV attachment.
var AllowedAttachmentTypes = []string{TypePDF, TypeDOC, TypeDOCX}

// Form carries the raw submission fields. Field order is check order:
// the first failing field is the one reported.
type Form struct {
	SenderEmail       string `validate:"required"`
	AppPassword       string `validate:"required"`
	HasCSV            bool   `validate:"required"`
	RequireAttachment bool   `validate:"-"`
	HasAttachment     bool   `validate:"required_if=RequireAttachment true"`
	AttachmentType    string `validate:"omitempty,oneof=application/pdf application/msword application/vnd.openxmlformats-officedocument.wordprocessingml.document"`
	Description       string `validate:"required"`
}

var reasons = map[string]struct {
	reason string
	err    error
}{
	"SenderEmail":    {"Email and App Password are required.", ErrMissingCredentials},
	"AppPassword":    {"Email and App Password are required.", ErrMissingCredentials},
	"HasCSV":         {"CSV file is required.", ErrMissingCSV},
	"HasAttachment":  {"CV file is required.", ErrMissingAttachment},
	"AttachmentType": {"Invalid CV file type.", ErrInvalidAttachmentType},
	"Description":    {"Description is required.", ErrMissingDescription},
}

type Validator struct {
	v                 *validator.Validate
	requireAttachment bool
}

// New returns a Validator. When requireAttachment is set, submissions
// without a CV attachment are rejected.
func New(requireAttachment bool) *Validator {
	return &Validator{
		v:                 validator.New(validator.WithRequiredStructEnabled()),
		requireAttachment: requireAttachment,
	}
}

// Validate returns nil or a *PreconditionError for the first failing check.
// An attachment's declared type is checked whenever one is present.
func (val *Validator) Validate(f Form) error {
	f.SenderEmail = strings.TrimSpace(f.SenderEmail)
	f.Description = strings.TrimSpace(f.Description)
	f.RequireAttachment = val.requireAttachment
	if f.HasAttachment && f.AttachmentType == "" {
		f.AttachmentType = "application/octet-stream"
	}

	err := val.v.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	field := verrs[0].StructField()
	r, ok := reasons[field]
	if !ok {
		return err
	}

	return &PreconditionError{Field: field, Reason: r.reason, err: r.err}
}

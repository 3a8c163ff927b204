package models

// DefaultRole is used for recipients whose CSV row has no role value.
const DefaultRole = "Job Application"

type DispatchStatus string

const (
	StatusSent   DispatchStatus = "sent"
	StatusFailed DispatchStatus = "failed"
)

type BatchStatus string

const (
	BatchCompleted      BatchStatus = "completed"
	BatchPartialFailure BatchStatus = "partial_failure"
	BatchFailed         BatchStatus = "failed"
)

// Credentials authenticate against the sender's own mail relay.
// They live only as long as the request that carried them.
type Credentials struct {
	Address string
	Secret  string
}

// String hides the secret so credentials can't leak through %v.
func (c Credentials) String() string {
	return c.Address + ":***"
}

type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Submission is one validated bulk-send request. It is never mutated after
// the handler builds it.
type Submission struct {
	Credentials Credentials
	Subject     string
	Body        string
	Attachment  *Attachment
}

type RecipientRecord struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Message is a composed email ready for the relay.
type Message struct {
	BatchID     string
	From        string
	To          string
	Subject     string
	Body        string
	Attachments []Attachment
}

type DispatchOutcome struct {
	Recipient     string         `json:"recipient"`
	Status        DispatchStatus `json:"status"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

type BatchResult struct {
	BatchID  string            `json:"batch_id"`
	Sent     int               `json:"sent"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped_rows"`
	Outcomes []DispatchOutcome `json:"outcomes"`
}

func (b *BatchResult) Status() BatchStatus {
	switch {
	case b.Failed == 0:
		return BatchCompleted
	case b.Sent == 0:
		return BatchFailed
	default:
		return BatchPartialFailure
	}
}

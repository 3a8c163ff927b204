// Package drafting asks a generative model for a job application email and
// splits the reply into subject and body.
package drafting

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// SubjectNotFound is reported when the model reply doesn't follow the
// requested format.
const SubjectNotFound = "Subject not found"

var (
	ErrIncompleteRequest = errors.New("please fill in all the fields")

	subjectPattern = regexp.MustCompile(`Subject: (.+)`)
	bodyPattern    = regexp.MustCompile(`(?s)Email Body: (.+)`)
)

type Request struct {
	Name       string `json:"name" validate:"required"`
	Profession string `json:"profession" validate:"required"`
	Skills     string `json:"skills" validate:"required"`
	JobRole    string `json:"jobRole" validate:"required"`
	Company    string `json:"company" validate:"required"`
}

type Draft struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
	Raw     string `json:"raw"`
}

// Generator produces free text for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

type Service struct {
	gen      Generator
	validate *validator.Validate
}

func NewService(gen Generator) *Service {
	return &Service{
		gen:      gen,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Draft validates req, prompts the model and parses its reply.
func (s *Service) Draft(ctx context.Context, req Request) (*Draft, error) {
	req = trimRequest(req)
	if err := s.validate.Struct(req); err != nil {
		return nil, ErrIncompleteRequest
	}

	text, err := s.gen.GenerateContent(ctx, BuildPrompt(req))
	if err != nil {
		return nil, fmt.Errorf("generate draft: %w", err)
	}

	d := ParseDraft(text)
	return &d, nil
}

func BuildPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Generate a professional job application email maximum 15 lines.\n")
	fmt.Fprintf(&b, "- Name: %s\n", req.Name)
	fmt.Fprintf(&b, "- Profession: %s\n", req.Profession)
	fmt.Fprintf(&b, "- Skills: %s\n", req.Skills)
	fmt.Fprintf(&b, "- Job Role: %s\n", req.JobRole)
	fmt.Fprintf(&b, "- Company Name: %s\n", req.Company)
	b.WriteString("\nFormat:\n")
	b.WriteString("- Subject: [Formal subject line]\n")
	b.WriteString("- Email Body: [Structured email with greeting, introduction, skills, request for interview, and closing statement.]\n")
	return b.String()
}

// ParseDraft extracts the "Subject:" line and the "Email Body:" block.
// When either is missing the whole text becomes the body.
func ParseDraft(text string) Draft {
	subject := subjectPattern.FindStringSubmatch(text)
	body := bodyPattern.FindStringSubmatch(text)

	if subject == nil || body == nil {
		return Draft{Subject: SubjectNotFound, Body: text, Raw: text}
	}

	return Draft{
		Subject: strings.TrimSpace(subject[1]),
		Body:    strings.TrimSpace(body[1]),
		Raw:     text,
	}
}

func trimRequest(r Request) Request {
	return Request{
		Name:       strings.TrimSpace(r.Name),
		Profession: strings.TrimSpace(r.Profession),
		Skills:     strings.TrimSpace(r.Skills),
		JobRole:    strings.TrimSpace(r.JobRole),
		Company:    strings.TrimSpace(r.Company),
	}
}

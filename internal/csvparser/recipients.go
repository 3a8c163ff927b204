package csvparser

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"MailBlast/internal/models"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ParseResult holds the recipients accepted from a CSV upload.
// Skipped counts non-empty data rows dropped for a missing or malformed email.
type ParseResult struct {
	Recipients []models.RecipientRecord
	Skipped    int
}

// ValidEmail reports whether s has the basic local@domain.tld shape.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// ParseRecipients reads a recipient CSV from r. The reader may deliver the
// payload in any number of chunks; it is decoded as UTF-8 (a leading BOM is
// dropped) and assembled before parsing.
//
// The first line is always the header. The email column is the first header
// containing "email" (case-insensitive), or column 0 when none does. The role
// column is the first header containing "role", if any. Rows keep their input
// order and are not deduplicated. An empty result is not an error.
func ParseRecipients(r io.Reader) (*ParseResult, error) {
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())

	var sb strings.Builder
	if _, err := io.Copy(&sb, transform.NewReader(r, decoder)); err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	result := &ParseResult{Recipients: make([]models.RecipientRecord, 0)}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return result, nil
	}

	lines := strings.Split(text, "\n")
	headers := strings.Split(lines[0], ",")

	emailIdx := columnIndex(headers, "email")
	if emailIdx == -1 {
		emailIdx = 0
	}
	roleIdx := columnIndex(headers, "role")

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		values := strings.Split(line, ",")

		email := field(values, emailIdx)
		if !ValidEmail(email) {
			result.Skipped++
			continue
		}

		role := field(values, roleIdx)
		if role == "" {
			role = models.DefaultRole
		}

		result.Recipients = append(result.Recipients, models.RecipientRecord{
			Email: email,
			Role:  role,
		})
	}

	return result, nil
}

func columnIndex(headers []string, name string) int {
	for i, h := range headers {
		if strings.Contains(strings.ToLower(h), name) {
			return i
		}
	}
	return -1
}

// field returns the trimmed value at idx, or "" when the row is too short.
func field(values []string, idx int) string {
	if idx < 0 || idx >= len(values) {
		return ""
	}
	return strings.TrimSpace(values[idx])
}

package email

import (
	"io"
	"strings"

	"gopkg.in/gomail.v2"

	"MailBlast/internal/models"
)

// Compose builds the message for one recipient. The body is identical for
// every recipient; only the subject falls back to the recipient's role when
// the submission has none.
func Compose(sub *models.Submission, rec models.RecipientRecord) *models.Message {
	subject := sub.Subject
	if strings.TrimSpace(subject) == "" {
		subject = " " + rec.Role
	}

	msg := &models.Message{
		From:    sub.Credentials.Address,
		To:      rec.Email,
		Subject: subject,
		Body:    sub.Body,
	}

	if sub.Attachment != nil {
		msg.Attachments = []models.Attachment{*sub.Attachment}
	}

	return msg
}

// ToGomail converts a composed message into its wire form.
func ToGomail(msg *models.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.BatchID != "" {
		m.SetHeader("X-Batch-ID", msg.BatchID)
	}
	m.SetBody("text/plain", msg.Body)

	for _, att := range msg.Attachments {
		content := att.Content
		m.Attach(att.Filename,
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
			gomail.SetHeader(map[string][]string{
				"Content-Type": {att.ContentType},
			}),
		)
	}

	return m
}

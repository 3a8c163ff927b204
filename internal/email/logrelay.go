package email

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"MailBlast/internal/models"
)

// LogRelay is a dry-run relay: messages are logged instead of delivered.
type LogRelay struct {
	Log *zap.Logger
}

func NewLogRelay(log *zap.Logger) *LogRelay {
	return &LogRelay{Log: log}
}

func (r *LogRelay) Name() string { return "log" }

func (r *LogRelay) Open(_ context.Context, creds models.Credentials) (Session, error) {
	r.Log.Info("dry-run session opened", zap.String("sender", RedactAddress(creds.Address)))
	return &logSession{log: r.Log}, nil
}

type logSession struct {
	log *zap.Logger
}

func (s *logSession) Send(ctx context.Context, msg *models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	attachments := make([]string, 0, len(msg.Attachments))
	for _, att := range msg.Attachments {
		attachments = append(attachments, fmt.Sprintf("%s (%s)", att.Filename, formatSize(len(att.Content))))
	}

	s.log.Info("dry-run email",
		zap.String("batch_id", msg.BatchID),
		zap.String("to", RedactAddress(msg.To)),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
		zap.Strings("attachments", attachments),
	)
	return nil
}

func (s *logSession) Close() error { return nil }

func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package email

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"MailBlast/internal/models"
)

// ErrAuthRejected means the relay refused the sender's credentials.
var ErrAuthRejected = errors.New("relay rejected credentials")

// Relay opens authenticated sessions against a mail relay.
type Relay interface {
	Open(ctx context.Context, creds models.Credentials) (Session, error)
	Name() string
}

// Session sends messages for one batch. Implementations are safe for
// concurrent use.
type Session interface {
	Send(ctx context.Context, msg *models.Message) error
	Close() error
}

// SMTPRelay authenticates against an SMTP server with the sender's own
// address and secret.
type SMTPRelay struct {
	Host        string
	Port        int
	DialRetries int
	Log         *zap.Logger

	// dial is swapped out in tests.
	dial func(ctx context.Context, d *gomail.Dialer) (gomail.SendCloser, error)
}

func NewSMTPRelay(host string, port, dialRetries int, log *zap.Logger) *SMTPRelay {
	return &SMTPRelay{
		Host:        host,
		Port:        port,
		DialRetries: dialRetries,
		Log:         log,
	}
}

func (r *SMTPRelay) Name() string { return "smtp" }

// Open dials and authenticates once. Transient network errors are retried
// with exponential backoff; an SMTP-level rejection is returned immediately.
func (r *SMTPRelay) Open(ctx context.Context, creds models.Credentials) (Session, error) {
	sc, err := r.connect(ctx, creds)
	if err != nil {
		return nil, err
	}

	return &smtpSession{relay: r, creds: creds, sc: sc}, nil
}

func (r *SMTPRelay) connect(ctx context.Context, creds models.Credentials) (gomail.SendCloser, error) {
	d := gomail.NewDialer(r.Host, r.Port, creds.Address, creds.Secret)

	dial := r.dial
	if dial == nil {
		dial = dialSMTP
	}

	var sc gomail.SendCloser
	operation := func() error {
		var err error
		sc, err = dial(ctx, d)
		if err == nil {
			return nil
		}

		var tpErr *textproto.Error
		if errors.As(err, &tpErr) {
			if tpErr.Code >= 530 && tpErr.Code <= 535 {
				return backoff.Permanent(fmt.Errorf("%w: %v", ErrAuthRejected, err))
			}
			return backoff.Permanent(err)
		}

		r.logger().Warn("smtp dial failed",
			zap.String("host", r.Host),
			zap.Error(err),
		)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond

	retries := r.DialRetries
	if retries < 0 {
		retries = 0
	}

	if err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)); err != nil {
		return nil, fmt.Errorf("smtp dial %s:%d: %w", r.Host, r.Port, err)
	}

	return sc, nil
}

func (r *SMTPRelay) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// smtpSession serializes sends on one connection. After a failed or
// timed-out send the connection is discarded and redialed on next use.
// A connection is only closed by the goroutine that last used it, never
// while a send on it is still running.
type smtpSession struct {
	relay *SMTPRelay
	creds models.Credentials

	mu sync.Mutex
	sc gomail.SendCloser
}

type interrupter interface {
	Interrupt()
}

type aborter interface {
	Abort() error
}

func (s *smtpSession) Send(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if s.sc == nil {
		sc, err := s.relay.connect(ctx, s.creds)
		if err != nil {
			return err
		}
		s.sc = sc
	}

	sc := s.sc
	done := make(chan error, 1)
	go func() {
		done <- gomail.Send(sc, ToGomail(msg))
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		s.sc = nil
		discard(sc)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("smtp send error: %w", ctxErr)
		}
		return fmt.Errorf("smtp send error: %w", err)

	case <-ctx.Done():
		s.sc = nil
		if i, ok := sc.(interrupter); ok {
			i.Interrupt()
		}
		go func() {
			<-done
			discard(sc)
		}()
		return fmt.Errorf("smtp send error: %w", ctx.Err())
	}
}

// discard releases a connection whose last send failed. The caller must
// own sc exclusively.
func discard(sc gomail.SendCloser) {
	if a, ok := sc.(aborter); ok {
		a.Abort()
		return
	}
	sc.Close()
}

func (s *smtpSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sc == nil {
		return nil
	}
	err := s.sc.Close()
	s.sc = nil
	return err
}

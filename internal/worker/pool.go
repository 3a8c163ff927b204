package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"MailBlast/internal/email"
	"MailBlast/internal/metrics"
	"MailBlast/internal/models"
)

// Job is one recipient of a batch. Index is its position in the parsed CSV.
type Job struct {
	Index     int
	Recipient models.RecipientRecord
}

// SendFunc delivers one recipient's message.
type SendFunc func(ctx context.Context, rec models.RecipientRecord) error

// StartPool starts workers that drain jobs until the channel is closed.
// Every job gets exactly one outcome written at outcomes[job.Index], so the
// channel must be closed by the caller and outcomes sized to hold every index.
// Jobs still queued after ctx is cancelled are recorded as failed without
// being sent.
func StartPool(
	ctx context.Context,
	wg *sync.WaitGroup,
	workers int,
	jobs <-chan Job,
	send SendFunc,
	limiter *rate.Limiter,
	logger *zap.Logger,
	outcomes []models.DispatchOutcome,
) {

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func(id int) {
			defer wg.Done()

			logger.Debug("worker started", zap.Int("worker_id", id))

			for job := range jobs {
				to := job.Recipient.Email

				if err := ctx.Err(); err != nil {
					outcomes[job.Index] = failed(to, err)
					metrics.EmailFailures.Inc()
					continue
				}

				// ----------------------------
				// Rate Limit
				// ----------------------------
				if limiter != nil {
					if err := limiter.Wait(ctx); err != nil {
						logger.Warn("rate limiter stopped by context",
							zap.Int("worker_id", id),
							zap.Error(err),
						)
						outcomes[job.Index] = failed(to, err)
						metrics.EmailFailures.Inc()
						continue
					}
				}

				// ----------------------------
				// Send Email
				// ----------------------------
				start := time.Now()
				err := send(ctx, job.Recipient)
				metrics.SendDuration.Observe(time.Since(start).Seconds())

				if err != nil {
					logger.Error("email send failed",
						zap.Int("worker_id", id),
						zap.String("to", email.RedactAddress(to)),
						zap.Error(err),
					)

					outcomes[job.Index] = failed(to, err)
					metrics.EmailFailures.Inc()
					continue
				}

				logger.Info("email sent successfully",
					zap.Int("worker_id", id),
					zap.String("to", email.RedactAddress(to)),
				)

				outcomes[job.Index] = models.DispatchOutcome{
					Recipient: to,
					Status:    models.StatusSent,
				}
				metrics.EmailsSent.Inc()
			}

			logger.Debug("job channel closed", zap.Int("worker_id", id))
		}(i)
	}
}

func failed(to string, err error) models.DispatchOutcome {
	return models.DispatchOutcome{
		Recipient:     to,
		Status:        models.StatusFailed,
		FailureReason: err.Error(),
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"MailBlast/internal/email"
	"MailBlast/internal/metrics"
	"MailBlast/internal/models"
)

// ErrNoRecipients rejects a batch before the relay is contacted.
var ErrNoRecipients = errors.New("no valid recipients")

const defaultWorkers = 5

// Dispatcher fans a batch out over a bounded worker pool and collects one
// outcome per recipient. A failed send never stops the others.
type Dispatcher struct {
	Relay       email.Relay
	Workers     int
	SendTimeout time.Duration
	Limiter     *rate.Limiter
	Log         *zap.Logger
}

// Dispatch sends sub to every recipient over a single relay session.
// It returns an error only when the batch cannot start: no recipients, or
// the relay refused to open a session.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	sub *models.Submission,
	recipients []models.RecipientRecord,
) (*models.BatchResult, error) {

	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	batchID := uuid.NewString()
	log := d.logger().With(
		zap.String("batch_id", batchID),
		zap.String("relay", d.Relay.Name()),
	)

	session, err := d.Relay.Open(ctx, sub.Credentials)
	if err != nil {
		metrics.Batches.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("open relay session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("relay session close failed", zap.Error(err))
		}
	}()

	log.Info("batch started", zap.Int("recipients", len(recipients)))

	jobs := make(chan Job, len(recipients))
	for i, rec := range recipients {
		jobs <- Job{Index: i, Recipient: rec}
	}
	close(jobs)

	send := func(ctx context.Context, rec models.RecipientRecord) error {
		msg := email.Compose(sub, rec)
		msg.BatchID = batchID

		if d.SendTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d.SendTimeout)
			defer cancel()
		}
		return session.Send(ctx, msg)
	}

	outcomes := make([]models.DispatchOutcome, len(recipients))

	var wg sync.WaitGroup
	StartPool(ctx, &wg, d.workerCount(len(recipients)), jobs, send, d.Limiter, log, outcomes)
	wg.Wait()

	result := &models.BatchResult{
		BatchID:  batchID,
		Outcomes: outcomes,
	}
	for _, o := range outcomes {
		if o.Status == models.StatusSent {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	metrics.Batches.WithLabelValues(string(result.Status())).Inc()

	log.Info("batch finished",
		zap.Int("sent", result.Sent),
		zap.Int("failed", result.Failed),
		zap.String("status", string(result.Status())),
	)

	return result, nil
}

func (d *Dispatcher) workerCount(n int) int {
	w := d.Workers
	if w <= 0 {
		w = defaultWorkers
	}
	if w > n {
		w = n
	}
	return w
}

func (d *Dispatcher) logger() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}

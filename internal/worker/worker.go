// Package worker consumes queued contact records and durably records their
// terminal outcome.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lodgeline/lodgeline/internal/contact"
	"github.com/lodgeline/lodgeline/internal/job"
	"github.com/lodgeline/lodgeline/internal/lodger"
	"github.com/lodgeline/lodgeline/internal/queue"
)

// Worker processes one queued contact record per delivery.
type Worker struct {
	store  job.Store
	queue  queue.Queue
	lodger lodger.Lodger
	log    *zap.Logger
}

func New(store job.Store, q queue.Queue, l lodger.Lodger, log *zap.Logger) *Worker {
	return &Worker{store: store, queue: q, lodger: l, log: log}
}

// Process handles one delivery: it validates that exactly one contact record
// was delivered, performs the lodging attempt, and writes the terminal
// record.
//
// A failed lodging attempt is the modeled failure path and produces a
// FAILURE record. Validation and store errors are returned instead, so the
// queue's redelivery or dead-letter handling can act on them; the job then
// stays QUEUED.
func (w *Worker) Process(ctx context.Context, d *queue.Delivery) (*job.Record, error) {
	if n := len(d.Messages); n != 1 {
		return nil, contact.NewValidationError("expected exactly one message in delivery, got %d", n)
	}

	contactID, err := contact.Parse(d.Messages[0].Body)
	if err != nil {
		return nil, err
	}

	w.log.Info("lodging job", zap.String("contact_id", contactID))

	jobID, lodgeErr := w.lodger.Lodge(ctx, contactID)
	if lodgeErr != nil && ctx.Err() != nil {
		// Cut off, not failed: leave the record QUEUED for redelivery.
		return nil, lodgeErr
	}

	var rec *job.Record
	if lodgeErr != nil {
		rec = job.Failure(contactID, lodgeErr.Error())
	} else {
		rec = job.Success(contactID, jobID)
	}

	stored, err := w.store.PutTerminal(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("record outcome for %s: %w", contactID, err)
	}
	if stored.JobID != rec.JobID || stored.Cause != rec.Cause {
		w.log.Info("duplicate delivery, kept earlier outcome",
			zap.String("contact_id", contactID),
			zap.String("status", string(stored.Status)))
	}
	return stored, nil
}

// Run receives and processes deliveries until ctx is cancelled. Start one
// per configured consumer.
func (w *Worker) Run(ctx context.Context) {
	for {
		d, err := w.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Error("receive", zap.Error(err))
			// Pause so a broken transport does not spin the loop.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		rec, err := w.Process(ctx, d)
		switch {
		case err == nil:
			if ackErr := w.queue.Ack(ctx, d.Messages[0]); ackErr != nil {
				w.log.Error("ack", zap.String("message_id", d.Messages[0].ID), zap.Error(ackErr))
			}
			w.log.Info("job lodged",
				zap.String("contact_id", rec.ContactID),
				zap.String("status", string(rec.Status)))
		case contact.IsValidation(err):
			// A malformed message never becomes processable; park it.
			w.log.Error("dead-lettering invalid message", zap.Error(err))
			for _, m := range d.Messages {
				if dlErr := w.queue.DeadLetter(ctx, m); dlErr != nil {
					w.log.Error("dead-letter", zap.String("message_id", m.ID), zap.Error(dlErr))
				}
			}
		default:
			// Leave the message in flight; the visibility timeout will
			// redeliver it.
			w.log.Error("process", zap.Error(err))
		}
	}
}

package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lodgeline/lodgeline/internal/contact"
	"github.com/lodgeline/lodgeline/internal/job"
	"github.com/lodgeline/lodgeline/internal/lodger"
	"github.com/lodgeline/lodgeline/internal/queue"
)

// stubLodger returns a fixed outcome without sleeping.
type stubLodger struct {
	jobID string
	err   error
}

func (s *stubLodger) Lodge(ctx context.Context, contactID string) (string, error) {
	return s.jobID, s.err
}

func newTestWorker(t *testing.T, l lodger.Lodger) (*Worker, *job.SQLiteStore, *queue.MemoryQueue) {
	t.Helper()
	store, err := job.NewSQLiteStore(":memory:", job.RecordTTL)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	q := queue.NewMemoryQueue(10)
	return New(store, q, l, zap.NewNop()), store, q
}

func delivery(bodies ...string) *queue.Delivery {
	d := &queue.Delivery{}
	for i, b := range bodies {
		d.Messages = append(d.Messages, queue.Message{ID: string(rune('a' + i)), Body: []byte(b)})
	}
	return d
}

const validBody = `{"Details":{"ContactData":{"ContactId":"C1"}}}`

func TestProcess_Success(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newTestWorker(t, &stubLodger{jobID: "1234567"})

	rec, err := w.Process(ctx, delivery(validBody))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Status != job.StatusSuccess {
		t.Errorf("Status = %q, want %q", rec.Status, job.StatusSuccess)
	}
	if rec.JobID != "1234567" {
		t.Errorf("JobID = %q, want %q", rec.JobID, "1234567")
	}
	if rec.Cause != "" {
		t.Errorf("Cause = %q, want empty", rec.Cause)
	}

	got, err := store.Get(ctx, "C1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Status != job.StatusSuccess {
		t.Errorf("stored record = %+v, want SUCCESS", got)
	}
}

func TestProcess_LodgingFailureRecordedAsFailure(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newTestWorker(t, &stubLodger{err: lodger.ErrLodgingFailed})

	rec, err := w.Process(ctx, delivery(validBody))
	if err != nil {
		t.Fatalf("Process: lodging failure must not be an invocation error, got %v", err)
	}
	if rec.Status != job.StatusFailure {
		t.Errorf("Status = %q, want %q", rec.Status, job.StatusFailure)
	}
	if rec.Cause != "Failure detected in lodging job" {
		t.Errorf("Cause = %q, want %q", rec.Cause, "Failure detected in lodging job")
	}
	if rec.JobID != "" {
		t.Errorf("JobID = %q, want empty", rec.JobID)
	}

	got, err := store.Get(ctx, "C1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Status != job.StatusFailure {
		t.Errorf("stored record = %+v, want FAILURE", got)
	}
}

func TestProcess_WrongMessageCount(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newTestWorker(t, &stubLodger{jobID: "1234567"})

	for _, d := range []*queue.Delivery{delivery(), delivery(validBody, validBody)} {
		_, err := w.Process(ctx, d)
		if err == nil {
			t.Fatalf("Process with %d messages: expected error, got nil", len(d.Messages))
		}
		if !contact.IsValidation(err) {
			t.Errorf("err = %v, want ValidationError", err)
		}
	}

	// No store side effects.
	got, err := store.Get(ctx, "C1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("stored record = %+v, want none", got)
	}
}

func TestProcess_InvalidPayload(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newTestWorker(t, &stubLodger{jobID: "1234567"})

	_, err := w.Process(ctx, delivery(`{"Details":{}}`))
	if !contact.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	got, err := store.Get(ctx, "C1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("stored record = %+v, want none", got)
	}
}

func TestProcess_DuplicateDeliveryKeepsFirstOutcome(t *testing.T) {
	ctx := context.Background()
	w, store, _ := newTestWorker(t, &stubLodger{err: lodger.ErrLodgingFailed})

	if _, err := store.PutTerminal(ctx, job.Success("C1", "1234567")); err != nil {
		t.Fatalf("PutTerminal: %v", err)
	}

	// A redelivered message processed after the terminal write must not
	// flip the recorded outcome.
	rec, err := w.Process(ctx, delivery(validBody))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rec.Status != job.StatusSuccess || rec.JobID != "1234567" {
		t.Errorf("record = %+v, want the earlier SUCCESS outcome", rec)
	}
}

func TestProcess_CutOffLeavesJobQueued(t *testing.T) {
	w, store, _ := newTestWorker(t, &stubLodger{err: context.Canceled})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Process(ctx, delivery(validBody))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	got, err := store.Get(context.Background(), "C1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("stored record = %+v, want none", got)
	}
}

func TestRun_ProcessesQueuedMessage(t *testing.T) {
	w, store, q := newTestWorker(t, &stubLodger{jobID: "1234567"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := q.Enqueue(ctx, []byte(validBody)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := store.Get(ctx, "C1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec != nil && rec.Status.Terminal() {
			if rec.Status != job.StatusSuccess {
				t.Errorf("Status = %q, want %q", rec.Status, job.StatusSuccess)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for terminal record")
}

func TestRun_DeadLettersInvalidMessage(t *testing.T) {
	w, _, q := newTestWorker(t, &stubLodger{jobID: "1234567"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := q.Enqueue(ctx, []byte(`{"no":"contact id"}`)); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if dead := q.DeadLetters(); len(dead) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for message to be dead-lettered")
}

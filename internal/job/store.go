package job

import "context"

// Store persists and retrieves job records by contact id. Every write stamps
// a fresh expiry; implementations garbage-collect expired records.
type Store interface {
	// PutQueued writes a QUEUED record for contactID, replacing any existing
	// record. Last-writer-wins, so resubmitting the same contact is safe.
	PutQueued(ctx context.Context, contactID string) (*Record, error)

	// PutTerminal transitions the record to SUCCESS or FAILURE unless a
	// terminal record already exists. A redelivered attempt that finds one
	// is a no-op and gets the previously stored record back, so the first
	// recorded outcome sticks.
	PutTerminal(ctx context.Context, rec *Record) (*Record, error)

	// Get returns the record for contactID, or nil when no record exists or
	// the stored record has expired.
	Get(ctx context.Context, contactID string) (*Record, error)

	Close() error
}

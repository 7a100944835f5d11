package job

import "time"

type Status string

const (
	StatusQueued  Status = "QUEUED"
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	// StatusUnknown is synthesized for status queries when no record exists.
	// It is never persisted.
	StatusUnknown Status = "UNKNOWN"
)

// Terminal returns true for statuses that represent a final outcome.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// RecordTTL is how long a record stays readable after its last write; the
// store garbage-collects records past their expiry. Both the queued write
// and the terminal write refresh the window.
const RecordTTL = 7 * 24 * time.Hour

// Record is the persisted state of one lodgement job, keyed by contact id.
// JobID is set only on SUCCESS and Cause only on FAILURE; a QUEUED record
// carries neither. ExpiryTime is epoch seconds, stamped by the store on
// every write.
type Record struct {
	ContactID  string `json:"contactId"`
	Status     Status `json:"status"`
	JobID      string `json:"jobId,omitempty"`
	Cause      string `json:"cause,omitempty"`
	ExpiryTime int64  `json:"expiryTime"`
}

// Success builds an unstamped SUCCESS record for PutTerminal.
func Success(contactID, jobID string) *Record {
	return &Record{ContactID: contactID, Status: StatusSuccess, JobID: jobID}
}

// Failure builds an unstamped FAILURE record for PutTerminal.
func Failure(contactID, cause string) *Record {
	return &Record{ContactID: contactID, Status: StatusFailure, Cause: cause}
}

// StatusResult is the response shape of a status query. Unlike Record it can
// report UNKNOWN, and it never exposes the expiry time.
type StatusResult struct {
	ContactID string `json:"contactId"`
	Status    Status `json:"status"`
	JobID     string `json:"jobId,omitempty"`
	Cause     string `json:"cause,omitempty"`
}

// Result converts the record to the status-query response shape.
func (r *Record) Result() *StatusResult {
	return &StatusResult{
		ContactID: r.ContactID,
		Status:    r.Status,
		JobID:     r.JobID,
		Cause:     r.Cause,
	}
}

// Unknown returns the synthetic result for a contact id with no record.
func Unknown(contactID string) *StatusResult {
	return &StatusResult{ContactID: contactID, Status: StatusUnknown}
}

// Package contact parses and validates the contact record envelope that
// every intake, processing and status request carries.
package contact

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ValidationError reports malformed input: a payload without a contact id at
// Details.ContactData.ContactId, or a delivery with the wrong message count.
// It is always fatal to the current invocation and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Record is the contact record envelope. Only the nested contact id is
// interpreted; the rest of the payload travels opaque on the queue.
type Record struct {
	Details *Details `json:"Details"`
}

type Details struct {
	ContactData *ContactData `json:"ContactData"`
}

type ContactData struct {
	ContactID string `json:"ContactId"`
}

// ContactID returns the nested contact id, or a ValidationError when it is
// missing at any level.
func (r *Record) ContactID() (string, error) {
	if r == nil || r.Details == nil || r.Details.ContactData == nil || r.Details.ContactData.ContactID == "" {
		return "", &ValidationError{Reason: "invalid contact record, could not locate ContactId"}
	}
	return r.Details.ContactData.ContactID, nil
}

// Parse decodes raw as a contact record and returns its contact id.
func Parse(raw []byte) (string, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("invalid contact record: %v", err)}
	}
	return rec.ContactID()
}

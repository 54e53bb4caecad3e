package domain

import (
	"errors"
	"fmt"
)

// ErrRunNotFound is returned by run stores when no run matches a lookup.
var ErrRunNotFound = errors.New("run not found")

// MalformedTableError reports a precipitation table that cannot be used:
// missing header or duration row, non-integer frequency headers, or
// non-numeric rainfall cells. It is fatal to the load.
type MalformedTableError struct {
	Source string
	Reason string
	Err    error
}

func (e *MalformedTableError) Error() string {
	msg := "malformed precipitation table"
	if e.Source != "" {
		msg += " " + e.Source
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedTableError) Unwrap() error { return e.Err }

// CatchmentRecordError reports a catchment record rejected at ingestion.
// It only fails the one record; the rest of the batch is still processed.
type CatchmentRecordError struct {
	Index int
	ID    string
	Field string
	Err   error
}

func (e *CatchmentRecordError) Error() string {
	id := e.ID
	if id == "" {
		id = fmt.Sprintf("#%d", e.Index)
	}
	if e.Field == "" {
		return fmt.Sprintf("catchment %s: %v", id, e.Err)
	}
	return fmt.Sprintf("catchment %s: field %s: %v", id, e.Field, e.Err)
}

func (e *CatchmentRecordError) Unwrap() error { return e.Err }

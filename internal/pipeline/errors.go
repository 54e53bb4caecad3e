package pipeline

import (
	"errors"
	"fmt"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
)

// BatchError reports catchment records rejected during a run that otherwise
// completed. The results table returned with it holds the remaining rows.
type BatchError struct {
	Total  int
	Errors []error
}

func (e *BatchError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("1 of %d catchment records rejected: %v", e.Total, e.Errors[0])
	}
	return fmt.Sprintf("%d of %d catchment records rejected; first: %v", len(e.Errors), e.Total, e.Errors[0])
}

// Unwrap exposes the individual record errors to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error { return e.Errors }

// Records returns the rejected records' errors.
func (e *BatchError) Records() []*domain.CatchmentRecordError {
	out := make([]*domain.CatchmentRecordError, 0, len(e.Errors))
	for _, err := range e.Errors {
		var rec *domain.CatchmentRecordError
		if errors.As(err, &rec) {
			out = append(out, rec)
		}
	}
	return out
}

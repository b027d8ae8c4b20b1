package exports

import (
	"context"
	"errors"
)

// EncoderError marks a structural failure inside a format encoder, as
// opposed to a failure of the database or of the client connection.
type EncoderError struct{ Cause error }

func (e *EncoderError) Error() string { return "encoder failed: " + e.Cause.Error() }
func (e *EncoderError) Unwrap() error { return e.Cause }

// SinkError marks a failed write toward the client. During a download this
// almost always means the client went away.
type SinkError struct{ Cause error }

func (e *SinkError) Error() string { return "sink failed: " + e.Cause.Error() }
func (e *SinkError) Unwrap() error { return e.Cause }

// CoerceError marks a row which failed projection into tagged values, a
// data-shape defect rather than a database or client failure.
type CoerceError struct{ Cause error }

func (e *CoerceError) Error() string { return "coercion failed: " + e.Cause.Error() }
func (e *CoerceError) Unwrap() error { return e.Cause }

// ClientDisconnected is the failure cause recorded on a job whose sink
// broke mid-stream.
const ClientDisconnected = "client_disconnected"

// CauseOf maps a pipeline error onto the failure cause stored on its job.
// A dropped client surfaces either as a sink write failure or as request
// context cancellation during a fetch, depending on which stage notices
// first; both record the same cause.
func CauseOf(err error) string {
	var sinkErr *SinkError
	if errors.As(err, &sinkErr) || errors.Is(err, context.Canceled) {
		return ClientDisconnected
	}
	return err.Error()
}

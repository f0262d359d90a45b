package ingestion

import "errors"

var (
	// ErrMalformedInput marks a payload whose structure prevents any row from being staged.
	ErrMalformedInput = errors.New("malformed input")
	// ErrPersistence wraps storage failures during staging and merge.
	ErrPersistence = errors.New("persistence failure")
	// ErrDownstreamUnavailable wraps failures of the match stage.
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	// ErrJobTerminal is returned when work is requested for a COMPLETED or FAILED job.
	ErrJobTerminal = errors.New("job is in a terminal state")
	// ErrJobNotRunnable is returned when a job already left UPLOADED.
	ErrJobNotRunnable = errors.New("job is no longer runnable")
	// ErrCancelled is the failure recorded for jobs stopped through CancelJob.
	ErrCancelled = errors.New("job cancelled")
)

// inputError carries the exact message recorded on the job while matching ErrMalformedInput.
type inputError struct {
	msg string
}

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Is(target error) bool { return target == ErrMalformedInput }

func malformed(msg string) error {
	return &inputError{msg: msg}
}

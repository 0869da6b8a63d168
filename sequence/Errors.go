package sequence

import "errors"

// SequenceError implements errors unique to a sequence buffer
type SequenceError struct {
	Op  string
	Err error
}

// Error satisfies the error interface
func (e *SequenceError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

var errEmptyBuffer = errors.New("buffer empty")

var errInsufficientSamples = errors.New("not enough steps for a window")

// IsInsufficientSamples returns whether or not an error reports that
// there are too few steps in the buffer to build a window.
func IsInsufficientSamples(err error) bool {
	if seqErr, ok := err.(*SequenceError); ok {
		err = seqErr.Err
	}
	return err == errInsufficientSamples
}

// IsEmptyBuffer returns whether or not an error reports that a
// sequence buffer is empty.
func IsEmptyBuffer(err error) bool {
	if seqErr, ok := err.(*SequenceError); ok {
		err = seqErr.Err
	}
	return err == errEmptyBuffer
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound indicates a download was requested for an object
	// that has no committed content remotely.
	ErrObjectNotFound = errors.New("object does not exist remotely")

	// ErrStateCorruption indicates the resume manifest could not be read.
	// Callers treat it as "no resume state".
	ErrStateCorruption = errors.New("resume state is corrupt")

	// ErrInvalidBlockID indicates a block id that this client did not produce.
	ErrInvalidBlockID = errors.New("invalid block id")

	// ErrChecksumMismatch indicates received bytes did not match their Content-MD5.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// NoBlock marks errors that are not tied to a single block.
const NoBlock int64 = -1

// TransportError is a failed exchange with the remote store: either a
// non-success status or a request that never got an answer (Status 0).
type TransportError struct {
	Op     string
	Block  int64
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Block != NoBlock {
		msg = fmt.Sprintf("%s block #%d failed", e.Op, e.Block)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Body != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// Retryable reports whether repeating the request may succeed.
func (e *TransportError) Retryable() bool {
	switch {
	case e.Status == 0:
		return true
	case e.Status == 408 || e.Status == 429:
		return true
	case e.Status >= 500:
		return true
	}
	return false
}

// LocalIOError is a failed read, write or rename on local disk.
type LocalIOError struct {
	Op    string
	Path  string
	Block int64
	Err   error
}

func (e *LocalIOError) Error() string {
	if e.Block != NoBlock {
		return fmt.Sprintf("%s %s (block #%d): %v", e.Op, e.Path, e.Block, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error { return e.Err }

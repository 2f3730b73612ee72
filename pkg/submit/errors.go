package submit

import "errors"

// Failure classes of a submission. Returned errors wrap one of these
// together with the offending path and the cause.
var (
	// ErrInputNotFound means a required metadata or CSV file is missing.
	ErrInputNotFound = errors.New("input not found")
	// ErrMalformedInput means a file could not be parsed into the expected shape.
	ErrMalformedInput = errors.New("malformed input")
	// ErrStore means a database statement, connection or commit failed.
	ErrStore = errors.New("store failure")
)

// errRejected aborts the transaction of a run that is already recorded.
var errRejected = errors.New("build already submitted")

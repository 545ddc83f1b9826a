package engine

import "errors"

// Failure taxonomy. Handlers match these with errors.Is; every path either
// blocks the transition or routes the user to a corrective prompt.
var (
	// ErrValidation: bad input (image type/size, unparseable time, wrong
	// stage for the action). Nothing mutated, retryable.
	ErrValidation = errors.New("validation failed")

	// ErrExtraction: backend error or no usable fields. Stage not advanced,
	// retryable by re-uploading.
	ErrExtraction = errors.New("extraction failed")

	// ErrPersistence: store unreachable or an expected update affected zero
	// rows. Operation not applied, safe to retry.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound: no order for this conversation. Never fabricates one.
	ErrNotFound = errors.New("order not found")
)

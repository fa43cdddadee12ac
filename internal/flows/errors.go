package flows

import "errors"

var (
	// ErrFlowNotFound is returned when a flow ID does not exist.
	ErrFlowNotFound = errors.New("flows: not found")

	// ErrFlowExists is returned when creating a flow for a
	// (domain, unique_id) pair that already has one.
	ErrFlowExists = errors.New("flows: already exists")
)

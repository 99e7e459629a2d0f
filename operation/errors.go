package operation

import "errors"

var (
	ErrNoOperation        = errors.New("document has no operation")
	ErrMultipleOperations = errors.New("document has more than one operation")
	ErrNoRootField        = errors.New("operation selects no root field")
	ErrMultipleRootFields = errors.New("operation selects more than one root field")
	ErrUnknownFragment    = errors.New("unknown fragment")
	ErrDuplicateFragment  = errors.New("duplicate fragment")
	ErrFragmentCycle      = errors.New("fragment spreads form a cycle")
	ErrInvalidLocation    = errors.New("invalid node location")
)

package content

import "errors"

var (
	ErrNotFound            = errors.New("content not found")
	ErrNotNavigable        = errors.New("content is not navigable")
	ErrNotFetched          = errors.New("content children are not fetched")
	ErrSequenceNumberTaken = errors.New("sequence number is taken")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrWrongParent         = errors.New("wrong parent type")
	ErrNeedsParent         = errors.New("content type needs a parent")
	ErrHasNoParent         = errors.New("content type has no parent")
	ErrEmptyModification   = errors.New("amendment modifies nothing")
	ErrUnsupportedOperation = errors.New("operation not supported for this content type")
	ErrAlreadyApplied      = errors.New("amendment already applied")
	ErrLegacyAmendment     = errors.New("amendment record has no resolvable variant")

	// ErrCritical marks states the model considers impossible. Callers should
	// treat it as fatal rather than recoverable.
	ErrCritical = errors.New("critical data integrity failure")
)

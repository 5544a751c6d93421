package invoice

import "errors"

var (
	ErrNotFound       = errors.New("invoice: not found")
	ErrDuplicate      = errors.New("invoice: duplicate number")
	ErrReadOnly       = errors.New("invoice: attribute is read-only")
	ErrPosted         = errors.New("invoice: invoice is posted")
	ErrNotPosted      = errors.New("invoice: invoice is not posted")
	ErrForbidden      = errors.New("invoice: privilege required")
	ErrLineAttached   = errors.New("invoice: line already attached")
	ErrForeignLine    = errors.New("invoice: line belongs to another document")
	ErrNotSettled     = errors.New("invoice: recalculation still pending")
	ErrSaving         = errors.New("invoice: save in progress")
	ErrUnknownSession = errors.New("invoice: no open editing session")
)

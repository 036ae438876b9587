package model

import "errors"

// Error kinds shared by every booking-service operation. Callers wrap them with
// fmt.Errorf("%w: ...") and classify with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	ErrInactive        = errors.New("service inactive")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrQueueFull       = errors.New("queue full")
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrLimitExceeded   = errors.New("booking limit exceeded")
	ErrDuplicateDate   = errors.New("already booked on this date")
	ErrInvalidState    = errors.New("invalid state")
	ErrTransient       = errors.New("transient failure")
)

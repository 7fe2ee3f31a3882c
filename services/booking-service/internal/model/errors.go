package model

import "errors"

var (
	ErrNotFound               = errors.New("booking not found")
	ErrUnknownAppointmentType = errors.New("unknown or disabled appointment type")
	ErrOutsideBookingWindow   = errors.New("start time is outside the booking window")
	ErrInvalidTimeRange       = errors.New("invalid time range")
	ErrSlotTaken              = errors.New("slot is no longer available")
	ErrInvalidTransition      = errors.New("invalid booking status transition")
	ErrNotAuthorized          = errors.New("caller is not allowed to modify this booking")
)

package pack

import "errors"

var (
	ErrTripNotFound        = errors.New("trip not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrItemNotFound        = errors.New("item not found")
	ErrUnknownFlag         = errors.New("unknown item flag")
	ErrInvalidTrip         = errors.New("trip name and leader name required")
	ErrInvalidItem         = errors.New("item name and positive weight required")
	ErrNoParticipants      = errors.New("trip needs at least one participant")
)

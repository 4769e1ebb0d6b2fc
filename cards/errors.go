package cards

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded is returned when a new card would exceed MaxCards.
	ErrCapacityExceeded = fmt.Errorf("maximum of %d cards reached", MaxCards)

	// ErrCannotRemoveHome is returned when removing the card marked home.
	ErrCannotRemoveHome = errors.New("cannot remove the home card")

	// ErrCardNotFound is returned when no card carries the requested key.
	ErrCardNotFound = errors.New("card not found")
)

// ZoneResolutionError reports a location whose zone could not be resolved.
// It unwraps to clock.ErrInvalidZoneID.
type ZoneResolutionError struct {
	IANA string
	Err  error
}

func (e *ZoneResolutionError) Error() string {
	return fmt.Sprintf("resolving zone %q: %v", e.IANA, e.Err)
}

func (e *ZoneResolutionError) Unwrap() error {
	return e.Err
}

// Outcome describes what a successful mutation did.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeCreated means a new card was created.
	OutcomeCreated
	// OutcomeAppended means the location joined an existing card.
	OutcomeAppended
	// OutcomeAlreadyPresent means the location was already on its card.
	OutcomeAlreadyPresent
	// OutcomeHomeMarked means an existing card became home.
	OutcomeHomeMarked
	// OutcomeSystemMarked means an existing card was marked as the device zone.
	OutcomeSystemMarked
	// OutcomeRemoved means a card was deleted.
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeAppended:
		return "appended"
	case OutcomeAlreadyPresent:
		return "already_present"
	case OutcomeHomeMarked:
		return "home_marked"
	case OutcomeSystemMarked:
		return "system_marked"
	case OutcomeRemoved:
		return "removed"
	default:
		return "none"
	}
}

package cards

import (
	"time"

	"github.com/philtim/figured/clock"
)

// Row is one sorted card with its display fields at an instant.
type Row struct {
	Card    Card          `json:"card"`
	Display clock.Display `json:"display"`
	// RelativeMinutes is the offset from the home card; only meaningful
	// when HasRelative is set.
	RelativeMinutes int  `json:"relativeMinutes"`
	HasRelative     bool `json:"hasRelative"`
}

// Recompute sorts cards and derives fresh display fields and group keys for
// each, using only the representative zone and the instant. It is read-only
// and meant to run on every tick.
func Recompute(cs []Card, at time.Time) []Row {
	sorted := Sort(cs, at)

	homeOffset, haveHome := 0, false
	for _, card := range sorted {
		if card.IsHome {
			if off, err := clock.Resolve(card.RepresentativeIANA, at); err == nil {
				homeOffset, haveHome = off.Minutes, true
			}
			break
		}
	}

	rows := make([]Row, len(sorted))
	for i, card := range sorted {
		row := Row{
			Card:    card.clone(),
			Display: clock.Describe(card.RepresentativeIANA, at),
		}
		if key, err := clock.KeyOf(card.RepresentativeIANA, at); err == nil {
			row.Card.Key = key
		}
		if haveHome {
			if off, err := clock.Resolve(card.RepresentativeIANA, at); err == nil {
				row.RelativeMinutes = off.Minutes - homeOffset
				row.HasRelative = true
			}
		}
		rows[i] = row
	}
	return rows
}

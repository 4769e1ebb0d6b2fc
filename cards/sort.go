package cards

import (
	"cmp"
	"math"
	"slices"
	"time"

	"github.com/philtim/figured/clock"
)

// offsets memoizes zone offsets for a single pass over the cards.
type offsets map[string]int

func (o offsets) of(iana string, at time.Time) int {
	if v, ok := o[iana]; ok {
		return v
	}
	v := clock.SortableOffset(iana, at)
	o[iana] = v
	return v
}

// Sort orders cards at instant and returns a new slice; the input is not
// modified.
//
// With a home card, cards sort ascending by their offset relative to home.
// Without one, or when the home zone cannot be resolved, they sort
// descending by absolute offset. Ties keep their input order. Cards whose
// zone cannot be resolved go to the most negative end.
func Sort(in []Card, at time.Time) []Card {
	type entry struct {
		card  Card
		value int64
	}

	memo := offsets{}
	homeOffset, relative := 0, false
	for _, card := range in {
		if card.IsHome {
			if off := memo.of(card.RepresentativeIANA, at); off != clock.UnresolvableOffset {
				homeOffset, relative = off, true
			}
			break
		}
	}

	entries := make([]entry, len(in))
	for i, card := range in {
		off := memo.of(card.RepresentativeIANA, at)
		value := int64(off)
		switch {
		case off == clock.UnresolvableOffset:
			value = math.MinInt64
		case relative:
			value -= int64(homeOffset)
		}
		entries[i] = entry{card: card, value: value}
	}

	slices.SortStableFunc(entries, func(a, b entry) int {
		if relative {
			return cmp.Compare(a.value, b.value)
		}
		return cmp.Compare(b.value, a.value)
	})

	out := make([]Card, len(entries))
	for i, e := range entries {
		out[i] = e.card
	}
	return out
}

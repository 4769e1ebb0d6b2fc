package cards

import (
	"fmt"
	"strings"
	"time"

	"github.com/philtim/figured/clock"
)

// Restore rebuilds a collection from persisted cards. Stored keys are only
// hints: each key is recomputed from the representative zone at instant, and
// cards that now share a key are merged. Records that cannot be repaired are
// dropped and reported in the returned errors; Restore itself never fails.
func Restore(in []Card, at time.Time) (*Collection, []error) {
	col := New()
	var dropped []error
	homeSeen := false

	for i, card := range in {
		members := make([]Member, 0, len(card.Locations))
		for _, m := range card.Locations {
			m = m.trimmed()
			m.system = false
			if m.City == "" {
				continue
			}
			dup := false
			for _, kept := range members {
				if kept.same(m) {
					dup = true
					break
				}
			}
			if !dup {
				members = append(members, m)
			}
		}
		if len(members) == 0 {
			dropped = append(dropped, fmt.Errorf("card %d: no locations", i))
			continue
		}

		rep, key, err := representative(card.RepresentativeIANA, members, at)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("card %d: %w", i, err))
			continue
		}
		card.RepresentativeIANA = rep
		card.Key = key
		card.Locations = members
		sortMembers(card.Locations)

		if card.IsHome && homeSeen {
			card.IsHome = false
			dropped = append(dropped, fmt.Errorf("card %d: second home card, home flag cleared", i))
		}

		if j := indexByKey(col.cards, key); j >= 0 {
			col.cards[j].absorb(card)
			homeSeen = homeSeen || card.IsHome
			continue
		}
		if len(col.cards) >= MaxCards {
			dropped = append(dropped, fmt.Errorf("card %d: %w", i, ErrCapacityExceeded))
			continue
		}
		col.cards = append(col.cards, card)
		homeSeen = homeSeen || card.IsHome
	}

	return col, dropped
}

// representative picks the zone used to derive a card's key: the stored one
// when it resolves, otherwise the first member zone that does.
func representative(stored string, members []Member, at time.Time) (string, clock.GroupKey, error) {
	candidates := make([]string, 0, len(members)+1)
	if s := strings.TrimSpace(stored); s != "" {
		candidates = append(candidates, s)
	}
	for _, m := range members {
		candidates = append(candidates, m.OriginalIANA)
	}

	var firstErr error
	for _, iana := range candidates {
		key, err := clock.KeyOf(iana, at)
		if err == nil {
			return iana, key, nil
		}
		if firstErr == nil {
			firstErr = &ZoneResolutionError{IANA: iana, Err: err}
		}
	}
	if firstErr == nil {
		firstErr = &ZoneResolutionError{IANA: stored, Err: clock.ErrInvalidZoneID}
	}
	return "", clock.GroupKey{}, firstErr
}

package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
)

// ErrUnrecognizedRecord is reported for records matching no known layout.
var ErrUnrecognizedRecord = errors.New("unrecognized record")

// Normalize converts a decoded card list in any historical layout into
// cards. Three layouts are understood:
//
//   - flat per-city records: {iana, city, countryName, countryCode, isHome,
//     isSystem, isSystemMarker, userAdded, isSharedAddition}
//   - per-zone cards: {iana, isHome, userAdded, cities|locations: [...]}
//   - grouped cards: {groupKey, representativeIana, locations, isHome,
//     isSystemMarker, userAdded}
//
// Records that fit none of them are skipped and reported. The result is not
// validated against the zone database; cards.Restore does that.
func Normalize(raw any) ([]cards.Card, []error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, []error{fmt.Errorf("%w: card list is a %T", ErrUnrecognizedRecord, raw)}
	}

	var (
		out  []cards.Card
		errs []error
	)
	for i, item := range list {
		rec, ok := asMap(item)
		if !ok {
			errs = append(errs, fmt.Errorf("record %d: %w: %T", i, ErrUnrecognizedRecord, item))
			continue
		}

		var card cards.Card
		switch {
		case has(rec, "groupKey") || has(rec, "representativeIana"):
			card = fromGrouped(rec)
		case has(rec, "cities") || has(rec, "locations"):
			card = fromZone(rec)
		case has(rec, "iana") && has(rec, "city"):
			var keep bool
			if card, keep = fromFlat(rec); !keep {
				// Device zone entries are detected again on every start.
				continue
			}
		default:
			errs = append(errs, fmt.Errorf("record %d: %w", i, ErrUnrecognizedRecord))
			continue
		}
		out = append(out, card)
	}
	return out, errs
}

func fromGrouped(rec map[string]any) cards.Card {
	card := cards.Card{
		RepresentativeIANA: text(rec, "representativeIana"),
		IsHome:             flag(rec["isHome"]),
		IsSystemMarker:     flag(rec["isSystemMarker"]),
		UserAdded:          flag(rec["userAdded"]),
	}
	// The key is a hint only; Restore recomputes it.
	if key, err := clock.ParseGroupKey(text(rec, "groupKey")); err == nil {
		card.Key = key
	}
	card.Locations = members(rec["locations"], card.RepresentativeIANA)
	return card
}

func fromZone(rec map[string]any) cards.Card {
	iana := text(rec, "iana")
	raw := rec["locations"]
	if raw == nil {
		raw = rec["cities"]
	}
	return cards.Card{
		RepresentativeIANA: iana,
		Locations:          members(raw, iana),
		IsHome:             flag(rec["isHome"]),
		IsSystemMarker:     flag(rec["isSystemMarker"]),
		UserAdded:          flag(rec["userAdded"]),
	}
}

// fromFlat turns one per-city record into a single-member card. It reports
// false for entries that only exist because they were the device zone.
func fromFlat(rec map[string]any) (cards.Card, bool) {
	system := flag(rec["isSystem"])
	userAdded := flag(rec["userAdded"])
	isHome := flag(rec["isHome"])
	shared := flag(rec["isSharedAddition"])
	if system && !userAdded && !isHome && !shared {
		return cards.Card{}, false
	}

	iana := text(rec, "iana")
	return cards.Card{
		RepresentativeIANA: iana,
		Locations: []cards.Member{{
			City:         text(rec, "city"),
			CountryName:  text(rec, "countryName"),
			CountryCode:  text(rec, "countryCode"),
			OriginalIANA: iana,
			Shared:       shared,
		}},
		IsHome:         isHome,
		IsSystemMarker: flag(rec["isSystemMarker"]),
		UserAdded:      userAdded,
	}, true
}

// members reads a list of city objects. Plain strings are taken as city
// names. Members without a zone inherit fallback.
func members(raw any, fallback string) []cards.Member {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]cards.Member, 0, len(list))
	for _, item := range list {
		if name, ok := item.(string); ok {
			out = append(out, cards.Member{City: name, OriginalIANA: fallback})
			continue
		}
		rec, ok := asMap(item)
		if !ok {
			continue
		}
		iana := text(rec, "originalIana")
		if iana == "" {
			iana = text(rec, "iana")
		}
		if iana == "" {
			iana = fallback
		}
		out = append(out, cards.Member{
			City:         text(rec, "city"),
			CountryName:  text(rec, "countryName"),
			CountryCode:  text(rec, "countryCode"),
			OriginalIANA: iana,
			Shared:       flag(rec["isSharedAddition"]),
		})
	}
	return out
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = v
		}
		return out, true
	}
	return nil, false
}

func has(rec map[string]any, key string) bool {
	_, ok := rec[key]
	return ok
}

func text(rec map[string]any, key string) string {
	s, _ := rec[key].(string)
	return strings.TrimSpace(s)
}

// flag reads a boolean that older writers sometimes stored as a string.
func flag(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(strings.TrimSpace(b), "true")
	}
	return false
}

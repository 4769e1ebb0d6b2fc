package geonames

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
)

// MinQueryLength is the shortest query Search answers.
const MinQueryLength = 2

// Search returns up to maxResults cities whose name, country or zone id
// contains query. Exact city matches come first.
func (db *Database) Search(query string, maxResults int) []cards.Location {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.ready {
		return []cards.Location{}
	}

	query = strings.ToLower(strings.TrimSpace(query))
	if len(query) < MinQueryLength {
		return []cards.Location{}
	}

	var exactMatches []cards.Location
	var partialMatches []cards.Location

	for _, city := range db.cities {
		cityNameLower := strings.ToLower(city.City)

		switch {
		case cityNameLower == query:
			exactMatches = append(exactMatches, city)
		case strings.Contains(cityNameLower, query),
			strings.Contains(strings.ToLower(city.CountryName), query),
			strings.Contains(strings.ToLower(city.IANA), query):
			partialMatches = append(partialMatches, city)
		}

		// Exact matches can still turn up later, so only stop once the
		// exact list alone fills the page.
		if len(exactMatches) >= maxResults {
			break
		}
	}

	results := append(exactMatches, partialMatches...)
	if len(results) > maxResults {
		results = results[:maxResults]
	}

	return results
}

// Find resolves a query typed by the user to a single city. It matches the
// city name or "City, Country" case-insensitively, or the exact zone id.
func (db *Database) Find(query string) (cards.Location, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if !db.ready {
		return cards.Location{}, ErrReferenceDataUnavailable
	}

	q := strings.TrimSpace(query)
	for _, city := range db.cities {
		if strings.EqualFold(city.City, q) ||
			strings.EqualFold(city.City+", "+city.CountryName, q) ||
			city.IANA == q {
			return city, nil
		}
	}
	return cards.Location{}, fmt.Errorf("%w: %q", ErrLocationNotFound, q)
}

// ByZone returns the first city listed for a zone id.
func (db *Database) ByZone(iana string) (cards.Location, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	iana = strings.TrimSpace(iana)
	for _, city := range db.cities {
		if city.IANA == iana {
			return city, true
		}
	}
	return cards.Location{}, false
}

// Sorted returns every city in alphabetical order, for the home picker.
func (db *Database) Sorted() []cards.Location {
	db.mu.RLock()
	out := slices.Clone(db.cities)
	db.mu.RUnlock()

	col := collate.New(language.English, collate.IgnoreCase, collate.Loose)
	slices.SortStableFunc(out, func(a, b cards.Location) int {
		return col.CompareString(a.City, b.City)
	})
	return out
}

// SharingTime returns up to max cities, other than those in zone iana, whose
// group key equals that of iana at instant.
func (db *Database) SharingTime(iana string, at time.Time, max int) ([]cards.Location, error) {
	target, err := clock.KeyOf(iana, at)
	if err != nil {
		return nil, err
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	iana = strings.TrimSpace(iana)
	keys := make(map[string]bool)
	var out []cards.Location
	for _, city := range db.cities {
		if len(out) >= max {
			break
		}
		if city.IANA == iana {
			continue
		}
		match, ok := keys[city.IANA]
		if !ok {
			key, err := clock.KeyOf(city.IANA, at)
			match = err == nil && key == target
			keys[city.IANA] = match
		}
		if match {
			out = append(out, city)
		}
	}
	return out, nil
}

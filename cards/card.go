// Package cards groups user-chosen cities into cards of locations that
// currently share the same effective time, and orders those cards relative
// to the home card.
package cards

import (
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/philtim/figured/clock"
)

// MaxCards is the maximum number of cards a collection holds at once.
const MaxCards = 24

// Location is a reference city record. Several cities may share one IANA id.
type Location struct {
	IANA        string `json:"iana" yaml:"iana"`
	City        string `json:"city" yaml:"city"`
	CountryName string `json:"countryName" yaml:"countryName"`
	CountryCode string `json:"countryCode" yaml:"countryCode"`
}

// Label returns "City, Country".
func (l Location) Label() string {
	country := l.CountryName
	if country == "" {
		country = l.CountryCode
	}
	if country == "" {
		return l.City
	}
	return l.City + ", " + country
}

// LocationFromZone builds a Location for a zone with no reference record,
// naming the city after the last segment of the id.
func LocationFromZone(iana string) Location {
	iana = strings.TrimSpace(iana)
	city := iana
	if i := strings.LastIndex(city, "/"); i >= 0 {
		city = city[i+1:]
	}
	return Location{
		IANA: iana,
		City: strings.ReplaceAll(city, "_", " "),
	}
}

// Member is one city listed on a card.
type Member struct {
	City         string `json:"city"`
	CountryName  string `json:"countryName"`
	CountryCode  string `json:"countryCode"`
	OriginalIANA string `json:"originalIana"`
	// Shared marks a city added because it shares the time of a city the
	// user picked.
	Shared bool `json:"shared,omitempty"`

	// system is set when the member only exists because it is the device
	// zone; such members are left out of Persistable.
	system bool
}

func memberOf(loc Location) Member {
	return Member{
		City:         loc.City,
		CountryName:  loc.CountryName,
		CountryCode:  loc.CountryCode,
		OriginalIANA: loc.IANA,
	}
}

// Location converts the member back into a reference record.
func (m Member) Location() Location {
	return Location{
		IANA:        m.OriginalIANA,
		City:        m.City,
		CountryName: m.CountryName,
		CountryCode: m.CountryCode,
	}
}

// trimmed strips surrounding space from the fields that identify a member.
func (m Member) trimmed() Member {
	m.City = strings.TrimSpace(m.City)
	m.CountryName = strings.TrimSpace(m.CountryName)
	m.CountryCode = strings.TrimSpace(m.CountryCode)
	m.OriginalIANA = strings.TrimSpace(m.OriginalIANA)
	return m
}

// same reports whether two members are duplicates.
func (m Member) same(o Member) bool {
	return m.City == o.City && m.CountryCode == o.CountryCode && m.OriginalIANA == o.OriginalIANA
}

// Card is one group of locations sharing a GroupKey as of the last time the
// collection aggregated.
type Card struct {
	Key                clock.GroupKey `json:"groupKey"`
	RepresentativeIANA string         `json:"representativeIana"`
	Locations          []Member       `json:"locations"`
	IsHome             bool           `json:"isHome"`
	IsSystemMarker     bool           `json:"isSystemMarker"`
	UserAdded          bool           `json:"userAdded"`
}

// Title joins the card's city names for display.
func (c Card) Title() string {
	names := make([]string, 0, len(c.Locations))
	for _, m := range c.Locations {
		names = append(names, m.City)
	}
	return strings.Join(names, " · ")
}

func (c Card) clone() Card {
	c.Locations = append([]Member(nil), c.Locations...)
	return c
}

func (c *Card) indexOf(m Member) int {
	for i, existing := range c.Locations {
		if existing.same(m) {
			return i
		}
	}
	return -1
}

// absorb merges other's members and flags into c.
func (c *Card) absorb(other Card) {
	for _, m := range other.Locations {
		if i := c.indexOf(m); i >= 0 {
			if !m.system {
				c.Locations[i].system = false
			}
			continue
		}
		c.Locations = append(c.Locations, m)
	}
	c.IsHome = c.IsHome || other.IsHome
	c.IsSystemMarker = c.IsSystemMarker || other.IsSystemMarker
	c.UserAdded = c.UserAdded || other.UserAdded
	sortMembers(c.Locations)
}

// sortMembers orders members alphabetically by city, then country and zone
// so the order is total.
func sortMembers(ms []Member) {
	col := collate.New(language.English, collate.IgnoreCase, collate.Loose)
	slices.SortStableFunc(ms, func(a, b Member) int {
		if c := col.CompareString(a.City, b.City); c != 0 {
			return c
		}
		if c := strings.Compare(a.CountryCode, b.CountryCode); c != 0 {
			return c
		}
		return strings.Compare(a.OriginalIANA, b.OriginalIANA)
	})
}

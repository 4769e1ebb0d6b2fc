// Package store persists the card collection and the "home is set" flag.
//
// Two backends share one record layout: a YAML document (FileStore) and a
// key/value table in SQLite (SQLiteStore). Both read older layouts through
// Normalize, and both degrade malformed content to an empty state instead of
// failing.
package store

import (
	"context"
	"fmt"

	"github.com/philtim/figured/cards"
)

// Logical keys under which the two pieces of state are stored.
const (
	KeyHomeSet = "homeTimezoneSet"
	KeyCards   = "userTimezonesConfig"
)

// State is everything the application persists.
type State struct {
	HomeSet bool
	Cards   []cards.Card

	// Discarded lists records dropped while loading. It is never saved.
	Discarded []error
}

// Store loads and saves State.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
	Close() error
}

// PersistenceError is returned when the underlying storage cannot be read or
// written. Content that parses badly is not a PersistenceError.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

type memberRecord struct {
	City             string `json:"city" yaml:"city"`
	CountryName      string `json:"countryName,omitempty" yaml:"countryName,omitempty"`
	CountryCode      string `json:"countryCode,omitempty" yaml:"countryCode,omitempty"`
	OriginalIANA     string `json:"originalIana" yaml:"originalIana"`
	IsSharedAddition bool   `json:"isSharedAddition,omitempty" yaml:"isSharedAddition,omitempty"`
}

// cardRecord is the current on-disk layout of a card.
type cardRecord struct {
	GroupKey           string         `json:"groupKey" yaml:"groupKey"`
	RepresentativeIANA string         `json:"representativeIana" yaml:"representativeIana"`
	Locations          []memberRecord `json:"locations" yaml:"locations"`
	IsHome             bool           `json:"isHome" yaml:"isHome"`
	IsSystemMarker     bool           `json:"isSystemMarker" yaml:"isSystemMarker"`
	UserAdded          bool           `json:"userAdded" yaml:"userAdded"`
}

func encode(cs []cards.Card) []cardRecord {
	out := make([]cardRecord, 0, len(cs))
	for _, c := range cs {
		rec := cardRecord{
			GroupKey:           c.Key.String(),
			RepresentativeIANA: c.RepresentativeIANA,
			Locations:          make([]memberRecord, 0, len(c.Locations)),
			IsHome:             c.IsHome,
			IsSystemMarker:     c.IsSystemMarker,
			UserAdded:          c.UserAdded,
		}
		for _, m := range c.Locations {
			rec.Locations = append(rec.Locations, memberRecord{
				City:             m.City,
				CountryName:      m.CountryName,
				CountryCode:      m.CountryCode,
				OriginalIANA:     m.OriginalIANA,
				IsSharedAddition: m.Shared,
			})
		}
		out = append(out, rec)
	}
	return out
}

// decodeState builds a State from the two loosely typed values read from a
// backend.
func decodeState(homeSet, rawCards any) State {
	st := State{HomeSet: flag(homeSet)}
	st.Cards, st.Discarded = Normalize(rawCards)
	return st
}

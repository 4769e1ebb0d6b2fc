package cards

import (
	"sync"
	"time"

	"github.com/philtim/figured/clock"
)

// Collection owns the cards and is the only way to change them. Every
// mutating method first regroups at the given instant, so keys are never
// trusted across a DST transition.
type Collection struct {
	mu    sync.Mutex
	cards []Card
}

// New returns an empty collection.
func New() *Collection {
	return &Collection{}
}

// prepare trims the location the way Restore trims members, fills in a city
// name when missing and resolves the group key.
func prepare(loc Location, at time.Time) (Location, clock.GroupKey, error) {
	loc = memberOf(loc).trimmed().Location()
	if loc.City == "" {
		loc.City = LocationFromZone(loc.IANA).City
	}
	key, err := clock.KeyOf(loc.IANA, at)
	if err != nil {
		return loc, clock.GroupKey{}, &ZoneResolutionError{IANA: loc.IANA, Err: err}
	}
	return loc, key, nil
}

// AddLocation puts loc on the card for its current group, creating the card
// when no card has that key.
func (c *Collection) AddLocation(loc Location, at time.Time) (Outcome, error) {
	return c.add(loc, at, false)
}

// AddShared is AddLocation for a city added because it shares the time of a
// user pick. The member is flagged Shared and does not mark the card as user
// added.
func (c *Collection) AddShared(loc Location, at time.Time) (Outcome, error) {
	return c.add(loc, at, true)
}

func (c *Collection) add(loc Location, at time.Time, shared bool) (Outcome, error) {
	loc, key, err := prepare(loc, at)
	if err != nil {
		return OutcomeNone, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.regroup(at)

	m := memberOf(loc)
	m.Shared = shared

	if i := c.indexByKey(key); i >= 0 {
		card := &c.cards[i]
		if j := card.indexOf(m); j >= 0 {
			if !shared && card.Locations[j].system {
				// The user picked the device city: it is a choice now.
				card.Locations[j].system = false
				card.UserAdded = true
			}
			return OutcomeAlreadyPresent, nil
		}
		card.Locations = append(card.Locations, m)
		sortMembers(card.Locations)
		if !shared {
			card.UserAdded = true
		}
		return OutcomeAppended, nil
	}

	if len(c.cards) >= MaxCards {
		return OutcomeNone, ErrCapacityExceeded
	}
	c.cards = append(c.cards, Card{
		Key:                key,
		RepresentativeIANA: loc.IANA,
		Locations:          []Member{m},
		UserAdded:          !shared,
	})
	return OutcomeCreated, nil
}

// RemoveCard deletes the card whose key at instant is key, together with
// all of its cities, and returns it. The home card cannot be removed.
func (c *Collection) RemoveCard(key clock.GroupKey, at time.Time) (Card, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regroup(at)

	i := c.indexByKey(key)
	if i < 0 {
		return Card{}, ErrCardNotFound
	}
	if c.cards[i].IsHome {
		return Card{}, ErrCannotRemoveHome
	}
	removed := c.cards[i].clone()
	c.cards = append(c.cards[:i], c.cards[i+1:]...)
	return removed, nil
}

// SetHome makes the card of loc's group the only home card. When no card
// has that group a new one is created at the front, subject to capacity.
// On error nothing changes, including the previous home.
func (c *Collection) SetHome(loc Location, at time.Time) (Outcome, error) {
	loc, key, err := prepare(loc, at)
	if err != nil {
		return OutcomeNone, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.regroup(at)

	i := c.indexByKey(key)
	if i < 0 && len(c.cards) >= MaxCards {
		return OutcomeNone, ErrCapacityExceeded
	}

	for j := range c.cards {
		c.cards[j].IsHome = false
	}

	if i >= 0 {
		card := &c.cards[i]
		card.IsHome = true
		for j := range card.Locations {
			card.Locations[j].system = false
		}
		return OutcomeHomeMarked, nil
	}

	home := Card{
		Key:                key,
		RepresentativeIANA: loc.IANA,
		Locations:          []Member{memberOf(loc)},
		IsHome:             true,
		UserAdded:          true,
	}
	c.cards = append([]Card{home}, c.cards...)
	return OutcomeCreated, nil
}

// MergeSystemZone marks the card of the device zone, adding loc to it when
// missing or creating a card for it. The membership it adds is not part of
// Persistable. Calling it again with the same inputs changes nothing.
func (c *Collection) MergeSystemZone(loc Location, at time.Time) (Outcome, error) {
	loc, key, err := prepare(loc, at)
	if err != nil {
		return OutcomeNone, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.regroup(at)

	i := c.indexByKey(key)
	if i < 0 && len(c.cards) >= MaxCards {
		return OutcomeNone, ErrCapacityExceeded
	}

	for j := range c.cards {
		c.cards[j].IsSystemMarker = false
	}

	m := memberOf(loc)
	m.system = true

	if i >= 0 {
		card := &c.cards[i]
		card.IsSystemMarker = true
		if card.indexOf(m) >= 0 {
			return OutcomeSystemMarked, nil
		}
		card.Locations = append(card.Locations, m)
		sortMembers(card.Locations)
		return OutcomeAppended, nil
	}

	c.cards = append(c.cards, Card{
		Key:                key,
		RepresentativeIANA: loc.IANA,
		Locations:          []Member{m},
		IsSystemMarker:     true,
	})
	return OutcomeCreated, nil
}

// Regroup recomputes every card's key at instant and merges cards whose keys
// now collide.
func (c *Collection) Regroup(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regroup(at)
}

func (c *Collection) regroup(at time.Time) {
	merged := make([]Card, 0, len(c.cards))
	for _, card := range c.cards {
		// An unresolvable representative keeps its last known key.
		if key, err := clock.KeyOf(card.RepresentativeIANA, at); err == nil {
			card.Key = key
		}
		if i := indexByKey(merged, card.Key); i >= 0 {
			merged[i].absorb(card)
			continue
		}
		merged = append(merged, card)
	}
	c.cards = merged
}

func (c *Collection) indexByKey(key clock.GroupKey) int {
	return indexByKey(c.cards, key)
}

func indexByKey(cs []Card, key clock.GroupKey) int {
	for i := range cs {
		if cs[i].Key == key {
			return i
		}
	}
	return -1
}

// Snapshot returns a copy of the cards in collection order.
func (c *Collection) Snapshot() []Card {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Card, len(c.cards))
	for i, card := range c.cards {
		out[i] = card.clone()
	}
	return out
}

// Persistable is Snapshot without the membership MergeSystemZone added.
// Cards left without cities are omitted.
func (c *Collection) Persistable() []Card {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Card, 0, len(c.cards))
	for _, card := range c.cards {
		kept := make([]Member, 0, len(card.Locations))
		for _, m := range card.Locations {
			if !m.system {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			continue
		}
		card.Locations = kept
		out = append(out, card)
	}
	return out
}

// Home returns the home card, if one is set.
func (c *Collection) Home() (Card, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, card := range c.cards {
		if card.IsHome {
			return card.clone(), true
		}
	}
	return Card{}, false
}

// Len returns the number of cards.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cards)
}

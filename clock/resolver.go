package clock

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	// Embedded zoneinfo so resolution does not depend on the host.
	_ "time/tzdata"
)

// ErrInvalidZoneID is returned when an IANA id is empty, malformed or
// unknown to the timezone database.
var ErrInvalidZoneID = errors.New("invalid zone id")

// Offset is the effective state of a zone at one instant.
type Offset struct {
	// Minutes is the signed UTC offset, positive east of Greenwich.
	Minutes int
	// DST reports whether the zone observes daylight saving at the instant.
	DST bool
	// Abbrev is the zone abbreviation in effect, e.g. "EST" or "+0530".
	Abbrev string
}

// Resolver loads zones and memoizes the loaded rule sets. Only the
// *time.Location is cached, offsets are always computed for the instant
// asked for.
type Resolver struct {
	mu   sync.RWMutex
	locs map[string]*time.Location
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{locs: make(map[string]*time.Location)}
}

var defaultResolver = NewResolver()

// Resolve computes the offset and DST state of iana at instant using the
// package level resolver.
func Resolve(iana string, at time.Time) (Offset, error) {
	return defaultResolver.Resolve(iana, at)
}

// LoadLocation returns the rule set for iana using the package level resolver.
func LoadLocation(iana string) (*time.Location, error) {
	return defaultResolver.Location(iana)
}

// Location returns the rule set for iana. Surrounding whitespace is ignored.
func (r *Resolver) Location(iana string) (*time.Location, error) {
	name := strings.TrimSpace(iana)
	if name == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidZoneID)
	}
	// time.LoadLocation maps these to the process zone, they are not IANA ids.
	if name == "Local" || strings.HasPrefix(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZoneID, name)
	}

	r.mu.RLock()
	loc, ok := r.locs[name]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidZoneID, name, err)
	}

	r.mu.Lock()
	r.locs[name] = loc
	r.mu.Unlock()
	return loc, nil
}

// Resolve computes the offset and DST state of iana at instant.
func (r *Resolver) Resolve(iana string, at time.Time) (Offset, error) {
	loc, err := r.Location(iana)
	if err != nil {
		return Offset{}, err
	}
	local := at.In(loc)
	abbrev, secs := local.Zone()
	return Offset{
		Minutes: secs / 60,
		DST:     local.IsDST(),
		Abbrev:  abbrev,
	}, nil
}

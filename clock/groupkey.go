package clock

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// UnresolvableOffset is what SortableOffset reports for a zone that cannot be
// resolved. It compares less than every real offset.
const UnresolvableOffset = math.MinInt32

// GroupKey identifies an effective time group: every zone with the same
// offset and DST state at an instant shares a key. Keys go stale across DST
// transitions and must be recomputed rather than stored.
type GroupKey struct {
	OffsetMinutes int
	DST           bool
}

// String returns the canonical "{offsetMinutes}:{isDst}" form, e.g. "-300:false".
func (k GroupKey) String() string {
	return strconv.Itoa(k.OffsetMinutes) + ":" + strconv.FormatBool(k.DST)
}

// MarshalText implements encoding.TextMarshaler.
func (k GroupKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *GroupKey) UnmarshalText(text []byte) error {
	parsed, err := ParseGroupKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseGroupKey parses the canonical key form.
func ParseGroupKey(s string) (GroupKey, error) {
	offset, dst, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return GroupKey{}, fmt.Errorf("malformed group key %q", s)
	}
	minutes, err := strconv.Atoi(offset)
	if err != nil {
		return GroupKey{}, fmt.Errorf("malformed group key offset %q: %w", s, err)
	}
	isDST, err := strconv.ParseBool(dst)
	if err != nil {
		return GroupKey{}, fmt.Errorf("malformed group key dst flag %q: %w", s, err)
	}
	return GroupKey{OffsetMinutes: minutes, DST: isDST}, nil
}

// Key converts an Offset into its GroupKey.
func (o Offset) Key() GroupKey {
	return GroupKey{OffsetMinutes: o.Minutes, DST: o.DST}
}

// KeyOf computes the group key of iana at instant.
func KeyOf(iana string, at time.Time) (GroupKey, error) {
	off, err := Resolve(iana, at)
	if err != nil {
		return GroupKey{}, err
	}
	return off.Key(), nil
}

// SortableOffset returns the offset of iana at instant in minutes, or
// UnresolvableOffset when the zone cannot be resolved.
func SortableOffset(iana string, at time.Time) int {
	off, err := Resolve(iana, at)
	if err != nil {
		return UnresolvableOffset
	}
	return off.Minutes
}

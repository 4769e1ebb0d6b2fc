package clock

import (
	"fmt"
	"time"
)

// Bucket is the coarse time-of-day slot a clock falls into.
type Bucket string

const (
	BucketDay     Bucket = "day"
	BucketEvening Bucket = "evening"
	BucketNight   Bucket = "night"
)

// BucketOf maps a local hour (0-23) to its slot.
func BucketOf(hour int) Bucket {
	switch {
	case hour >= 6 && hour < 18:
		return BucketDay
	case hour >= 18 && hour < 21:
		return BucketEvening
	default:
		return BucketNight
	}
}

// Clock represents a world clock for a specific timezone
type Clock struct {
	IANA     string
	Location *time.Location
}

// New creates a new Clock instance
func New(timezone string) (*Clock, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone '%s': %w", timezone, err)
	}

	return &Clock{
		IANA:     timezone,
		Location: loc,
	}, nil
}

// TimeAt returns the instant in the clock's timezone
func (c *Clock) TimeAt(at time.Time) time.Time {
	return at.In(c.Location)
}

// FormatTime returns the 12-hour time and the AM/PM marker separately
func (c *Clock) FormatTime(at time.Time) (string, string) {
	t := c.TimeAt(at)
	return t.Format("3:04"), t.Format("PM")
}

// FormatTime24 returns the time in 24-hour format (HH:MM)
func (c *Clock) FormatTime24(at time.Time) string {
	return c.TimeAt(at).Format("15:04")
}

// FormatDate returns the short weekday, month and day, e.g. "Tue, Oct 14"
func (c *Clock) FormatDate(at time.Time) string {
	return c.TimeAt(at).Format("Mon, Jan 2")
}

// FormatUTCOffset returns the UTC offset as "UTC±HH:MM", or plain "UTC" when
// the offset is zero
func (c *Clock) FormatUTCOffset(at time.Time) string {
	return FormatOffset(c.UTCOffset(at) / 60)
}

// UTCOffset returns the UTC offset in seconds
func (c *Clock) UTCOffset(at time.Time) int {
	_, offset := c.TimeAt(at).Zone()
	return offset
}

// FormatOffset renders a signed minute offset the way cards display it.
func FormatOffset(minutes int) string {
	if minutes == 0 {
		return "UTC"
	}

	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	return fmt.Sprintf("UTC%s%02d:%02d", sign, minutes/60, minutes%60)
}

// Display holds everything a renderer needs to draw one card at one instant.
type Display struct {
	Time      string `json:"time"`
	Meridiem  string `json:"meridiem"`
	Time24    string `json:"time24"`
	Date      string `json:"date"`
	Abbrev    string `json:"abbrev"`
	UTCOffset string `json:"utcOffset"`
	DST       bool   `json:"dst"`
	Hour      int    `json:"hour"`
	Bucket    Bucket `json:"bucket"`
	Err       string `json:"error,omitempty"`
}

// Describe derives the display fields of iana at instant. A zone that cannot
// be resolved yields placeholder fields with Err set instead of an error, so
// one broken card never blocks the rest of a render pass.
func Describe(iana string, at time.Time) Display {
	clk, err := New(iana)
	if err != nil {
		return Display{
			Time:      "Error",
			Date:      "N/A",
			Abbrev:    "ERR",
			UTCOffset: "ERR",
			Hour:      -1,
			Bucket:    BucketNight,
			Err:       err.Error(),
		}
	}

	t := clk.TimeAt(at)
	hm, meridiem := clk.FormatTime(at)
	abbrev, _ := t.Zone()
	return Display{
		Time:      hm,
		Meridiem:  meridiem,
		Time24:    clk.FormatTime24(at),
		Date:      clk.FormatDate(at),
		Abbrev:    abbrev,
		UTCOffset: clk.FormatUTCOffset(at),
		DST:       t.IsDST(),
		Hour:      t.Hour(),
		Bucket:    BucketOf(t.Hour()),
	}
}

// Package civil provides calendar-day and time-of-day value types.
//
// The two types exist to keep "a date" and "a moment within a day" from
// sharing one timestamp field: a Day carries no clock component at all, and
// a TimeOfDay carries nothing but the clock component.
package civil

import (
	"fmt"
	"strconv"
	"time"
)

const (
	dayLayout     = "2006-01-02"
	minutesPerDay = 24 * 60
)

// Day is a calendar date with no time-of-day component.
type Day struct {
	t time.Time
}

func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// DayOf truncates a timestamp to its calendar date in the timestamp's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func Today() Day {
	return DayOf(time.Now())
}

func (d Day) IsZero() bool {
	return d.t.IsZero()
}

func (d Day) String() string {
	return d.t.Format(dayLayout)
}

func (d Day) AddDays(n int) Day {
	return Day{t: d.t.AddDate(0, 0, n)}
}

func (d Day) Before(other Day) bool {
	return d.t.Before(other.t)
}

func (d Day) After(other Day) bool {
	return d.t.After(other.t)
}

func (d Day) Equal(other Day) bool {
	return d.t.Equal(other.t)
}

// Start returns midnight at the beginning of the day in loc.
func (d Day) Start(loc *time.Location) time.Time {
	y, m, dd := d.t.Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, loc)
}

// At combines the day with a time-of-day in loc.
func (d Day) At(tod TimeOfDay, loc *time.Location) time.Time {
	y, m, dd := d.t.Date()
	return time.Date(y, m, dd, tod.Hour(), tod.Minute(), 0, 0, loc)
}

func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Day) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid day literal: %s", s)
	}
	parsed, err := ParseDay(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeOfDay is a minute within a day, rendered as zero-padded "HH:mm".
// The zero value is midnight.
type TimeOfDay struct {
	minutes int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:mm", s)
	}
	h, errH := strconv.Atoi(s[:2])
	m, errM := strconv.Atoi(s[3:])
	if errH != nil || errM != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: want HH:mm", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return TimeOfDay{minutes: h*60 + m}, nil
}

func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay{minutes: t.Hour()*60 + t.Minute()}
}

func MinuteOfDay(minutes int) (TimeOfDay, error) {
	if minutes < 0 || minutes >= minutesPerDay {
		return TimeOfDay{}, fmt.Errorf("minute of day %d out of range", minutes)
	}
	return TimeOfDay{minutes: minutes}, nil
}

func (t TimeOfDay) Hour() int {
	return t.minutes / 60
}

func (t TimeOfDay) Minute() int {
	return t.minutes % 60
}

func (t TimeOfDay) Minutes() int {
	return t.minutes
}

// IsMidnight reports whether the value is exactly 00:00.
func (t TimeOfDay) IsMidnight() bool {
	return t.minutes == 0
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.minutes < other.minutes
}

// AddMinutes advances the time within the same day. It fails when the result
// would cross midnight, since a block can never leave its day.
func (t TimeOfDay) AddMinutes(n int) (TimeOfDay, error) {
	total := t.minutes + n
	if n < 0 || total >= minutesPerDay {
		return TimeOfDay{}, fmt.Errorf("%s plus %d minutes leaves the day", t, n)
	}
	return TimeOfDay{minutes: total}, nil
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("invalid time literal: %s", s)
	}
	parsed, err := ParseTimeOfDay(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

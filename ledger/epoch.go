package ledger

import (
	"database/sql/driver"
	"fmt"
	"math"
	"time"
)

// =============================================================================
// EPOCH - Stored date representation
// =============================================================================

// EpochOffset is the number of seconds between the Unix epoch and the ledger
// format's zero date, 2001-01-01T00:00:00Z.
const EpochOffset int64 = 978307200

// DateLayout is the calendar date format accepted and produced by the codec.
const DateLayout = "2006-01-02"

// Epoch is a date as stored in a ledger file: whole seconds since
// 2001-01-01 UTC.
type Epoch int64

// Now returns the current time as an Epoch.
func Now() Epoch {
	return FromTime(time.Now())
}

// FromTime converts t, truncated to whole seconds.
func FromTime(t time.Time) Epoch {
	return Epoch(t.Unix() - EpochOffset)
}

// ToEpoch converts a YYYY-MM-DD calendar date, read as midnight UTC.
// Malformed dates are rejected with ErrInvalidDate.
func ToEpoch(date string) (Epoch, error) {
	t, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return 0, &DateError{Input: date, Err: err}
	}
	return FromTime(t), nil
}

// MustEpoch is ToEpoch for constant dates. It panics on malformed input.
func MustEpoch(date string) Epoch {
	e, err := ToEpoch(date)
	if err != nil {
		panic(err)
	}
	return e
}

// ToCalendarDate renders an epoch as its UTC calendar date.
func ToCalendarDate(e Epoch) string {
	return e.Time().Format(DateLayout)
}

// Time returns the epoch as a UTC time.Time.
func (e Epoch) Time() time.Time {
	return time.Unix(int64(e)+EpochOffset, 0).UTC()
}

func (e Epoch) String() string { return ToCalendarDate(e) }

func (e Epoch) AddDays(n int) Epoch   { return FromTime(e.Time().AddDate(0, 0, n)) }
func (e Epoch) AddMonths(n int) Epoch { return FromTime(e.Time().AddDate(0, n, 0)) }

// Value stores the epoch as a REAL, the representation ledger files use for
// dates. SQLite keeps whole values in TIMESTAMP columns as INTEGER.
func (e Epoch) Value() (driver.Value, error) {
	return float64(e), nil
}

// Scan accepts integer and real columns; files written by other tools
// store fractional seconds, which are floored. go-sqlite3 hands back
// INTEGER values of TIMESTAMP columns as a time.Time holding the raw number
// as Unix seconds, so that is undone here. The driver reads values above
// 1e12 as milliseconds.
func (e *Epoch) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*e = Epoch(v)
	case float64:
		*e = Epoch(math.Floor(v))
	case time.Time:
		*e = Epoch(v.Unix())
	case nil:
		*e = 0
	default:
		return fmt.Errorf("ledger: cannot scan %T into Epoch", src)
	}
	return nil
}

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive [Start, End] date range.
type Period struct {
	Start Epoch
	End   Epoch
}

// NewPeriod parses two calendar dates into a Period.
func NewPeriod(start, end string) (Period, error) {
	s, err := ToEpoch(start)
	if err != nil {
		return Period{}, err
	}
	en, err := ToEpoch(end)
	if err != nil {
		return Period{}, err
	}
	if en < s {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: s, End: en}, nil
}

// Contains returns true if e is within the period [Start, End].
func (p Period) Contains(e Epoch) bool {
	return e >= p.Start && e <= p.End
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

package semantic

import (
	"math"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

const (
	// Preferred format.
	IMFFixDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"
	// Obsolete formats.
	RFC850DateLayout  = "Monday, 02-Jan-06 15:04:05 GMT"
	ASCTimeDateLayout = time.ANSIC
)

var ErrDateFormat = errors.New("invalid HTTP date")

// Date is an absolute instant read from an HTTP date field.
// Comparisons against now use the clock it was parsed with.
type Date struct {
	t     time.Time
	clock clock.Clock
}

// ParseDate tries IMF-fixdate, RFC 850 and asctime in order,
// then falls back to delay-seconds relative to now.
//
// Reference:
//
// - https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.7
//
// - https://datatracker.ietf.org/doc/html/rfc9110#section-10.2.3
func ParseDate(raw string, clk clock.Clock) (Date, error) {
	if clk == nil {
		clk = clock.New()
	}

	if t, err := time.Parse(IMFFixDateLayout, raw); err == nil {
		return Date{t: t, clock: clk}, nil
	}

	if t, err := time.Parse(RFC850DateLayout, raw); err == nil {
		return Date{t: resolveTwoDigitYear(t, clk.Now()), clock: clk}, nil
	}

	if t, err := time.Parse(ASCTimeDateLayout, raw); err == nil {
		return Date{t: t, clock: clk}, nil
	}

	seconds, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return Date{}, errors.Wrapf(ErrDateFormat, "%q", raw)
	}
	if seconds > math.MaxInt64/uint64(time.Second) {
		return Date{}, errors.Wrapf(ErrDateFormat, "delay seconds out of range: %q", raw)
	}

	t := clk.Now().Add(time.Duration(seconds) * time.Second)
	return Date{t: t, clock: clk}, nil
}

// resolveTwoDigitYear places the year in the current century unless that
// puts it more than 50 years in the future.
//
// Reference: https://datatracker.ietf.org/doc/html/rfc9110#section-5.6.7-7
func resolveTwoDigitYear(t, now time.Time) time.Time {
	century := now.Year() - now.Year()%100
	t = t.AddDate(century+t.Year()%100-t.Year(), 0, 0)
	if t.After(now.AddDate(50, 0, 0)) {
		t = t.AddDate(-100, 0, 0)
	}
	return t
}

func (d Date) Time() time.Time { return d.t }

func (d Date) IsFuture() bool { return d.t.After(d.clock.Now()) }

// Until returns the distance between the instant and now regardless of sign,
// rounded to whole seconds.
func (d Date) Until() time.Duration {
	diff := d.t.Sub(d.clock.Now())
	if diff < 0 {
		diff = -diff
	}
	return diff.Round(time.Second)
}

// String formats the instant as IMF-fixdate.
func (d Date) String() string { return d.t.UTC().Format(IMFFixDateLayout) }

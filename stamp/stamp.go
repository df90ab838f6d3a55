// Package stamp provides Causeway's day-precision timestamp.
//
// The wire form is a six-digit string "YYMMDD": "230421" is the 21st of
// April 2023. Two-digit years map into 2000-2099, so lexicographic order of
// the wire form equals chronological order across the whole representable
// window. Stamps convert to and from the forms that arrive in spreadsheet
// exports: snapshot labels ("APR21"), dashed dates ("23-04-21"), and serial
// day counts against the 1899-12-30 epoch.
package stamp

import (
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/causeway-data/causeway/errors"
)

// Serial day counts are only meaningful inside the representable window.
// 36526 is 2000-01-01 and 73050 is 2099-12-31 against the 1899-12-30 epoch.
const (
	SerialMin = 36526
	SerialMax = 73050
)

var serialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Stamp is a day-precision timestamp. The zero value is invalid and reports
// IsZero; every constructor returns a normalized UTC-midnight value.
type Stamp struct {
	t time.Time
}

// Parse parses the canonical "YYMMDD" wire form.
func Parse(s string) (Stamp, error) {
	if len(s) != 6 {
		return Stamp{}, errors.Newf("stamp %q: want 6 digits in form YYMMDD", s)
	}
	yy, ok1 := atoi2(s[0:2])
	mm, ok2 := atoi2(s[2:4])
	dd, ok3 := atoi2(s[4:6])
	if !ok1 || !ok2 || !ok3 {
		return Stamp{}, errors.Newf("stamp %q: want 6 digits in form YYMMDD", s)
	}

	t := time.Date(2000+yy, time.Month(mm), dd, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes out-of-range components (Feb 30 becomes Mar 2);
	// reject anything that does not round-trip.
	if t.Year() != 2000+yy || int(t.Month()) != mm || t.Day() != dd {
		return Stamp{}, errors.Newf("stamp %q: no such calendar date", s)
	}
	return Stamp{t: t}, nil
}

// MustParse is Parse for fixtures and declarations known to be valid.
// It panics on error.
func MustParse(s string) Stamp {
	st, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return st
}

// FromTime builds a Stamp from the civil date of t. Years outside 2000-2099
// fold into the window by their last two digits, matching the wire form.
func FromTime(t time.Time) Stamp {
	return Stamp{t: time.Date(2000+t.Year()%100, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseAny accepts the forms that show up in spreadsheet exports: the wire
// form "YYMMDD", the dashed date "YY-MM-DD", and a five-digit serial day
// count.
func ParseAny(s string) (Stamp, error) {
	s = strings.TrimSpace(s)
	switch {
	case len(s) == 6 && allDigits(s):
		return Parse(s)
	case len(s) == 8 && s[2] == '-' && s[5] == '-':
		return ParseDashed(s)
	case len(s) == 5 && allDigits(s):
		n := 0
		for _, c := range s {
			n = n*10 + int(c-'0')
		}
		return FromSerial(n)
	default:
		return Stamp{}, errors.Newf("stamp %q: not YYMMDD, YY-MM-DD, or a serial day count", s)
	}
}

// ParseDashed parses the "YY-MM-DD" form used by date columns in exports.
func ParseDashed(s string) (Stamp, error) {
	if len(s) != 8 || s[2] != '-' || s[5] != '-' {
		return Stamp{}, errors.Newf("stamp %q: want form YY-MM-DD", s)
	}
	st, err := Parse(s[0:2] + s[3:5] + s[6:8])
	if err != nil {
		return Stamp{}, errors.Newf("stamp %q: no such calendar date", s)
	}
	return st, nil
}

// FromSerial converts a spreadsheet serial day count (days since
// 1899-12-30). Serials outside [SerialMin, SerialMax] are rejected: smaller
// numbers are usually times of day or row ordinals, not dates.
func FromSerial(n int) (Stamp, error) {
	if n < SerialMin || n > SerialMax {
		return Stamp{}, errors.Newf("serial %d: want %d..%d (2000-01-01..2099-12-31)", n, SerialMin, SerialMax)
	}
	return FromTime(serialEpoch.AddDate(0, 0, n)), nil
}

// Serial returns the spreadsheet serial day count for s.
func (s Stamp) Serial() int {
	return int(s.t.Sub(serialEpoch).Hours() / 24)
}

// String returns the canonical "YYMMDD" wire form, or "" for the zero Stamp.
func (s Stamp) String() string {
	if s.IsZero() {
		return ""
	}
	b := [6]byte{}
	put2(b[0:2], s.t.Year()-2000)
	put2(b[2:4], int(s.t.Month()))
	put2(b[4:6], s.t.Day())
	return string(b[:])
}

// Dashed returns the "YY-MM-DD" form used by date columns in exports.
func (s Stamp) Dashed() string {
	w := s.String()
	if w == "" {
		return ""
	}
	return w[0:2] + "-" + w[2:4] + "-" + w[4:6]
}

// SnapshotLabel returns the "APR21" form used to label snapshot directories
// and report columns: uppercase three-letter month plus two-digit day. The
// year is deliberately absent.
func (s Stamp) SnapshotLabel() string {
	if s.IsZero() {
		return ""
	}
	return strings.ToUpper(s.t.Format("Jan")) + s.String()[4:6]
}

// ParseSnapshot resolves a snapshot label ("APR21") against the year of ref,
// since the label carries no year of its own.
func ParseSnapshot(label string, ref Stamp) (Stamp, error) {
	if len(label) != 5 {
		return Stamp{}, errors.Newf("snapshot label %q: want form like APR21", label)
	}
	month, ok := monthAbbrev[strings.ToUpper(label[0:3])]
	if !ok {
		return Stamp{}, errors.Newf("snapshot label %q: unknown month %q", label, label[0:3])
	}
	dd, ok := atoi2(label[3:5])
	if !ok {
		return Stamp{}, errors.Newf("snapshot label %q: want two-digit day", label)
	}
	t := time.Date(ref.Year(), month, dd, 0, 0, 0, 0, time.UTC)
	if t.Month() != month || t.Day() != dd {
		return Stamp{}, errors.Newf("snapshot label %q: no such date in %d", label, ref.Year())
	}
	return Stamp{t: t}, nil
}

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// Time returns the stamp as a UTC-midnight time.Time.
func (s Stamp) Time() time.Time { return s.t }

// IsZero reports whether s is the invalid zero value.
func (s Stamp) IsZero() bool { return s.t.IsZero() }

// Year returns the four-digit year.
func (s Stamp) Year() int { return s.t.Year() }

// Month returns the month.
func (s Stamp) Month() time.Month { return s.t.Month() }

// Day returns the day of month.
func (s Stamp) Day() int { return s.t.Day() }

// Before reports whether s is strictly earlier than o.
func (s Stamp) Before(o Stamp) bool { return s.t.Before(o.t) }

// After reports whether s is strictly later than o.
func (s Stamp) After(o Stamp) bool { return s.t.After(o.t) }

// Equal reports whether s and o are the same date.
func (s Stamp) Equal(o Stamp) bool { return s.t.Equal(o.t) }

// Compare returns -1, 0, or +1 ordering s against o.
func (s Stamp) Compare(o Stamp) int { return s.t.Compare(o.t) }

// AddDays returns the stamp n days later (or earlier for negative n).
func (s Stamp) AddDays(n int) Stamp {
	return FromTime(s.t.AddDate(0, 0, n))
}

// MarshalText implements encoding.TextMarshaler using the wire form.
func (s Stamp) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty input yields the
// zero Stamp.
func (s *Stamp) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*s = Stamp{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler using the wire form.
func (s Stamp) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Stamp) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return s.UnmarshalText([]byte(raw))
}

// Forced "today" override, used by tests and replays so address generation
// is deterministic. Mirrors the runtime.forced_today config key.
var (
	forcedMu    sync.RWMutex
	forcedToday Stamp
)

// Today returns the current date, unless a forced value is set.
func Today() Stamp {
	forcedMu.RLock()
	forced := forcedToday
	forcedMu.RUnlock()
	if !forced.IsZero() {
		return forced
	}
	return FromTime(time.Now())
}

// SetForcedToday pins the value returned by Today.
func SetForcedToday(s Stamp) {
	forcedMu.Lock()
	forcedToday = s
	forcedMu.Unlock()
}

// ClearForcedToday restores Today to the real clock.
func ClearForcedToday() {
	forcedMu.Lock()
	forcedToday = Stamp{}
	forcedMu.Unlock()
}

func atoi2(s string) (int, bool) {
	if len(s) != 2 || s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

func put2(b []byte, n int) {
	b[0] = byte('0' + n/10)
	b[1] = byte('0' + n%10)
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

package bank

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const neverMillis = math.MaxInt64

// dateLayouts are accepted for literal dates. They exist for diagnostics and
// manual testing; production callers should send "+millis".
var dateLayouts = []string{
	"Jan 2, 2006 3:04:05 PM",
	"Jan 2, 2006 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// ExpirationDate is the instant at which a key or encumbrance stops being
// valid, or Never.
type ExpirationDate struct {
	millis int64
}

// Never is an expiration date that is never reached.
var Never = ExpirationDate{millis: neverMillis}

// ExpiresAt builds an expiration date from a point in time. Instants at or
// before the Unix epoch are clamped to one millisecond past it, since a zero
// encoding means never.
func ExpiresAt(t time.Time) ExpirationDate {
	ms := t.UnixMilli()
	if ms <= 0 {
		ms = 1
	}
	return ExpirationDate{millis: ms}
}

// ParseExpiration accepts "+<unix millis>", "never", or a date literal.
func ParseExpiration(s string) (ExpirationDate, error) {
	switch {
	case strings.HasPrefix(s, "+"):
		ms, err := strconv.ParseInt(s[1:], 10, 64)
		if err != nil {
			return ExpirationDate{}, fmt.Errorf("bad date format: %w", err)
		}
		if ms <= 0 {
			return ExpirationDate{}, fmt.Errorf("bad date format: %q is not after the epoch", s)
		}
		return ExpirationDate{millis: ms}, nil
	case s == "never":
		return Never, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return ExpiresAt(t), nil
		}
	}
	return ExpirationDate{}, fmt.Errorf("bad date format: %q", s)
}

func fromMillis(ms int64) ExpirationDate {
	if ms == 0 {
		return Never
	}
	return ExpirationDate{millis: ms}
}

// IsNever reports whether the date never arrives.
func (e ExpirationDate) IsNever() bool {
	return e.millis == neverMillis
}

// Compare orders expiration dates; Never sorts after every real instant.
func (e ExpirationDate) Compare(other ExpirationDate) int {
	switch {
	case e.millis < other.millis:
		return -1
	case e.millis > other.millis:
		return 1
	default:
		return 0
	}
}

// ExpiredAt reports whether the date had already passed at now.
func (e ExpirationDate) ExpiredAt(now time.Time) bool {
	return e.millis < now.UnixMilli()
}

// IsExpired reports whether the date has already passed.
func (e ExpirationDate) IsExpired() bool {
	return e.ExpiredAt(time.Now())
}

// String renders the date in the form ParseExpiration reads back.
func (e ExpirationDate) String() string {
	if e.IsNever() {
		return "never"
	}
	return "+" + strconv.FormatInt(e.millis, 10)
}

type expirationRecord struct {
	When int64 `json:"when"`
}

// MarshalJSON writes {"when": millis}, with 0 standing for never.
func (e ExpirationDate) MarshalJSON() ([]byte, error) {
	rec := expirationRecord{When: e.millis}
	if e.IsNever() {
		rec.When = 0
	}
	return json.Marshal(rec)
}

// UnmarshalJSON reads the form written by MarshalJSON.
func (e *ExpirationDate) UnmarshalJSON(data []byte) error {
	var rec expirationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*e = fromMillis(rec.When)
	return nil
}

package domain

import (
	"time"

	"github.com/relvacode/iso8601"
)

// Timestamp is a point in time that reads any ISO-8601 form and writes
// RFC 3339 with nanoseconds. Naive inputs are taken as UTC.
type Timestamp time.Time

// Time returns the underlying time.Time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

// IsZero reports whether t is the zero instant.
func (t Timestamp) IsZero() bool {
	return time.Time(t).IsZero()
}

func (t Timestamp) String() string {
	return time.Time(t).Format(time.RFC3339Nano)
}

// MarshalText encodes the timestamp as RFC 3339.
func (t Timestamp) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText decodes an ISO-8601 timestamp.
func (t *Timestamp) UnmarshalText(b []byte) error {
	parsed, err := iso8601.Parse(b)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed.UTC())
	return nil
}

// Equal reports whether t and u are the same instant.
func (t Timestamp) Equal(u Timestamp) bool {
	return time.Time(t).Equal(time.Time(u))
}

package domain

import "time"

// Clock supplies the current time to aggregates and repositories.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// TimestampPrecision is the resolution at which event timestamps are recorded.
// Postgres timestamptz stores microseconds, so anything finer would not survive
// a round trip through the log.
const TimestampPrecision = time.Microsecond

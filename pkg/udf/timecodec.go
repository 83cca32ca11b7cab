package udf

import (
	"math"
	"time"

	"github.com/moznion/go-optional"
)

const microsecondsPerSecond = 1_000_000

// MaxUnixSeconds is the largest magnitude FromUnixSeconds converts without
// overflowing its microsecond count.
const MaxUnixSeconds = float64(math.MaxInt64 / microsecondsPerSecond)

// UnixEpoch is 1970-01-01T00:00:00Z.
var UnixEpoch = time.Unix(0, 0).UTC()

// FromUnixSeconds converts fractional Unix seconds into a UTC time.
// The fraction is kept to the microsecond. seconds must lie within
// [-MaxUnixSeconds, MaxUnixSeconds].
func FromUnixSeconds(seconds float64) time.Time {
	micros := int64(math.Round(seconds * microsecondsPerSecond))

	return time.UnixMicro(micros).UTC()
}

// FromUnixSecondsOption converts an optional Unix seconds value; None stays None.
func FromUnixSecondsOption(seconds optional.Option[float64]) optional.Option[time.Time] {
	if seconds.IsNone() {
		return optional.None[time.Time]()
	}

	return optional.Some(FromUnixSeconds(seconds.Unwrap()))
}

// ToUnixSeconds converts t into fractional Unix seconds. It is the inverse of
// FromUnixSeconds for any time with microsecond resolution.
func ToUnixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / microsecondsPerSecond
}

// ToUnixSecondsOption converts an optional time; None stays None.
func ToUnixSecondsOption(t optional.Option[time.Time]) optional.Option[float64] {
	if t.IsNone() {
		return optional.None[float64]()
	}

	return optional.Some(ToUnixSeconds(t.Unwrap()))
}

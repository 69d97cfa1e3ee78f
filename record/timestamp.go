package record

import (
	"fmt"
	"time"

	"github.com/justinmoon/mosaic-core/wire"
)

// Timestamp is milliseconds since the Unix epoch. It occupies 48 bits
// on the wire with the top bit reserved zero, so the maximum value is
// MaxTimestamp.
type Timestamp uint64

// MaxTimestamp is the largest representable Timestamp.
const MaxTimestamp Timestamp = wire.MaxTimestampMillis

// TimestampFromMillis range-checks millis into a Timestamp.
func TimestampFromMillis(millis uint64) (Timestamp, error) {
	if millis > uint64(MaxTimestamp) {
		return 0, fmt.Errorf("record: timestamp %d exceeds 47-bit range", millis)
	}
	return Timestamp(millis), nil
}

// TimestampFromTime converts a time.Time. Times before the epoch or
// beyond the representable range are rejected.
func TimestampFromTime(t time.Time) (Timestamp, error) {
	ms := t.UnixMilli()
	if ms < 0 {
		return 0, fmt.Errorf("record: time %v precedes the epoch", t)
	}
	return TimestampFromMillis(uint64(ms))
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	ts, err := TimestampFromTime(time.Now())
	if err != nil {
		// Unreachable until the year 6429.
		panic(err)
	}
	return ts
}

// Millis returns milliseconds since the epoch.
func (t Timestamp) Millis() uint64 {
	return uint64(t)
}

// Time converts to a time.Time in UTC.
func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t)).UTC()
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d", uint64(t))
}

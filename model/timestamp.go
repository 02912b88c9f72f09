package model

import "time"

// Timestamp is a unix-nanosecond instant, the form every Signature carries.
type Timestamp int64

// Now stamps the current instant.
func Now() Timestamp {
	return Timestamp(time.Now().UnixNano())
}

func (t Timestamp) Time() time.Time {
	return time.Unix(0, int64(t))
}

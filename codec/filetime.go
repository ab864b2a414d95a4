package codec

import "time"

// FILETIME is 100-nanosecond ticks since 1601-01-01 UTC. The engine keeps
// request/response timestamps as the raw 64-bit value; conversion to
// wall-clock time is provided for logging and the activation store.
const (
	epochAsFiletime       = 116444736000000000
	hundredsOfNanoseconds = 10000000
)

func FileTimeToTime(ft int64) time.Time {
	s := (ft - epochAsFiletime) / hundredsOfNanoseconds
	ns100 := (ft - epochAsFiletime) % hundredsOfNanoseconds
	return time.Unix(s, ns100*100).UTC()
}

func TimeToFileTime(t time.Time) int64 {
	return epochAsFiletime + t.Unix()*hundredsOfNanoseconds + int64(t.Nanosecond()/100)
}

package board

import (
	"strconv"
	"sync/atomic"
	"time"
)

var lastTimestamp int64

// nextTimestamp returns wall-clock nanoseconds, bumped when needed so that
// every call in the process gets a strictly larger value.
func nextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}

func newNoteID(ts int64) string {
	return "note-" + strconv.FormatInt(ts, 36)
}

func newSubTaskID() string {
	return "sub-" + strconv.FormatInt(nextTimestamp(), 36)
}

package threadloop

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID recovers the calling goroutine's runtime id by parsing the
// header line of its own stack trace ("goroutine 123 [running]:"). Go
// deliberately exposes no goroutine-identity API; this is the standard
// workaround used by goroutine-local-storage libraries, and is the
// closest Go equivalent to the original's GPrivate thread-local slot
// used to recover the owning loop inside the poll override (design note
// §9) — here it grounds InThread's "am I the worker goroutine" check
// instead, since the poll override itself needs no such trick (the poll
// closure captures its ThreadLoop directly, the preferred option §9
// calls out).
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

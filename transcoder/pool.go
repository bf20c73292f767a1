package transcoder

import "sync"

const (
	poolMaxCap64  = 1024 // max uint64 elements
	poolInitCap64 = 16
)

// uint64 buffer pool for flat words
var buf64Pool = sync.Pool{
	New: func() any {
		buf := make([]uint64, 0, poolInitCap64)
		return &buf
	},
}

// GetFlat borrows an empty word buffer. Return it with PutFlat.
func GetFlat() *[]uint64 {
	return buf64Pool.Get().(*[]uint64)
}

// PutFlat returns a buffer taken from GetFlat.
func PutFlat(buf *[]uint64) {
	if buf == nil || cap(*buf) > poolMaxCap64 {
		return
	}
	*buf = (*buf)[:0]
	buf64Pool.Put(buf)
}

package arena

import "sync"

// Locked serializes every operation on an underlying arena.
//
// Individual operations are atomic, but a boundary call spans many of them.
// Use Do to hold the lock across a whole call and its post-return.
type Locked struct {
	a  Arena
	mu sync.Mutex
}

// Synchronized wraps a for use from multiple goroutines.
func Synchronized(a Arena) *Locked {
	return &Locked{a: a}
}

// Do runs fn with exclusive access to the underlying arena.
func (l *Locked) Do(fn func(Arena) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.a)
}

func (l *Locked) Alloc(size, align uint32) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Alloc(size, align)
}

func (l *Locked) Free(ptr, size, align uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.a.Free(ptr, size, align)
}

func (l *Locked) Grow(ptr, oldSize, align, newSize uint32) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Grow(ptr, oldSize, align, newSize)
}

// Read copies the bytes out, since a view could be invalidated by another
// goroutine as soon as the lock is released.
func (l *Locked) Read(offset, length uint32) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := l.a.Read(offset, length)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), data...), nil
}

func (l *Locked) Write(offset uint32, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.Write(offset, data)
}

func (l *Locked) ReadU8(offset uint32) (uint8, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.ReadU8(offset)
}

func (l *Locked) ReadU16(offset uint32) (uint16, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.ReadU16(offset)
}

func (l *Locked) ReadU32(offset uint32) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.ReadU32(offset)
}

func (l *Locked) ReadU64(offset uint32) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.ReadU64(offset)
}

func (l *Locked) WriteU8(offset uint32, value uint8) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.WriteU8(offset, value)
}

func (l *Locked) WriteU16(offset uint32, value uint16) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.WriteU16(offset, value)
}

func (l *Locked) WriteU32(offset uint32, value uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.WriteU32(offset, value)
}

func (l *Locked) WriteU64(offset uint32, value uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.a.WriteU64(offset, value)
}

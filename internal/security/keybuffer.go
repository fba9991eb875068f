package security

import "sync"

// KeyBuffer owns reconstructed key material for the length of one operation.
// Release zeroes the bytes and is safe to call more than once; callers defer it
// right after acquiring the buffer so panics and early returns still wipe.
type KeyBuffer struct {
	mu   sync.Mutex
	data []byte
}

// NewKeyBuffer takes ownership of data. The caller must not keep other references.
func NewKeyBuffer(data []byte) *KeyBuffer {
	return &KeyBuffer{data: data}
}

// Use runs fn with the live bytes. fn must not retain the slice.
func (b *KeyBuffer) Use(fn func(key []byte) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return ErrReleased
	}
	return fn(b.data)
}

// Release wipes and drops the bytes.
func (b *KeyBuffer) Release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.data)
	b.data = nil
}

// Released reports whether Release has run.
func (b *KeyBuffer) Released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.data == nil
}

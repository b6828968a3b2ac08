package wire

import "sync"

// MessageBuffer owns a zero-initialized byte array sized to the required
// bit count, rounded up to the byte (spec §4.2).
type MessageBuffer struct {
	data []byte
}

// NewMessageBuffer allocates a buffer holding at least bitCount bits.
func NewMessageBuffer(bitCount int) *MessageBuffer {
	return &MessageBuffer{data: make([]byte, RequiredBytes(bitCount))}
}

// Bytes returns the owned storage.
func (b *MessageBuffer) Bytes() []byte { return b.data }

// EncodedMessageBuffer bundles an owned MessageBuffer with a BitView
// positioned at the first unused bit, so the encoded size can be computed
// as View.BitPosition() (spec §4.2).
type EncodedMessageBuffer struct {
	buffer *MessageBuffer
	View   *BitView

	mu       sync.Mutex
	released bool
	onFree   func([]byte)
}

// NewEncodedMessageBuffer allocates a buffer of bitCount usable bits and
// positions a BitView over the whole thing, ready for packing.
func NewEncodedMessageBuffer(bitCount int) *EncodedMessageBuffer {
	buf := NewMessageBuffer(bitCount)
	return &EncodedMessageBuffer{
		buffer: buf,
		View:   NewView(buf.Bytes(), bitCount),
	}
}

// SizeInBits returns the number of bits actually packed so far.
func (e *EncodedMessageBuffer) SizeInBits() int { return e.View.BitPosition() }

// SizeInBytes returns the byte length that must be transmitted to carry
// SizeInBits() bits.
func (e *EncodedMessageBuffer) SizeInBytes() int { return RequiredBytes(e.SizeInBits()) }

// Bytes returns the prefix of the owned buffer that has been packed.
func (e *EncodedMessageBuffer) Bytes() []byte { return e.buffer.Bytes()[:e.SizeInBytes()] }

// OnFree registers a callback invoked exactly once when the transport layer
// releases this buffer back to the sender. The callback may run on the
// transport's own goroutine (spec §4.2: "the callback can run on the
// transport thread"), so it must not assume any particular caller.
func (e *EncodedMessageBuffer) OnFree(fn func(released []byte)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onFree = fn
}

// Release hands ownership of the bytes to the transport. It is safe to call
// Release concurrently from multiple goroutines; only the first call runs
// the registered callback.
func (e *EncodedMessageBuffer) Release() {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return
	}
	e.released = true
	cb := e.onFree
	data := e.buffer.Bytes()
	e.mu.Unlock()

	if cb != nil {
		cb(data)
	}
}

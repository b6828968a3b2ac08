package wire

import (
	"math"

	"github.com/google/uuid"
)

// FlagScope scopes which fields of a value participate in compression, so
// the same Go type can have different wire projections depending on
// direction (spec §4.1: "SentWithNetworkedFunctions", "PropagateClientToHost").
type FlagScope uint8

const (
	// ScopeFunctionArguments projects a value as it travels inside a
	// networked function call's argument block.
	ScopeFunctionArguments FlagScope = 1 << iota
	// ScopePropagateClientToHost projects a value as it travels from client
	// to host inside a property-stream message.
	ScopePropagateClientToHost
	// ScopePropagateHostToClient projects a value as it travels from host
	// to client inside a property-stream message.
	ScopePropagateHostToClient
)

// Has reports whether scope s includes flag f.
func (s FlagScope) Has(f FlagScope) bool { return s&f != 0 }

// Fixed-size primitive bit widths used throughout the protocol.
const (
	BitsBool    = 1
	BitsUint8   = 8
	BitsUint16  = 16
	BitsUint32  = 32
	BitsUint64  = 64
	BitsFloat32 = 32
	BitsGUID    = 128

	// BitsSequenceNumber is the width of a SendWindow sequence number
	// (spec §3: "16-bit monotonic ... outbound counter").
	BitsSequenceNumber = 16
)

// PackBool/UnpackBool compress a single boolean as one bit.
func PackBool(v *BitView, value bool) bool {
	var b uint64
	if value {
		b = 1
	}
	return v.PackAndSkip(b, BitsBool)
}

func UnpackBool(v *BitView) (bool, bool) {
	b, ok := v.UnpackAndSkip(BitsBool)
	return b != 0, ok
}

// PackUint32/UnpackUint32 compress a fixed 32-bit unsigned integer.
func PackUint32(v *BitView, value uint32) bool {
	return v.PackAndSkip(uint64(value), BitsUint32)
}

func UnpackUint32(v *BitView) (uint32, bool) {
	u, ok := v.UnpackAndSkip(BitsUint32)
	return uint32(u), ok
}

// PackUint16/UnpackUint16 compress a fixed 16-bit unsigned integer.
func PackUint16(v *BitView, value uint16) bool {
	return v.PackAndSkip(uint64(value), BitsUint16)
}

func UnpackUint16(v *BitView) (uint16, bool) {
	u, ok := v.UnpackAndSkip(BitsUint16)
	return uint16(u), ok
}

// PackUint64/UnpackUint64 compress a fixed 64-bit unsigned integer, used for
// nanosecond timestamps and signed offsets (bit-reinterpreted).
func PackUint64(v *BitView, value uint64) bool {
	return v.PackAndSkip(value, BitsUint64)
}

func UnpackUint64(v *BitView) (uint64, bool) {
	return v.UnpackAndSkip(BitsUint64)
}

// PackInt64/UnpackInt64 compress a signed 64-bit integer (time offsets,
// spec §4.8) by reinterpreting its bits.
func PackInt64(v *BitView, value int64) bool {
	return PackUint64(v, uint64(value))
}

func UnpackInt64(v *BitView) (int64, bool) {
	u, ok := UnpackUint64(v)
	return int64(u), ok
}

// PackFloat32/UnpackFloat32 compress an IEEE-754 float32.
func PackFloat32(v *BitView, value float32) bool {
	return v.PackAndSkip(uint64(math.Float32bits(value)), BitsFloat32)
}

func UnpackFloat32(v *BitView) (float32, bool) {
	u, ok := v.UnpackAndSkip(BitsFloat32)
	return math.Float32frombits(uint32(u)), ok
}

// PackGUID/UnpackGUID compress a 128-bit GUID as two 64-bit halves.
func PackGUID(v *BitView, value uuid.UUID) bool {
	hi := uint64(0)
	lo := uint64(0)
	for i := range 8 {
		hi |= uint64(value[i]) << uint(8*i)
	}
	for i := range 8 {
		lo |= uint64(value[8+i]) << uint(8*i)
	}
	if !v.PackAndSkip(hi, 64) {
		return false
	}
	return v.PackAndSkip(lo, 64)
}

func UnpackGUID(v *BitView) (uuid.UUID, bool) {
	var out uuid.UUID
	hi, ok := v.UnpackAndSkip(64)
	if !ok {
		return out, false
	}
	lo, ok := v.UnpackAndSkip(64)
	if !ok {
		return out, false
	}
	for i := range 8 {
		out[i] = byte(hi >> uint(8*i))
	}
	for i := range 8 {
		out[8+i] = byte(lo >> uint(8*i))
	}
	return out, true
}

// MaxDynamicStringBytes bounds the length of a wire-encoded string to keep
// a malformed length prefix from causing an unbounded allocation.
const MaxDynamicStringBytes = 1<<BitsStringLengthPrefix - 1

// BitsStringLengthPrefix is the width of the dynamic string's byte-length
// prefix.
const BitsStringLengthPrefix = 16

// DynamicStringBits returns the number of bits PackString would consume for
// s: a 16-bit length prefix followed by the UTF-8 bytes.
func DynamicStringBits(s string) int {
	return BitsStringLengthPrefix + len(s)*8
}

// PackString compresses a UTF-8 string as a 16-bit byte-length prefix
// followed by its raw bytes.
func PackString(v *BitView, s string) bool {
	if len(s) > MaxDynamicStringBytes {
		return false
	}
	if !v.PackAndSkip(uint64(len(s)), BitsStringLengthPrefix) {
		return false
	}
	for i := range len(s) {
		if !v.PackAndSkip(uint64(s[i]), BitsUint8) {
			return false
		}
	}
	return true
}

// UnpackString decompresses a string packed by PackString.
func UnpackString(v *BitView) (string, bool) {
	n, ok := v.UnpackAndSkip(BitsStringLengthPrefix)
	if !ok || n > MaxDynamicStringBytes {
		return "", false
	}
	buf := make([]byte, n)
	for i := range buf {
		b, ok := v.UnpackAndSkip(BitsUint8)
		if !ok {
			return "", false
		}
		buf[i] = byte(b)
	}
	return string(buf), true
}

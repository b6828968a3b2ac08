package wire

import "errors"

// ErrOutOfBits is returned when a pack/unpack operation would read or write
// past the end of the view.
var ErrOutOfBits = errors.New("wire: out of bits")

// ErrCorrupt is returned when a decoded message leaves more than the
// permitted trailing padding in the final byte (spec invariant: at most 7
// unused bits after a well-formed message).
var ErrCorrupt = errors.New("wire: corrupt message")

// BitView is a bit-granular cursor over a byte buffer. The same type backs
// both the "mutable" writer role and the "const" reader role described by
// the spec's BitView/ConstBitView split -- Go slices have no const
// qualifier, so the role is a matter of which methods the caller invokes,
// not a distinct type.
type BitView struct {
	buf    []byte
	bitLen int
	bitPos int
}

// NewView wraps buf as a BitView with bitLen usable bits, starting at bit 0.
// bitLen may be less than len(buf)*8 to expose only a prefix of the buffer.
func NewView(buf []byte, bitLen int) *BitView {
	return &BitView{buf: buf, bitLen: bitLen}
}

// Bytes returns the underlying buffer.
func (v *BitView) Bytes() []byte { return v.buf }

// BitLen returns the total number of usable bits in the view.
func (v *BitView) BitLen() int { return v.bitLen }

// BitPosition returns the current cursor position in bits.
func (v *BitView) BitPosition() int { return v.bitPos }

// BitsRemaining returns the number of unread/unwritten bits left in the view.
func (v *BitView) BitsRemaining() int { return v.bitLen - v.bitPos }

// Abort zeroes the view so callers downstream observe "nothing left to
// read" -- the receiver's standard response to a decode failure partway
// through a datagram (spec §4.1: "receiver resets view to empty to abort
// the whole datagram").
func (v *BitView) Abort() {
	v.bitLen = 0
	v.bitPos = 0
}

// Clone returns an independent cursor over the same underlying bytes,
// positioned identically to v. Used to pre-validate a message (peeking its
// header and bound-object id) without consuming the original view, e.g.
// forwarding's PreprocessMessage pass (spec §4.7 step 2).
func (v *BitView) Clone() *BitView {
	return &BitView{buf: v.buf, bitLen: v.bitLen, bitPos: v.bitPos}
}

// AtByteBoundary reports whether the cursor sits on a byte boundary.
func (v *BitView) AtByteBoundary() bool { return v.bitPos%8 == 0 }

// TrailingPaddingValid reports whether at most 7 unused bits remain, i.e.
// the cursor has consumed everything except permitted byte-alignment
// padding (spec §4.1 invariant).
func (v *BitView) TrailingPaddingValid() bool {
	remaining := v.BitsRemaining()
	return remaining >= 0 && remaining < 8
}

// PackAndSkip writes the low bitCount bits of value, little-endian bit
// order, advancing the cursor. Returns false (without partially advancing)
// if the view does not have bitCount bits left.
func (v *BitView) PackAndSkip(value uint64, bitCount int) bool {
	if bitCount < 0 || bitCount > 64 {
		return false
	}
	if v.BitsRemaining() < bitCount {
		return false
	}

	for i := range bitCount {
		bit := (value >> uint(i)) & 1
		pos := v.bitPos + i
		byteIdx := pos / 8
		bitIdx := uint(pos % 8)
		if bit != 0 {
			v.buf[byteIdx] |= 1 << bitIdx
		} else {
			v.buf[byteIdx] &^= 1 << bitIdx
		}
	}

	v.bitPos += bitCount
	return true
}

// UnpackAndSkip reads bitCount bits, little-endian bit order, advancing the
// cursor. The second return is false if the view does not have bitCount
// bits left; the value is then meaningless and the caller must abort.
func (v *BitView) UnpackAndSkip(bitCount int) (uint64, bool) {
	if bitCount < 0 || bitCount > 64 {
		return 0, false
	}
	if v.BitsRemaining() < bitCount {
		return 0, false
	}

	var value uint64
	for i := range bitCount {
		pos := v.bitPos + i
		byteIdx := pos / 8
		bitIdx := uint(pos % 8)
		bit := (v.buf[byteIdx] >> bitIdx) & 1
		value |= uint64(bit) << uint(i)
	}

	v.bitPos += bitCount
	return value, true
}

// SkipToByteBoundary advances the cursor to the next byte boundary without
// reading or writing. Used when a section must be byte-aligned.
func (v *BitView) SkipToByteBoundary() {
	if rem := v.bitPos % 8; rem != 0 {
		v.bitPos += 8 - rem
	}
}

// RequiredBytes rounds a bit count up to the containing byte count.
func RequiredBytes(bitCount int) int {
	return (bitCount + 7) / 8
}

// BitsForMaxValue returns the number of bits needed to represent values in
// [0, maxValue] inclusive (ceil(log2(maxValue+1))).
func BitsForMaxValue(maxValue uint64) int {
	if maxValue == 0 {
		return 1
	}
	bits := 0
	for v := maxValue; v > 0; v >>= 1 {
		bits++
	}
	return bits
}

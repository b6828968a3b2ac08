package propstream

import (
	"math/bits"

	"github.com/nginetechnologies/sceneri-core-sub009/internal/msgtype"
)

// maskWords sizes a PropertyMask to cover msgtype.MaxPropertyCount bits.
const maskWords = (msgtype.MaxPropertyCount + 63) / 64

// PropertyMask is the dirty-bit set for one bound object within one
// property-stream MessageType: bit i set means the property at local index
// i has changed since the last acknowledged send (spec §4.6 invariant:
// "the property's local index is its bit position in a PropertyMask").
type PropertyMask [maskWords]uint64

// Set marks property index i dirty.
func (m *PropertyMask) Set(i int) {
	m[i/64] |= 1 << uint(i%64)
}

// Clear unmarks property index i.
func (m *PropertyMask) Clear(i int) {
	m[i/64] &^= 1 << uint(i%64)
}

// IsSet reports whether property index i is dirty.
func (m PropertyMask) IsSet(i int) bool {
	return m[i/64]&(1<<uint(i%64)) != 0
}

// IsZero reports whether no property is dirty.
func (m PropertyMask) IsZero() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}

// Merge ORs other into m in place, used when the host relays a
// client-to-client property onto every other client's pending mask
// (spec §4.6 "record the (object, property-index) into every OTHER client's
// PerPeerPropagatedPropertyData").
func (m *PropertyMask) Merge(other PropertyMask) {
	for i := range m {
		m[i] |= other[i]
	}
}

// Bits returns the set property indices in ascending order.
func (m PropertyMask) Bits() []int {
	var out []int
	for word, w := range m {
		for w != 0 {
			bit := word*64 + bits.TrailingZeros64(w)
			out = append(out, bit)
			w &= w - 1
		}
	}
	return out
}

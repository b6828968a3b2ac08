// Package wire implements the bit-granular codec the networking core uses to
// pack messages onto the wire: a cursor over a byte buffer (BitView), primitive
// compression helpers (codec.go), and the owned buffer types that hand packed
// bytes off to a transport.
package wire

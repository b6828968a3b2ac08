package msgtype

import (
	"github.com/nginetechnologies/sceneri-core-sub009/internal/wire"
)

// Argument describes one positional argument of a registered function, or
// one propagated property's value type. It provides everything the codec
// needs to size, compress, decompress, and default-construct a value
// without runtime reflection (spec §4.1, §9 "Reflection dependency").
type Argument interface {
	// Name identifies the argument type for logging and registration
	// messages.
	Name() string

	// Align is the byte alignment required when this value is placed into a
	// decoded argument buffer (spec §4.3 step 5).
	Align() int

	// Size is the decoded (uncompressed) value's size in bytes within the
	// argument buffer.
	Size() int

	// FixedBits returns the compressed bit width under scope, or -1 if the
	// type is dynamically sized under that scope (spec §3, §4.1).
	FixedBits(scope wire.FlagScope) int

	// DynamicBits returns the exact compressed bit width value would take
	// under scope. Only called when FixedBits returns -1.
	DynamicBits(value any, scope wire.FlagScope) int

	// Compress packs value into v under scope.
	Compress(v *wire.BitView, value any, scope wire.FlagScope) bool

	// Decompress unpacks a value from v under scope.
	Decompress(v *wire.BitView, scope wire.FlagScope) (any, bool)

	// Default returns the zero value for this argument type.
	Default() any
}

// --- Built-in argument types -------------------------------------------------

// Int32Arg is a fixed-size signed 32-bit integer argument.
type Int32Arg struct{}

func (Int32Arg) Name() string                                    { return "int32" }
func (Int32Arg) Align() int                                      { return 4 }
func (Int32Arg) Size() int                                       { return 4 }
func (Int32Arg) FixedBits(wire.FlagScope) int                    { return wire.BitsUint32 }
func (Int32Arg) DynamicBits(any, wire.FlagScope) int              { return wire.BitsUint32 }
func (Int32Arg) Default() any                                     { return int32(0) }

func (Int32Arg) Compress(v *wire.BitView, value any, _ wire.FlagScope) bool {
	i, _ := value.(int32)
	return wire.PackUint32(v, uint32(i))
}

func (Int32Arg) Decompress(v *wire.BitView, _ wire.FlagScope) (any, bool) {
	u, ok := wire.UnpackUint32(v)
	return int32(u), ok
}

// BoolArg is a 1-bit boolean argument.
type BoolArg struct{}

func (BoolArg) Name() string                        { return "bool" }
func (BoolArg) Align() int                          { return 1 }
func (BoolArg) Size() int                           { return 1 }
func (BoolArg) FixedBits(wire.FlagScope) int        { return wire.BitsBool }
func (BoolArg) DynamicBits(any, wire.FlagScope) int { return wire.BitsBool }
func (BoolArg) Default() any                        { return false }

func (BoolArg) Compress(v *wire.BitView, value any, _ wire.FlagScope) bool {
	b, _ := value.(bool)
	return wire.PackBool(v, b)
}

func (BoolArg) Decompress(v *wire.BitView, _ wire.FlagScope) (any, bool) {
	return wire.UnpackBool(v)
}

// Float32Arg is a fixed-size IEEE-754 float argument.
type Float32Arg struct{}

func (Float32Arg) Name() string                        { return "float32" }
func (Float32Arg) Align() int                          { return 4 }
func (Float32Arg) Size() int                           { return 4 }
func (Float32Arg) FixedBits(wire.FlagScope) int        { return wire.BitsFloat32 }
func (Float32Arg) DynamicBits(any, wire.FlagScope) int { return wire.BitsFloat32 }
func (Float32Arg) Default() any                        { return float32(0) }

func (Float32Arg) Compress(v *wire.BitView, value any, _ wire.FlagScope) bool {
	f, _ := value.(float32)
	return wire.PackFloat32(v, f)
}

func (Float32Arg) Decompress(v *wire.BitView, _ wire.FlagScope) (any, bool) {
	return wire.UnpackFloat32(v)
}

// Vector3 is a plain 3-float value used by propagated position/rotation
// properties (spec §8 scenario S3).
type Vector3 struct{ X, Y, Z float32 }

// Vector3Arg compresses a Vector3 as three fixed float32 fields.
type Vector3Arg struct{}

func (Vector3Arg) Name() string                        { return "vector3" }
func (Vector3Arg) Align() int                          { return 4 }
func (Vector3Arg) Size() int                           { return 12 }
func (Vector3Arg) FixedBits(wire.FlagScope) int        { return wire.BitsFloat32 * 3 }
func (Vector3Arg) DynamicBits(any, wire.FlagScope) int { return wire.BitsFloat32 * 3 }
func (Vector3Arg) Default() any                        { return Vector3{} }

func (Vector3Arg) Compress(v *wire.BitView, value any, _ wire.FlagScope) bool {
	vec, _ := value.(Vector3)
	return wire.PackFloat32(v, vec.X) && wire.PackFloat32(v, vec.Y) && wire.PackFloat32(v, vec.Z)
}

func (Vector3Arg) Decompress(v *wire.BitView, _ wire.FlagScope) (any, bool) {
	x, ok := wire.UnpackFloat32(v)
	if !ok {
		return nil, false
	}
	y, ok := wire.UnpackFloat32(v)
	if !ok {
		return nil, false
	}
	z, ok := wire.UnpackFloat32(v)
	if !ok {
		return nil, false
	}
	return Vector3{X: x, Y: y, Z: z}, true
}

// StringArg is a dynamically sized UTF-8 string argument (spec §4.1:
// "CalculateDynamicCompressedDataSize").
type StringArg struct{}

func (StringArg) Name() string                 { return "string" }
func (StringArg) Align() int                   { return 8 }
func (StringArg) Size() int                    { return 16 } // decoded as a Go string header-equivalent slot
func (StringArg) FixedBits(wire.FlagScope) int { return -1 }
func (StringArg) Default() any                 { return "" }

func (StringArg) DynamicBits(value any, _ wire.FlagScope) int {
	s, _ := value.(string)
	return wire.DynamicStringBits(s)
}

func (StringArg) Compress(v *wire.BitView, value any, _ wire.FlagScope) bool {
	s, _ := value.(string)
	return wire.PackString(v, s)
}

func (StringArg) Decompress(v *wire.BitView, _ wire.FlagScope) (any, bool) {
	return wire.UnpackString(v)
}

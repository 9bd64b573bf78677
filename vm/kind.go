package vm

import (
	"fmt"
	"go/types"
	"math"
)

// Kind is the basic type of a value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindString
	KindInt
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindUintptr
)

var kinds = [...]string{
	KindInvalid: "invalid",
	KindBool:    "bool",
	KindString:  "string",
	KindInt:     "int",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint:    "uint",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindUintptr: "uintptr",
}

// String returns the Go name of the kind.
func (k Kind) String() string {
	if int(k) < len(kinds) {
		return kinds[k]
	}
	return fmt.Sprintf("Kind<%d>", k)
}

// IsInteger returns true for the sized integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt && k <= KindUintptr
}

// IsSigned returns true for signed integer kinds.
func (k Kind) IsSigned() bool {
	return k >= KindInt && k <= KindInt64
}

// Width returns the bit width of an integer kind.
func (k Kind) Width() uint {
	switch k {
	case KindInt8, KindUint8:
		return Width8
	case KindInt16, KindUint16:
		return Width16
	case KindInt32, KindUint32:
		return Width32
	case KindInt, KindInt64, KindUint, KindUint64, KindUintptr:
		return Width64
	default:
		panic(fmt.Sprintf("width: non-integer kind: %s", k))
	}
}

// MinInt64 returns the smallest value of a signed kind, or zero.
func (k Kind) MinInt64() int64 {
	if !k.IsSigned() {
		return 0
	}
	return math.MinInt64 >> (64 - k.Width())
}

// MaxUint64 returns the largest value of the kind as raw bits.
func (k Kind) MaxUint64() uint64 {
	if k.IsSigned() {
		return bitmask(k.Width()) >> 1
	}
	return bitmask(k.Width())
}

// KindOf returns the kind of a Go type, looking through named types.
// Returns KindInvalid for anything that is not a boolean, string, or integer.
func KindOf(typ types.Type) Kind {
	basic, ok := typ.Underlying().(*types.Basic)
	if !ok {
		return KindInvalid
	}
	switch basic.Kind() {
	case types.Bool, types.UntypedBool:
		return KindBool
	case types.String, types.UntypedString:
		return KindString
	case types.Int, types.UntypedInt:
		return KindInt
	case types.Int8:
		return KindInt8
	case types.Int16:
		return KindInt16
	case types.Int32, types.UntypedRune:
		return KindInt32
	case types.Int64:
		return KindInt64
	case types.Uint:
		return KindUint
	case types.Uint8:
		return KindUint8
	case types.Uint16:
		return KindUint16
	case types.Uint32:
		return KindUint32
	case types.Uint64:
		return KindUint64
	case types.Uintptr:
		return KindUintptr
	default:
		return KindInvalid
	}
}

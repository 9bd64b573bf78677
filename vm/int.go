package vm

import (
	"fmt"
	"strconv"
)

// Standard widths.
const (
	Width8  = 8
	Width16 = 16
	Width32 = 32
	Width64 = 64
)

// Int represents a fixed-width integer. Bits holds the two's complement
// representation truncated to the kind's width; the kind decides whether the
// bits are read as signed.
type Int struct {
	Bits uint64
	Kind Kind
}

// NewInt returns an Int of the given kind, truncating v to its width.
func NewInt(v int64, kind Kind) Int {
	return Int{Bits: uint64(v) & bitmask(kind.Width()), Kind: kind}
}

// NewUint returns an Int of the given kind, truncating v to its width.
func NewUint(v uint64, kind Kind) Int {
	return Int{Bits: v & bitmask(kind.Width()), Kind: kind}
}

// Int64 returns the value sign-extended if the kind is signed.
func (x Int) Int64() int64 {
	if x.Kind.IsSigned() {
		return sext(x.Bits, x.Kind.Width())
	}
	return int64(x.Bits)
}

// Uint64 returns the raw bits.
func (x Int) Uint64() uint64 { return x.Bits }

// IsNegative returns true if the value is a negative signed integer.
func (x Int) IsNegative() bool {
	return x.Kind.IsSigned() && x.Int64() < 0
}

// String returns the decimal representation.
func (x Int) String() string {
	if x.Kind.IsSigned() {
		return strconv.FormatInt(x.Int64(), 10)
	}
	return strconv.FormatUint(x.Bits, 10)
}

// Add returns the sum of x and y.
func (x Int) Add(y Int) Int {
	assert(x.Kind == y.Kind, "add: kind mismatch: %s != %s", x.Kind, y.Kind)
	return NewUint(x.Bits+y.Bits, x.Kind)
}

// Sub returns the difference of x and y.
func (x Int) Sub(y Int) Int {
	assert(x.Kind == y.Kind, "sub: kind mismatch: %s != %s", x.Kind, y.Kind)
	return NewUint(x.Bits-y.Bits, x.Kind)
}

// Mul returns the product of x and y.
func (x Int) Mul(y Int) Int {
	assert(x.Kind == y.Kind, "mul: kind mismatch: %s != %s", x.Kind, y.Kind)
	return NewUint(x.Bits*y.Bits, x.Kind)
}

// Div returns the truncated quotient of x and y.
func (x Int) Div(y Int) (Int, error) {
	assert(x.Kind == y.Kind, "div: kind mismatch: %s != %s", x.Kind, y.Kind)
	if y.Bits == 0 {
		return Int{}, ErrDivideByZero
	}
	if !x.Kind.IsSigned() {
		return NewUint(x.Bits/y.Bits, x.Kind), nil
	}

	// Division of the most negative value by -1 overflows and wraps to itself.
	switch x.Kind.Width() {
	case Width8:
		return NewInt(int64(int8(x.Bits)/int8(y.Bits)), x.Kind), nil
	case Width16:
		return NewInt(int64(int16(x.Bits)/int16(y.Bits)), x.Kind), nil
	case Width32:
		return NewInt(int64(int32(x.Bits)/int32(y.Bits)), x.Kind), nil
	default:
		return NewInt(int64(x.Bits)/int64(y.Bits), x.Kind), nil
	}
}

// Rem returns the remainder of truncated division. The sign follows x.
func (x Int) Rem(y Int) (Int, error) {
	assert(x.Kind == y.Kind, "rem: kind mismatch: %s != %s", x.Kind, y.Kind)
	if y.Bits == 0 {
		return Int{}, ErrDivideByZero
	}
	if !x.Kind.IsSigned() {
		return NewUint(x.Bits%y.Bits, x.Kind), nil
	}

	switch x.Kind.Width() {
	case Width8:
		return NewInt(int64(int8(x.Bits)%int8(y.Bits)), x.Kind), nil
	case Width16:
		return NewInt(int64(int16(x.Bits)%int16(y.Bits)), x.Kind), nil
	case Width32:
		return NewInt(int64(int32(x.Bits)%int32(y.Bits)), x.Kind), nil
	default:
		return NewInt(int64(x.Bits)%int64(y.Bits), x.Kind), nil
	}
}

// And returns the bitwise AND of x and y.
func (x Int) And(y Int) Int {
	assert(x.Kind == y.Kind, "and: kind mismatch: %s != %s", x.Kind, y.Kind)
	return NewUint(x.Bits&y.Bits, x.Kind)
}

// Or returns the bitwise OR of x and y.
func (x Int) Or(y Int) Int {
	assert(x.Kind == y.Kind, "or: kind mismatch: %s != %s", x.Kind, y.Kind)
	return NewUint(x.Bits|y.Bits, x.Kind)
}

// Xor returns the bitwise XOR of x and y.
func (x Int) Xor(y Int) Int {
	assert(x.Kind == y.Kind, "xor: kind mismatch: %s != %s", x.Kind, y.Kind)
	return NewUint(x.Bits^y.Bits, x.Kind)
}

// AndNot returns the bit clear of x and y.
func (x Int) AndNot(y Int) Int {
	assert(x.Kind == y.Kind, "andnot: kind mismatch: %s != %s", x.Kind, y.Kind)
	return NewUint(x.Bits&^y.Bits, x.Kind)
}

// Shl returns x shifted left by n bits. The shift count may be of any
// integer kind but must not be negative.
func (x Int) Shl(n Int) (Int, error) {
	if n.IsNegative() {
		return Int{}, ErrNegativeShift
	}
	if n.Bits >= Width64 {
		return NewUint(0, x.Kind), nil
	}
	return NewUint(x.Bits<<n.Bits, x.Kind), nil
}

// Shr returns x shifted right by n bits. Signed values shift arithmetically.
func (x Int) Shr(n Int) (Int, error) {
	if n.IsNegative() {
		return Int{}, ErrNegativeShift
	}
	count := n.Bits
	if count >= Width64 {
		count = Width64 - 1
		if !x.Kind.IsSigned() {
			return NewUint(0, x.Kind), nil
		}
	}
	if x.Kind.IsSigned() {
		return NewInt(x.Int64()>>count, x.Kind), nil
	}
	return NewUint(x.Bits>>count, x.Kind), nil
}

// Neg returns the two's complement negation of x.
func (x Int) Neg() Int {
	return NewUint(-x.Bits, x.Kind)
}

// Not returns the bitwise complement of x.
func (x Int) Not() Int {
	return NewUint(^x.Bits, x.Kind)
}

// Cmp compares x and y and returns -1, 0, or +1.
func (x Int) Cmp(y Int) int {
	assert(x.Kind == y.Kind, "cmp: kind mismatch: %s != %s", x.Kind, y.Kind)
	if x.Kind.IsSigned() {
		a, b := x.Int64(), y.Int64()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	}
	switch {
	case x.Bits < y.Bits:
		return -1
	case x.Bits > y.Bits:
		return 1
	}
	return 0
}

// Convert returns x converted to kind. Signed sources are sign-extended and
// the result is truncated to the target width.
func (x Int) Convert(kind Kind) Int {
	if !kind.IsInteger() {
		panic(fmt.Sprintf("convert: non-integer kind: %s", kind))
	}
	if x.Kind.IsSigned() {
		return NewInt(x.Int64(), kind)
	}
	return NewUint(x.Bits, kind)
}

// sext sign-extends the low width bits of v.
func sext(v uint64, width uint) int64 {
	shift := 64 - width
	return int64(v<<shift) >> shift
}

func bitmask(width uint) uint64 {
	return (1 << width) - 1
}

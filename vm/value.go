package vm

import (
	"bytes"
	"fmt"
	"strconv"
)

// Value represents a runtime value of the interpreter.
type Value interface {
	String() string
	value()
}

func (Int) value()       {}
func (Bool) value()      {}
func (String) value()    {}
func (Tuple) value()     {}
func (None) value()      {}
func (Builtin) value()   {}
func (*Closure) value()  {}
func (*Cell) value()     {}
func (*Function) value() {}

// Bool represents a boolean value.
type Bool bool

// String returns "true" or "false".
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// String represents an immutable string value.
type String string

// String returns the quoted string.
func (s String) String() string { return strconv.Quote(string(s)) }

// Tuple represents the results of a multi-value return.
type Tuple []Value

// String returns the string representation of the tuple.
func (a Tuple) String() string {
	var buf bytes.Buffer
	buf.WriteString("(")
	for i, v := range a {
		if i != 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(v.String())
	}
	buf.WriteString(")")
	return buf.String()
}

// None is the result of a function without results.
type None struct{}

// String returns "none".
func (None) String() string { return "none" }

// Builtin represents a built-in function referenced by name.
type Builtin string

// String returns the builtin name.
func (b Builtin) String() string { return "builtin " + string(b) }

// Closure represents a function bound to captured values.
type Closure struct {
	Fn       *Function
	Bindings []Value
}

// String returns the string representation of the closure.
func (c *Closure) String() string {
	return fmt.Sprintf("closure %s%s", c.Fn.Code.Name, Tuple(c.Bindings))
}

// Cell is a mutable variable shared between a function and its closures.
type Cell struct {
	Value Value
}

// String returns the string representation of the cell.
func (c *Cell) String() string { return "cell(" + c.Value.String() + ")" }

// Zero returns the zero value of kind.
func Zero(kind Kind) (Value, bool) {
	switch {
	case kind == KindBool:
		return Bool(false), true
	case kind == KindString:
		return String(""), true
	case kind.IsInteger():
		return NewInt(0, kind), true
	default:
		return nil, false
	}
}

// Equal returns true if a and b are the same comparable value.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case Int:
		b, ok := b.(Int)
		return ok && a == b
	case Bool:
		b, ok := b.(Bool)
		return ok && a == b
	case String:
		b, ok := b.(String)
		return ok && a == b
	case None:
		_, ok := b.(None)
		return ok
	case Tuple:
		b, ok := b.(Tuple)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !Equal(a[i], b[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

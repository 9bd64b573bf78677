package bytecode

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrDecode is the base error for malformed instruction streams.
var ErrDecode = errors.New("bytecode: decode error")

// DecodeError reports the offset at which decoding failed.
type DecodeError struct {
	Offset int
	Reason string
}

// Error returns the error message.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("bytecode: decode error at offset %d: %s", e.Offset, e.Reason)
}

// Unwrap allows errors.Is(err, ErrDecode).
func (e *DecodeError) Unwrap() error { return ErrDecode }

func decodeErrorf(offset int, format string, args ...interface{}) error {
	return &DecodeError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Instruction is a single decoded instruction. Offset is the position of the
// first byte including any folded ExtendedArg prefixes and Size counts them.
type Instruction struct {
	Offset int
	Size   int
	Opcode Opcode
	Arg    uint32
	Kind   OperandKind
	Line   int

	// Value is the resolved operand: a constant, a name, a comparison
	// operator, a jump target offset, or the raw integer for OperandOther.
	Value interface{}
}

// Target returns the resolved jump target offset.
func (in *Instruction) Target() (int, bool) {
	if !in.Kind.IsJump() {
		return 0, false
	}
	return in.Value.(int), true
}

// String returns a single listing line for the instruction.
func (in *Instruction) String() string {
	if in.Kind == OperandNone {
		return fmt.Sprintf("%6d %s", in.Offset, in.Opcode)
	}
	var desc string
	switch in.Kind {
	case OperandRelativeJump, OperandAbsoluteJump:
		desc = fmt.Sprintf("to %d", in.Value)
	case OperandOther:
	default:
		desc = fmt.Sprintf("%v", in.Value)
	}
	if desc == "" {
		return fmt.Sprintf("%6d %-20s %d", in.Offset, in.Opcode, in.Arg)
	}
	return fmt.Sprintf("%6d %-20s %d (%s)", in.Offset, in.Opcode, in.Arg, desc)
}

type resolver func(code *Code, in *Instruction) (interface{}, error)

// resolvers maps each operand kind to its resolution rule.
var resolvers = [numOperandKinds]resolver{
	OperandNone: func(code *Code, in *Instruction) (interface{}, error) {
		return nil, nil
	},
	OperandConstant: func(code *Code, in *Instruction) (interface{}, error) {
		if int(in.Arg) >= len(code.Consts) {
			return nil, decodeErrorf(in.Offset, "constant index %d out of range (%d)", in.Arg, len(code.Consts))
		}
		return code.Consts[in.Arg], nil
	},
	OperandName: func(code *Code, in *Instruction) (interface{}, error) {
		return poolString(code.Names, "name", in)
	},
	OperandLocal: func(code *Code, in *Instruction) (interface{}, error) {
		return poolString(code.Varnames, "local", in)
	},
	OperandFree: func(code *Code, in *Instruction) (interface{}, error) {
		return poolString(code.Freevars, "free variable", in)
	},
	OperandCompare: func(code *Code, in *Instruction) (interface{}, error) {
		if int(in.Arg) >= len(CompareOps) {
			return nil, decodeErrorf(in.Offset, "comparison index %d out of range", in.Arg)
		}
		return CompareOps[in.Arg], nil
	},
	OperandRelativeJump: func(code *Code, in *Instruction) (interface{}, error) {
		return jumpTarget(code, in, in.Offset+int(in.Arg))
	},
	OperandAbsoluteJump: func(code *Code, in *Instruction) (interface{}, error) {
		return jumpTarget(code, in, int(in.Arg))
	},
	OperandOther: func(code *Code, in *Instruction) (interface{}, error) {
		return int(in.Arg), nil
	},
}

func poolString(pool []string, what string, in *Instruction) (interface{}, error) {
	if int(in.Arg) >= len(pool) {
		return nil, decodeErrorf(in.Offset, "%s index %d out of range (%d)", what, in.Arg, len(pool))
	}
	return pool[in.Arg], nil
}

func jumpTarget(code *Code, in *Instruction, target int) (interface{}, error) {
	if target < 0 || target >= len(code.Code) {
		return nil, decodeErrorf(in.Offset, "jump target %d outside code (%d bytes)", target, len(code.Code))
	}
	return target, nil
}

// Decode returns every instruction in code in program order. ExtendedArg
// prefixes are folded into the instruction they precede.
func Decode(code *Code) ([]Instruction, error) {
	b := code.Code
	if len(b)%2 != 0 {
		return nil, decodeErrorf(len(b)-1, "odd code length %d", len(b))
	}

	instrs := make([]Instruction, 0, len(b)/2)
	for i := 0; i < len(b); {
		start := i

		var ext uint32
		var n int
		for Opcode(b[i]) == ExtendedArg {
			if n == maxPrefixes {
				return nil, decodeErrorf(start, "more than %d EXTENDED_ARG prefixes", maxPrefixes)
			}
			ext = ext<<8 | uint32(b[i+1])
			n, i = n+1, i+2
			if i >= len(b) {
				return nil, decodeErrorf(start, "EXTENDED_ARG at end of code")
			}
		}

		op := Opcode(b[i])
		if !op.Valid() {
			return nil, decodeErrorf(i, "unknown opcode %d", b[i])
		}
		if !op.HasArg() && n > 0 {
			return nil, decodeErrorf(start, "EXTENDED_ARG before %s", op)
		}

		in := Instruction{
			Offset: start,
			Size:   i + 2 - start,
			Opcode: op,
			Kind:   op.OperandKind(),
			Line:   code.LineAt(start),
		}
		if op.HasArg() {
			in.Arg = ext<<8 | uint32(b[i+1])
		}

		v, err := resolvers[in.Kind](code, &in)
		if err != nil {
			return nil, err
		}
		in.Value = v

		instrs = append(instrs, in)
		i += 2
	}
	return instrs, nil
}

// Package bytecode implements the wordcode format that pathgen compiles Go
// functions into. Every instruction is a two byte unit: an opcode followed by
// an 8-bit operand. Operands wider than 8 bits are encoded with up to three
// ExtendedArg prefixes that supply the high-order bytes.
package bytecode

import "fmt"

// Opcode represents a single wordcode operation.
type Opcode byte

// Opcodes without an operand.
const (
	Nop Opcode = iota
	PopTop
	UnaryNegative
	UnaryNot
	UnaryInvert
	BinaryAdd
	BinarySubtract
	BinaryMultiply
	BinaryDivide
	BinaryModulo
	BinaryAnd
	BinaryOr
	BinaryXor
	BinaryLshift
	BinaryRshift
	BinaryAndNot
	ReturnValue
	RaiseVarargs
	LoadCell
	StoreCell
)

// HaveArgument is the first opcode that carries an operand.
const HaveArgument Opcode = 64

// Opcodes with an operand.
const (
	ExtendedArg Opcode = HaveArgument + iota
	LoadConst
	LoadGlobal
	LoadFast
	StoreFast
	LoadDeref
	CompareOp
	JumpForward
	JumpAbsolute
	PopJumpIfFalse
	PopJumpIfTrue
	CallFunction
	MakeClosure
	BuildTuple
	Extract
	Convert
	MakeCell
)

// OperandKind describes how an instruction's operand is resolved.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandConstant
	OperandName
	OperandLocal
	OperandFree
	OperandCompare
	OperandRelativeJump
	OperandAbsoluteJump
	OperandOther

	numOperandKinds
)

var operandKinds = [...]string{
	OperandNone:         "none",
	OperandConstant:     "constant",
	OperandName:         "name",
	OperandLocal:        "local",
	OperandFree:         "free",
	OperandCompare:      "compare",
	OperandRelativeJump: "relative-jump",
	OperandAbsoluteJump: "absolute-jump",
	OperandOther:        "other",
}

// String returns the name of the operand kind.
func (k OperandKind) String() string {
	if k < numOperandKinds {
		return operandKinds[k]
	}
	return fmt.Sprintf("OperandKind<%d>", k)
}

// IsJump returns true if the operand is a jump target.
func (k OperandKind) IsJump() bool {
	return k == OperandRelativeJump || k == OperandAbsoluteJump
}

// Comparison operators addressed by CompareOp operands.
const (
	CmpLT = iota
	CmpLE
	CmpEQ
	CmpNE
	CmpGT
	CmpGE
)

// CompareOps is the comparison operator table.
var CompareOps = [...]string{
	CmpLT: "<",
	CmpLE: "<=",
	CmpEQ: "==",
	CmpNE: "!=",
	CmpGT: ">",
	CmpGE: ">=",
}

// opcode flags.
const (
	flagTerminal    = 1 << iota // control never falls through
	flagConditional             // jump that may fall through
)

type opInfo struct {
	name  string
	kind  OperandKind
	flags uint8
}

var opcodes = map[Opcode]opInfo{
	Nop:            {"NOP", OperandNone, 0},
	PopTop:         {"POP_TOP", OperandNone, 0},
	UnaryNegative:  {"UNARY_NEGATIVE", OperandNone, 0},
	UnaryNot:       {"UNARY_NOT", OperandNone, 0},
	UnaryInvert:    {"UNARY_INVERT", OperandNone, 0},
	BinaryAdd:      {"BINARY_ADD", OperandNone, 0},
	BinarySubtract: {"BINARY_SUBTRACT", OperandNone, 0},
	BinaryMultiply: {"BINARY_MULTIPLY", OperandNone, 0},
	BinaryDivide:   {"BINARY_DIVIDE", OperandNone, 0},
	BinaryModulo:   {"BINARY_MODULO", OperandNone, 0},
	BinaryAnd:      {"BINARY_AND", OperandNone, 0},
	BinaryOr:       {"BINARY_OR", OperandNone, 0},
	BinaryXor:      {"BINARY_XOR", OperandNone, 0},
	BinaryLshift:   {"BINARY_LSHIFT", OperandNone, 0},
	BinaryRshift:   {"BINARY_RSHIFT", OperandNone, 0},
	BinaryAndNot:   {"BINARY_AND_NOT", OperandNone, 0},
	ReturnValue:    {"RETURN_VALUE", OperandNone, flagTerminal},
	RaiseVarargs:   {"RAISE_VARARGS", OperandNone, flagTerminal},
	LoadCell:       {"LOAD_CELL", OperandNone, 0},
	StoreCell:      {"STORE_CELL", OperandNone, 0},

	ExtendedArg:    {"EXTENDED_ARG", OperandOther, 0},
	LoadConst:      {"LOAD_CONST", OperandConstant, 0},
	LoadGlobal:     {"LOAD_GLOBAL", OperandName, 0},
	LoadFast:       {"LOAD_FAST", OperandLocal, 0},
	StoreFast:      {"STORE_FAST", OperandLocal, 0},
	LoadDeref:      {"LOAD_DEREF", OperandFree, 0},
	CompareOp:      {"COMPARE_OP", OperandCompare, 0},
	JumpForward:    {"JUMP_FORWARD", OperandRelativeJump, flagTerminal},
	JumpAbsolute:   {"JUMP_ABSOLUTE", OperandAbsoluteJump, flagTerminal},
	PopJumpIfFalse: {"POP_JUMP_IF_FALSE", OperandAbsoluteJump, flagConditional},
	PopJumpIfTrue:  {"POP_JUMP_IF_TRUE", OperandAbsoluteJump, flagConditional},
	CallFunction:   {"CALL_FUNCTION", OperandOther, 0},
	MakeClosure:    {"MAKE_CLOSURE", OperandName, 0},
	BuildTuple:     {"BUILD_TUPLE", OperandOther, 0},
	Extract:        {"EXTRACT", OperandOther, 0},
	Convert:        {"CONVERT", OperandOther, 0},
	MakeCell:       {"MAKE_CELL", OperandOther, 0},
}

// Valid returns true if op is a defined opcode.
func (op Opcode) Valid() bool {
	_, ok := opcodes[op]
	return ok
}

// String returns the mnemonic of the opcode.
func (op Opcode) String() string {
	if info, ok := opcodes[op]; ok {
		return info.name
	}
	return fmt.Sprintf("Opcode<%d>", op)
}

// OperandKind returns the argument class of the opcode.
func (op Opcode) OperandKind() OperandKind {
	return opcodes[op].kind
}

// HasArg returns true if the opcode takes an operand.
func (op Opcode) HasArg() bool {
	return op >= HaveArgument
}

// IsJump returns true if the opcode transfers control to an operand target.
func (op Opcode) IsJump() bool {
	return opcodes[op].kind.IsJump()
}

// IsTerminal returns true if control never falls through to the next instruction.
func (op Opcode) IsTerminal() bool {
	return opcodes[op].flags&flagTerminal != 0
}

// IsConditional returns true for jumps that fall through when not taken.
func (op Opcode) IsConditional() bool {
	return opcodes[op].flags&flagConditional != 0
}

// IsReturn returns true for the function return instruction.
func (op Opcode) IsReturn() bool {
	return op == ReturnValue
}

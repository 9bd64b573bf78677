package bytecode

import (
	"github.com/cockroachdb/errors"
)

// maxPrefixes is the number of ExtendedArg prefixes allowed per instruction.
const maxPrefixes = 3

var (
	// ErrUnboundLabel is returned when a jump references a label that was
	// never bound or is bound past the last instruction.
	ErrUnboundLabel = errors.New("bytecode: unbound label")

	// ErrBackwardRelativeJump is returned when a relative jump targets an
	// earlier instruction.
	ErrBackwardRelativeJump = errors.New("bytecode: relative jump must be forward")
)

// Label is a symbolic jump target resolved during assembly.
type Label int

type asmInstr struct {
	op    Opcode
	arg   uint32
	label Label // -1 if arg is literal
	line  int
}

// Assembler builds a Code object from a sequence of symbolic instructions.
// Jump operands are expressed as labels and resolved to offsets by Assemble,
// which also inserts the ExtendedArg prefixes required by wide operands.
type Assembler struct {
	code   Code
	instrs []asmInstr
	labels []int // label -> instruction index
	line   int

	consts map[interface{}]uint32
	names  map[string]uint32
	locals map[string]uint32
	frees  map[string]uint32
}

// NewAssembler returns a new instance of Assembler.
func NewAssembler(name, filename string, firstLine int) *Assembler {
	return &Assembler{
		code: Code{
			Name:      name,
			Filename:  filename,
			FirstLine: firstLine,
		},
		line:   firstLine,
		consts: make(map[interface{}]uint32),
		names:  make(map[string]uint32),
		locals: make(map[string]uint32),
		frees:  make(map[string]uint32),
	}
}

// SetArgCount sets the number of leading locals that hold arguments.
func (a *Assembler) SetArgCount(n int) { a.code.ArgCount = n }

// SetLine sets the source line attributed to subsequently emitted instructions.
func (a *Assembler) SetLine(line int) {
	if line > 0 {
		a.line = line
	}
}

// Const returns the pool index of v, adding it if necessary.
// Constants must be comparable.
func (a *Assembler) Const(v interface{}) uint32 {
	if i, ok := a.consts[v]; ok {
		return i
	}
	i := uint32(len(a.code.Consts))
	a.code.Consts = append(a.code.Consts, v)
	a.consts[v] = i
	return i
}

// Name returns the index of a global name, adding it if necessary.
func (a *Assembler) Name(s string) uint32 {
	return intern(&a.code.Names, a.names, s)
}

// Local returns the index of a local variable, adding it if necessary.
func (a *Assembler) Local(s string) uint32 {
	return intern(&a.code.Varnames, a.locals, s)
}

// Free returns the index of a free variable, adding it if necessary.
func (a *Assembler) Free(s string) uint32 {
	return intern(&a.code.Freevars, a.frees, s)
}

func intern(pool *[]string, m map[string]uint32, s string) uint32 {
	if i, ok := m[s]; ok {
		return i
	}
	i := uint32(len(*pool))
	*pool = append(*pool, s)
	m[s] = i
	return i
}

// NewLabel returns an unbound label.
func (a *Assembler) NewLabel() Label {
	a.labels = append(a.labels, -1)
	return Label(len(a.labels) - 1)
}

// Bind attaches l to the next emitted instruction.
func (a *Assembler) Bind(l Label) {
	assert(a.labels[l] == -1, "label %d bound twice", l)
	a.labels[l] = len(a.instrs)
}

// Len returns the number of emitted instructions.
func (a *Assembler) Len() int { return len(a.instrs) }

// Emit appends an instruction with a literal operand.
func (a *Assembler) Emit(op Opcode, arg uint32) {
	assert(op != ExtendedArg, "ExtendedArg is emitted by the assembler")
	assert(op.HasArg() || arg == 0, "%s takes no operand", op)
	a.instrs = append(a.instrs, asmInstr{op: op, arg: arg, label: -1, line: a.line})
}

// EmitJump appends a jump instruction targeting l.
func (a *Assembler) EmitJump(op Opcode, l Label) {
	assert(op.IsJump(), "%s is not a jump", op)
	a.instrs = append(a.instrs, asmInstr{op: op, label: l, line: a.line})
}

// Assemble resolves labels and encodes the instruction stream.
//
// Layout is iterated to a fixed point: widening one instruction can move a
// jump target, which can widen another jump. Sizes never shrink so the loop
// terminates.
func (a *Assembler) Assemble() (*Code, error) {
	for l, idx := range a.labels {
		if idx < 0 || idx >= len(a.instrs) {
			return nil, errors.Wrapf(ErrUnboundLabel, "label %d", l)
		}
	}

	sizes := make([]int, len(a.instrs))
	for i := range sizes {
		sizes[i] = 2
	}
	offsets := make([]int, len(a.instrs))

	args := make([]uint32, len(a.instrs))
	for {
		off := 0
		for i := range a.instrs {
			offsets[i] = off
			off += sizes[i]
		}

		changed := false
		for i, in := range a.instrs {
			arg := in.arg
			if in.label >= 0 {
				target := offsets[a.labels[in.label]]
				switch in.op.OperandKind() {
				case OperandRelativeJump:
					if target < offsets[i] {
						return nil, errors.Wrapf(ErrBackwardRelativeJump, "%s at instruction %d", in.op, i)
					}
					arg = uint32(target - offsets[i])
				default:
					arg = uint32(target)
				}
			}
			args[i] = arg

			if sz := 2 * (1 + prefixCount(arg)); sz > sizes[i] {
				sizes[i], changed = sz, true
			}
		}
		if !changed {
			break
		}
	}

	code := a.code
	if len(a.instrs) == 0 {
		return &code, nil
	}
	code.Code = make([]byte, 0, offsets[len(offsets)-1]+sizes[len(sizes)-1])
	line := -1
	for i, in := range a.instrs {
		if in.line != line {
			code.Lines = append(code.Lines, LineEntry{Offset: offsets[i], Line: in.line})
			line = in.line
		}

		// Sizes may exceed what the final operand needs. Pad with zero prefixes.
		n := sizes[i]/2 - 1
		for k := n; k > 0; k-- {
			code.Code = append(code.Code, byte(ExtendedArg), byte(args[i]>>(8*uint(k))))
		}
		code.Code = append(code.Code, byte(in.op), byte(args[i]))
	}
	return &code, nil
}

// prefixCount returns the number of ExtendedArg prefixes needed for arg.
func prefixCount(arg uint32) int {
	switch {
	case arg > 0xFFFFFF:
		return 3
	case arg > 0xFFFF:
		return 2
	case arg > 0xFF:
		return 1
	default:
		return 0
	}
}

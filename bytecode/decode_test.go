package bytecode_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
)

// MustAssemble assembles the instructions emitted by fn. Fatal on error.
func MustAssemble(tb testing.TB, fn func(a *bytecode.Assembler)) *bytecode.Code {
	tb.Helper()
	a := bytecode.NewAssembler("f", "f.go", 1)
	fn(a)
	code, err := a.Assemble()
	if err != nil {
		tb.Fatal(err)
	}
	return code
}

// MustDecode decodes code. Fatal on error.
func MustDecode(tb testing.TB, code *bytecode.Code) []bytecode.Instruction {
	tb.Helper()
	instrs, err := bytecode.Decode(code)
	if err != nil {
		tb.Fatal(err)
	}
	return instrs
}

func TestDecode(t *testing.T) {
	t.Run("OperandKinds", func(t *testing.T) {
		code := &bytecode.Code{
			Code: []byte{
				byte(bytecode.LoadConst), 1,
				byte(bytecode.LoadGlobal), 0,
				byte(bytecode.LoadFast), 1,
				byte(bytecode.LoadDeref), 0,
				byte(bytecode.CompareOp), bytecode.CmpGE,
				byte(bytecode.JumpForward), 4,
				byte(bytecode.PopJumpIfTrue), 2,
				byte(bytecode.CallFunction), 3,
				byte(bytecode.ReturnValue), 0,
			},
			Consts:   []interface{}{"a", 42},
			Names:    []string{"g"},
			Varnames: []string{"x", "y"},
			Freevars: []string{"z"},
		}

		instrs := MustDecode(t, code)
		type result struct {
			Offset int
			Kind   bytecode.OperandKind
			Value  interface{}
		}
		var got []result
		for _, in := range instrs {
			got = append(got, result{in.Offset, in.Kind, in.Value})
		}
		if diff := cmp.Diff([]result{
			{0, bytecode.OperandConstant, 42},
			{2, bytecode.OperandName, "g"},
			{4, bytecode.OperandLocal, "y"},
			{6, bytecode.OperandFree, "z"},
			{8, bytecode.OperandCompare, ">="},
			{10, bytecode.OperandRelativeJump, 14},
			{12, bytecode.OperandAbsoluteJump, 2},
			{14, bytecode.OperandOther, 3},
			{16, bytecode.OperandNone, nil},
		}, got); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ExtendedArg", func(t *testing.T) {
		code := &bytecode.Code{
			Code: []byte{
				byte(bytecode.ExtendedArg), 0x01,
				byte(bytecode.ExtendedArg), 0x02,
				byte(bytecode.BuildTuple), 0x03,
				byte(bytecode.Nop), 0,
			},
		}
		instrs := MustDecode(t, code)
		if got, exp := len(instrs), 2; got != exp {
			t.Fatalf("len=%d, expected %d", got, exp)
		}
		if in := instrs[0]; in.Offset != 0 || in.Size != 6 || in.Arg != 0x010203 || in.Value != 0x010203 {
			t.Fatalf("unexpected instruction: %+v", in)
		}
		if in := instrs[1]; in.Offset != 6 || in.Size != 2 {
			t.Fatalf("unexpected instruction: %+v", in)
		}
	})

	t.Run("RelativeJumpFromPrefixedOffset", func(t *testing.T) {
		code := &bytecode.Code{Code: make([]byte, 0x104)}
		code.Code[0], code.Code[1] = byte(bytecode.ExtendedArg), 0x01
		code.Code[2], code.Code[3] = byte(bytecode.JumpForward), 0x02
		instrs := MustDecode(t, code)
		if target, ok := instrs[0].Target(); !ok || target != 0x102 {
			t.Fatalf("target=%d, expected %d", target, 0x102)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		for _, tt := range []struct {
			name   string
			code   bytecode.Code
			offset int
		}{
			{"OddLength", bytecode.Code{Code: []byte{byte(bytecode.Nop), 0, byte(bytecode.Nop)}}, 2},
			{"TrailingExtendedArg", bytecode.Code{Code: []byte{byte(bytecode.Nop), 0, byte(bytecode.ExtendedArg), 1}}, 2},
			{"UnknownOpcode", bytecode.Code{Code: []byte{byte(bytecode.Nop), 0, 200, 0}}, 2},
			{"TooManyPrefixes", bytecode.Code{Code: []byte{
				byte(bytecode.ExtendedArg), 1,
				byte(bytecode.ExtendedArg), 1,
				byte(bytecode.ExtendedArg), 1,
				byte(bytecode.ExtendedArg), 1,
				byte(bytecode.BuildTuple), 1,
			}}, 0},
			{"PrefixedNoArg", bytecode.Code{Code: []byte{byte(bytecode.ExtendedArg), 1, byte(bytecode.PopTop), 0}}, 0},
			{"ConstantOutOfRange", bytecode.Code{Code: []byte{byte(bytecode.LoadConst), 1}, Consts: []interface{}{1}}, 0},
			{"NameOutOfRange", bytecode.Code{Code: []byte{byte(bytecode.LoadGlobal), 0}}, 0},
			{"CompareOutOfRange", bytecode.Code{Code: []byte{byte(bytecode.CompareOp), 6}}, 0},
			{"JumpOutOfRange", bytecode.Code{Code: []byte{byte(bytecode.JumpAbsolute), 2}}, 0},
		} {
			t.Run(tt.name, func(t *testing.T) {
				_, err := bytecode.Decode(&tt.code)
				if !errors.Is(err, bytecode.ErrDecode) {
					t.Fatalf("unexpected error: %v", err)
				}
				var e *bytecode.DecodeError
				if !errors.As(err, &e) {
					t.Fatalf("expected *DecodeError, got %T", err)
				} else if e.Offset != tt.offset {
					t.Fatalf("offset=%d, expected %d", e.Offset, tt.offset)
				}
			})
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if instrs := MustDecode(t, &bytecode.Code{}); len(instrs) != 0 {
			t.Fatalf("unexpected instructions: %v", instrs)
		}
	})
}

func TestAssembler(t *testing.T) {
	t.Run("Pools", func(t *testing.T) {
		code := MustAssemble(t, func(a *bytecode.Assembler) {
			a.Emit(bytecode.LoadConst, a.Const(int64(7)))
			a.Emit(bytecode.LoadConst, a.Const("s"))
			a.Emit(bytecode.LoadConst, a.Const(int64(7)))
			a.Emit(bytecode.StoreFast, a.Local("x"))
			a.Emit(bytecode.LoadGlobal, a.Name("g"))
			a.Emit(bytecode.ReturnValue, 0)
		})
		if diff := cmp.Diff([]interface{}{int64(7), "s"}, code.Consts); diff != "" {
			t.Fatal(diff)
		}
		instrs := MustDecode(t, code)
		if got, exp := instrs[2].Arg, uint32(0); got != exp {
			t.Fatalf("arg=%d, expected %d", got, exp)
		}
	})

	t.Run("ForwardAndBackwardJumps", func(t *testing.T) {
		code := MustAssemble(t, func(a *bytecode.Assembler) {
			top, end := a.NewLabel(), a.NewLabel()
			a.Bind(top)
			a.Emit(bytecode.LoadFast, a.Local("x"))
			a.EmitJump(bytecode.PopJumpIfFalse, end)
			a.EmitJump(bytecode.JumpAbsolute, top)
			a.Bind(end)
			a.Emit(bytecode.ReturnValue, 0)
		})
		instrs := MustDecode(t, code)
		if target, _ := instrs[1].Target(); target != 6 {
			t.Fatalf("target=%d, expected 6", target)
		}
		if target, _ := instrs[2].Target(); target != 0 {
			t.Fatalf("target=%d, expected 0", target)
		}
	})

	// A long body pushes the jump distance past 8 bits, which widens the jump
	// and in turn moves its target.
	t.Run("Widening", func(t *testing.T) {
		code := MustAssemble(t, func(a *bytecode.Assembler) {
			end := a.NewLabel()
			a.EmitJump(bytecode.JumpForward, end)
			for i := 0; i < 200; i++ {
				a.Emit(bytecode.Nop, 0)
			}
			a.Bind(end)
			a.Emit(bytecode.ReturnValue, 0)
		})
		instrs := MustDecode(t, code)
		if got, exp := instrs[0].Size, 4; got != exp {
			t.Fatalf("size=%d, expected %d", got, exp)
		}
		last := instrs[len(instrs)-1]
		if target, _ := instrs[0].Target(); target != last.Offset {
			t.Fatalf("target=%d, expected %d", target, last.Offset)
		}
		if got, exp := last.Offset, 4+400; got != exp {
			t.Fatalf("offset=%d, expected %d", got, exp)
		}
	})

	t.Run("WideOperand", func(t *testing.T) {
		code := MustAssemble(t, func(a *bytecode.Assembler) {
			a.Emit(bytecode.BuildTuple, 0x01020304)
		})
		instrs := MustDecode(t, code)
		if in := instrs[0]; in.Size != 8 || in.Arg != 0x01020304 {
			t.Fatalf("unexpected instruction: %+v", in)
		}
	})

	t.Run("Lines", func(t *testing.T) {
		code := MustAssemble(t, func(a *bytecode.Assembler) {
			a.SetLine(10)
			a.Emit(bytecode.Nop, 0)
			a.Emit(bytecode.Nop, 0)
			a.SetLine(12)
			a.Emit(bytecode.ReturnValue, 0)
		})
		var lines []int
		for _, in := range MustDecode(t, code) {
			lines = append(lines, in.Line)
		}
		if diff := cmp.Diff([]int{10, 10, 12}, lines); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("ErrUnboundLabel", func(t *testing.T) {
		a := bytecode.NewAssembler("f", "f.go", 1)
		a.EmitJump(bytecode.JumpAbsolute, a.NewLabel())
		if _, err := a.Assemble(); !errors.Is(err, bytecode.ErrUnboundLabel) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ErrBackwardRelativeJump", func(t *testing.T) {
		a := bytecode.NewAssembler("f", "f.go", 1)
		top := a.NewLabel()
		a.Bind(top)
		a.Emit(bytecode.Nop, 0)
		a.EmitJump(bytecode.JumpForward, top)
		if _, err := a.Assemble(); !errors.Is(err, bytecode.ErrBackwardRelativeJump) {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestDisassemble(t *testing.T) {
	code := MustAssemble(t, func(a *bytecode.Assembler) {
		alt := a.NewLabel()
		a.SetLine(3)
		a.Emit(bytecode.LoadFast, a.Local("x"))
		a.EmitJump(bytecode.PopJumpIfFalse, alt)
		a.SetLine(4)
		a.Emit(bytecode.LoadConst, a.Const(1))
		a.Emit(bytecode.ReturnValue, 0)
		a.SetLine(6)
		a.Bind(alt)
		a.Emit(bytecode.LoadConst, a.Const(0))
		a.Emit(bytecode.ReturnValue, 0)
	})

	entries, err := bytecode.Disassemble(code)
	if err != nil {
		t.Fatal(err)
	}
	var kinds []bytecode.EntryKind
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	if diff := cmp.Diff([]bytecode.EntryKind{
		bytecode.EntryLine, bytecode.EntryInstr, bytecode.EntryInstr,
		bytecode.EntryLine, bytecode.EntryInstr, bytecode.EntryInstr,
		bytecode.EntryLine, bytecode.EntryLabel, bytecode.EntryInstr, bytecode.EntryInstr,
	}, kinds); diff != "" {
		t.Fatal(diff)
	}

	var buf bytes.Buffer
	if err := bytecode.WriteListing(&buf, code); err != nil {
		t.Fatal(err)
	} else if s := buf.String(); !strings.Contains(s, "L0:\n") || !strings.Contains(s, "POP_JUMP_IF_FALSE") {
		t.Fatalf("unexpected listing:\n%s", s)
	}
}

func TestOpcode(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		if s := bytecode.LoadConst.String(); s != "LOAD_CONST" {
			t.Fatalf("unexpected string: %s", s)
		}
		if s := bytecode.Opcode(250).String(); s != "Opcode<250>" {
			t.Fatalf("unexpected string: %s", s)
		}
	})
	t.Run("Terminal", func(t *testing.T) {
		for op, exp := range map[bytecode.Opcode]bool{
			bytecode.ReturnValue:    true,
			bytecode.RaiseVarargs:   true,
			bytecode.JumpForward:    true,
			bytecode.JumpAbsolute:   true,
			bytecode.PopJumpIfFalse: false,
			bytecode.LoadFast:       false,
		} {
			if got := op.IsTerminal(); got != exp {
				t.Fatalf("%s: terminal=%v, expected %v", op, got, exp)
			}
		}
	})
	t.Run("HasArg", func(t *testing.T) {
		for op := bytecode.Opcode(0); op < 255; op++ {
			if !op.Valid() {
				continue
			}
			if got, exp := op.HasArg(), op.OperandKind() != bytecode.OperandNone; got != exp {
				t.Fatalf("%s: HasArg=%v, operand kind %s", op, got, op.OperandKind())
			}
		}
	})
}

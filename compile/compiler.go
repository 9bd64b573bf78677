// Package compile lowers Go functions in SSA form into pathgen wordcode.
package compile

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"path/filepath"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
	"golang.org/x/tools/go/ssa"
)

// ErrUnsupported is returned for functions that use constructs the
// compiler cannot lower. Such functions are skipped.
var ErrUnsupported = errors.New("compile: unsupported construct")

func unsupported(format string, args ...interface{}) error {
	return errors.Wrapf(ErrUnsupported, format, args...)
}

// compiler holds the state for lowering a single function.
type compiler struct {
	fn   *ssa.Function
	fset *token.FileSet
	asm  *bytecode.Assembler

	labels []bytecode.Label // per block index
	slots  map[ssa.Value]uint32
	frees  map[*ssa.FreeVar]uint32
}

// CompileFunction lowers fn into a code object.
//
// Parameters occupy the leading locals, every other SSA value gets its own
// local slot, and blocks are laid out in index order. Phi nodes are resolved
// by moves on the incoming edges.
func CompileFunction(fset *token.FileSet, fn *ssa.Function) (*bytecode.Code, error) {
	if fn.Blocks == nil {
		return nil, unsupported("%s: no function body", fn.Name())
	} else if fn.Signature.Recv() != nil {
		return nil, unsupported("%s: method", fn.Name())
	} else if fn.Recover != nil {
		return nil, unsupported("%s: recover block", fn.Name())
	}

	pos := fset.Position(fn.Pos())
	c := &compiler{
		fn:    fn,
		fset:  fset,
		asm:   bytecode.NewAssembler(fn.Name(), filepath.Base(pos.Filename), pos.Line),
		slots: make(map[ssa.Value]uint32),
		frees: make(map[*ssa.FreeVar]uint32),
	}
	if err := c.compile(); err != nil {
		return nil, err
	}
	return c.asm.Assemble()
}

func (c *compiler) compile() error {
	used := make(map[string]struct{})
	local := func(v ssa.Value) {
		name := v.Name()
		for i := 1; ; i++ {
			if _, ok := used[name]; !ok {
				break
			}
			name = fmt.Sprintf("%s.%d", v.Name(), i)
		}
		used[name] = struct{}{}
		c.slots[v] = c.asm.Local(name)
	}

	for _, p := range c.fn.Params {
		if !supportedType(p.Type()) {
			return unsupported("%s: parameter %s of type %s", c.fn.Name(), p.Name(), p.Type())
		}
		local(p)
	}
	c.asm.SetArgCount(len(c.fn.Params))

	for _, fv := range c.fn.FreeVars {
		c.frees[fv] = c.asm.Free(fv.Name())
	}

	for _, b := range c.fn.Blocks {
		c.labels = append(c.labels, c.asm.NewLabel())
		for _, instr := range b.Instrs {
			if v, ok := instr.(ssa.Value); ok {
				local(v)
			}
		}
	}

	for _, b := range c.fn.Blocks {
		c.asm.Bind(c.labels[b.Index])
		for _, instr := range b.Instrs {
			c.setLine(instr)
			if err := c.compileInstr(b, instr); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) setLine(instr ssa.Instruction) {
	pos := instr.Pos()
	if instr, ok := instr.(*ssa.If); ok {
		pos = instr.Cond.Pos()
	}
	if pos.IsValid() {
		c.asm.SetLine(c.fset.Position(pos).Line)
	}
}

func (c *compiler) compileInstr(b *ssa.BasicBlock, instr ssa.Instruction) error {
	switch instr := instr.(type) {
	case *ssa.DebugRef, *ssa.Phi:
		return nil
	case *ssa.BinOp:
		return c.compileBinOp(instr)
	case *ssa.UnOp:
		return c.compileUnOp(instr)
	case *ssa.Convert:
		return c.compileConvert(instr)
	case *ssa.ChangeType:
		return c.compileCopy(instr, instr.X)
	case *ssa.MakeInterface:
		return c.compileCopy(instr, instr.X)
	case *ssa.Call:
		return c.compileCall(instr)
	case *ssa.Extract:
		return c.compileExtract(instr)
	case *ssa.Alloc:
		return c.compileAlloc(instr)
	case *ssa.Store:
		return c.compileStore(instr)
	case *ssa.MakeClosure:
		return c.compileMakeClosure(instr)
	case *ssa.If:
		return c.compileIf(b, instr)
	case *ssa.Jump:
		return c.compileJump(b)
	case *ssa.Return:
		return c.compileReturn(instr)
	case *ssa.Panic:
		if err := c.load(instr.X); err != nil {
			return err
		}
		c.asm.Emit(bytecode.RaiseVarargs, 0)
		return nil
	default:
		return unsupported("%s: instruction %T (%s)", c.fn.Name(), instr, instr)
	}
}

var binaryOpcodes = map[token.Token]bytecode.Opcode{
	token.ADD:     bytecode.BinaryAdd,
	token.SUB:     bytecode.BinarySubtract,
	token.MUL:     bytecode.BinaryMultiply,
	token.QUO:     bytecode.BinaryDivide,
	token.REM:     bytecode.BinaryModulo,
	token.AND:     bytecode.BinaryAnd,
	token.OR:      bytecode.BinaryOr,
	token.XOR:     bytecode.BinaryXor,
	token.SHL:     bytecode.BinaryLshift,
	token.SHR:     bytecode.BinaryRshift,
	token.AND_NOT: bytecode.BinaryAndNot,
}

var compareOps = map[token.Token]uint32{
	token.LSS: bytecode.CmpLT,
	token.LEQ: bytecode.CmpLE,
	token.EQL: bytecode.CmpEQ,
	token.NEQ: bytecode.CmpNE,
	token.GTR: bytecode.CmpGT,
	token.GEQ: bytecode.CmpGE,
}

func (c *compiler) compileBinOp(instr *ssa.BinOp) error {
	if !supportedType(instr.X.Type()) || !supportedType(instr.Y.Type()) {
		return unsupported("%s: binary operands %s", c.fn.Name(), instr)
	}
	if err := c.load(instr.X); err != nil {
		return err
	} else if err := c.load(instr.Y); err != nil {
		return err
	}

	if op, ok := binaryOpcodes[instr.Op]; ok {
		c.asm.Emit(op, 0)
	} else if cmp, ok := compareOps[instr.Op]; ok {
		c.asm.Emit(bytecode.CompareOp, cmp)
	} else {
		return unsupported("%s: binary operator %s", c.fn.Name(), instr.Op)
	}
	c.store(instr)
	return nil
}

func (c *compiler) compileUnOp(instr *ssa.UnOp) error {
	var op bytecode.Opcode
	switch instr.Op {
	case token.MUL:
		op = bytecode.LoadCell
	case token.SUB:
		op = bytecode.UnaryNegative
	case token.NOT:
		op = bytecode.UnaryNot
	case token.XOR:
		op = bytecode.UnaryInvert
	default:
		return unsupported("%s: unary operator %s", c.fn.Name(), instr.Op)
	}
	if err := c.load(instr.X); err != nil {
		return err
	}
	c.asm.Emit(op, 0)
	c.store(instr)
	return nil
}

func (c *compiler) compileConvert(instr *ssa.Convert) error {
	from, to := vm.KindOf(instr.X.Type()), vm.KindOf(instr.Type())
	if !from.IsInteger() || !to.IsInteger() {
		return unsupported("%s: conversion %s", c.fn.Name(), instr)
	}
	if err := c.load(instr.X); err != nil {
		return err
	}
	c.asm.Emit(bytecode.Convert, uint32(to))
	c.store(instr)
	return nil
}

func (c *compiler) compileCopy(instr ssa.Value, x ssa.Value) error {
	if err := c.load(x); err != nil {
		return err
	}
	c.store(instr)
	return nil
}

func (c *compiler) compileCall(instr *ssa.Call) error {
	common := instr.Common()
	if common.IsInvoke() {
		return unsupported("%s: interface method call %s", c.fn.Name(), instr)
	}

	switch callee := common.Value.(type) {
	case *ssa.Builtin:
		if callee.Name() != "len" || len(common.Args) != 1 || vm.KindOf(common.Args[0].Type()) != vm.KindString {
			return unsupported("%s: builtin call %s", c.fn.Name(), instr)
		}
		c.asm.Emit(bytecode.LoadGlobal, c.asm.Name(callee.Name()))
	default:
		if err := c.load(common.Value); err != nil {
			return err
		}
	}

	for _, arg := range common.Args {
		if err := c.load(arg); err != nil {
			return err
		}
	}
	c.asm.Emit(bytecode.CallFunction, uint32(len(common.Args)))

	if tuple, ok := instr.Type().(*types.Tuple); ok && tuple.Len() == 0 {
		c.asm.Emit(bytecode.PopTop, 0)
		return nil
	}
	c.store(instr)
	return nil
}

func (c *compiler) compileExtract(instr *ssa.Extract) error {
	if err := c.load(instr.Tuple); err != nil {
		return err
	}
	c.asm.Emit(bytecode.Extract, uint32(instr.Index))
	c.store(instr)
	return nil
}

// compileAlloc creates a cell for a variable captured by a closure.
func (c *compiler) compileAlloc(instr *ssa.Alloc) error {
	kind := vm.KindOf(instr.Type().Underlying().(*types.Pointer).Elem())
	if kind == vm.KindInvalid {
		return unsupported("%s: allocation of %s", c.fn.Name(), instr.Type())
	}
	c.asm.Emit(bytecode.MakeCell, uint32(kind))
	c.store(instr)
	return nil
}

func (c *compiler) compileStore(instr *ssa.Store) error {
	if err := c.load(instr.Addr); err != nil {
		return err
	} else if err := c.load(instr.Val); err != nil {
		return err
	}
	c.asm.Emit(bytecode.StoreCell, 0)
	return nil
}

func (c *compiler) compileMakeClosure(instr *ssa.MakeClosure) error {
	fn := instr.Fn.(*ssa.Function)
	for _, v := range instr.Bindings {
		if err := c.load(v); err != nil {
			return err
		}
	}
	c.asm.Emit(bytecode.MakeClosure, c.asm.Name(fn.Name()))
	c.store(instr)
	return nil
}

// compileIf emits a conditional branch. Phi moves for each successor are
// placed on the edge: the true moves follow the branch and the false moves
// go in a stub that the branch targets.
func (c *compiler) compileIf(b *ssa.BasicBlock, instr *ssa.If) error {
	then, els := b.Succs[0], b.Succs[1]
	if err := c.load(instr.Cond); err != nil {
		return err
	}

	target := c.labels[els.Index]
	stub := hasPhis(els)
	if stub {
		target = c.asm.NewLabel()
	}
	c.asm.EmitJump(bytecode.PopJumpIfFalse, target)

	if err := c.emitMoves(b, then); err != nil {
		return err
	}
	if stub || then.Index != b.Index+1 {
		c.emitJump(b, then)
	}

	if stub {
		c.asm.Bind(target)
		if err := c.emitMoves(b, els); err != nil {
			return err
		}
		if els.Index != b.Index+1 {
			c.emitJump(b, els)
		}
	}
	return nil
}

func (c *compiler) compileJump(b *ssa.BasicBlock) error {
	succ := b.Succs[0]
	if err := c.emitMoves(b, succ); err != nil {
		return err
	}
	if succ.Index != b.Index+1 {
		c.emitJump(b, succ)
	}
	return nil
}

func (c *compiler) compileReturn(instr *ssa.Return) error {
	switch len(instr.Results) {
	case 0:
		c.asm.Emit(bytecode.LoadConst, c.asm.Const(vm.None{}))
	case 1:
		if err := c.load(instr.Results[0]); err != nil {
			return err
		}
	default:
		for _, v := range instr.Results {
			if err := c.load(v); err != nil {
				return err
			}
		}
		c.asm.Emit(bytecode.BuildTuple, uint32(len(instr.Results)))
	}
	c.asm.Emit(bytecode.ReturnValue, 0)
	return nil
}

// emitJump emits an unconditional jump from block b to succ.
func (c *compiler) emitJump(b, succ *ssa.BasicBlock) {
	if succ.Index > b.Index {
		c.asm.EmitJump(bytecode.JumpForward, c.labels[succ.Index])
	} else {
		c.asm.EmitJump(bytecode.JumpAbsolute, c.labels[succ.Index])
	}
}

// emitMoves assigns the phi operands flowing along the edge from -> to.
// All operands are loaded before any phi is stored.
func (c *compiler) emitMoves(from, to *ssa.BasicBlock) error {
	idx := -1
	for i, pred := range to.Preds {
		if pred == from {
			idx = i
			break
		}
	}
	assert(idx >= 0, "%s: block %d is not a predecessor of block %d", c.fn.Name(), from.Index, to.Index)

	var phis []*ssa.Phi
	for _, instr := range to.Instrs {
		phi, ok := instr.(*ssa.Phi)
		if !ok {
			break
		}
		phis = append(phis, phi)
	}
	for _, phi := range phis {
		if err := c.load(phi.Edges[idx]); err != nil {
			return err
		}
	}
	for i := len(phis) - 1; i >= 0; i-- {
		c.asm.Emit(bytecode.StoreFast, c.slots[phis[i]])
	}
	return nil
}

func hasPhis(b *ssa.BasicBlock) bool {
	if len(b.Instrs) == 0 {
		return false
	}
	_, ok := b.Instrs[0].(*ssa.Phi)
	return ok
}

// load pushes the value of v onto the stack.
func (c *compiler) load(v ssa.Value) error {
	switch v := v.(type) {
	case *ssa.Const:
		value, err := c.constant(v)
		if err != nil {
			return err
		}
		c.asm.Emit(bytecode.LoadConst, c.asm.Const(value))
	case *ssa.Function:
		if v.Pkg != c.fn.Pkg || v.Signature.Recv() != nil {
			return unsupported("%s: reference to %s", c.fn.Name(), v.String())
		}
		c.asm.Emit(bytecode.LoadGlobal, c.asm.Name(v.Name()))
	case *ssa.FreeVar:
		c.asm.Emit(bytecode.LoadDeref, c.frees[v])
	case *ssa.Global, *ssa.Builtin:
		return unsupported("%s: reference to %s", c.fn.Name(), v.String())
	default:
		slot, ok := c.slots[v]
		if !ok {
			return unsupported("%s: value %s", c.fn.Name(), v.Name())
		}
		c.asm.Emit(bytecode.LoadFast, slot)
	}
	return nil
}

// store pops the top of the stack into the slot for v.
func (c *compiler) store(v ssa.Value) {
	c.asm.Emit(bytecode.StoreFast, c.slots[v])
}

// constant converts an SSA constant to a machine value.
func (c *compiler) constant(v *ssa.Const) (vm.Value, error) {
	if v.Value == nil {
		return nil, unsupported("%s: nil constant of type %s", c.fn.Name(), v.Type())
	}

	kind := vm.KindOf(v.Type())
	switch {
	case kind == vm.KindBool:
		return vm.Bool(constant.BoolVal(v.Value)), nil
	case kind == vm.KindString:
		return vm.String(constant.StringVal(v.Value)), nil
	case kind.IsSigned():
		i, exact := constant.Int64Val(v.Value)
		if !exact {
			return nil, unsupported("%s: inexact constant %s", c.fn.Name(), v.Value)
		}
		return vm.NewInt(i, kind), nil
	case kind.IsInteger():
		u, exact := constant.Uint64Val(v.Value)
		if !exact {
			return nil, unsupported("%s: inexact constant %s", c.fn.Name(), v.Value)
		}
		return vm.NewUint(u, kind), nil
	default:
		return nil, unsupported("%s: constant of type %s", c.fn.Name(), v.Type())
	}
}

// supportedType returns true for values the machine can represent.
func supportedType(typ types.Type) bool {
	if _, ok := typ.Underlying().(*types.Signature); ok {
		return true
	}
	return vm.KindOf(typ) != vm.KindInvalid
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

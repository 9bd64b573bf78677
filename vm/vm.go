// Package vm implements an interpreter for pathgen wordcode.
package vm

import (
	"context"
	"fmt"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/cockroachdb/errors"
)

// Default machine limits.
const (
	DefaultMaxSteps = 1 << 20
	DefaultMaxDepth = 256
)

// ctxCheckInterval is the number of steps between context checks.
const ctxCheckInterval = 256

var (
	// Runtime errors. These surface to callers as a *Panic.
	ErrDivideByZero  = errors.New("integer divide by zero")
	ErrNegativeShift = errors.New("negative shift amount")

	ErrStepLimit     = errors.New("vm: step limit exceeded")
	ErrStackOverflow = errors.New("vm: stack overflow")
	ErrIllegal       = errors.New("vm: illegal instruction")
	ErrUnbound       = errors.New("vm: unbound name")
)

// Panic is returned when the executing code raises. Runtime is set for
// faults detected by the machine, such as division by zero.
type Panic struct {
	Value   Value
	Runtime bool

	Func   string
	Offset int
	Line   int
}

// Error returns the panic message.
func (p *Panic) Error() string {
	if s, ok := p.Value.(String); ok {
		return "panic: " + string(s)
	}
	return "panic: " + p.Value.String()
}

// Resolver looks up global names referenced by LOAD_GLOBAL and MAKE_CLOSURE.
type Resolver interface {
	Resolve(name string) (Value, bool)
}

// Hook receives execution events for every frame of a single call.
type Hook interface {
	// OnLine is called before the first instruction of a new source line.
	OnLine(f *Frame, line int)

	// OnLabel is called when control arrives at a jump target.
	OnLabel(f *Frame, offset int)

	// OnInstr is called before each instruction executes.
	OnInstr(f *Frame, in *bytecode.Instruction)
}

// Globals is a Resolver backed by a map.
type Globals map[string]Value

// Resolve returns the value bound to name.
func (g Globals) Resolve(name string) (Value, bool) {
	v, ok := g[name]
	return v, ok
}

// builtins are resolved when a name is not found in the globals.
var builtins = map[string]Builtin{
	"len": "len",
}

// Machine executes functions. A machine holds no per-call state and may be
// used from multiple goroutines.
type Machine struct {
	Globals Resolver

	// Maximum instructions per call and maximum call depth.
	// Zero disables the limit.
	MaxSteps int
	MaxDepth int
}

// NewMachine returns a new instance of Machine with default limits.
func NewMachine(globals Resolver) *Machine {
	return &Machine{
		Globals:  globals,
		MaxSteps: DefaultMaxSteps,
		MaxDepth: DefaultMaxDepth,
	}
}

// Call invokes fn with args and returns its result. The hook, if non-nil,
// observes only this call. Raises are returned as a *Panic.
func (m *Machine) Call(ctx context.Context, fn Value, args []Value, hook Hook) (result Value, err error) {
	e := &execution{m: m, ctx: ctx, hook: hook}

	defer func() {
		if r := recover(); r != nil {
			err = errors.Wrapf(ErrIllegal, "%v", r)
		}
	}()

	if b, ok := fn.(Builtin); ok {
		return callBuiltin(b, args)
	}
	if err := e.call(nil, fn, args); err != nil {
		return nil, err
	}
	return e.run()
}

// execution is the state of a single Call.
type execution struct {
	m     *Machine
	ctx   context.Context
	hook  Hook
	frame *Frame
	steps int

	done   bool
	result Value
}

func (e *execution) run() (Value, error) {
	for !e.done {
		f := e.frame
		in := f.Instr()
		if in == nil {
			return nil, errors.Wrapf(ErrIllegal, "%s: end of code without return", f.fn.Code.Name)
		}

		e.steps++
		if e.m.MaxSteps > 0 && e.steps > e.m.MaxSteps {
			return nil, ErrStepLimit
		}
		if e.steps%ctxCheckInterval == 0 {
			if err := e.ctx.Err(); err != nil {
				return nil, err
			}
		}

		if e.hook != nil {
			if in.Line != f.line {
				f.line = in.Line
				e.hook.OnLine(f, in.Line)
			}
			if f.fn.IsTarget(in.Offset) {
				e.hook.OnLabel(f, in.Offset)
			}
			e.hook.OnInstr(f, in)
		}

		f.pc++
		if err := e.executeInstr(f, in); err != nil {
			return nil, e.annotate(f, in, err)
		}
	}
	return e.result, nil
}

// annotate converts runtime faults to panics and records the raise site.
func (e *execution) annotate(f *Frame, in *bytecode.Instruction, err error) error {
	if errors.Is(err, ErrDivideByZero) || errors.Is(err, ErrNegativeShift) {
		err = &Panic{Value: String("runtime error: " + err.Error()), Runtime: true}
	}

	var p *Panic
	if errors.As(err, &p) {
		if p.Func == "" {
			p.Func, p.Offset, p.Line = f.fn.Code.Name, in.Offset, in.Line
		}
		return p
	}
	return errors.Wrapf(err, "%s+%d", f.fn.Code.Name, in.Offset)
}

func (e *execution) executeInstr(f *Frame, in *bytecode.Instruction) error {
	switch in.Opcode {
	case bytecode.Nop:
		return nil
	case bytecode.PopTop:
		f.pop()
		return nil
	case bytecode.UnaryNegative, bytecode.UnaryNot, bytecode.UnaryInvert:
		return e.executeUnary(f, in)
	case bytecode.BinaryAdd, bytecode.BinarySubtract, bytecode.BinaryMultiply,
		bytecode.BinaryDivide, bytecode.BinaryModulo,
		bytecode.BinaryAnd, bytecode.BinaryOr, bytecode.BinaryXor, bytecode.BinaryAndNot,
		bytecode.BinaryLshift, bytecode.BinaryRshift:
		return e.executeBinary(f, in)
	case bytecode.ReturnValue:
		return e.executeReturn(f)
	case bytecode.RaiseVarargs:
		return &Panic{Value: f.pop()}
	case bytecode.LoadConst:
		return e.executeLoadConst(f, in)
	case bytecode.LoadGlobal:
		return e.executeLoadGlobal(f, in)
	case bytecode.LoadFast:
		v := f.locals[in.Arg]
		if v == nil {
			return errors.Wrapf(ErrUnbound, "local %s", in.Value)
		}
		f.push(v)
		return nil
	case bytecode.StoreFast:
		f.locals[in.Arg] = f.pop()
		return nil
	case bytecode.LoadDeref:
		if int(in.Arg) >= len(f.cells) {
			return errors.Wrapf(ErrUnbound, "free variable %s", in.Value)
		}
		f.push(f.cells[in.Arg])
		return nil
	case bytecode.CompareOp:
		return e.executeCompare(f, in)
	case bytecode.JumpForward, bytecode.JumpAbsolute:
		return e.jump(f, in)
	case bytecode.PopJumpIfFalse, bytecode.PopJumpIfTrue:
		return e.executeCondJump(f, in)
	case bytecode.CallFunction:
		return e.executeCallFunction(f, in)
	case bytecode.MakeClosure:
		return e.executeMakeClosure(f, in)
	case bytecode.BuildTuple:
		f.push(Tuple(f.popN(int(in.Arg))))
		return nil
	case bytecode.Extract:
		return e.executeExtract(f, in)
	case bytecode.Convert:
		return e.executeConvert(f, in)
	case bytecode.MakeCell:
		v, ok := Zero(Kind(in.Arg))
		if !ok {
			return errors.Wrapf(ErrIllegal, "cell of %s", Kind(in.Arg))
		}
		f.push(&Cell{Value: v})
		return nil
	case bytecode.LoadCell:
		c, ok := f.pop().(*Cell)
		if !ok {
			return errors.Wrapf(ErrIllegal, "%s: non-cell operand", in.Opcode)
		}
		f.push(c.Value)
		return nil
	case bytecode.StoreCell:
		v := f.pop()
		c, ok := f.pop().(*Cell)
		if !ok {
			return errors.Wrapf(ErrIllegal, "%s: non-cell operand", in.Opcode)
		}
		c.Value = v
		return nil
	default:
		return errors.Wrapf(ErrIllegal, "%s", in.Opcode)
	}
}

// call pushes a new frame for fn. Builtins are evaluated immediately.
func (e *execution) call(caller *Frame, fn Value, args []Value) error {
	var cells []Value
	switch v := fn.(type) {
	case *Function:
	case *Closure:
		fn, cells = v.Fn, v.Bindings
	case Builtin:
		result, err := callBuiltin(v, args)
		if err != nil {
			return err
		}
		caller.push(result)
		return nil
	default:
		return errors.Wrapf(ErrIllegal, "call of non-function %s", fn)
	}

	callee := fn.(*Function)
	if n := callee.Code.ArgCount; len(args) != n {
		return errors.Wrapf(ErrIllegal, "%s: expected %d arguments, got %d", callee.Code.Name, n, len(args))
	}
	if caller != nil && e.m.MaxDepth > 0 && caller.depth+1 >= e.m.MaxDepth {
		return ErrStackOverflow
	}
	e.frame = newFrame(caller, callee, args, cells)
	return nil
}

func callBuiltin(b Builtin, args []Value) (Value, error) {
	switch b {
	case "len":
		if len(args) != 1 {
			return nil, errors.Wrapf(ErrIllegal, "len: expected 1 argument, got %d", len(args))
		}
		s, ok := args[0].(String)
		if !ok {
			return nil, errors.Wrapf(ErrIllegal, "len of %s", args[0])
		}
		return NewInt(int64(len(s)), KindInt), nil
	default:
		return nil, errors.Wrapf(ErrUnbound, "builtin %s", string(b))
	}
}

func (e *execution) executeReturn(f *Frame) error {
	v := f.pop()
	e.frame = f.caller
	if e.frame == nil {
		e.done, e.result = true, v
		return nil
	}
	e.frame.push(v)
	return nil
}

func (e *execution) executeLoadConst(f *Frame, in *bytecode.Instruction) error {
	v, ok := in.Value.(Value)
	if !ok {
		return errors.Wrapf(ErrIllegal, "constant of type %T", in.Value)
	}
	f.push(v)
	return nil
}

func (e *execution) resolve(name string) (Value, error) {
	if e.m.Globals != nil {
		if v, ok := e.m.Globals.Resolve(name); ok {
			return v, nil
		}
	}
	if b, ok := builtins[name]; ok {
		return b, nil
	}
	return nil, errors.Wrapf(ErrUnbound, "global %s", name)
}

func (e *execution) executeLoadGlobal(f *Frame, in *bytecode.Instruction) error {
	v, err := e.resolve(in.Value.(string))
	if err != nil {
		return err
	}
	f.push(v)
	return nil
}

func (e *execution) executeUnary(f *Frame, in *bytecode.Instruction) error {
	switch x := f.pop().(type) {
	case Int:
		switch in.Opcode {
		case bytecode.UnaryNegative:
			f.push(x.Neg())
			return nil
		case bytecode.UnaryInvert:
			f.push(x.Not())
			return nil
		}
	case Bool:
		if in.Opcode == bytecode.UnaryNot {
			f.push(!x)
			return nil
		}
	}
	return errors.Wrapf(ErrIllegal, "%s: operand type mismatch", in.Opcode)
}

func (e *execution) executeBinary(f *Frame, in *bytecode.Instruction) error {
	y, x := f.pop(), f.pop()
	switch x := x.(type) {
	case Int:
		y, ok := y.(Int)
		if !ok {
			break
		}
		v, err := binaryInt(in.Opcode, x, y)
		if err != nil {
			return err
		}
		f.push(v)
		return nil
	case String:
		if y, ok := y.(String); ok && in.Opcode == bytecode.BinaryAdd {
			f.push(x + y)
			return nil
		}
	}
	return errors.Wrapf(ErrIllegal, "%s: operand types %T and %T", in.Opcode, x, y)
}

func binaryInt(op bytecode.Opcode, x, y Int) (Int, error) {
	switch op {
	case bytecode.BinaryLshift:
		return x.Shl(y)
	case bytecode.BinaryRshift:
		return x.Shr(y)
	}

	if x.Kind != y.Kind {
		return Int{}, errors.Wrapf(ErrIllegal, "%s: kind mismatch: %s != %s", op, x.Kind, y.Kind)
	}
	switch op {
	case bytecode.BinaryAdd:
		return x.Add(y), nil
	case bytecode.BinarySubtract:
		return x.Sub(y), nil
	case bytecode.BinaryMultiply:
		return x.Mul(y), nil
	case bytecode.BinaryDivide:
		return x.Div(y)
	case bytecode.BinaryModulo:
		return x.Rem(y)
	case bytecode.BinaryAnd:
		return x.And(y), nil
	case bytecode.BinaryOr:
		return x.Or(y), nil
	case bytecode.BinaryXor:
		return x.Xor(y), nil
	case bytecode.BinaryAndNot:
		return x.AndNot(y), nil
	default:
		panic(fmt.Sprintf("unexpected binary opcode: %s", op))
	}
}

func (e *execution) executeCompare(f *Frame, in *bytecode.Instruction) error {
	y, x := f.pop(), f.pop()

	var cmp int
	switch x := x.(type) {
	case Int:
		y, ok := y.(Int)
		if !ok || x.Kind != y.Kind {
			return errors.Wrapf(ErrIllegal, "compare: operand types %s and %s", x, y)
		}
		cmp = x.Cmp(y)
	case String:
		y, ok := y.(String)
		if !ok {
			return errors.Wrapf(ErrIllegal, "compare: operand types %s and %s", x, y)
		}
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	default:
		if in.Arg != bytecode.CmpEQ && in.Arg != bytecode.CmpNE {
			return errors.Wrapf(ErrIllegal, "compare: unordered operand %s", x)
		}
		eq := Equal(x, y)
		f.push(Bool(eq == (in.Arg == bytecode.CmpEQ)))
		return nil
	}

	var b bool
	switch in.Arg {
	case bytecode.CmpLT:
		b = cmp < 0
	case bytecode.CmpLE:
		b = cmp <= 0
	case bytecode.CmpEQ:
		b = cmp == 0
	case bytecode.CmpNE:
		b = cmp != 0
	case bytecode.CmpGT:
		b = cmp > 0
	case bytecode.CmpGE:
		b = cmp >= 0
	}
	f.push(Bool(b))
	return nil
}

func (e *execution) jump(f *Frame, in *bytecode.Instruction) error {
	target, _ := in.Target()
	i, err := f.fn.indexOf(target)
	if err != nil {
		return err
	}
	f.pc = i
	return nil
}

func (e *execution) executeCondJump(f *Frame, in *bytecode.Instruction) error {
	cond, ok := f.pop().(Bool)
	if !ok {
		return errors.Wrapf(ErrIllegal, "%s: non-boolean condition", in.Opcode)
	}
	if bool(cond) == (in.Opcode == bytecode.PopJumpIfTrue) {
		return e.jump(f, in)
	}
	return nil
}

func (e *execution) executeCallFunction(f *Frame, in *bytecode.Instruction) error {
	args := f.popN(int(in.Arg))
	return e.call(f, f.pop(), args)
}

func (e *execution) executeMakeClosure(f *Frame, in *bytecode.Instruction) error {
	v, err := e.resolve(in.Value.(string))
	if err != nil {
		return err
	}
	fn, ok := v.(*Function)
	if !ok {
		return errors.Wrapf(ErrIllegal, "closure of non-function %s", v)
	}
	f.push(&Closure{Fn: fn, Bindings: f.popN(len(fn.Code.Freevars))})
	return nil
}

func (e *execution) executeExtract(f *Frame, in *bytecode.Instruction) error {
	t, ok := f.pop().(Tuple)
	if !ok || int(in.Arg) >= len(t) {
		return errors.Wrapf(ErrIllegal, "extract %d from non-tuple", in.Arg)
	}
	f.push(t[in.Arg])
	return nil
}

func (e *execution) executeConvert(f *Frame, in *bytecode.Instruction) error {
	kind := Kind(in.Arg)
	x, ok := f.pop().(Int)
	if !ok || !kind.IsInteger() {
		return errors.Wrapf(ErrIllegal, "convert to %s", kind)
	}
	f.push(x.Convert(kind))
	return nil
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

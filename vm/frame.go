package vm

import (
	"github.com/benbjohnson/pathgen/bytecode"
)

// Frame represents the state of a call into a function.
type Frame struct {
	fn     *Function
	caller *Frame
	depth  int

	pc     int // index of the next instruction
	locals []Value
	cells  []Value
	stack  []Value
	line   int
}

// newFrame returns a new frame for fn with args bound to its leading locals.
func newFrame(caller *Frame, fn *Function, args, cells []Value) *Frame {
	f := &Frame{
		fn:     fn,
		caller: caller,
		locals: make([]Value, len(fn.Code.Varnames)),
		cells:  cells,
		line:   -1,
	}
	if caller != nil {
		f.depth = caller.depth + 1
	}
	copy(f.locals, args)
	return f
}

// Function returns the function executing in the frame.
func (f *Frame) Function() *Function { return f.fn }

// Caller returns the calling frame, if any.
func (f *Frame) Caller() *Frame { return f.caller }

// Depth returns the call depth. The entry frame has depth zero.
func (f *Frame) Depth() int { return f.depth }

// Instr returns the next instruction to execute or nil if none remain.
func (f *Frame) Instr() *bytecode.Instruction {
	if f.pc >= len(f.fn.instrs) {
		return nil
	}
	return &f.fn.instrs[f.pc]
}

func (f *Frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *Frame) pop() Value {
	assert(len(f.stack) > 0, "%s: stack underflow at pc %d", f.fn.Code.Name, f.pc)
	v := f.stack[len(f.stack)-1]
	f.stack[len(f.stack)-1] = nil
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

// popN removes the top n values and returns them in push order.
func (f *Frame) popN(n int) []Value {
	assert(len(f.stack) >= n, "%s: stack underflow at pc %d", f.fn.Code.Name, f.pc)
	vs := make([]Value, n)
	copy(vs, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return vs
}

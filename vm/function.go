package vm

import (
	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set/v2"
)

// Function is a decoded code object ready for execution.
type Function struct {
	Code *bytecode.Code

	instrs  []bytecode.Instruction
	index   map[int]int // offset -> instruction index
	targets mapset.Set[int]
}

// NewFunction decodes code and returns an executable function.
func NewFunction(code *bytecode.Code) (*Function, error) {
	instrs, err := bytecode.Decode(code)
	if err != nil {
		return nil, err
	}

	fn := &Function{
		Code:    code,
		instrs:  instrs,
		index:   make(map[int]int, len(instrs)),
		targets: mapset.NewThreadUnsafeSet[int](),
	}
	for i := range instrs {
		fn.index[instrs[i].Offset] = i
		if target, ok := instrs[i].Target(); ok {
			fn.targets.Add(target)
		}
	}
	return fn, nil
}

// String returns the function name.
func (fn *Function) String() string { return "func " + fn.Code.Name }

// Instructions returns the decoded instruction stream.
func (fn *Function) Instructions() []bytecode.Instruction { return fn.instrs }

// IsTarget returns true if offset is the target of a jump.
func (fn *Function) IsTarget(offset int) bool { return fn.targets.Contains(offset) }

// indexOf returns the instruction index at offset.
func (fn *Function) indexOf(offset int) (int, error) {
	i, ok := fn.index[offset]
	if !ok {
		return 0, errors.Newf("vm: %s: no instruction at offset %d", fn.Code.Name, offset)
	}
	return i, nil
}

package compile

import (
	"bytes"
	"fmt"
	"go/token"
	"log"

	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/tools/go/ssa"
)

// Param describes a function parameter.
type Param struct {
	Name string
	Kind vm.Kind
}

// Func is a compiled package-level function.
type Func struct {
	Name    string
	Params  []Param
	Results []vm.Kind
	Pos     token.Position

	Function *vm.Function
	Module   *Module
}

// Searchable returns true if arguments can be synthesized for every
// parameter and every result can be written as a literal.
func (f *Func) Searchable() bool {
	for _, p := range f.Params {
		if !p.Kind.IsInteger() && p.Kind != vm.KindBool {
			return false
		}
	}
	for _, k := range f.Results {
		if k == vm.KindInvalid {
			return false
		}
	}
	return true
}

// String returns the function signature.
func (f *Func) String() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s(", f.Name)
	for i, p := range f.Params {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s %s", p.Name, p.Kind)
	}
	buf.WriteString(")")
	switch len(f.Results) {
	case 0:
	case 1:
		fmt.Fprintf(&buf, " %s", f.Results[0])
	default:
		buf.WriteString(" (")
		for i, k := range f.Results {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(k.String())
		}
		buf.WriteString(")")
	}
	return buf.String()
}

// Module is a compiled package. It resolves the global names referenced by
// its functions, including anonymous functions.
type Module struct {
	Path string
	Name string
	Dir  string

	globals vm.Globals
	funcs   map[string]*Func

	// Functions that could not be compiled, keyed by name.
	Skipped map[string]error
}

// Resolve returns the function bound to name.
func (m *Module) Resolve(name string) (vm.Value, bool) {
	return m.globals.Resolve(name)
}

// Func returns a package-level function by name.
func (m *Module) Func(name string) *Func {
	return m.funcs[name]
}

// Funcs returns all compiled package-level functions sorted by name.
func (m *Module) Funcs() []*Func {
	names := maps.Keys(m.funcs)
	slices.Sort(names)

	a := make([]*Func, len(names))
	for i, name := range names {
		a[i] = m.funcs[name]
	}
	return a
}

// Compile compiles every function in pkg. Functions using unsupported
// constructs are recorded in Skipped rather than failing the module.
func Compile(pkg *Package) (*Module, error) {
	m := &Module{
		Path:    pkg.Path,
		Name:    pkg.Name,
		Dir:     pkg.Dir,
		globals: make(vm.Globals),
		funcs:   make(map[string]*Func),
		Skipped: make(map[string]error),
	}

	for _, member := range pkg.SSA.Members {
		fn, ok := member.(*ssa.Function)
		if !ok || fn.Name() == "init" {
			continue
		}

		if err := m.compile(pkg.Fset, fn, true); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Module) compile(fset *token.FileSet, fn *ssa.Function, toplevel bool) error {
	code, err := CompileFunction(fset, fn)
	if errors.Is(err, ErrUnsupported) {
		log.Printf("[compile] skip %s: %s", fn.Name(), err)
		m.Skipped[fn.Name()] = err
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "compile %s", fn.Name())
	}

	f, err := vm.NewFunction(code)
	if err != nil {
		return errors.Wrapf(err, "decode %s", fn.Name())
	}
	m.globals[fn.Name()] = f

	if toplevel {
		sig := fn.Signature
		cf := &Func{
			Name:     fn.Name(),
			Pos:      fset.Position(fn.Pos()),
			Function: f,
			Module:   m,
		}
		for i := 0; i < sig.Params().Len(); i++ {
			p := sig.Params().At(i)
			cf.Params = append(cf.Params, Param{Name: p.Name(), Kind: vm.KindOf(p.Type())})
		}
		for i := 0; i < sig.Results().Len(); i++ {
			cf.Results = append(cf.Results, vm.KindOf(sig.Results().At(i).Type()))
		}
		m.funcs[fn.Name()] = cf
	}

	for _, anon := range fn.AnonFuncs {
		if err := m.compile(fset, anon, false); err != nil {
			return err
		}
	}
	return nil
}

package compile_test

import (
	"context"
	"testing"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/benbjohnson/pathgen/compile"
	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
)

// MustCompile loads and compiles a package under testdata.
func MustCompile(tb testing.TB, name string) *compile.Module {
	tb.Helper()
	pkgs, err := compile.Load("", "../testdata/"+name)
	if err != nil {
		tb.Fatal(err)
	} else if len(pkgs) != 1 {
		tb.Fatalf("unexpected package count: %d", len(pkgs))
	}
	m, err := compile.Compile(pkgs[0])
	if err != nil {
		tb.Fatal(err)
	}
	return m
}

// MustCall executes a package-level function and returns its result.
func MustCall(tb testing.TB, m *compile.Module, name string, args ...vm.Value) vm.Value {
	tb.Helper()
	v, err := Call(m, name, args...)
	if err != nil {
		tb.Fatal(err)
	}
	return v
}

func Call(m *compile.Module, name string, args ...vm.Value) (vm.Value, error) {
	fn := m.Func(name)
	if fn == nil {
		return nil, errors.Newf("function not found: %s", name)
	}
	return vm.NewMachine(m).Call(context.Background(), fn.Function, args, nil)
}

func Int(v int64) vm.Value { return vm.NewInt(v, vm.KindInt) }

func TestCompile(t *testing.T) {
	t.Run("Linear", func(t *testing.T) {
		m := MustCompile(t, "pkg000_linear")
		fn := m.Func("Inc")
		if fn == nil {
			t.Fatal("expected Inc")
		}

		var ops []string
		for _, in := range fn.Function.Instructions() {
			ops = append(ops, in.Opcode.String())
		}
		if diff := cmp.Diff([]string{
			"LOAD_FAST", "LOAD_CONST", "BINARY_ADD", "STORE_FAST", "LOAD_FAST", "RETURN_VALUE",
		}, ops); diff != "" {
			t.Fatal(diff)
		}

		if got, want := fn.String(), "Inc(x int) int"; got != want {
			t.Fatalf("String()=%q, want %q", got, want)
		} else if !fn.Searchable() {
			t.Fatal("expected searchable")
		}
		if got := MustCall(t, m, "Inc", Int(41)); !vm.Equal(got, Int(42)) {
			t.Fatalf("unexpected result: %s", got)
		}
	})

	t.Run("Call", func(t *testing.T) {
		m := MustCompile(t, "pkg001_call")
		if got := MustCall(t, m, "Caller", vm.NewInt(42, vm.KindInt8), vm.NewInt(67, vm.KindInt16)); !vm.Equal(got, vm.Bool(true)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Caller", vm.NewInt(1, vm.KindInt8), vm.NewInt(1, vm.KindInt16)); !vm.Equal(got, vm.Bool(false)) {
			t.Fatalf("unexpected result: %s", got)
		}
	})

	t.Run("Branch", func(t *testing.T) {
		m := MustCompile(t, "pkg002_branch")
		if got := MustCall(t, m, "Choose", vm.Bool(true)); !vm.Equal(got, Int(1)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Choose", vm.Bool(false)); !vm.Equal(got, Int(0)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Max", Int(-3), Int(7)); !vm.Equal(got, Int(7)) {
			t.Fatalf("unexpected result: %s", got)
		}
	})

	t.Run("Triangle", func(t *testing.T) {
		m := MustCompile(t, "pkg003_triangle")
		for _, tt := range []struct {
			a, b, c int64
			want    string
		}{
			{0, 1, 1, "invalid"},
			{1, 2, 5, "not a triangle"},
			{3, 3, 3, "equilateral"},
			{3, 3, 5, "isosceles"},
			{4, 3, 3, "isosceles"},
			{3, 4, 5, "scalene"},
		} {
			if got := MustCall(t, m, "ClassifyTriangle", Int(tt.a), Int(tt.b), Int(tt.c)); !vm.Equal(got, vm.String(tt.want)) {
				t.Fatalf("ClassifyTriangle(%d, %d, %d)=%s, want %q", tt.a, tt.b, tt.c, got, tt.want)
			}
		}
	})

	t.Run("Loop", func(t *testing.T) {
		m := MustCompile(t, "pkg005_loop")
		if got := MustCall(t, m, "SumTo", Int(10)); !vm.Equal(got, Int(55)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "SumTo", Int(-1)); !vm.Equal(got, Int(0)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Spin", vm.NewUint(250, vm.KindUint8)); !vm.Equal(got, vm.NewUint(0, vm.KindUint8)) {
			t.Fatalf("unexpected result: %s", got)
		}
	})

	t.Run("Panic", func(t *testing.T) {
		m := MustCompile(t, "pkg006_panic")

		var p *vm.Panic
		if _, err := Call(m, "MustPositive", Int(-1)); !errors.As(err, &p) {
			t.Fatalf("expected panic, got %v", err)
		} else if p.Runtime {
			t.Fatal("expected user panic")
		} else if got, want := p.Error(), "panic: negative"; got != want {
			t.Fatalf("Error()=%q, want %q", got, want)
		}

		if _, err := Call(m, "Div", Int(1), Int(0)); !errors.As(err, &p) {
			t.Fatalf("expected panic, got %v", err)
		} else if !p.Runtime {
			t.Fatal("expected runtime panic")
		}

		if _, err := Call(m, "Shift", vm.NewInt(1, vm.KindInt32), vm.NewInt(-1, vm.KindInt8)); !errors.As(err, &p) {
			t.Fatalf("expected panic, got %v", err)
		} else if !p.Runtime {
			t.Fatal("expected runtime panic")
		}
		if got := MustCall(t, m, "Shift", vm.NewInt(1, vm.KindInt32), vm.NewInt(31, vm.KindInt8)); !vm.Equal(got, vm.NewInt(-1<<31, vm.KindInt32)) {
			t.Fatalf("unexpected result: %s", got)
		}
	})

	t.Run("Closure", func(t *testing.T) {
		m := MustCompile(t, "pkg007_closure")
		if got := MustCall(t, m, "Apply", Int(2)); !vm.Equal(got, Int(3)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Count", vm.NewUint(5, vm.KindUint8)); !vm.Equal(got, Int(5)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Order", vm.NewInt(1, vm.KindInt64), vm.NewInt(2, vm.KindInt64)); !vm.Equal(got, vm.Tuple{vm.NewInt(2, vm.KindInt64), vm.Bool(false)}) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Larger", vm.NewInt(9, vm.KindInt64), vm.NewInt(2, vm.KindInt64)); !vm.Equal(got, vm.NewInt(9, vm.KindInt64)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Fact", Int(5)); !vm.Equal(got, Int(120)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got := MustCall(t, m, "Narrow", Int(0x100)); !vm.Equal(got, vm.NewUint(0xFF, vm.KindUint8)) {
			t.Fatalf("unexpected result: %s", got)
		}
		if got, want := m.Func("Order").String(), "Order(a int64, b int64) (int64, bool)"; got != want {
			t.Fatalf("String()=%q, want %q", got, want)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		m := MustCompile(t, "pkg008_unsupported")
		if err := m.Skipped["Sum"]; !errors.Is(err, compile.ErrUnsupported) {
			t.Fatalf("expected Sum to be skipped, got %v", err)
		} else if m.Func("Sum") != nil {
			t.Fatal("expected no Sum function")
		}

		if fn := m.Func("Name"); fn == nil {
			t.Fatal("expected Name")
		} else if fn.Searchable() {
			t.Fatal("expected Name to be unsearchable")
		}
		if got := MustCall(t, m, "Name", vm.String("x")); !vm.Equal(got, vm.String("x!")) {
			t.Fatalf("unexpected result: %s", got)
		}

		if fn := m.Func("Ok"); fn == nil || !fn.Searchable() {
			t.Fatal("expected Ok to be searchable")
		}

		var names []string
		for _, fn := range m.Funcs() {
			names = append(names, fn.Name)
		}
		if diff := cmp.Diff([]string{"Name", "Ok"}, names); diff != "" {
			t.Fatal(diff)
		}
	})

	t.Run("Listing", func(t *testing.T) {
		m := MustCompile(t, "pkg002_branch")
		code := m.Func("Choose").Function.Code
		if code.ArgCount != 1 {
			t.Fatalf("unexpected arg count: %d", code.ArgCount)
		} else if diff := cmp.Diff([]string{"x"}, code.Varnames[:1]); diff != "" {
			t.Fatal(diff)
		}

		instrs, err := bytecode.Decode(code)
		if err != nil {
			t.Fatal(err)
		}
		var returns int
		for _, in := range instrs {
			if in.Opcode.IsReturn() {
				returns++
			}
		}
		if returns != 2 {
			t.Fatalf("unexpected return count: %d", returns)
		}
	})
}

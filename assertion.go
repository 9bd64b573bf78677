package pathgen

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/benbjohnson/pathgen/compile"
	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// testIDLen is the number of hex digits in a generated test ID.
const testIDLen = 8

// GeneratedAssertion is a regression check recorded from one invocation.
// Statements hold the body of the generated test function.
type GeneratedAssertion struct {
	Func     string
	TestID   string
	Args     []vm.Value
	Expected []vm.Value

	// Set if the invocation raised.
	Panics bool
	Panic  string

	Statements []string
}

// NewAssertion returns an assertion that fn(args) returns result.
func NewAssertion(fn *compile.Func, id string, args []vm.Value, result vm.Value) *GeneratedAssertion {
	a := &GeneratedAssertion{Func: fn.Name, TestID: id, Args: args}
	switch result := result.(type) {
	case vm.None:
	case vm.Tuple:
		a.Expected = result
	default:
		a.Expected = []vm.Value{result}
	}

	call := callExpr(fn.Name, args)
	switch len(a.Expected) {
	case 0:
		a.Statements = []string{call}
	case 1:
		a.Statements = append([]string{"got := " + call}, compareStmts("got", call, a.Expected[0])...)
	default:
		names := make([]string, len(a.Expected))
		for i := range names {
			names[i] = fmt.Sprintf("got%d", i)
		}
		a.Statements = []string{strings.Join(names, ", ") + " := " + call}
		for i, v := range a.Expected {
			desc := fmt.Sprintf("%s[%d]", call, i)
			a.Statements = append(a.Statements, compareStmts(names[i], desc, v)...)
		}
	}
	return a
}

// NewPanicAssertion returns an assertion that fn(args) panics with the
// message of p.
func NewPanicAssertion(fn *compile.Func, id string, args []vm.Value, p *vm.Panic) *GeneratedAssertion {
	a := &GeneratedAssertion{
		Func:   fn.Name,
		TestID: id,
		Args:   args,
		Panics: true,
		Panic:  panicMessage(p),
	}

	call := callExpr(fn.Name, args)
	if n := len(fn.Results); n > 0 {
		call = strings.TrimSuffix(strings.Repeat("_, ", n), ", ") + " = " + call
	}
	a.Statements = []string{
		"defer func() {",
		fmt.Sprintf("\tif r := recover(); fmt.Sprint(r) != %s {", strconv.Quote(a.Panic)),
		fmt.Sprintf("\t\tt.Fatalf(\"expected panic %%q, got %%v\", %s, r)", strconv.Quote(a.Panic)),
		"\t}",
		"}()",
		call,
	}
	return a
}

// TestName returns the name of the generated test function. Exported names
// follow "Test" directly; any other name is separated by an underscore, so
// foo and _foo map to different tests.
func (a *GeneratedAssertion) TestName() string {
	if r, _ := utf8.DecodeRuneInString(a.Func); unicode.IsUpper(r) {
		return "Test" + a.Func + "_" + a.TestID
	}
	return "Test_" + a.Func + "_" + a.TestID
}

// Imports returns the packages referenced by the statements.
func (a *GeneratedAssertion) Imports() []string {
	if a.Panics {
		return []string{"fmt", "testing"}
	}
	return []string{"testing"}
}

// Check calls fn with the recorded arguments on m and returns an error if
// the outcome differs from the recorded one.
func (a *GeneratedAssertion) Check(ctx context.Context, m *vm.Machine, fn *compile.Func) error {
	result, err := m.Call(ctx, fn.Function, a.Args, nil)

	var p *vm.Panic
	if errors.As(err, &p) {
		if !a.Panics {
			return errors.Newf("%s: unexpected %s", a.TestName(), p.Error())
		} else if msg := panicMessage(p); msg != a.Panic {
			return errors.Newf("%s: panic %q, want %q", a.TestName(), msg, a.Panic)
		}
		return nil
	} else if err != nil {
		return err
	} else if a.Panics {
		return errors.Newf("%s: expected panic %q", a.TestName(), a.Panic)
	}

	var got []vm.Value
	switch result := result.(type) {
	case vm.None:
	case vm.Tuple:
		got = result
	default:
		got = []vm.Value{result}
	}
	if !vm.Equal(vm.Tuple(got), vm.Tuple(a.Expected)) {
		return errors.Newf("%s: got %s, want %s", a.TestName(), vm.Tuple(got), vm.Tuple(a.Expected))
	}
	return nil
}

// callExpr returns the Go call expression for fn(args).
func callExpr(name string, args []vm.Value) string {
	a := make([]string, len(args))
	for i, arg := range args {
		a[i] = literal(arg)
	}
	return name + "(" + strings.Join(a, ", ") + ")"
}

// compareStmts returns an if statement failing the test if name != want.
func compareStmts(name, desc string, want vm.Value) []string {
	lit := literal(want)
	format := escapeVerbs(desc) + " = %v, want " + escapeVerbs(lit)
	return []string{
		fmt.Sprintf("if %s != %s {", name, lit),
		fmt.Sprintf("\tt.Fatalf(%s, %s)", strconv.Quote(format), name),
		"}",
	}
}

func escapeVerbs(s string) string { return strings.ReplaceAll(s, "%", "%%") }

// literal returns the Go source form of a value.
func literal(v vm.Value) string {
	switch v := v.(type) {
	case vm.Int, vm.Bool, vm.String:
		return v.String()
	default:
		assert(false, "no literal form for %T", v)
		return ""
	}
}

// panicMessage returns the text fmt.Sprint produces for the recovered value.
func panicMessage(p *vm.Panic) string {
	if s, ok := p.Value.(vm.String); ok {
		return string(s)
	}
	return p.Value.String()
}

// testIDs produces unique test IDs from a random source. It is safe for
// concurrent use so drivers writing into one file can share it.
type testIDs struct {
	mu   sync.Mutex
	r    io.Reader
	seen map[string]struct{}
}

func newTestIDs(r io.Reader) *testIDs {
	return &testIDs{r: r, seen: make(map[string]struct{})}
}

// Next returns a random hex token not returned before.
func (ids *testIDs) Next() (string, error) {
	ids.mu.Lock()
	defer ids.mu.Unlock()

	for {
		u, err := uuid.NewRandomFromReader(ids.r)
		if err != nil {
			return "", errors.Wrap(err, "test id")
		}
		id := strings.ReplaceAll(u.String(), "-", "")[:testIDLen]
		if _, ok := ids.seen[id]; !ok {
			ids.seen[id] = struct{}{}
			return id, nil
		}
	}
}

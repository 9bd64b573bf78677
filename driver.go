package pathgen

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/benbjohnson/pathgen/cfg"
	"github.com/benbjohnson/pathgen/compile"
	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
)

// DefaultIterationBudget is the default number of invocations per search.
const DefaultIterationBudget = 1024

// Outcome classifies a single search iteration.
type Outcome int

const (
	OutcomeNewPath Outcome = iota
	OutcomeCoveredPath
	OutcomeNoMatch
	OutcomeException
	OutcomeTimeout
	numOutcomes
)

// Outcomes returns every outcome in order.
func Outcomes() []Outcome {
	a := make([]Outcome, numOutcomes)
	for i := range a {
		a[i] = Outcome(i)
	}
	return a
}

// String returns the name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeNewPath:
		return "new-path"
	case OutcomeCoveredPath:
		return "covered-path"
	case OutcomeNoMatch:
		return "no-match"
	case OutcomeException:
		return "exception"
	case OutcomeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("Outcome<%d>", int(o))
	}
}

// State is the state of a search.
type State int

const (
	StateSearching State = iota
	StateDone
)

// Iteration records one invocation made during a search.
type Iteration struct {
	Args    []vm.Value
	Outcome Outcome
	Path    int // matched path ID, or -1
	Err     error
	Elapsed time.Duration

	// Number of covered paths after this iteration.
	Covered int
}

// Result is the outcome of searching a single function.
type Result struct {
	Func       *compile.Func
	Assertions []*GeneratedAssertion
	Iterations []Iteration
	Paths      *cfg.PathSet

	// Set if path enumeration ran out of budget.
	Incomplete bool
}

// Used returns the number of iterations performed.
func (r *Result) Used() int { return len(r.Iterations) }

// Coverage returns the fraction of paths covered.
func (r *Result) Coverage() float64 { return r.Paths.Coverage() }

// Count returns the number of iterations with the given outcome.
func (r *Result) Count(o Outcome) int {
	var n int
	for _, it := range r.Iterations {
		if it.Outcome == o {
			n++
		}
	}
	return n
}

// Driver searches for inputs that cover every path of a function. A driver
// searches one function at a time.
type Driver struct {
	runner *Runner
	ids    *testIDs
	state  State

	// Source of argument lists.
	Generator Generator

	// Maximum invocations per search.
	IterationBudget int

	// If set, a raising invocation records a panic assertion.
	AssertPanics bool

	// If set, the first timeout ends the search.
	AbortOnTimeout bool

	// If set, assertions are only recorded for invocations that cover a
	// new path.
	OnlyNewPaths bool

	Logger *log.Logger
}

// NewDriver returns a new instance of Driver. Test IDs are drawn from rand.
func NewDriver(runner *Runner, gen Generator, rand io.Reader) *Driver {
	return &Driver{
		runner:          runner,
		ids:             newTestIDs(rand),
		Generator:       gen,
		IterationBudget: DefaultIterationBudget,
		Logger:          log.Default(),
	}
}

// State returns the current search state.
func (d *Driver) State() State { return d.state }

// Search invokes fn with generated arguments until every path in analysis is
// covered, the iteration budget is spent, or ctx is done. A cancelled search
// returns its partial result along with the context error.
func (d *Driver) Search(ctx context.Context, fn *compile.Func, analysis *Analysis) (*Result, error) {
	if !fn.Searchable() {
		return nil, errors.Wrapf(ErrNotSearchable, "%s", fn)
	}
	assert(analysis.Func == fn, "analysis of %s used for %s", analysis.Func.Name, fn.Name)

	result := &Result{
		Func:       fn,
		Paths:      analysis.Paths(),
		Incomplete: analysis.Incomplete,
	}
	if result.Incomplete {
		d.Logger.Printf("[search] %s: path enumeration incomplete, searching %d path(s)", fn.Name, result.Paths.Len())
	}

	d.state = StateSearching
	defer func() { d.state = StateDone }()

	for i := 0; i < d.IterationBudget; i++ {
		if result.Paths.Remaining() == 0 {
			break
		} else if err := ctx.Err(); err != nil {
			return result, err
		}

		it, err := d.iterate(ctx, fn, result)
		if err != nil {
			return result, err
		}
		it.Covered = result.Paths.Covered()
		result.Iterations = append(result.Iterations, it)
		d.Logger.Printf("[search] %s #%d %s: %s (%d/%d)", fn.Name, i, vm.Tuple(it.Args), it.Outcome, result.Paths.Covered(), result.Paths.Len())

		if it.Outcome == OutcomeTimeout && d.AbortOnTimeout {
			break
		}
	}

	d.Logger.Printf("[search] %s: done after %d iteration(s), coverage %.2f", fn.Name, result.Used(), result.Coverage())
	return result, nil
}

// iterate performs a single invocation and classifies it.
func (d *Driver) iterate(ctx context.Context, fn *compile.Func, result *Result) (Iteration, error) {
	args := d.Generator.Generate(fn.Params)
	assert(len(args) == len(fn.Params), "%s: generated %d arguments for %d parameters", fn.Name, len(args), len(fn.Params))

	inv, err := d.runner.Run(ctx, fn, args)
	if err != nil {
		return Iteration{}, err
	}
	it := Iteration{Args: args, Path: -1, Err: inv.Err, Elapsed: inv.Elapsed}

	var p *vm.Panic
	switch {
	case inv.TimedOut():
		it.Outcome = OutcomeTimeout
		return it, nil

	case errors.As(inv.Err, &p):
		it.Outcome = OutcomeException
		if d.AssertPanics && !d.OnlyNewPaths {
			id, err := d.ids.Next()
			if err != nil {
				return it, err
			}
			result.Assertions = append(result.Assertions, NewPanicAssertion(fn, id, args, p))
		}
		return it, nil

	case inv.Err != nil:
		d.Logger.Printf("[search] %s %s: %s", fn.Name, vm.Tuple(args), inv.Err)
		it.Outcome = OutcomeException
		return it, nil
	}

	path, isNew := result.Paths.Match(inv.Record.Steps())
	switch {
	case path == nil:
		it.Outcome = OutcomeNoMatch
		d.Logger.Printf("[trace] %s %s: no path matches:\n%s", fn.Name, vm.Tuple(args), inv.Record)
	case isNew:
		it.Outcome, it.Path = OutcomeNewPath, path.ID
	default:
		it.Outcome, it.Path = OutcomeCoveredPath, path.ID
	}

	if !d.OnlyNewPaths || it.Outcome == OutcomeNewPath {
		id, err := d.ids.Next()
		if err != nil {
			return it, err
		}
		result.Assertions = append(result.Assertions, NewAssertion(fn, id, args, inv.Result))
	}
	return it, nil
}

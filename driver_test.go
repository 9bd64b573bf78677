package pathgen_test

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/benbjohnson/pathgen"
	"github.com/benbjohnson/pathgen/vm"
	"github.com/cockroachdb/errors"
	"github.com/google/go-cmp/cmp"
)

// SearchConfig returns a deterministic configuration for driver tests.
func SearchConfig(budget int) pathgen.Config {
	c := pathgen.NewConfig()
	c.IterationBudget = budget
	c.Seed = 42
	return c
}

func Search(tb testing.TB, c pathgen.Config, pkg, name string) *pathgen.Result {
	tb.Helper()
	fn := MustFunc(tb, pkg, name)
	d := NewDriver(tb, c)
	d.Logger = log.New(io.Discard, "", 0)

	result, err := d.Search(context.Background(), fn, MustAnalyze(tb, fn))
	if err != nil {
		tb.Fatal(err)
	} else if d.State() != pathgen.StateDone {
		tb.Fatalf("unexpected state: %v", d.State())
	}
	return result
}

// CheckAssertions re-evaluates every assertion against its function.
func CheckAssertions(tb testing.TB, result *pathgen.Result) {
	tb.Helper()
	m := vm.NewMachine(result.Func.Module)
	for _, a := range result.Assertions {
		if err := a.Check(context.Background(), m, result.Func); err != nil {
			tb.Fatal(err)
		}
	}
}

func TestDriver_Search(t *testing.T) {
	t.Run("Linear", func(t *testing.T) {
		result := Search(t, SearchConfig(100), "pkg000_linear", "Inc")
		if result.Used() != 1 {
			t.Fatalf("unexpected iterations: %d", result.Used())
		} else if result.Coverage() != 1 {
			t.Fatalf("unexpected coverage: %f", result.Coverage())
		} else if len(result.Assertions) != 1 {
			t.Fatalf("unexpected assertion count: %d", len(result.Assertions))
		} else if got := result.Iterations[0].Outcome; got != pathgen.OutcomeNewPath {
			t.Fatalf("unexpected outcome: %s", got)
		}
		CheckAssertions(t, result)
	})

	t.Run("Branch", func(t *testing.T) {
		result := Search(t, SearchConfig(100), "pkg002_branch", "Choose")
		if result.Coverage() != 1 {
			t.Fatalf("unexpected coverage: %f", result.Coverage())
		} else if n := result.Count(pathgen.OutcomeNewPath); n != 2 {
			t.Fatalf("unexpected new path count: %d", n)
		}
		CheckAssertions(t, result)
	})

	t.Run("Triangle", func(t *testing.T) {
		result := Search(t, SearchConfig(8192), "pkg003_triangle", "ClassifyTriangle")
		if result.Coverage() != 1 {
			t.Fatalf("unexpected coverage: %f (%d/%d) after %d iterations", result.Coverage(), result.Paths.Covered(), result.Paths.Len(), result.Used())
		} else if result.Paths.Len() < 9 {
			t.Fatalf("unexpected path count: %d", result.Paths.Len())
		}

		if n := result.Count(pathgen.OutcomeNewPath); n != result.Paths.Len() {
			t.Fatalf("unexpected new path count: %d", n)
		}

		// Coverage only grows, and only on new paths.
		var covered int
		for i, it := range result.Iterations {
			want := covered
			if it.Outcome == pathgen.OutcomeNewPath {
				want++
			}
			if it.Covered != want {
				t.Fatalf("iteration %d (%s): covered=%d, want %d", i, it.Outcome, it.Covered, want)
			}
			covered = it.Covered
		}
		if covered != result.Paths.Covered() {
			t.Fatalf("final covered=%d, want %d", covered, result.Paths.Covered())
		}
		if got, want := len(result.Assertions), result.Used(); got != want {
			t.Fatalf("assertions=%d, want %d", got, want)
		}
		CheckAssertions(t, result)
	})

	t.Run("Infeasible", func(t *testing.T) {
		result := Search(t, SearchConfig(200), "pkg009_infeasible", "Sign")
		if result.Used() != 200 {
			t.Fatalf("unexpected iterations: %d", result.Used())
		} else if result.Paths.Len() != 3 || result.Paths.Remaining() != 1 {
			t.Fatalf("unexpected paths: %d remaining of %d", result.Paths.Remaining(), result.Paths.Len())
		}
		CheckAssertions(t, result)
	})

	t.Run("Loop", func(t *testing.T) {
		result := Search(t, SearchConfig(200), "pkg005_loop", "SumTo")
		if result.Coverage() != 1 {
			t.Fatalf("unexpected coverage: %f", result.Coverage())
		}
		for _, it := range result.Iterations {
			if it.Outcome == pathgen.OutcomeNoMatch && it.Args[0].(vm.Int).Int64() < 1 {
				t.Fatalf("unexpected no-match for %s", vm.Tuple(it.Args))
			}
		}
		CheckAssertions(t, result)
	})

	t.Run("Panics", func(t *testing.T) {
		c := SearchConfig(200)
		c.AssertPanics = true
		result := Search(t, c, "pkg006_panic", "MustPositive")
		if result.Coverage() != 1 {
			t.Fatalf("unexpected coverage: %f", result.Coverage())
		}

		var panics int
		for _, a := range result.Assertions {
			if a.Panics {
				panics++
				if a.Panic != "negative" {
					t.Fatalf("unexpected panic: %q", a.Panic)
				}
			}
		}
		if panics != result.Count(pathgen.OutcomeException) {
			t.Fatalf("panic assertions=%d, exceptions=%d", panics, result.Count(pathgen.OutcomeException))
		}
		CheckAssertions(t, result)
	})

	t.Run("PanicsNotAsserted", func(t *testing.T) {
		result := Search(t, SearchConfig(200), "pkg006_panic", "Div")
		for _, a := range result.Assertions {
			if a.Panics {
				t.Fatal("unexpected panic assertion")
			}
		}
		CheckAssertions(t, result)
	})

	t.Run("OnlyNewPaths", func(t *testing.T) {
		c := SearchConfig(200)
		c.OnlyNewPaths = true
		result := Search(t, c, "pkg002_branch", "Max")
		if got, want := len(result.Assertions), result.Count(pathgen.OutcomeNewPath); got != want {
			t.Fatalf("assertions=%d, want %d", got, want)
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		c := SearchConfig(4)
		c.MaxSteps = 0
		c.Timeout = pathgen.Duration(20 * time.Millisecond)
		c.Buckets.ReuseChance = 0
		result := Search(t, c, "pkg005_loop", "Forever")
		if result.Used() > 4 {
			t.Fatalf("unexpected iterations: %d", result.Used())
		}
		for _, it := range result.Iterations {
			n := it.Args[0].(vm.Int).Int64()
			if n >= 0 && it.Outcome != pathgen.OutcomeTimeout {
				t.Fatalf("unexpected outcome for %d: %s", n, it.Outcome)
			} else if n < 0 && it.Outcome != pathgen.OutcomeNewPath {
				t.Fatalf("unexpected outcome for %d: %s", n, it.Outcome)
			}
		}
	})

	t.Run("AbortOnTimeout", func(t *testing.T) {
		c := SearchConfig(1000)
		c.MaxSteps = 1000
		c.AbortOnTimeout = true
		result := Search(t, c, "pkg005_loop", "Forever")
		switch result.Count(pathgen.OutcomeTimeout) {
		case 0:
			if result.Coverage() != 1 {
				t.Fatalf("unexpected coverage: %f", result.Coverage())
			}
		case 1:
			if got := result.Iterations[len(result.Iterations)-1].Outcome; got != pathgen.OutcomeTimeout {
				t.Fatalf("unexpected last outcome: %s", got)
			}
		default:
			t.Fatalf("unexpected timeout count: %d", result.Count(pathgen.OutcomeTimeout))
		}
	})

	t.Run("ErrNotSearchable", func(t *testing.T) {
		fn := MustFunc(t, "pkg008_unsupported", "Name")
		d := NewDriver(t, SearchConfig(10))
		if _, err := d.Search(context.Background(), fn, MustAnalyze(t, fn)); !errors.Is(err, pathgen.ErrNotSearchable) {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("ContextCanceled", func(t *testing.T) {
		fn := MustFunc(t, "pkg003_triangle", "ClassifyTriangle")
		d := NewDriver(t, SearchConfig(100))
		d.Logger = log.New(io.Discard, "", 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		result, err := d.Search(ctx, fn, MustAnalyze(t, fn))
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		} else if result.Used() != 0 {
			t.Fatalf("unexpected iterations: %d", result.Used())
		}
	})
}

func TestOutcome_String(t *testing.T) {
	var names []string
	for _, o := range pathgen.Outcomes() {
		names = append(names, o.String())
	}
	if diff := cmp.Diff([]string{"new-path", "covered-path", "no-match", "exception", "timeout"}, names); diff != "" {
		t.Fatal(diff)
	}
}

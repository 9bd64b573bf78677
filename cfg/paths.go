package cfg

import (
	"fmt"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/slices"
)

// ErrEnumerationIncomplete is returned with a partial result when the visit
// budget runs out before every path has been found.
var ErrEnumerationIncomplete = errors.New("cfg: path enumeration incomplete")

// DefaultVisitBudget is the default number of node expansions per function.
const DefaultVisitBudget = 1 << 20

// Step is the comparable projection of an executed or planned instruction.
type Step struct {
	Offset int
	Opcode bytecode.Opcode
	Arg    uint32
}

// StepOf returns the step for in.
func StepOf(in *bytecode.Instruction) Step {
	return Step{Offset: in.Offset, Opcode: in.Opcode, Arg: in.Arg}
}

// String returns the step as "offset OPCODE arg".
func (s Step) String() string {
	if !s.Opcode.HasArg() {
		return fmt.Sprintf("%d %s", s.Offset, s.Opcode)
	}
	return fmt.Sprintf("%d %s %d", s.Offset, s.Opcode, s.Arg)
}

// Normalize collapses a trailing (RETURN_VALUE, LOAD_CONST, RETURN_VALUE)
// into a single RETURN_VALUE and drops everything after the first
// RETURN_VALUE. The input is not modified.
func Normalize(steps []Step) []Step {
	if n := len(steps); n >= 3 &&
		steps[n-3].Opcode == bytecode.ReturnValue &&
		steps[n-2].Opcode == bytecode.LoadConst &&
		steps[n-1].Opcode == bytecode.ReturnValue {
		steps = steps[:n-2]
	}
	for i, s := range steps {
		if s.Opcode == bytecode.ReturnValue {
			return steps[:i+1]
		}
	}
	return steps
}

// Path is a simple path from the entry node to a return node.
type Path struct {
	ID    int
	Exit  int
	Nodes []int

	// Normalized instruction projection of Nodes.
	Steps []Step
}

// String returns the node indices of the path.
func (p *Path) String() string {
	return fmt.Sprintf("path %d: %v", p.ID, p.Nodes)
}

// FindAllPaths returns every simple path from entry to exit in depth-first
// adjacency order. A budget of zero or less is unlimited; otherwise each node
// expansion consumes one unit and the paths found so far are returned with
// ErrEnumerationIncomplete once it runs out.
func FindAllPaths(g *Graph, entry, exit, budget int) ([][]int, error) {
	if budget <= 0 {
		budget = -1
	}
	f := newPathFinder(g, exit, &budget)
	if !f.visit(entry) {
		return f.paths, ErrEnumerationIncomplete
	}
	return f.paths, nil
}

// pathFinder performs the depth-first search for a single exit node.
type pathFinder struct {
	g      *Graph
	exit   int
	budget *int // shared across exits; negative is unlimited

	onPath mapset.Set[int]
	path   []int
	paths  [][]int
}

func newPathFinder(g *Graph, exit int, budget *int) *pathFinder {
	return &pathFinder{
		g:      g,
		exit:   exit,
		budget: budget,
		onPath: mapset.NewThreadUnsafeSet[int](),
	}
}

// visit expands node i. Returns false if the budget ran out.
func (f *pathFinder) visit(i int) bool {
	if *f.budget == 0 {
		return false
	} else if *f.budget > 0 {
		*f.budget--
	}

	f.onPath.Add(i)
	f.path = append(f.path, i)

	ok := true
	if i == f.exit {
		f.paths = append(f.paths, slices.Clone(f.path))
	} else {
		for _, e := range f.g.Succs(i) {
			if f.onPath.Contains(e.To) {
				continue
			}
			if ok = f.visit(e.To); !ok {
				break
			}
		}
	}

	f.path = f.path[:len(f.path)-1]
	f.onPath.Remove(i)
	return ok
}

// Enumerate finds all paths from the entry to every return node and returns
// them as a PathSet. Path IDs follow exit order, then discovery order. If the
// budget runs out, the partial set is returned with ErrEnumerationIncomplete.
func Enumerate(g *Graph, budget int) (*PathSet, error) {
	if budget <= 0 {
		budget = -1
	}

	var paths []*Path
	var err error
	if g.Len() > 0 {
		for _, exit := range g.Returns() {
			f := newPathFinder(g, exit, &budget)
			ok := f.visit(0)
			for _, nodes := range f.paths {
				paths = append(paths, newPath(g, len(paths), exit, nodes))
			}
			if !ok {
				err = ErrEnumerationIncomplete
				break
			}
		}
	}

	s := NewPathSet(paths)
	s.incomplete = err != nil
	return s, err
}

func newPath(g *Graph, id, exit int, nodes []int) *Path {
	steps := make([]Step, len(nodes))
	for i, n := range nodes {
		steps[i] = StepOf(&g.Nodes[n].Instr)
	}
	return &Path{ID: id, Exit: exit, Nodes: nodes, Steps: Normalize(steps)}
}

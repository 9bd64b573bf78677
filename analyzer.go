package pathgen

import (
	"sync"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/benbjohnson/pathgen/cfg"
	"github.com/benbjohnson/pathgen/compile"
	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultAnalysisCacheSize is the number of analyses kept by an Analyzer.
const DefaultAnalysisCacheSize = 256

// Analysis is the static view of a function: its instructions, control-flow
// graph and enumerated paths. It is never modified after construction.
type Analysis struct {
	Func   *compile.Func
	Instrs []bytecode.Instruction
	Graph  *cfg.Graph

	// Incomplete is set if the visit budget ran out during enumeration.
	Incomplete bool

	paths *cfg.PathSet
}

// Paths returns a fresh copy of the enumerated path set.
func (a *Analysis) Paths() *cfg.PathSet { return a.paths.Clone() }

// Analyzer computes and caches function analyses.
type Analyzer struct {
	mu    sync.Mutex
	cache *lru.Cache

	// Maximum node expansions during path enumeration.
	VisitBudget int
}

// NewAnalyzer returns a new instance of Analyzer.
func NewAnalyzer(size int) (*Analyzer, error) {
	if size <= 0 {
		size = DefaultAnalysisCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "new analysis cache")
	}
	return &Analyzer{cache: cache, VisitBudget: cfg.DefaultVisitBudget}, nil
}

// Analyze returns the analysis of fn, computing it on first use. An
// incomplete enumeration is not an error.
func (a *Analyzer) Analyze(fn *compile.Func) (*Analysis, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if v, ok := a.cache.Get(fn); ok {
		return v.(*Analysis), nil
	}

	instrs := fn.Function.Instructions()
	g, err := cfg.New(instrs)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", fn.Name)
	}

	paths, err := cfg.Enumerate(g, a.VisitBudget)
	if err != nil && !errors.Is(err, cfg.ErrEnumerationIncomplete) {
		return nil, errors.Wrapf(err, "%s", fn.Name)
	}

	analysis := &Analysis{
		Func:       fn,
		Instrs:     instrs,
		Graph:      g,
		Incomplete: paths.Incomplete(),
		paths:      paths,
	}
	a.cache.Add(fn, analysis)
	return analysis, nil
}

package cfg

import (
	"github.com/benbjohnson/immutable"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// PathSet tracks which enumerated paths have been covered. The underlying
// maps are persistent so a clone shares structure with the original.
type PathSet struct {
	total      int
	incomplete bool

	remaining *immutable.SortedMap // id -> *Path
	covered   *immutable.SortedMap // id -> *Path
}

// NewPathSet returns a set with every path remaining.
func NewPathSet(paths []*Path) *PathSet {
	s := &PathSet{
		total:     len(paths),
		remaining: immutable.NewSortedMap(&intComparer{}),
		covered:   immutable.NewSortedMap(&intComparer{}),
	}
	for _, p := range paths {
		s.remaining = s.remaining.Set(p.ID, p)
	}
	return s
}

// Clone returns an independent copy of the set.
func (s *PathSet) Clone() *PathSet {
	other := *s
	return &other
}

// Len returns the total number of paths.
func (s *PathSet) Len() int { return s.total }

// Remaining returns the number of uncovered paths.
func (s *PathSet) Remaining() int { return s.remaining.Len() }

// Covered returns the number of covered paths.
func (s *PathSet) Covered() int { return s.covered.Len() }

// Incomplete returns true if enumeration stopped early.
func (s *PathSet) Incomplete() bool { return s.incomplete }

// Coverage returns the fraction of covered paths. An empty set is fully
// covered.
func (s *PathSet) Coverage() float64 {
	if s.total == 0 {
		return 1
	}
	return float64(s.covered.Len()) / float64(s.total)
}

// Match correlates a normalized trace with the set. If a remaining path
// equals steps it is moved to the covered set and returned with isNew set.
// If an already covered path equals steps it is returned with isNew unset.
// Returns nil if nothing matches.
func (s *PathSet) Match(steps []Step) (p *Path, isNew bool) {
	if p := find(s.remaining, steps); p != nil {
		s.remaining = s.remaining.Delete(p.ID)
		s.covered = s.covered.Set(p.ID, p)
		return p, true
	}
	return find(s.covered, steps), false
}

func find(m *immutable.SortedMap, steps []Step) *Path {
	itr := m.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		if p := v.(*Path); slices.Equal(p.Steps, steps) {
			return p
		}
	}
	return nil
}

// Paths returns all paths ordered by ID.
func (s *PathSet) Paths() []*Path {
	a := append(values(s.remaining), values(s.covered)...)
	slices.SortFunc(a, func(x, y *Path) int { return x.ID - y.ID })
	return a
}

// RemainingPaths returns the uncovered paths ordered by ID.
func (s *PathSet) RemainingPaths() []*Path { return values(s.remaining) }

// IsCovered returns true if the path with the given ID has been covered.
func (s *PathSet) IsCovered(id int) bool {
	_, ok := s.covered.Get(id)
	return ok
}

// ByExit groups all paths by their exit node.
func (s *PathSet) ByExit() map[int][]*Path {
	m := make(map[int][]*Path)
	for _, p := range s.Paths() {
		m[p.Exit] = append(m[p.Exit], p)
	}
	return m
}

// Exits returns the exit nodes that have at least one path, in order.
func (s *PathSet) Exits() []int {
	exits := maps.Keys(s.ByExit())
	slices.Sort(exits)
	return exits
}

func values(m *immutable.SortedMap) []*Path {
	a := make([]*Path, 0, m.Len())
	itr := m.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		a = append(a, v.(*Path))
	}
	return a
}

// intComparer compares two ints. Implements immutable.Comparer.
type intComparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not an int.
func (c *intComparer) Compare(a, b interface{}) int {
	if i, j := a.(int), b.(int); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}

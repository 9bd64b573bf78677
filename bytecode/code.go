package bytecode

import (
	"fmt"
	"sort"
)

// Code represents a compiled function body along with the pools its
// instructions index into.
type Code struct {
	Name      string
	Filename  string
	FirstLine int
	ArgCount  int

	Code     []byte
	Consts   []interface{}
	Names    []string
	Varnames []string
	Freevars []string

	// Lines maps instruction offsets to source lines, sorted by offset.
	// An entry applies until the next entry's offset.
	Lines []LineEntry
}

// LineEntry marks the first offset attributed to a source line.
type LineEntry struct {
	Offset int
	Line   int
}

// LineAt returns the source line for the instruction at offset.
// Returns FirstLine if no entry covers the offset.
func (c *Code) LineAt(offset int) int {
	i := sort.Search(len(c.Lines), func(i int) bool { return c.Lines[i].Offset > offset })
	if i == 0 {
		return c.FirstLine
	}
	return c.Lines[i-1].Line
}

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

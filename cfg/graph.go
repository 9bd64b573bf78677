// Package cfg builds control-flow graphs over decoded wordcode and
// enumerates the simple paths from the entry to each return.
package cfg

import (
	"strings"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/cockroachdb/errors"
)

// ErrInvalidTarget is returned when a jump resolves to an offset that is not
// the start of an instruction.
var ErrInvalidTarget = errors.New("cfg: invalid jump target")

// Tag is a set of advisory node flags.
type Tag uint8

const (
	TagLabel Tag = 1 << iota
	TagRelativeJump
	TagAbsoluteJump
	TagReturn
	TagEntry
)

var tagNames = []struct {
	tag  Tag
	name string
}{
	{TagEntry, "entry"},
	{TagLabel, "label"},
	{TagRelativeJump, "rjump"},
	{TagAbsoluteJump, "ajump"},
	{TagReturn, "return"},
}

// Has returns true if all flags in other are set.
func (t Tag) Has(other Tag) bool { return t&other == other }

// String returns the flag names joined by "|".
func (t Tag) String() string {
	var a []string
	for _, n := range tagNames {
		if t.Has(n.tag) {
			a = append(a, n.name)
		}
	}
	return strings.Join(a, "|")
}

// EdgeKind distinguishes sequential flow from taken jumps.
type EdgeKind int

const (
	EdgeFallthrough EdgeKind = iota
	EdgeJump
)

// String returns the name of the edge kind.
func (k EdgeKind) String() string {
	if k == EdgeJump {
		return "jump"
	}
	return "fallthrough"
}

// Node is a single instruction in the graph, keyed by its index in the
// decoded instruction stream.
type Node struct {
	Index int
	Instr bytecode.Instruction
	Tags  Tag
}

// Edge connects two nodes by index.
type Edge struct {
	From, To int
	Kind     EdgeKind
}

// Graph is the control-flow graph of a single function.
type Graph struct {
	Nodes []*Node
	succs [][]Edge
}

// New builds a graph from a decoded instruction stream.
//
// Jump targets are first mapped from offsets to node indices. Then each
// instruction falls through to the next one unless it is terminal, and every
// jump gets an edge to its target.
func New(instrs []bytecode.Instruction) (*Graph, error) {
	g := &Graph{
		Nodes: make([]*Node, len(instrs)),
		succs: make([][]Edge, len(instrs)),
	}

	index := make(map[int]int, len(instrs))
	for i := range instrs {
		index[instrs[i].Offset] = i
		g.Nodes[i] = &Node{Index: i, Instr: instrs[i]}
	}
	if len(g.Nodes) > 0 {
		g.Nodes[0].Tags |= TagEntry
	}

	targets := make([]int, len(instrs))
	for i := range instrs {
		targets[i] = -1

		offset, ok := instrs[i].Target()
		if !ok {
			continue
		}
		j, ok := index[offset]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidTarget, "%s at offset %d targets %d", instrs[i].Opcode, instrs[i].Offset, offset)
		}
		targets[i] = j
		g.Nodes[j].Tags |= TagLabel
	}

	for i, node := range g.Nodes {
		op := node.Instr.Opcode
		switch node.Instr.Kind {
		case bytecode.OperandRelativeJump:
			node.Tags |= TagRelativeJump
		case bytecode.OperandAbsoluteJump:
			node.Tags |= TagAbsoluteJump
		}
		if op.IsReturn() {
			node.Tags |= TagReturn
		}

		if !op.IsTerminal() && i+1 < len(g.Nodes) {
			g.succs[i] = append(g.succs[i], Edge{From: i, To: i + 1, Kind: EdgeFallthrough})
		}
		if j := targets[i]; j >= 0 && !(j == i+1 && !op.IsTerminal()) {
			g.succs[i] = append(g.succs[i], Edge{From: i, To: j, Kind: EdgeJump})
		}
	}
	return g, nil
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Nodes) }

// Succs returns the outgoing edges of node i in adjacency order.
func (g *Graph) Succs(i int) []Edge { return g.succs[i] }

// Edges returns all edges ordered by source node.
func (g *Graph) Edges() []Edge {
	var a []Edge
	for _, edges := range g.succs {
		a = append(a, edges...)
	}
	return a
}

// Returns returns the indices of all return nodes in program order.
func (g *Graph) Returns() []int {
	var a []int
	for _, node := range g.Nodes {
		if node.Tags.Has(TagReturn) {
			a = append(a, node.Index)
		}
	}
	return a
}

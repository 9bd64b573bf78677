package cfg

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteDOT writes the graph in Graphviz DOT format. Returns are filled red,
// jump targets blue and the entry green.
func (g *Graph) WriteDOT(w io.Writer, title string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph CFG {")
	fmt.Fprintln(bw, "  node [shape=box, fontname=\"monospace\", style=filled, fillcolor=white];")
	if title != "" {
		fmt.Fprintf(bw, "  labelloc=\"t\";\n  label=\"%s\";\n", escapeDOT(title))
	}

	for _, node := range g.Nodes {
		label := strings.TrimSpace(node.Instr.String())
		if node.Instr.Line > 0 {
			label = fmt.Sprintf("%s\nline %d", label, node.Instr.Line)
		}
		fmt.Fprintf(bw, "  n%d [label=\"%s\", fillcolor=%s];\n", node.Index, escapeDOT(label), fillColor(node.Tags))
	}

	for _, e := range g.Edges() {
		if e.Kind == EdgeJump {
			fmt.Fprintf(bw, "  n%d -> n%d [style=dashed];\n", e.From, e.To)
		} else {
			fmt.Fprintf(bw, "  n%d -> n%d;\n", e.From, e.To)
		}
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func fillColor(t Tag) string {
	switch {
	case t.Has(TagReturn):
		return "lightpink"
	case t.Has(TagEntry):
		return "palegreen"
	case t.Has(TagLabel):
		return "lightblue"
	default:
		return "white"
	}
}

func escapeDOT(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

package bytecode

import (
	"bytes"
	"fmt"
	"io"
	"sort"
)

// EntryKind identifies the type of a listing entry.
type EntryKind int

const (
	EntryInstr EntryKind = iota
	EntryLabel
	EntryLine
)

// Entry is a single element of a disassembly listing. Label and Line entries
// are display markers and never correspond to an instruction.
type Entry struct {
	Kind  EntryKind
	Instr *Instruction
	Label int // label number, for EntryLabel
	Line  int // source line, for EntryLine
}

// Disassemble decodes code and returns a listing with a Label marker before
// every jump target and a Line marker wherever the source line changes.
func Disassemble(code *Code) ([]Entry, error) {
	instrs, err := Decode(code)
	if err != nil {
		return nil, err
	}

	labels := Labels(instrs)
	entries := make([]Entry, 0, len(instrs)+len(labels)*2)
	line := -1
	for i := range instrs {
		in := &instrs[i]
		if in.Line != line {
			entries = append(entries, Entry{Kind: EntryLine, Line: in.Line})
			line = in.Line
		}
		if n, ok := labels[in.Offset]; ok {
			entries = append(entries, Entry{Kind: EntryLabel, Label: n})
		}
		entries = append(entries, Entry{Kind: EntryInstr, Instr: in})
	}
	return entries, nil
}

// Labels returns jump target offsets numbered in offset order.
func Labels(instrs []Instruction) map[int]int {
	var targets []int
	seen := make(map[int]struct{})
	for i := range instrs {
		if target, ok := instrs[i].Target(); ok {
			if _, ok := seen[target]; !ok {
				seen[target] = struct{}{}
				targets = append(targets, target)
			}
		}
	}
	sort.Ints(targets)

	m := make(map[int]int, len(targets))
	for i, target := range targets {
		m[target] = i
	}
	return m
}

// WriteListing writes a human readable listing of code to w.
func WriteListing(w io.Writer, code *Code) error {
	entries, err := Disassemble(code)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s (%s:%d) args=%d\n", code.Name, code.Filename, code.FirstLine, code.ArgCount)
	for _, e := range entries {
		switch e.Kind {
		case EntryLine:
			fmt.Fprintf(&buf, "  line %d:\n", e.Line)
		case EntryLabel:
			fmt.Fprintf(&buf, "L%d:\n", e.Label)
		case EntryInstr:
			fmt.Fprintf(&buf, "%s\n", e.Instr)
		}
	}
	_, err = w.Write(buf.Bytes())
	return err
}

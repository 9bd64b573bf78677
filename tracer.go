package pathgen

import (
	"bytes"
	"context"
	"fmt"

	"github.com/benbjohnson/pathgen/bytecode"
	"github.com/benbjohnson/pathgen/cfg"
	"github.com/benbjohnson/pathgen/compile"
	"github.com/benbjohnson/pathgen/vm"
)

// TraceKind is the kind of a trace entry.
type TraceKind int

const (
	TraceInstr TraceKind = iota
	TraceLine
	TraceLabel
)

// String returns the name of the kind.
func (k TraceKind) String() string {
	switch k {
	case TraceInstr:
		return "instr"
	case TraceLine:
		return "line"
	case TraceLabel:
		return "label"
	default:
		return fmt.Sprintf("TraceKind<%d>", int(k))
	}
}

// TraceEntry is a single event observed in the target function's frame.
// Label entries carry the target offset in Step.Offset.
type TraceEntry struct {
	Kind TraceKind
	Step cfg.Step
	Line int
}

// String returns a single line describing the entry.
func (e TraceEntry) String() string {
	switch e.Kind {
	case TraceLine:
		return fmt.Sprintf("line %d", e.Line)
	case TraceLabel:
		return fmt.Sprintf("label %d", e.Step.Offset)
	default:
		return e.Step.String()
	}
}

// TraceRecord is the ordered list of events from one invocation.
type TraceRecord struct {
	Entries []TraceEntry
}

// Steps returns the normalized instruction sequence of the record with the
// line and label markers removed.
func (r *TraceRecord) Steps() []cfg.Step {
	steps := make([]cfg.Step, 0, len(r.Entries))
	for _, e := range r.Entries {
		if e.Kind == TraceInstr {
			steps = append(steps, e.Step)
		}
	}
	return cfg.Normalize(steps)
}

// String returns one entry per line.
func (r *TraceRecord) String() string {
	var buf bytes.Buffer
	for _, e := range r.Entries {
		fmt.Fprintln(&buf, e.String())
	}
	return buf.String()
}

// recorder is the hook installed for a single traced call. It records only
// the outermost frame.
type recorder struct {
	rec *TraceRecord
}

func (r *recorder) OnLine(f *vm.Frame, line int) {
	if f.Depth() == 0 {
		r.rec.Entries = append(r.rec.Entries, TraceEntry{Kind: TraceLine, Line: line})
	}
}

func (r *recorder) OnLabel(f *vm.Frame, offset int) {
	if f.Depth() == 0 {
		r.rec.Entries = append(r.rec.Entries, TraceEntry{Kind: TraceLabel, Step: cfg.Step{Offset: offset}})
	}
}

func (r *recorder) OnInstr(f *vm.Frame, in *bytecode.Instruction) {
	if f.Depth() == 0 {
		r.rec.Entries = append(r.rec.Entries, TraceEntry{Kind: TraceInstr, Step: cfg.StepOf(in), Line: in.Line})
	}
}

// Tracer runs functions under an instruction-level trace.
type Tracer struct {
	// Machine limits applied to every traced call.
	MaxSteps int
	MaxDepth int
}

// NewTracer returns a new instance of Tracer with default machine limits.
func NewTracer() *Tracer {
	return &Tracer{
		MaxSteps: vm.DefaultMaxSteps,
		MaxDepth: vm.DefaultMaxDepth,
	}
}

// Trace calls fn with args. The hook is scoped to this call so concurrent
// traces never observe each other. The record is returned even when the call
// raises or is cancelled.
func (t *Tracer) Trace(ctx context.Context, fn *compile.Func, args []vm.Value) (*TraceRecord, vm.Value, error) {
	rec := &TraceRecord{}
	m := &vm.Machine{
		Globals:  fn.Module,
		MaxSteps: t.MaxSteps,
		MaxDepth: t.MaxDepth,
	}
	result, err := m.Call(ctx, fn.Function, args, &recorder{rec: rec})
	return rec, result, err
}

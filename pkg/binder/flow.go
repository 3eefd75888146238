package binder

import (
	"fmt"
	"strings"

	"github.com/vito/typhon/pkg/pyast"
)

// FlowKind classifies a flow node.
type FlowKind int

const (
	FlowStart FlowKind = iota
	FlowUnreachable
	// FlowAssignment binds (or with Unbind, deletes) Key.
	FlowAssignment
	FlowTrueCondition
	FlowFalseCondition
	FlowBranchLabel
	FlowLoopLabel
	// FlowCall follows a call expression; a call to a NoReturn function
	// makes the path unreachable.
	FlowCall
	// FlowNarrowForPattern narrows a match subject by a case pattern.
	// Positive is false on the path where the pattern did not match.
	FlowNarrowForPattern
	// FlowPostContextManager joins the exception paths of a with body.
	// They are reachable only if a context manager swallows exceptions.
	FlowPostContextManager
)

func (k FlowKind) String() string {
	switch k {
	case FlowStart:
		return "start"
	case FlowUnreachable:
		return "unreachable"
	case FlowAssignment:
		return "assignment"
	case FlowTrueCondition:
		return "true"
	case FlowFalseCondition:
		return "false"
	case FlowBranchLabel:
		return "branch"
	case FlowLoopLabel:
		return "loop"
	case FlowCall:
		return "call"
	case FlowNarrowForPattern:
		return "pattern"
	case FlowPostContextManager:
		return "post-with"
	}
	return "unknown"
}

// FlowNode is a program point. The graph is walked backwards along
// Antecedents.
type FlowNode struct {
	ID          int
	Kind        FlowKind
	Antecedents []*FlowNode

	// Node is the assignment target, condition expression, call, with
	// statement or match case the node refers to.
	Node pyast.Node
	// Key is the reference assigned by a FlowAssignment.
	Key    RefKey
	Symbol *Symbol
	Unbind bool

	// Subject and Pattern describe a FlowNarrowForPattern.
	Subject  pyast.Expr
	Pattern  pyast.Pattern
	Positive bool

	// Keys lists references assigned anywhere inside a loop, so the walker
	// can skip loops that cannot affect a reference.
	Keys map[RefKey]bool
}

// Antecedent returns the single predecessor of a linear node.
func (f *FlowNode) Antecedent() *FlowNode {
	if len(f.Antecedents) == 0 {
		return nil
	}
	return f.Antecedents[0]
}

// IsLabel reports whether the node joins several paths.
func (f *FlowNode) IsLabel() bool {
	return f.Kind == FlowBranchLabel || f.Kind == FlowLoopLabel
}

func (f *FlowNode) String() string {
	var ids []string
	for _, a := range f.Antecedents {
		ids = append(ids, fmt.Sprint(a.ID))
	}
	s := fmt.Sprintf("#%d %s", f.ID, f.Kind)
	if f.Key != "" {
		s += " " + string(f.Key)
	}
	if len(ids) > 0 {
		s += " <- " + strings.Join(ids, ",")
	}
	return s
}

// Graph allocates flow nodes for one module.
type Graph struct {
	nextID      int
	unreachable *FlowNode
}

func newGraph() *Graph {
	g := &Graph{}
	g.unreachable = g.node(FlowUnreachable)
	return g
}

func (g *Graph) node(kind FlowKind, antecedents ...*FlowNode) *FlowNode {
	g.nextID++
	return &FlowNode{ID: g.nextID, Kind: kind, Antecedents: antecedents}
}

// Unreachable is the shared unreachable node.
func (g *Graph) Unreachable() *FlowNode {
	return g.unreachable
}

func (g *Graph) label(kind FlowKind) *FlowNode {
	return g.node(kind)
}

// addAntecedent links from into a label, skipping unreachable paths and
// duplicates.
func addAntecedent(label, from *FlowNode) {
	if from == nil || from.Kind == FlowUnreachable {
		return
	}
	for _, a := range label.Antecedents {
		if a == from {
			return
		}
	}
	label.Antecedents = append(label.Antecedents, from)
}

// finish collapses a label: no antecedents means unreachable, and a branch
// label with a single antecedent is just that antecedent.
func (g *Graph) finish(label *FlowNode) *FlowNode {
	switch {
	case len(label.Antecedents) == 0:
		return g.unreachable
	case len(label.Antecedents) == 1 && label.Kind == FlowBranchLabel:
		return label.Antecedents[0]
	}
	return label
}

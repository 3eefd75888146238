package checker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/vito/typhon/pkg/pyast"
	"github.com/vito/typhon/pkg/types"
)

// ErrorKind classifies a diagnostic by root cause.
type ErrorKind int

const (
	UnresolvedSymbol ErrorKind = iota
	ArityMismatch
	AssignabilityFailure
	VarianceViolation
	ConstraintSetConflict
	OverloadExhausted
	MemberMissing
	// RecursionGuardTriggered is informational and never reported to users.
	RecursionGuardTriggered
	AmbiguousOverload

	TypeParamDefault
	OverlappingOverload
	UnsafeCapture
	PossiblyUnbound
	RevealType
	AssertType
	ParseError
	ImportMissing
	UnionExpansionLimit
	InvalidTypeForm
	NotCallable
	UnsupportedOperator
	PartiallyUnknown
	ReturnType
	InvalidDeclaration
)

var kindNames = [...]string{
	UnresolvedSymbol:        "UnresolvedSymbol",
	ArityMismatch:           "ArityMismatch",
	AssignabilityFailure:    "AssignabilityFailure",
	VarianceViolation:       "VarianceViolation",
	ConstraintSetConflict:   "ConstraintSetConflict",
	OverloadExhausted:       "OverloadExhausted",
	MemberMissing:           "MemberMissing",
	RecursionGuardTriggered: "RecursionGuardTriggered",
	AmbiguousOverload:       "AmbiguousOverload",
	TypeParamDefault:        "TypeParamDefault",
	OverlappingOverload:     "OverlappingOverload",
	UnsafeCapture:           "UnsafeCapture",
	PossiblyUnbound:         "PossiblyUnbound",
	RevealType:              "RevealType",
	AssertType:              "AssertType",
	ParseError:              "ParseError",
	ImportMissing:           "ImportMissing",
	UnionExpansionLimit:     "UnionExpansionLimit",
	InvalidTypeForm:         "InvalidTypeForm",
	NotCallable:             "NotCallable",
	UnsupportedOperator:     "UnsupportedOperator",
	PartiallyUnknown:        "PartiallyUnknown",
	ReturnType:              "ReturnType",
	InvalidDeclaration:      "InvalidDeclaration",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Rule is the kebab-case name used to refer to the kind in output.
func (k ErrorKind) Rule() string {
	return strcase.ToKebab(k.String())
}

// Severity of a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInformation
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	}
	return "error"
}

func (k ErrorKind) severity() Severity {
	switch k {
	case RevealType, UnsafeCapture:
		return SeverityInformation
	case PossiblyUnbound, PartiallyUnknown, UnionExpansionLimit:
		return SeverityWarning
	}
	return SeverityError
}

// Diagnostic is a type error or note attached to a source range.
type Diagnostic struct {
	Kind     ErrorKind
	Severity Severity
	Message  string
	Location *pyast.SourceLocation

	// Source and Dest are set for assignability failures.
	Source types.Type
	Dest   types.Type
	// Member names the missing or mismatched member.
	Member string
}

func (d *Diagnostic) Error() string {
	if d.Location == nil {
		return d.Message
	}
	return fmt.Sprintf("%s:%d:%d: %s", d.Location.Filename, d.Location.Line, d.Location.Column, d.Message)
}

// diagnosticSink collects diagnostics per file, dropping duplicates.
type diagnosticSink struct {
	byFile map[string][]*Diagnostic
	seen   map[string]bool
}

func newDiagnosticSink() *diagnosticSink {
	return &diagnosticSink{
		byFile: map[string][]*Diagnostic{},
		seen:   map[string]bool{},
	}
}

func diagnosticKey(d *Diagnostic) (file, key string) {
	if d.Location == nil {
		return "", d.Message
	}
	l := d.Location
	return l.Filename, fmt.Sprintf("%s:%d:%d:%d:%s", l.Filename, l.Line, l.Column, l.Length, d.Message)
}

func (s *diagnosticSink) add(d *Diagnostic) bool {
	file, key := diagnosticKey(d)
	if s.seen[key] {
		return false
	}
	s.seen[key] = true
	s.byFile[file] = append(s.byFile[file], d)
	return true
}

func (s *diagnosticSink) drop(file string) {
	for _, d := range s.byFile[file] {
		_, key := diagnosticKey(d)
		delete(s.seen, key)
	}
	delete(s.byFile, file)
}

// sorted returns the diagnostics of a file in source order.
func (s *diagnosticSink) sorted(file string) []*Diagnostic {
	out := append([]*Diagnostic(nil), s.byFile[file]...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Location, out[j].Location
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

// CallFailure explains why a call did not type check.
type CallFailure struct {
	Kind   ErrorKind
	Reason string
	// Member names the missing attribute, or the protocol member an
	// argument lacks or gets wrong.
	Member string
	// Arg is the offending argument, if any.
	Arg pyast.Node
	// Overloads lists the signatures that were attempted.
	Overloads []*types.FunctionType
	Source    types.Type
	Dest      types.Type
}

func (f *CallFailure) Error() string {
	if len(f.Overloads) == 0 {
		return f.Reason
	}
	var b strings.Builder
	b.WriteString(f.Reason)
	for _, o := range f.Overloads {
		b.WriteString("\n  Overload: ")
		b.WriteString(o.String())
	}
	return b.String()
}

// CallResult is the outcome of checking a call.
type CallResult struct {
	ReturnType types.Type
	// Failure is nil when the arguments matched.
	Failure *CallFailure
	// Overload is the matched overload of an overloaded callee.
	Overload *types.FunctionType
	// Incomplete is set when part of the evaluation hit a cycle.
	Incomplete bool
}

// OK reports whether the call type checked.
func (r *CallResult) OK() bool {
	return r.Failure == nil
}

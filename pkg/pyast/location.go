package pyast

import "fmt"

// SourceLocation represents a location in source code
type SourceLocation struct {
	Filename string
	Line     int
	Column   int
	Length   int             // Length of the syntax node in bytes
	End      *SourcePosition // End position of the node
}

// SourcePosition represents a position in source code
type SourcePosition struct {
	Line   int
	Column int
}

func (loc *SourceLocation) String() string {
	if loc == nil {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", loc.Filename, loc.Line, loc.Column)
}

// Contains reports whether the 1-based line and column fall inside the
// location's range.
func (loc *SourceLocation) Contains(line, col int) bool {
	if loc == nil || loc.End == nil {
		return false
	}
	if line < loc.Line || line > loc.End.Line {
		return false
	}
	if line == loc.Line && col < loc.Column {
		return false
	}
	if line == loc.End.Line && col > loc.End.Column {
		return false
	}
	return true
}

// IsWithin checks if this location is within the given range
func (loc *SourceLocation) IsWithin(bounds *SourceLocation) bool {
	if loc == nil || bounds == nil {
		return false
	}
	if bounds.Filename != "" && loc.Filename != bounds.Filename {
		return false
	}
	return bounds.Contains(loc.Line, loc.Column)
}

// SyntaxError is a parse failure reported by the front-end.
type SyntaxError struct {
	Message  string
	Location *SourceLocation
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s: %s", e.Location, e.Message)
}

//go:build typhondebug

package checker

import "fmt"

// invariant panics when an internal invariant does not hold.
func invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("internal invariant violated: "+format, args...))
	}
}

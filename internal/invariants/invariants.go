// Package invariants gates debug-only assertions on reference counts.
//
// Assertions are compiled in with the "invariants" build tag, and also
// whenever the race detector is on, so `go test -race` checks them too.
package invariants

import "fmt"

// Check panics with a formatted message when Enabled and cond is false.
func Check(cond bool, format string, args ...any) {
	if Enabled && !cond {
		panic(fmt.Sprintf("invariant violated: "+format, args...))
	}
}

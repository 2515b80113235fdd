//go:build !invariants && !race

package invariants

// Enabled is true when debug assertions are compiled in.
const Enabled = false

//go:build !release

// Package assert provides runtime invariant checks for conditions that can only fail because of a
// bug inside this module. They panic in development builds and compile to nothing with the
// release build tag.
package assert

import "fmt"

// That panics with the formatted message if cond is false.
func That(cond bool, format string, args ...any) { //nolint:goprintffuncname // it's ok
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

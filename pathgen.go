// Package pathgen discovers the execution paths of compiled Go functions and
// searches for inputs that cover them. Every covering invocation becomes a
// generated regression test.
package pathgen

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrTimeout       = errors.New("pathgen: invocation timeout")
	ErrNotSearchable = errors.New("pathgen: function is not searchable")
	ErrInvalidMode   = errors.New("pathgen: invalid generator mode")
)

// assert panics if condition is false.
func assert(condition bool, format string, args ...interface{}) {
	if !condition {
		panic(fmt.Sprintf("assert: "+format, args...))
	}
}

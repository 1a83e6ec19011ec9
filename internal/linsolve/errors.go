package linsolve

import (
	"errors"
	"fmt"
)

// These sentinels let callers classify failures with errors.Is.
var (
	// ErrStructural marks a problem New detects at construction time: a node
	// with no path to the datum, or a failure to allocate the sparse matrix.
	// branch.New's own validation errors (duplicate names, ordering) do not
	// wrap it.
	ErrStructural = errors.New("linsolve: structural error")

	// ErrInvariant marks a misuse of Alter: a bad index, a mismatched
	// indices/values length.
	ErrInvariant = errors.New("linsolve: invariant violation")

	// ErrStale marks an attempt to read branch voltage/current before a
	// successful Solve.
	ErrStale = errors.New("linsolve: solution is stale; call Solve first")
)

// FactorError reports that LU factorization failed -- typically a singular
// G from a floating ground or a disconnected subgraph that the
// connectivity pre-check did not catch (e.g. a zero-valued conductance on
// the only path to ground). Callers must not proceed to query branch
// voltages/currents when they see one.
type FactorError struct {
	Err error
}

func (e *FactorError) Error() string {
	return fmt.Sprintf("linsolve: factorization failed: %v", e.Err)
}

func (e *FactorError) Unwrap() error { return e.Err }

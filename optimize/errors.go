package optimize

import (
	"errors"
	"fmt"
)

// ErrInfeasible is returned when the termination condition reports an
// infeasible model.
var ErrInfeasible = errors.New("solving status 'infeasible'")

// SolveError carries the status and termination condition of a failed
// solve.
type SolveError struct {
	Status    string
	Condition string
	Iteration int // 0 for single-shot solves
}

func (e *SolveError) Error() string {
	if e.Iteration > 0 {
		return fmt.Sprintf("solve failed in iteration %d with status '%s' and condition '%s'", e.Iteration, e.Status, e.Condition)
	}
	return fmt.Sprintf("solve failed with status '%s' and condition '%s'", e.Status, e.Condition)
}

// Is makes errors.Is(err, ErrInfeasible) match infeasible conditions.
func (e *SolveError) Is(target error) bool {
	return target == ErrInfeasible && containsInfeasible(e.Condition)
}

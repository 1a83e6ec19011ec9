// Package adjoint implements the adjoint-gradient method and a stateful
// forward/backward front over a linsolve.System, giving every candidate
// conductance's gradient from a single extra linear solve.
package adjoint

import (
	"errors"
	"fmt"

	"github.com/pumpkinblade/pdn/internal/linsolve"
)

// Gradient computes the gradient of every candidate conductance in
// canIndex with respect to a loss whose gradients at the observation points
// are volGrad (w.r.t. vol_obs_index) and curGrad (w.r.t. cur_obs_index).
//
// It performs exactly one extra linear solve, reusing the cached LU
// factorization: read the primal candidate voltages first (this must
// happen before the excitations below are overwritten), zero every
// excitation, write the observation
// gradients in as the new excitation values, solve again, and multiply the
// two candidate-voltage readings element-wise. vol_grad/cur_grad are written
// in with no separate negation: the sign is already carried by the
// branch-voltage convention shared by both solves.
func Gradient(sys *linsolve.System, canIndex, volObsIndex, curObsIndex []int, volGrad, curGrad []float64) ([]float64, error) {
	originVoltage, err := sys.BranchVoltage(canIndex)
	if err != nil {
		return nil, fmt.Errorf("adjoint: reading primal candidate voltages: %w", err)
	}

	exc := sys.ExcitationIndices()
	if err := sys.Alter(exc, make([]float64, len(exc))); err != nil {
		return nil, fmt.Errorf("adjoint: clearing excitations: %w", err)
	}
	if err := sys.Alter(volObsIndex, volGrad); err != nil {
		return nil, fmt.Errorf("adjoint: writing voltage-gradient excitation: %w", err)
	}
	if err := sys.Alter(curObsIndex, curGrad); err != nil {
		return nil, fmt.Errorf("adjoint: writing current-gradient excitation: %w", err)
	}
	if err := sys.Solve(); err != nil {
		return nil, fmt.Errorf("adjoint: solving adjoint system: %w", err)
	}

	adjointVoltage, err := sys.BranchVoltage(canIndex)
	if err != nil {
		return nil, fmt.Errorf("adjoint: reading adjoint candidate voltages: %w", err)
	}

	grad := make([]float64, len(canIndex))
	for i := range grad {
		grad[i] = originVoltage[i] * adjointVoltage[i]
	}
	return grad, nil
}

// State is one of Fresh, Forwarded, or Backwarded.
type State int

const (
	Fresh State = iota
	Forwarded
	Backwarded
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "Fresh"
	case Forwarded:
		return "Forwarded"
	case Backwarded:
		return "Backwarded"
	default:
		return "?"
	}
}

// ErrNotForwarded is returned by Backward when no Forward has run since the
// front was created or since the last Backward.
var ErrNotForwarded = errors.New("adjoint: backward called without a preceding forward")

// Front is a single forward/backward pair over a linsolve.System. It starts
// Fresh; a successful Forward moves it to Forwarded from any state, and a
// successful Backward moves it from Forwarded to Backwarded. It never returns
// to Fresh. Forward always resets the circuit's excitations, so the state
// before Forward never matters.
type Front struct {
	sys *linsolve.System

	canIndex    []int
	volObsIndex []int
	curObsIndex []int

	state State
}

// NewFront wraps a linsolve.System in a Fresh Front.
func NewFront(sys *linsolve.System) *Front {
	return &Front{sys: sys, state: Fresh}
}

// State returns the front's current state.
func (f *Front) State() State { return f.state }

// Forward re-zeros every excitation, writes the candidate and excitation
// values, solves, and returns the requested voltage and current
// observations.
func (f *Front) Forward(canValues []float64, canIndex []int, excValues []float64, excIndex []int, volObsIndex, curObsIndex []int) (volObs, curObs []float64, err error) {
	exc := f.sys.ExcitationIndices()
	if err := f.sys.Alter(exc, make([]float64, len(exc))); err != nil {
		return nil, nil, fmt.Errorf("adjoint: clearing excitations: %w", err)
	}
	if err := f.sys.Alter(canIndex, canValues); err != nil {
		return nil, nil, fmt.Errorf("adjoint: writing candidates: %w", err)
	}
	if err := f.sys.Alter(excIndex, excValues); err != nil {
		return nil, nil, fmt.Errorf("adjoint: writing excitations: %w", err)
	}
	if err := f.sys.Solve(); err != nil {
		return nil, nil, fmt.Errorf("adjoint: solving: %w", err)
	}

	volObs, err = f.sys.BranchVoltage(volObsIndex)
	if err != nil {
		return nil, nil, err
	}
	curObs, err = f.sys.BranchCurrent(curObsIndex)
	if err != nil {
		return nil, nil, err
	}

	f.canIndex = canIndex
	f.volObsIndex = volObsIndex
	f.curObsIndex = curObsIndex
	f.state = Forwarded

	return volObs, curObs, nil
}

// Backward consumes the scene set up by the last Forward and returns the
// candidate gradient. After it returns, the underlying circuit's branch
// values no longer match that forward scene -- a new Forward is required
// before reading branch state again.
func (f *Front) Backward(volGrad, curGrad []float64) ([]float64, error) {
	if f.state != Forwarded {
		return nil, ErrNotForwarded
	}
	grad, err := Gradient(f.sys, f.canIndex, f.volObsIndex, f.curObsIndex, volGrad, curGrad)
	if err != nil {
		return nil, err
	}
	f.state = Backwarded
	return grad, nil
}

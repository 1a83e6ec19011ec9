package adjoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pumpkinblade/pdn/internal/branch"
	"github.com/pumpkinblade/pdn/internal/linsolve"
)

// buildCandidateCircuit builds a 3-node circuit: V1 pins node "s" to 1.8V,
// I1 draws 0.1A off node "1", and gx0 is a candidate conductance between
// them. With V("s")=1.8 fixed, V("1") = 1.8 - 0.1/gx0 -- a one-candidate
// stand-in for the PDN pad-placement hot path, small enough to solve by
// hand.
func buildCandidateCircuit(t *testing.T, g0 float64) (*linsolve.System, int, int, int) {
	t.Helper()
	nodeNames := []string{"0", "s", "1"}
	names := []string{"v1", "i1", "gx0"}
	u := []int{1, 2, 1} // v1: u=id(s); i1: u=id(1); gx0: u=id(s)
	v := []int{0, 0, 2} // v1: v=0; i1: v=0; gx0: v=id(1)
	types := []branch.Type{branch.Voltage, branch.Current, branch.Conductance}

	store, err := branch.New(nodeNames, names, u, v, types)
	require.NoError(t, err)
	sys, err := linsolve.New(store, []float64{1.8, 0.1, g0})
	require.NoError(t, err)

	v1Idx, _ := store.FindBranch("v1")
	i1Idx, _ := store.FindBranch("i1")
	gx0Idx, _ := store.FindBranch("gx0")
	return sys, v1Idx, i1Idx, gx0Idx
}

// TestGradientMatchesFiniteDifference is the E5 check: the adjoint gradient
// of V("1") with respect to gx0 must agree with a one-sided (forward) finite
// difference to within 1e-3.
func TestGradientMatchesFiniteDifference(t *testing.T) {
	const g0 = 10.0
	sys, v1Idx, i1Idx, gx0Idx := buildCandidateCircuit(t, g0)

	canIndex := []int{gx0Idx}
	excIndex := []int{v1Idx, i1Idx}
	excValues := []float64{1.8, 0.1}
	volObsIndex := []int{i1Idx} // i1's branch voltage V(1)-V(0) = V("1")
	curObsIndex := []int{v1Idx} // current drawn through the supply

	front := NewFront(sys)

	volObs, _, err := front.Forward([]float64{g0}, canIndex, excValues, excIndex, volObsIndex, curObsIndex)
	require.NoError(t, err)
	require.Len(t, volObs, 1)
	assert.InDelta(t, 1.79, volObs[0], 1e-9, "V(1) = 1.8 - 0.1/10")

	grad, err := front.Backward([]float64{1.0}, []float64{0.0})
	require.NoError(t, err)
	require.Len(t, grad, 1)
	assert.InDelta(t, 0.001, grad[0], 1e-9, "analytic dV(1)/dgx0 = 0.1/g0^2 at g0=10")

	const eps = 1e-4
	volObsPerturbed, _, err := front.Forward([]float64{g0 + eps}, canIndex, excValues, excIndex, volObsIndex, curObsIndex)
	require.NoError(t, err)
	finiteDiff := (volObsPerturbed[0] - volObs[0]) / eps

	assert.InDelta(t, finiteDiff, grad[0], 1e-3, "adjoint gradient vs finite difference")
}

// TestForwardReflectsConductanceIncrease is the E6 check: altering a
// candidate conductance and re-solving through the front must produce the
// increased V("1") the rebuilt-matrix fix in package linsolve makes
// possible. Before that fix, a second Forward on the same front -- which
// necessarily lands on a System whose LU was already cached by the first
// Forward's Solve -- risked delta-accumulating onto stale LU data instead of
// a clean conductance value.
func TestForwardReflectsConductanceIncrease(t *testing.T) {
	sys, v1Idx, i1Idx, gx0Idx := buildCandidateCircuit(t, 10.0)

	canIndex := []int{gx0Idx}
	excIndex := []int{v1Idx, i1Idx}
	excValues := []float64{1.8, 0.1}
	volObsIndex := []int{i1Idx}
	curObsIndex := []int{v1Idx}

	front := NewFront(sys)

	volObsAt10, _, err := front.Forward([]float64{10.0}, canIndex, excValues, excIndex, volObsIndex, curObsIndex)
	require.NoError(t, err)
	assert.InDelta(t, 1.79, volObsAt10[0], 1e-9)

	volObsAt20, _, err := front.Forward([]float64{20.0}, canIndex, excValues, excIndex, volObsIndex, curObsIndex)
	require.NoError(t, err)
	assert.InDelta(t, 1.795, volObsAt20[0], 1e-9, "V(1) = 1.8 - 0.1/20")
	assert.Greater(t, volObsAt20[0], volObsAt10[0], "V(1) must increase as the candidate conductance increases")
}

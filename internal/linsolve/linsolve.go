// Package linsolve implements the MNA assembler, the incremental Alter
// operation, the cached-LU linear solver, and the branch-voltage/current
// query surface for a fixed-topology resistive network.
package linsolve

import (
	"fmt"

	"github.com/edp1096/sparse"
	"github.com/katalvlaran/lvlath/graph"

	"github.com/pumpkinblade/pdn/internal/branch"
)

// System couples a branch.Store to its assembled conductance matrix:
// assembly, incremental alteration, cached-LU solving, and branch
// voltage/current queries all live on this one type, the way a
// SPICE-style circuit matrix couples node bookkeeping to the sparse
// matrix it stamps.
type System struct {
	store *branch.Store

	numNonDatum int
	dim         int

	sp *sparse.Matrix
	j  []float64 // 1-based, length dim+1

	solution []float64
	luValid  bool
	vValid   bool
}

// New constructs a System: it validates ground reachability, allocates the
// sparse matrix, and applies every branch's real value through Alter
// against the zero baseline -- the same code path every later mutation goes
// through. The matrix itself is left unstamped until the first Solve;
// rebuildMatrix stamps it from scratch from the store's values.
func New(store *branch.Store, initialValues []float64) (*System, error) {
	if len(initialValues) != store.NumBranches() {
		return nil, fmt.Errorf("%w: %d initial values for %d branches", ErrInvariant, len(initialValues), store.NumBranches())
	}

	numNonDatum := store.NumNodes() - 1
	dim := numNonDatum + store.NumVoltage()

	if err := checkGroundConnectivity(store); err != nil {
		return nil, err
	}

	config := &sparse.Configuration{
		Real:           true,
		Expandable:     true,
		ModifiedNodal:  true,
		TiesMultiplier: 5,
	}
	sp, err := sparse.Create(int64(dim), config)
	if err != nil {
		return nil, fmt.Errorf("%w: creating sparse matrix: %v", ErrStructural, err)
	}

	sys := &System{
		store:       store,
		numNonDatum: numNonDatum,
		dim:         dim,
		sp:          sp,
		j:           make([]float64, dim+1),
	}

	indices := make([]int, store.NumBranches())
	for i := range indices {
		indices[i] = i
	}
	if err := sys.Alter(indices, initialValues); err != nil {
		return nil, err
	}

	return sys, nil
}

// voltageLine returns the matrix row assigned to the k-th V-branch (0-based
// among V-branches). Branches are grouped V first, so the k-th V-branch has
// global branch index k; rows are assigned consecutively starting right
// after the non-datum node rows.
func (s *System) voltageLine(k int) int { return s.numNonDatum + k + 1 }

// stampElement accumulates into the live matrix during a rebuild. Unlike
// Alter's bookkeeping it never touches luValid/vValid -- rebuildMatrix only
// runs as part of getting back to a valid factorization.
func (s *System) stampElement(i, j int, value float64) {
	if i == 0 || j == 0 {
		return
	}
	s.sp.GetElement(int64(i), int64(j)).Real += value
}

// rebuildMatrix clears the sparse matrix and re-stamps it in full from the
// store's current absolute values: the fixed V-branch coupling entries plus
// every G-branch's diagonal/off-diagonal contribution. Factor() overwrites a
// sparse matrix's elements with its LU factors in place, so the matrix
// cannot be trusted to still hold conductance values once luValid has gone
// false -- accumulating a delta onto it the way Alter used to would stamp
// the delta on top of stale LU data. A full Clear+restamp before every
// refactor avoids that regardless of what Factor leaves behind.
func (s *System) rebuildMatrix() {
	s.sp.Clear()

	for k := 0; k < s.store.NumVoltage(); k++ {
		line := s.voltageLine(k)
		u, v := s.store.U[k], s.store.V[k]
		if u != 0 {
			s.stampElement(u, line, 1)
			s.stampElement(line, u, 1)
		}
		if v != 0 {
			s.stampElement(v, line, -1)
			s.stampElement(line, v, -1)
		}
	}

	n := s.store.NumBranches()
	for idx := 0; idx < n; idx++ {
		if s.store.Types[idx] != branch.Conductance {
			continue
		}
		u, v := s.store.U[idx], s.store.V[idx]
		g := s.store.Values[idx]
		if u != 0 {
			s.stampElement(u, u, g)
		}
		if v != 0 {
			s.stampElement(v, v, g)
		}
		if u != 0 && v != 0 {
			s.stampElement(u, v, -g)
			s.stampElement(v, u, -g)
		}
	}
}

func (s *System) addRHS(i int, delta float64) {
	if i == 0 {
		return
	}
	s.j[i] += delta
	s.vValid = false
}

func (s *System) setRHS(i int, value float64) {
	if i == 0 {
		return
	}
	s.j[i] = value
	s.vValid = false
}

// Alter applies new values to the given branch indices. A V-branch change
// pins its row directly in J and invalidates only the cached solution; an
// I-branch change accumulates a J delta and likewise invalidates only the
// cached solution; a G-branch change invalidates both the cached solution
// and the cached LU factorization -- it never touches the sparse matrix
// itself. The matrix is rebuilt from scratch, in one pass over the current
// absolute values, the next time a stale factorization is needed (see
// rebuildMatrix).
func (s *System) Alter(indices []int, values []float64) error {
	if len(indices) != len(values) {
		return fmt.Errorf("%w: %d indices for %d values", ErrInvariant, len(indices), len(values))
	}
	n := s.store.NumBranches()
	for _, idx := range indices {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: branch index %d out of range [0,%d)", ErrInvariant, idx, n)
		}
	}

	for k, idx := range indices {
		old := s.store.Values[idx]
		newVal := values[k]
		delta := newVal - old

		switch s.store.Types[idx] {
		case branch.Voltage:
			line := s.voltageLine(idx)
			s.setRHS(line, newVal)

		case branch.Current:
			if delta == 0 {
				continue
			}
			u, v := s.store.U[idx], s.store.V[idx]
			s.addRHS(u, -delta)
			s.addRHS(v, delta)

		case branch.Conductance:
			if delta == 0 {
				continue
			}
			s.luValid = false
			s.vValid = false
		}
	}

	for k, idx := range indices {
		s.store.Values[idx] = values[k]
	}

	return nil
}

// Solve returns the cached solution if nothing has changed since the last
// call; otherwise it rebuilds and refactorizes G only if a G-branch
// changed, then always re-solves against the current J.
func (s *System) Solve() error {
	if s.vValid {
		return nil
	}
	if !s.luValid {
		s.rebuildMatrix()
		if err := s.sp.Factor(); err != nil {
			return &FactorError{Err: err}
		}
		s.luValid = true
	}
	sol, err := s.sp.Solve(s.j)
	if err != nil {
		return fmt.Errorf("linsolve: solve: %w", err)
	}
	s.solution = sol
	s.vValid = true
	return nil
}

// SolveRHS solves the cached LU factorization against an arbitrary
// right-hand side without disturbing the cached primal solution or J. It
// rebuilds and refactorizes first if the LU is stale. Gᵀ = G for this
// symmetric system, so the same factorization solves both directions.
// package adjoint does not call it: its Gradient rewrites the excitations
// through Alter and calls Solve instead.
func (s *System) SolveRHS(rhs []float64) ([]float64, error) {
	if !s.luValid {
		s.rebuildMatrix()
		if err := s.sp.Factor(); err != nil {
			return nil, &FactorError{Err: err}
		}
		s.luValid = true
	}
	sol, err := s.sp.Solve(rhs)
	if err != nil {
		return nil, fmt.Errorf("linsolve: solve rhs: %w", err)
	}
	return sol, nil
}

func (s *System) hasSolution() bool { return s.vValid && s.solution != nil }

// BranchVoltage returns V(u)-V(v) for each requested branch, reading the
// cached solution. Ground (node id 0) always reads as zero.
func (s *System) BranchVoltage(indices []int) ([]float64, error) {
	if !s.hasSolution() {
		return nil, ErrStale
	}
	out := make([]float64, len(indices))
	for k, idx := range indices {
		out[k] = s.nodeVoltage(s.store.U[idx]) - s.nodeVoltage(s.store.V[idx])
	}
	return out, nil
}

func (s *System) nodeVoltage(id int) float64 {
	if id == 0 {
		return 0
	}
	return s.solution[id]
}

// BranchCurrent returns the current through each requested branch, reading
// the cached solution: the solved line unknown for a V-branch, the stored
// value for an I-branch, and value*(V(u)-V(v)) for a G-branch.
func (s *System) BranchCurrent(indices []int) ([]float64, error) {
	if !s.hasSolution() {
		return nil, ErrStale
	}
	out := make([]float64, len(indices))
	for k, idx := range indices {
		switch s.store.Types[idx] {
		case branch.Voltage:
			// idx is the idx-th branch overall, which for a V-branch equals
			// its position among V-branches (they are grouped first).
			out[k] = s.solution[s.voltageLine(idx)]
		case branch.Current:
			out[k] = s.store.Values[idx]
		case branch.Conductance:
			vdiff := s.nodeVoltage(s.store.U[idx]) - s.nodeVoltage(s.store.V[idx])
			out[k] = vdiff * s.store.Values[idx]
		}
	}
	return out, nil
}

// ExcitationIndices forwards to the underlying Store.
func (s *System) ExcitationIndices() []int { return s.store.ExcitationIndices() }

// IndicesWithPrefix forwards to the underlying Store.
func (s *System) IndicesWithPrefix(prefix string) []int { return s.store.IndicesWithPrefix(prefix) }

// Store exposes the underlying branch store for read-only queries (name
// lookups and the like).
func (s *System) Store() *branch.Store { return s.store }

// Destroy releases the sparse matrix's native resources.
func (s *System) Destroy() {
	if s.sp != nil {
		s.sp.Destroy()
	}
}

// checkGroundConnectivity builds an undirected graph over every branch's
// endpoints and runs a DFS from the datum node, turning a future singular-G
// factorization failure into a specific "node X has no path to ground"
// diagnostic before a single matrix element is even stamped.
func checkGroundConnectivity(store *branch.Store) error {
	g := graph.NewGraph(false, false)
	for id := 0; id < store.NumNodes(); id++ {
		g.AddVertex(&graph.Vertex{ID: nodeLabel(id), Metadata: map[string]interface{}{}})
	}
	for i := 0; i < store.NumBranches(); i++ {
		u, v := store.U[i], store.V[i]
		g.AddEdge(nodeLabel(u), nodeLabel(v), 1)
	}

	result, err := g.DFS(nodeLabel(0), nil)
	if err != nil {
		return fmt.Errorf("%w: ground connectivity check: %v", ErrStructural, err)
	}

	for id := 1; id < store.NumNodes(); id++ {
		if !result.Visited[nodeLabel(id)] {
			return fmt.Errorf("%w: node %q has no path to ground", ErrStructural, store.NodeName(id))
		}
	}
	return nil
}

func nodeLabel(id int) string { return fmt.Sprintf("n%d", id) }

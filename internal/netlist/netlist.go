// Package netlist reads a SPICE-like R/I/V netlist subset and performs the
// candidate-insertion graph rewrite that turns every ideal voltage-source
// branch into an optimizable pad candidate.
package netlist

import (
	"bufio"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pumpkinblade/pdn/internal/branch"
	"github.com/pumpkinblade/pdn/internal/consts"
	"github.com/pumpkinblade/pdn/internal/linsolve"
)

// Element is one parsed netlist line: a resistor, current source, or
// voltage source between two named nodes.
type Element struct {
	Name  string
	Type  branch.Type
	Nodes [2]string
	Value float64
}

var (
	resistorLine = regexp.MustCompile(`(?i)^(R\w+)\s+(\w+)\s+(\w+)\s+(?:R=)?(\S+)\s*$`)
	currentLine  = regexp.MustCompile(`(?i)^(I\w+)\s+(\w+)\s+(\w+)\s+(?:DC\s+)?(\S+)\s*$`)
	voltageLine  = regexp.MustCompile(`(?i)^(V\w+)\s+(\w+)\s+(\w+)\s+(?:DC\s+)?(\S+)\s*$`)
)

// Parse reads a line-oriented netlist. Only R, I, and V element lines are
// recognized; "*" and "." lines are comments/directives and are skipped.
// There is no device or transient/AC directive support.
func Parse(input string) ([]Element, error) {
	var elements []Element
	scanner := bufio.NewScanner(strings.NewReader(input))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, ".") {
			continue
		}
		elem, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("netlist: line %d: %w", lineNo, err)
		}
		elements = append(elements, *elem)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("netlist: %w", err)
	}
	return elements, nil
}

func parseLine(line string) (*Element, error) {
	switch strings.ToUpper(line[:1]) {
	case "R":
		m := resistorLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("malformed resistor line: %q", line)
		}
		ohms, err := consts.ParseValue(m[4])
		if err != nil {
			return nil, fmt.Errorf("resistor %s: %w", m[1], err)
		}
		if ohms == 0 {
			return nil, fmt.Errorf("resistor %s: zero resistance", m[1])
		}
		return &Element{
			Name:  "g" + strings.ToLower(m[1][1:]),
			Type:  branch.Conductance,
			Nodes: [2]string{normalizeNode(m[2]), normalizeNode(m[3])},
			Value: 1.0 / ohms,
		}, nil

	case "I":
		m := currentLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("malformed current source line: %q", line)
		}
		amps, err := consts.ParseValue(m[4])
		if err != nil {
			return nil, fmt.Errorf("current source %s: %w", m[1], err)
		}
		return &Element{
			Name:  strings.ToLower(m[1]),
			Type:  branch.Current,
			Nodes: [2]string{normalizeNode(m[2]), normalizeNode(m[3])},
			Value: amps,
		}, nil

	case "V":
		m := voltageLine.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("malformed voltage source line: %q", line)
		}
		volts, err := consts.ParseValue(m[4])
		if err != nil {
			return nil, fmt.Errorf("voltage source %s: %w", m[1], err)
		}
		return &Element{
			Name:  strings.ToLower(m[1]),
			Type:  branch.Voltage,
			Nodes: [2]string{normalizeNode(m[2]), normalizeNode(m[3])},
			Value: volts,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported element line: %q", line)
	}
}

func normalizeNode(name string) string {
	name = strings.ToLower(name)
	if name == "gnd" {
		return "0"
	}
	return name
}

// DefaultCandidateConductance is the conductance a freshly inserted gx
// branch starts at, distinct from a fully-placed pad's conductance (which
// the placement optimizer scales up from the neutral p=0.5 starting point).
// This is a fixed rewrite-time constant, not a tunable: it only sets the
// unoptimized operating point a bare `solve` reports.
const DefaultCandidateConductance = 10.0

// InsertCandidates splits every ideal voltage source u->v into a candidate
// conductance u->x (named gx0, gx1, ...) and the voltage source reattached
// as x->v, where x is a freshly introduced intermediate node. The gx
// branches are the placement optimizer's decision variables.
func InsertCandidates(elements []Element, initialConductance float64) []Element {
	out := make([]Element, 0, len(elements)+countVoltage(elements))
	next := 0
	for _, e := range elements {
		if e.Type != branch.Voltage {
			out = append(out, e)
			continue
		}
		u, v := e.Nodes[0], e.Nodes[1]
		x := fmt.Sprintf("x_%s_%d", u, next)
		out = append(out, Element{
			Name:  fmt.Sprintf("gx%d", next),
			Type:  branch.Conductance,
			Nodes: [2]string{u, x},
			Value: initialConductance,
		})
		out = append(out, Element{
			Name:  e.Name,
			Type:  branch.Voltage,
			Nodes: [2]string{x, v},
			Value: e.Value,
		})
		next++
	}
	return out
}

func countVoltage(elements []Element) int {
	n := 0
	for _, e := range elements {
		if e.Type == branch.Voltage {
			n++
		}
	}
	return n
}

// BuildSystem assigns dense node ids (datum "0" -> 0, everything else in
// first-seen order), groups branches V then I then G (the fixed ordering
// branch.Store requires), and constructs the linsolve.System.
func BuildSystem(elements []Element) (*linsolve.System, error) {
	nodeNames := []string{"0"}
	seen := map[string]bool{"0": true}
	for _, e := range elements {
		for _, n := range e.Nodes {
			if !seen[n] {
				seen[n] = true
				nodeNames = append(nodeNames, n)
			}
		}
	}

	grouped := make([]Element, len(elements))
	copy(grouped, elements)
	sort.SliceStable(grouped, func(i, j int) bool { return grouped[i].Type < grouped[j].Type })

	nodeID := make(map[string]int, len(nodeNames))
	id := 0
	for _, n := range nodeNames {
		if n == "0" {
			nodeID[n] = 0
			continue
		}
		id++
		nodeID[n] = id
	}

	names := make([]string, len(grouped))
	values := make([]float64, len(grouped))
	types := make([]branch.Type, len(grouped))
	u := make([]int, len(grouped))
	v := make([]int, len(grouped))
	for i, e := range grouped {
		names[i] = e.Name
		values[i] = e.Value
		types[i] = e.Type
		u[i] = nodeID[e.Nodes[0]]
		v[i] = nodeID[e.Nodes[1]]
	}

	store, err := branch.New(nodeNames, names, u, v, types)
	if err != nil {
		return nil, err
	}
	return linsolve.New(store, values)
}

// CandidateIndices returns the can_index selector: every branch whose name
// begins with "gx".
func CandidateIndices(sys *linsolve.System) []int { return sys.IndicesWithPrefix("gx") }

// VoltageObsIndices returns the vol_obs_index selector: every branch whose
// name begins with "i" (load currents -- their node voltages are observed).
func VoltageObsIndices(sys *linsolve.System) []int { return sys.IndicesWithPrefix("i") }

// CurrentObsIndices returns the cur_obs_index selector: every branch whose
// name begins with "v" (ideal supplies -- their branch currents are
// observed).
func CurrentObsIndices(sys *linsolve.System) []int { return sys.IndicesWithPrefix("v") }

// Package placement implements the outer pad-placement optimization loop:
// the one concrete caller of internal/adjoint's DifferentiableFront. A
// continuous placement probability per candidate is driven by plain Go
// gradient descent rather than a tensor autodiff framework.
package placement

import (
	"fmt"
	"math"

	"github.com/pumpkinblade/pdn/internal/adjoint"
	"github.com/pumpkinblade/pdn/internal/linsolve"
)

// Config holds the pad-placement loss weights and optimizer knobs.
type Config struct {
	PadConductance  float64 // conductance of a fully-placed pad (p=1)
	SupplyVoltage   float64 // VDD, used to turn node voltage into IR drop
	Gamma           float64 // softmax sharpness for the smooth worst-case term
	WeightWorstDrop float64
	WeightTotalDrop float64
	WeightCount     float64
	LearningRate    float64
	Iterations      int
}

// DefaultConfig returns reasonable defaults scaled to the number of observed
// load nodes, weighting the worst-drop term by observation count.
func DefaultConfig(numObservations int) Config {
	return Config{
		PadConductance:  1000.0,
		SupplyVoltage:   1.1,
		Gamma:           1e-7,
		WeightWorstDrop: float64(numObservations),
		WeightTotalDrop: 1.0,
		WeightCount:     1.0,
		LearningRate:    0.01,
		Iterations:      500,
	}
}

// Result is one iteration's trace entry.
type Result struct {
	Iteration   int
	Loss        float64
	WorstDrop   float64
	TotalDrop   float64
	Count       float64
	Probability []float64
}

// Run drives the sigmoid-relaxed pad-placement optimization: a continuous
// placement probability p=sigmoid(q) per candidate is pushed by gradient
// descent to minimize a weighted sum of worst-case IR drop, total IR drop,
// and pad count, using internal/adjoint.Front.Forward/Backward for every
// gradient. onIteration, if non-nil, is called after each step.
func Run(sys *linsolve.System, canIndex, excIndex, volObsIndex, curObsIndex []int, excValues []float64, cfg Config, onIteration func(Result)) ([]float64, error) {
	n := len(canIndex)
	q := make([]float64, n) // q=0 -> p=0.5, a neutral start

	front := adjoint.NewFront(sys)

	for iter := 0; iter < cfg.Iterations; iter++ {
		p := make([]float64, n)
		can := make([]float64, n)
		for i, qi := range q {
			p[i] = sigmoid(qi)
			can[i] = cfg.PadConductance * p[i]
		}

		volObs, _, err := front.Forward(can, canIndex, excValues, excIndex, volObsIndex, curObsIndex)
		if err != nil {
			return nil, fmt.Errorf("placement: forward at iteration %d: %w", iter, err)
		}

		irDrop := make([]float64, len(volObs))
		for i, v := range volObs {
			irDrop[i] = cfg.SupplyVoltage - v
		}

		worst, worstGrad := logSumExp(irDrop, cfg.Gamma)
		total := sum(irDrop)
		count := sum(p)
		loss := cfg.WeightWorstDrop*worst + cfg.WeightTotalDrop*total + cfg.WeightCount*count

		volGrad := make([]float64, len(volObs))
		for i := range volGrad {
			dLossDDrop := cfg.WeightWorstDrop*worstGrad[i] + cfg.WeightTotalDrop
			volGrad[i] = -dLossDDrop // chain rule through irDrop = VDD - volObs
		}
		curGrad := make([]float64, len(curObsIndex))

		canGrad, err := front.Backward(volGrad, curGrad)
		if err != nil {
			return nil, fmt.Errorf("placement: backward at iteration %d: %w", iter, err)
		}

		for i := range q {
			dCanDq := cfg.PadConductance * p[i] * (1 - p[i])
			dLossDq := canGrad[i]*dCanDq + cfg.WeightCount*p[i]*(1-p[i])
			q[i] -= cfg.LearningRate * dLossDq
		}

		if onIteration != nil {
			onIteration(Result{
				Iteration:   iter,
				Loss:        loss,
				WorstDrop:   maxFloat(irDrop),
				TotalDrop:   total,
				Count:       count,
				Probability: append([]float64(nil), p...),
			})
		}
	}

	p := make([]float64, n)
	for i, qi := range q {
		p[i] = sigmoid(qi)
	}
	return p, nil
}

func sigmoid(x float64) float64 { return 1.0 / (1.0 + math.Exp(-x)) }

// logSumExp returns gamma*logsumexp(x/gamma) and its gradient with respect
// to x -- a smooth worst-case-drop surrogate, computed with the standard
// max-shift for numerical stability.
func logSumExp(x []float64, gamma float64) (float64, []float64) {
	m := maxFloat(x)
	scaled := make([]float64, len(x))
	total := 0.0
	for i, xi := range x {
		scaled[i] = math.Exp((xi - m) / gamma)
		total += scaled[i]
	}
	lse := m + gamma*math.Log(total)

	grad := make([]float64, len(x))
	for i := range x {
		grad[i] = scaled[i] / total
	}
	return lse, grad
}

func sum(xs []float64) float64 {
	total := 0.0
	for _, x := range xs {
		total += x
	}
	return total
}

func maxFloat(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}

package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/urfave/cli"

	"github.com/pumpkinblade/pdn/internal/netlist"
	"github.com/pumpkinblade/pdn/internal/placement"
	"github.com/pumpkinblade/pdn/pkg/util"
)

func loadAndRewrite(file string) (elements []netlist.Element, err error) {
	data, err := ioutil.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", file, err)
	}
	parsed, err := netlist.Parse(string(data))
	if err != nil {
		return nil, err
	}
	return netlist.InsertCandidates(parsed, netlist.DefaultCandidateConductance), nil
}

func cmdSolve(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: pdnopt solve <netlist-file>", 1)
	}

	elements, err := loadAndRewrite(c.Args().First())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	sys, err := netlist.BuildSystem(elements)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer sys.Destroy()

	if err := sys.Solve(); err != nil {
		return cli.NewExitError(fmt.Sprintf("solve failed: %v", err), 1)
	}

	volObs := netlist.VoltageObsIndices(sys)
	curObs := netlist.CurrentObsIndices(sys)
	vdd := c.Float64("vdd")
	worst := 0.0
	total := 0.0

	fmt.Println("Load node voltages and IR drop:")
	for _, idx := range volObs {
		v, err := sys.BranchVoltage([]int{idx})
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		drop := vdd - v[0]
		if drop > worst {
			worst = drop
		}
		total += drop
		fmt.Printf("  %-12s V=%s drop=%s\n", sys.Store().Name(idx), util.FormatValueFactor(v[0], "V"), util.FormatValueFactor(drop, "V"))
	}
	fmt.Printf("\nWorst drop: %s\n", util.FormatValueFactor(worst, "V"))
	fmt.Printf("Total drop: %s\n", util.FormatValueFactor(total, "V"))

	if len(curObs) > 0 {
		fmt.Println("\nSupply branch currents:")
		for _, idx := range curObs {
			i, err := sys.BranchCurrent([]int{idx})
			if err != nil {
				return cli.NewExitError(err.Error(), 1)
			}
			fmt.Printf("  %-12s I=%s\n", sys.Store().Name(idx), util.FormatMagnitude(i[0]))
		}
	}
	return nil
}

func cmdOptimize(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.NewExitError("usage: pdnopt optimize <netlist-file>", 1)
	}
	rewritten, err := loadAndRewrite(c.Args().First())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	sys, err := netlist.BuildSystem(rewritten)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer sys.Destroy()

	canIndex := netlist.CandidateIndices(sys)
	volObs := netlist.VoltageObsIndices(sys)
	curObs := netlist.CurrentObsIndices(sys)
	excIndex := sys.ExcitationIndices()

	nameToValue := make(map[string]float64, len(rewritten))
	for _, e := range rewritten {
		nameToValue[e.Name] = e.Value
	}
	excValues := make([]float64, len(excIndex))
	for i, idx := range excIndex {
		excValues[i] = nameToValue[sys.Store().Name(idx)]
	}

	cfg := placement.DefaultConfig(len(volObs))
	cfg.PadConductance = c.Float64("pad-conductance")
	cfg.SupplyVoltage = c.Float64("vdd")
	if iters := c.Int("iterations"); iters > 0 {
		cfg.Iterations = iters
	}
	if lr := c.Float64("lr"); lr > 0 {
		cfg.LearningRate = lr
	}

	p, err := placement.Run(sys, canIndex, excIndex, volObs, curObs, excValues, cfg, func(r placement.Result) {
		fmt.Printf("iter %4d  loss=%10.6f  worst=%s  total=%s  count=%.3f\n",
			r.Iteration, r.Loss, util.FormatValueFactor(r.WorstDrop, "V"), util.FormatValueFactor(r.TotalDrop, "V"), r.Count)
	})
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	fmt.Println("\nFinal pad placement probabilities:")
	for i, idx := range canIndex {
		fmt.Printf("  %-12s p=%.4f\n", sys.Store().Name(idx), p[i])
	}
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "pdnopt"
	app.Usage = "PDN pad-placement solver and differentiable optimizer"
	app.Action = func(c *cli.Context) error {
		cli.ShowAppHelp(c)
		return nil
	}

	padConductanceFlag := cli.Float64Flag{Name: "pad-conductance", Value: 1000.0, Usage: "conductance of a fully-placed pad candidate"}
	vddFlag := cli.Float64Flag{Name: "vdd", Value: 1.1, Usage: "supply voltage used for IR-drop reporting"}

	app.Commands = []cli.Command{
		{
			Name:      "solve",
			Aliases:   []string{"s"},
			Usage:     "Solve a netlist at its current pad conductances and report IR drop",
			ArgsUsage: "netlist-file",
			Flags:     []cli.Flag{vddFlag},
			Action:    cmdSolve,
		},
		{
			Name:      "optimize",
			Aliases:   []string{"o"},
			Usage:     "Run the differentiable pad-placement optimizer on a netlist",
			ArgsUsage: "netlist-file",
			Flags: []cli.Flag{
				padConductanceFlag,
				vddFlag,
				cli.IntFlag{Name: "iterations", Value: 500, Usage: "number of gradient-descent steps"},
				cli.Float64Flag{Name: "lr", Value: 0.01, Usage: "learning rate"},
			},
			Action: cmdOptimize,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/devskill-org/gridplan/network"
)

var (
	solveNoPlots bool
	solveSolver  string
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Build and solve the base network, then export results and charts",
	RunE: func(cmd *cobra.Command, args []string) error {
		if solveSolver != "" {
			config.Solving.Solver = solveSolver
			if err := config.Validate(); err != nil {
				return err
			}
		}
		if solveNoPlots {
			config.Plotting.Disabled = true
		}

		ctx, cancel := signalContext()
		defer cancel()

		p, release, err := newPlanner(ctx)
		if err != nil {
			return err
		}
		defer release()

		if err := p.Run(ctx); err != nil {
			return err
		}
		printResults(os.Stdout, p.Network())
		return nil
	},
}

func init() {
	solveCmd.Flags().BoolVar(&solveNoPlots, "no-plots", false, "Skip rendering charts")
	solveCmd.Flags().StringVar(&solveSolver, "solver", "", "Override the configured solver (highs, gonum)")
}

// printResults writes the optimised capacities as a table.
func printResults(w io.Writer, n *network.Network) {
	fmt.Fprintln(w, "\n========================================")
	fmt.Fprintln(w, "OPTIMISATION RESULTS")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Status: %s (%s)\n", n.Status, n.Condition)
	fmt.Fprintf(w, "Objective: %.2f\n\n", n.Objective)

	fmt.Fprintln(w, "┌─────────────┬──────────────────┬────────────┬──────────────┬──────────────┐")
	fmt.Fprintln(w, "│ Component   │ Name             │ Carrier    │ Capacity(MW) │ Energy (TWh) │")
	fmt.Fprintln(w, "├─────────────┼──────────────────┼────────────┼──────────────┼──────────────┤")
	for _, c := range n.Capacities() {
		fmt.Fprintf(w, "│ %-11s │ %-16s │ %-10s │ %12.1f │ %12.3f │\n",
			c.Component, c.Name, c.Carrier, c.PNomOpt, c.Energy/1e6)
	}
	fmt.Fprintln(w, "└─────────────┴──────────────────┴────────────┴──────────────┴──────────────┘")
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/devskill-org/gridplan/planner"
	"github.com/devskill-org/gridplan/plotting"
)

var historicalCmd = &cobra.Command{
	Use:   "historical",
	Short: "Historical hydro dispatch data",
}

var historicalFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the historical hydro dispatch of the configured country from ENTSO-E",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := planner.NewEntsoeClient(config.Entsoe)
		if err != nil {
			return err
		}
		p, err := planner.New(config, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signalContext()
		defer cancel()

		path, err := p.FetchHistorical(ctx, client)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var plotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Render charts that do not need a solve",
}

var plotHistoricalCmd = &cobra.Command{
	Use:   "historical",
	Short: "Render the band of historical hydro dispatch",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := planner.New(config, logger)
		if err != nil {
			return err
		}
		pl, err := p.RenderPlot(plotting.ChartHistoricalDispatch)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(config.OutputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		path := filepath.Join(config.OutputDir, plotting.ChartHistoricalDispatch+"."+config.Plotting.Format)
		if err := plotting.Save(pl, path, config.Plotting.Width, config.Plotting.Height); err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	historicalCmd.AddCommand(historicalFetchCmd)
	plotCmd.AddCommand(plotHistoricalCmd)
}

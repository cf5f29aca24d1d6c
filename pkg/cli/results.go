package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/specqc/pkg/data"
	"github.com/urfave/cli/v3"
)

const limitFlagName = "limit"

func newResultsCmd() *cli.Command {
	return &cli.Command{
		Name:   "results",
		Usage:  "Print stored results of a batch, or the recent runs",
		Action: cmdResults,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    batchFlagName,
				Aliases: []string{"b"},
				Usage:   "Batch ID (optional, lists recent runs when omitted)",
			},
			&cli.IntFlag{
				Name:  limitFlagName,
				Usage: "Number of runs to list",
				Value: 20,
			},
		},
	}
}

type runsView struct {
	State map[string]int64 `json:"state" yaml:"state"`
	Runs  []*data.Run      `json:"runs" yaml:"runs"`
}

func cmdResults(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	out := cmd.Root().Writer

	if batchID := cmd.String(batchFlagName); batchID != "" {
		list, err := data.GetResults(ctx, cfg.DB, batchID)
		if err != nil {
			return fmt.Errorf("getting results: %w", err)
		}
		return encode(out, cfg.Format, list)
	}

	state, err := data.GetDataState(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("getting data state: %w", err)
	}
	runs, err := data.GetRuns(ctx, cfg.DB, cmd.Int(limitFlagName))
	if err != nil {
		return fmt.Errorf("getting runs: %w", err)
	}
	return encode(out, cfg.Format, &runsView{State: state, Runs: runs})
}

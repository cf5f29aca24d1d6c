package cli

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mchmarny/specqc/pkg/data"
	"github.com/urfave/cli/v3"
)

const yesFlagName = "yes"

func newResetCmd() *cli.Command {
	return &cli.Command{
		Name:   "reset",
		Usage:  "Delete all stored runs and results",
		Action: cmdReset,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    yesFlagName,
				Aliases: []string{"y"},
				Usage:   "Skip the confirmation prompt",
			},
		},
	}
}

func cmdReset(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	out := cmd.Root().ErrWriter

	if !cmd.Bool(yesFlagName) {
		fmt.Fprintf(out, "This will permanently delete all data in %s\n", dbLabel(cfg.Config.Database))
		fmt.Fprint(out, "Are you sure? [y/N]: ")

		reader := bufio.NewReader(cmd.Root().Reader)
		answer, err := reader.ReadString('\n')
		if err != nil && answer == "" {
			return fmt.Errorf("reading input: %w", err)
		}

		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := data.Reset(ctx, cfg.DB); err != nil {
		return fmt.Errorf("resetting database: %w", err)
	}

	slog.Info("database reset")
	fmt.Fprintln(out, "Reset complete.")
	return nil
}

// dbLabel names the database without exposing postgres credentials.
func dbLabel(dsn string) string {
	if data.DriverFor(dsn) == "postgres" {
		return "the postgres database"
	}
	return dsn
}

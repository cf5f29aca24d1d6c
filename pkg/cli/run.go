package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/mchmarny/specqc/pkg/config"
	"github.com/urfave/cli/v3"
)

const (
	batchFlagName        = "batch"
	snFlagName           = "sn"
	dataDirFlagName      = "data-dir"
	modelFlagName        = "model"
	workersFlagName      = "workers"
	reportFormatFlagName = "report"
)

func newRunCmd() *cli.Command {
	return &cli.Command{
		Name:   "run",
		Usage:  "Score all spectra of a batch, save the results and write reports",
		Action: cmdRun,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    batchFlagName,
				Aliases: []string{"b"},
				Usage:   "Batch ID matched against spectrum file names (prompted when omitted)",
			},
			&cli.StringFlag{
				Name:    snFlagName,
				Usage:   "Instrument serial number (prompted when omitted)",
				Sources: cli.EnvVars("SPECQC_INSTRUMENT_SN"),
			},
			&cli.StringSliceFlag{
				Name:  reportFormatFlagName,
				Usage: "Report formats [pdf, xlsx] (optional, overrides config)",
			},
		}, pipelineFlags()...),
	}
}

// pipelineFlags override the config values used to build the service.
func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  dataDirFlagName,
			Usage: "Directory with spectrum files (optional, overrides config)",
		},
		modelFlag(),
		&cli.IntFlag{
			Name:  workersFlagName,
			Usage: "Spectra scored concurrently (optional, overrides config)",
		},
	}
}

func modelFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  modelFlagName,
		Usage: "Model artifact path or URL (optional, overrides config)",
	}
}

func cmdRun(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	applyRunFlags(cmd, cfg.Config)

	// prompts go to stderr so stdout stays parseable
	in := bufio.NewReader(cmd.Root().Reader)
	prompt := cmd.Root().ErrWriter
	out := cmd.Root().Writer

	batchID, err := valueOrPrompt(in, prompt, cmd.String(batchFlagName), "Batch ID")
	if err != nil {
		return err
	}
	sn, err := valueOrPrompt(in, prompt, cmd.String(snFlagName), "Instrument S/N")
	if err != nil {
		return err
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}

	o, err := svc.Process(ctx, batchID, sn)
	if o != nil {
		if encErr := encode(out, cfg.Format, o); encErr != nil {
			return fmt.Errorf("encoding outcome: %w", encErr)
		}
	}
	if err != nil {
		return err
	}

	for _, f := range o.Files {
		slog.Info("report written", "path", f)
	}

	if o.Failed() {
		return fmt.Errorf("%d of %d spectra in batch %s failed: %w",
			len(o.Report.Failures), o.Report.Total, batchID, o.Report.Err())
	}
	return nil
}

func applyRunFlags(cmd *cli.Command, c *config.Config) {
	if v := cmd.String(dataDirFlagName); v != "" {
		c.DataDir = v
	}
	if v := cmd.String(modelFlagName); v != "" {
		c.ModelPath = v
	}
	if v := cmd.Int(workersFlagName); v > 0 {
		c.Workers = v
	}
	if v := cmd.StringSlice(reportFormatFlagName); len(v) > 0 {
		c.ReportFormats = config.SplitList(strings.Join(v, ","))
	}
}

// valueOrPrompt returns v, or asks for it on in when it is empty.
func valueOrPrompt(in *bufio.Reader, out io.Writer, v, label string) (string, error) {
	if v = strings.TrimSpace(v); v != "" {
		return v, nil
	}

	fmt.Fprintf(out, "Enter %s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("reading %s: %w", label, err)
	}

	if v = strings.TrimSpace(line); v == "" {
		return "", fmt.Errorf("%s required", label)
	}
	return v, nil
}

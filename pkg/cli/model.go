package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/spectrum"
	"github.com/urfave/cli/v3"
)

const outFlagName = "out"

func newModelCmd() *cli.Command {
	return &cli.Command{
		Name:  "model",
		Usage: "Inspect or convert the model artifact",
		Commands: []*cli.Command{
			{
				Name:   "inspect",
				Usage:  "Validate the model and print its dimensions and control limits",
				Flags:  []cli.Flag{modelFlag()},
				Action: cmdModelInspect,
			},
			{
				Name:   "convert",
				Usage:  "Validate the model and write it in another format",
				Action: cmdModelConvert,
				Flags: []cli.Flag{
					modelFlag(),
					&cli.StringFlag{
						Name:     outFlagName,
						Aliases:  []string{"o"},
						Usage:    "Output artifact path; .yaml/.yml writes YAML, anything else JSON",
						Required: true,
					},
				},
			},
		},
	}
}

type modelView struct {
	Name          string          `json:"name" yaml:"name"`
	Target        string          `json:"target,omitempty" yaml:"target,omitempty"`
	RawLength     int             `json:"raw_length" yaml:"raw_length"`
	Features      int             `json:"features" yaml:"features"`
	Components    int             `json:"components" yaml:"components"`
	Regression    string          `json:"regression" yaml:"regression"`
	NTrain        int             `json:"n_train,omitempty" yaml:"n_train,omitempty"`
	Preprocessing spectrum.Params `json:"preprocessing" yaml:"preprocessing"`
	Limits        model.Limits    `json:"limits" yaml:"limits"`
}

func cmdModelInspect(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	applyRunFlags(cmd, cfg.Config)

	m, err := loadModel(cfg.Config)
	if err != nil {
		return err
	}

	_, space, _ := m.Regression()
	return encode(cmd.Root().Writer, cfg.Format, &modelView{
		Name:          m.Name(),
		Target:        m.Target(),
		RawLength:     m.RawLength(),
		Features:      m.Features(),
		Components:    m.Components(),
		Regression:    space.String(),
		NTrain:        m.NTrain(),
		Preprocessing: m.Preprocessing(),
		Limits:        m.Limits(),
	})
}

func cmdModelConvert(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(ctx)
	applyRunFlags(cmd, cfg.Config)

	m, err := loadModel(cfg.Config)
	if err != nil {
		return err
	}

	out := cmd.String(outFlagName)
	if err := model.Save(out, m.Artifact()); err != nil {
		return fmt.Errorf("converting model: %w", err)
	}
	slog.Info("model written", "path", out)
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mchmarny/specqc/pkg/config"
	"github.com/mchmarny/specqc/pkg/data"
	"github.com/mchmarny/specqc/pkg/logging"
	"github.com/mchmarny/specqc/pkg/model"
	"github.com/mchmarny/specqc/pkg/qc"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	appName = "specqc"

	formatJSON = "json"
	formatYAML = "yaml"

	debugFlagName     = "debug"
	logFormatFlagName = "log-format"
	homeFlagName      = "home"
	dbFlagName        = "db"
	formatFlagName    = "format"
)

var (
	version = "v0.0.1-default"
	commit  = ""
	date    = ""
)

type appConfigKey struct{}

type appConfig struct {
	Home   string
	Config *config.Config
	DB     *sqlx.DB
	Format string
}

// Execute creates and runs the CLI application.
func Execute() {
	logging.SetDefaultCLILogger("info")

	if err := newApp().Run(context.Background(), os.Args); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func getConfig(ctx context.Context) *appConfig {
	cfg, ok := ctx.Value(appConfigKey{}).(*appConfig)
	if !ok {
		// commands always run after Before
		panic("app config not initialized")
	}
	return cfg
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    appName,
		Version: fmt.Sprintf("%s (%s - %s)", version, commit, date),
		Usage:   "Score NIR spectra against a PLS model with T2 and Q diagnostics",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlagName,
				Usage: "Prints verbose logs (optional, default: false)",
			},
			&cli.StringFlag{
				Name:    logFormatFlagName,
				Usage:   "Log format [text, json]",
				Value:   logging.FormatText,
				Sources: cli.EnvVars("SPECQC_LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    homeFlagName,
				Usage:   "App directory holding config.yaml (optional, defaults to $HOME/.specqc)",
				Sources: cli.EnvVars("SPECQC_HOME"),
			},
			&cli.StringFlag{
				Name:  dbFlagName,
				Usage: "SQLite file path or postgres:// URL (optional, overrides config)",
			},
			&cli.StringFlag{
				Name:    formatFlagName,
				Usage:   "Output format [json, yaml]",
				Value:   formatJSON,
				Sources: cli.EnvVars("SPECQC_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			newRunCmd(),
			newServerCmd(),
			newResultsCmd(),
			newModelCmd(),
			newResetCmd(),
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			initLogging(cmd.Root().ErrWriter, cmd.String(logFormatFlagName), cmd.Bool(debugFlagName))

			home, err := resolveHome(cmd.String(homeFlagName))
			if err != nil {
				return ctx, err
			}

			if err := config.LoadDotEnv(".env", filepath.Join(home, ".env")); err != nil {
				return ctx, err
			}

			c, err := config.ReadOrCreate(home)
			if err != nil {
				return ctx, fmt.Errorf("reading config: %w", err)
			}
			if err := config.ApplyEnv(c); err != nil {
				return ctx, fmt.Errorf("applying env: %w", err)
			}
			if v := cmd.String(dbFlagName); v != "" {
				c.Database = v
			}
			if err := c.Validate(); err != nil {
				return ctx, fmt.Errorf("invalid config: %w", err)
			}

			db, err := data.Open(c.Database)
			if err != nil {
				return ctx, fmt.Errorf("opening database: %w", err)
			}

			slog.Debug("app initialized", "home", home, "driver", db.DriverName())
			return context.WithValue(ctx, appConfigKey{}, &appConfig{
				Home:   home,
				Config: c,
				DB:     db,
				Format: outputFormat(cmd.String(formatFlagName)),
			}), nil
		},
		After: func(ctx context.Context, _ *cli.Command) error {
			if cfg, ok := ctx.Value(appConfigKey{}).(*appConfig); ok && cfg.DB != nil {
				cfg.DB.Close()
			}
			return nil
		},
	}
}

func initLogging(w io.Writer, format string, debug bool) {
	level := "info"
	if debug {
		level = "debug"
	}
	if w == nil {
		w = os.Stderr
	}
	slog.SetDefault(logging.NewLogger(w, format, level))
}

func resolveHome(dir string) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", fmt.Errorf("creating home dir %s: %w", dir, err)
		}
		return dir, nil
	}
	home, _, err := config.GetOrCreateHomeDir(appName)
	if err != nil {
		return "", fmt.Errorf("resolving home dir: %w", err)
	}
	return home, nil
}

func outputFormat(f string) string {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case formatYAML, "yml":
		return formatYAML
	default:
		return formatJSON
	}
}

func encode(w io.Writer, format string, v any) error {
	if format == formatYAML {
		return yaml.NewEncoder(w).Encode(v)
	}
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

// loadModel loads the configured model, applying the configured alpha to
// its control limits.
func loadModel(c *config.Config) (*model.TrainedModel, error) {
	a, err := model.LoadArtifact(c.ModelPath)
	if err != nil {
		return nil, err
	}
	if c.Alpha > 0 {
		a.Limits.Alpha = c.Alpha
	}
	m, err := model.New(a)
	if err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", c.ModelPath, err)
	}
	slog.Debug("model loaded", "name", m.Name(), "features", m.Features(), "components", m.Components())
	return m, nil
}

func newService(cfg *appConfig) (*qc.Service, error) {
	m, err := loadModel(cfg.Config)
	if err != nil {
		return nil, err
	}
	return &qc.Service{
		Model:     m,
		DB:        cfg.DB,
		DataDir:   cfg.Config.DataDir,
		ReportDir: cfg.Config.ReportDir,
		Formats:   cfg.Config.ReportFormats,
		Workers:   cfg.Config.Workers,
	}, nil
}

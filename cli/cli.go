package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/perfgo/perfsuite/config"
	"github.com/perfgo/perfsuite/history"
	"github.com/perfgo/perfsuite/metrics"
	"github.com/perfgo/perfsuite/report"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const AppName = "perfsuite"

type App struct {
	logger  zerolog.Logger
	cli     *cli.App
	version string
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger:  logger,
		version: "dev",
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run device performance suites and analyse the results",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
				&cli.StringFlag{
					Name:    "config",
					Aliases: []string{"c"},
					Usage:   "Path to the YAML config (default: .perfsuite/config.yaml at the repository root)",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "run",
		Usage:     "Run performance suites, analyse and report the results",
		ArgsUsage: " ",
		Action:    app.run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "suite",
				Aliases: []string{"s"},
				Usage:   "Run only this suite",
			},
			&cli.StringFlag{
				Name:    "test",
				Aliases: []string{"t"},
				Usage:   "Run only this test of --suite",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Per-attempt timeout",
			},
			&cli.IntFlag{
				Name:  "retries",
				Usage: "Total attempts per test",
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Wait between attempts",
			},
			&cli.BoolFlag{
				Name:  "concurrent",
				Usage: "Dispatch the tests of a suite in concurrent chunks",
			},
			&cli.IntFlag{
				Name:  "parallel-limit",
				Usage: "Chunk size in concurrent mode",
			},
			&cli.BoolFlag{
				Name:  "continue-on-error",
				Usage: "Keep running after a test fails permanently",
			},
			&cli.StringFlag{
				Name:    "device",
				Aliases: []string{"d"},
				Usage:   "Simulated device profile (see 'perfsuite devices')",
			},
			templateFlag(),
			formatFlag(),
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to this file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "metrics-file",
				Usage: "Write runner counters in Prometheus text format to this file",
			},
			&cli.StringFlag{
				Name:  "metrics-export",
				Usage: fmt.Sprintf("Export collected samples as %s, %s or %s", metrics.FormatJSON, metrics.FormatCSV, metrics.FormatPprof),
			},
			&cli.StringFlag{
				Name:  "metrics-output",
				Usage: "File for --metrics-export (default: metrics.<ext> in the working directory)",
			},
			&cli.StringFlag{
				Name:  "advanced",
				Usage: "Write trends, correlations, outliers and the performance profile as JSON to this file",
			},
			&cli.BoolFlag{
				Name:  "no-history",
				Usage: "Do not record this run",
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous runs",
		Action: app.list,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "device",
				Usage: "Filter by simulated device",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:            "view",
		Usage:           "Re-render the report of a previous run",
		ArgsUsage:       "[ID|INDEX] [-- PPROF_ARGS]",
		Action:          app.view,
		SkipFlagParsing: true,
		Description: `Re-render the report of a previous run with the configured template and format.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  -2          View 3rd last run
  <id>        View run matching the ID prefix

Any further arguments open the run's collected samples in 'go tool pprof'.

Examples:
  perfsuite view              # Report of the last run
  perfsuite view -1           # Report of the 2nd last run
  perfsuite view 3f2a         # Report of run 3f2a...
  perfsuite view 0 -- -top    # Top samples of the last run`,
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "devices",
		Usage:  "List simulated device profiles",
		Action: app.devices,
	})
	return app
}

func templateFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "template",
		Usage: fmt.Sprintf("Report template %v", report.TemplateNames()),
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   fmt.Sprintf("Report format %v", report.ExportFormats()),
	}
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

// loadConfig reads --config, or the config file in the state directory when present.
func (a *App) loadConfig(ctx *cli.Context) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if path := ctx.String("config"); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOptional(filepath.Join(history.GetRoot(), config.FileName))
	}
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openHistory opens the configured history store.
func (a *App) openHistory(cfg config.Config) (history.Store, error) {
	root := cfg.History.Path
	if root == "" {
		root = history.GetRoot()
	}
	return history.Open(a.logger, cfg.History.Backend, root)
}

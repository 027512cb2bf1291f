package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/datafeed"
	"github.com/rxtech-lab/argo-engine/internal/engine"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/version"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// runAction loads the config, runs the buy and hold algorithm over it and
// prints the summary.
func runAction(ctx context.Context, cmd *cli.Command) error {
	data, err := os.ReadFile(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	config, err := engine.LoadConfig(data)
	if err != nil {
		return err
	}

	if results := cmd.String("results"); results != "" {
		config.ResultsFolder = results
	}

	if level := cmd.String("log-level"); level != "" {
		config.LogLevel = level
	}

	log, err := logger.NewLoggerWithLevel(config.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	callbacks := engine.Callbacks{OnRunStart: nil, OnSlice: nil, OnRunEnd: nil}

	var bar *progressbar.ProgressBar

	if config.Mode == engine.ModeBacktest && !cmd.Bool("quiet") {
		onRunStart := engine.OnRunStartCallback(func(runID string, start, end time.Time) error {
			bar = progressbar.NewOptions64(int64(end.Sub(start)/time.Minute),
				progressbar.OptionSetDescription(fmt.Sprintf("Backtest %s", runID)),
				progressbar.OptionShowCount(),
				progressbar.OptionSetPredictTime(true),
			)

			return nil
		})
		start := config.StartTime.Unwrap()
		onSlice := engine.OnSliceCallback(func(slice *datafeed.TimeSlice) error {
			if bar == nil || slice.Time.Before(start) {
				return nil
			}

			return bar.Set64(int64(slice.Time.Sub(start) / time.Minute))
		})
		onRunEnd := engine.OnRunEndCallback(func(engine.Statistics) {
			if bar != nil {
				_ = bar.Finish()
			}
		})

		callbacks.OnRunStart = &onRunStart
		callbacks.OnSlice = &onSlice
		callbacks.OnRunEnd = &onRunEnd
	}

	algorithm := engine.NewBuyAndHold(cmd.StringSlice("symbol")...)

	e, err := engine.New(config, algorithm, engine.Options{
		Fine:      nil,
		Contracts: nil,
		Callbacks: callbacks,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := e.Run(ctx)
	if err != nil {
		code := errors.GetCode(err)
		log.Error("Run failed",
			zap.Int("code", int(code)),
			zap.String("category", code.Category()),
			zap.Error(err),
		)

		return err
	}

	fmt.Printf("\nRun %s finished\n", stats.RunID)
	fmt.Printf("  Final value:  %.2f\n", stats.FinalValue)
	fmt.Printf("  Net profit:   %.2f (%.2f%%)\n", stats.NetProfit, stats.TotalReturn*100)
	fmt.Printf("  Max drawdown: %.2f%%\n", stats.MaxDrawdown*100)
	fmt.Printf("  Orders:       %d (%d fills, %d rejected)\n", stats.Orders, stats.Fills, stats.Rejected)

	if config.ResultsFolder != "" {
		fmt.Printf("  Results:      %s/%s\n", config.ResultsFolder, stats.RunID)
	}

	return nil
}

// schemaAction prints the JSON schema of the config file.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	config := engine.DefaultConfig()

	schema, err := config.GenerateSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if output := cmd.String("output"); output != "" {
		return os.WriteFile(output, []byte(schema), 0o600)
	}

	fmt.Println(schema)

	return nil
}

func main() {
	cmd := &cli.Command{
		Name:    "backtest",
		Usage:   "Run the argo engine against historical data or a live feed",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run buy and hold over the configured period",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the engine config `FILE`",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:    "symbol",
						Aliases: []string{"s"},
						Usage:   "Equity ticker to hold; repeat for several",
						Value:   []string{"SPY"},
					},
					&cli.StringFlag{
						Name:    "results",
						Aliases: []string{"r"},
						Usage:   "Folder for the parquet results, overrides results_folder",
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "Log level (debug, info, warn, error)",
					},
					&cli.BoolFlag{
						Name:    "quiet",
						Aliases: []string{"q"},
						Usage:   "Hide the progress bar",
					},
				},
				Action: runAction,
			},
			{
				Name:  "schema",
				Usage: "Print the JSON schema of the config file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write the schema to `FILE` instead of stdout",
					},
				},
				Action: schemaAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

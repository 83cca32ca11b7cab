package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rxtech-lab/tradingview-udf/internal/config"
	"github.com/rxtech-lab/tradingview-udf/internal/export"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider"
	"github.com/rxtech-lab/tradingview-udf/internal/server"
	"github.com/rxtech-lab/tradingview-udf/internal/version"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// serveAction loads the configuration, builds the provider and serves until
// SIGINT or SIGTERM.
func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	if address := cmd.String("address"); address != "" {
		cfg.Server.Address = address
	}

	appLogger, err := logger.NewLogger(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer appLogger.Sync() //nolint:errcheck // stdout sync errors are not actionable

	p, err := provider.New(cfg.Provider, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	if closer, ok := p.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				appLogger.Warn("Failed to close provider", zap.Error(err))
			}
		}()
	}

	srv, err := server.New(cfg.Server, p, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	appLogger.Info("Starting udf-server",
		zap.String("version", version.GetVersion()),
		zap.String("provider", string(cfg.Provider.Type)),
	)

	return srv.Run(ctx)
}

// exportAction copies the history of one symbol from the configured provider
// into a parquet or CSV file.
func exportAction(ctx context.Context, cmd *cli.Command) error {
	from, err := parseTime(cmd.String("from"))
	if err != nil {
		return err
	}

	to, err := parseTime(cmd.String("to"))
	if err != nil {
		return err
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}

	appLogger, err := logger.NewLogger(logger.Options{Level: cfg.Log.Level, Development: cfg.Log.Development})
	if err != nil {
		return err
	}
	defer appLogger.Sync() //nolint:errcheck // stdout sync errors are not actionable

	p, err := provider.New(cfg.Provider, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	if closer, ok := p.(io.Closer); ok {
		defer closer.Close()
	}

	errWriter := cmd.Root().ErrWriter
	if errWriter == nil {
		errWriter = os.Stderr
	}

	var bar *progressbar.ProgressBar

	onProgress := func(written, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(errWriter),
				progressbar.OptionSetDescription(fmt.Sprintf("Exporting %s", cmd.String("symbol"))),
				progressbar.OptionShowCount(),
			)
		}

		_ = bar.Set(written)
	}

	result, err := export.NewExporter(p, appLogger, export.WithProgress(onProgress)).Export(ctx, export.Params{
		Symbol:     cmd.String("symbol"),
		Resolution: cmd.String("resolution"),
		From:       from,
		To:         to,
		Output:     cmd.String("output"),
	})
	if err != nil {
		return err
	}

	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(errWriter)
	}

	_, err = fmt.Fprintf(cmd.Root().Writer, "wrote %d bars to %s\n", result.Bars, result.Path)

	return err
}

// parseTime accepts RFC 3339 timestamps, plain dates and Unix seconds.
func parseTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(seconds, 0).UTC(), nil
	}

	return time.Time{}, errors.Newf(errors.ErrCodeInvalidParameter, "invalid time %q", value)
}

// schemaAction prints the JSON schema of the configuration file.
func schemaAction(_ context.Context, cmd *cli.Command) error {
	schema, err := config.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	_, err = fmt.Fprintln(cmd.Root().Writer, schema)

	return err
}

// versionAction prints the build version.
func versionAction(_ context.Context, cmd *cli.Command) error {
	_, err := fmt.Fprintln(cmd.Root().Writer, version.GetVersion())

	return err
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "config",
		Aliases:  []string{"c"},
		Usage:    "Path to the YAML configuration file",
		Value:    "udf.yaml",
		Sources:  cli.EnvVars(config.EnvPrefix + "CONFIG"),
		Required: false,
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:    "udf-server",
		Usage:   "Serve TradingView UDF datafeed routes",
		Version: version.GetVersion(),
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Start the UDF server",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "address",
						Aliases:  []string{"a"},
						Usage:    "Listen address, overrides server.address",
						Required: false,
					},
				},
				Action: serveAction,
			},
			{
				Name:  "export",
				Usage: "Write the history of a symbol to a parquet or CSV file",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "symbol", Aliases: []string{"s"}, Usage: "Symbol to export", Required: true},
					&cli.StringFlag{Name: "resolution", Aliases: []string{"r"}, Usage: "Bar resolution", Value: "1D"},
					&cli.StringFlag{Name: "from", Usage: "Range start (RFC 3339, YYYY-MM-DD or Unix seconds)", Required: true},
					&cli.StringFlag{Name: "to", Usage: "Range end (RFC 3339, YYYY-MM-DD or Unix seconds)", Required: true},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output file, .csv for CSV", Required: true},
				},
				Action: exportAction,
			},
			{
				Name:   "version",
				Usage:  "Print the version",
				Action: versionAction,
			},
			{
				Name:  "config",
				Usage: "Configuration helpers",
				Commands: []*cli.Command{
					{
						Name:   "schema",
						Usage:  "Print the JSON schema of the configuration file",
						Action: schemaAction,
					},
				},
			},
		},
	}
}

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

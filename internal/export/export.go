// Package export copies history from a udf.Provider into a bar file that the
// file provider can serve.
package export

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"go.uber.org/zap"
)

// Params describes one export.
type Params struct {
	Symbol     string    `validate:"required"`
	Resolution string    `validate:"required"`
	From       time.Time `validate:"required"`
	To         time.Time `validate:"required,gtfield=From"`
	Output     string    `validate:"required"`
}

// Result summarises a finished export.
type Result struct {
	Path string
	Bars int
}

// Exporter reads bars from a provider and hands them to a BarWriter.
type Exporter struct {
	provider   udf.Provider
	logger     *logger.Logger
	validate   *validator.Validate
	newWriter  func(outputPath string) BarWriter
	onProgress OnProgress
}

// OnProgress is called after every written bar.
type OnProgress func(written, total int)

// Option configures an Exporter.
type Option func(*Exporter)

// WithWriterFactory replaces the DuckDB writer.
func WithWriterFactory(newWriter func(outputPath string) BarWriter) Option {
	return func(e *Exporter) {
		e.newWriter = newWriter
	}
}

// WithProgress registers a progress callback.
func WithProgress(onProgress OnProgress) Option {
	return func(e *Exporter) {
		e.onProgress = onProgress
	}
}

// NewExporter creates an exporter reading from provider.
func NewExporter(provider udf.Provider, logger *logger.Logger, opts ...Option) *Exporter {
	e := &Exporter{
		provider: provider,
		logger:   logger,
		validate: validator.New(),
		newWriter: func(outputPath string) BarWriter {
			return NewDuckDBWriter(outputPath)
		},
		onProgress: nil,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Export queries the bars of params.Symbol in [From, To] and writes them to
// params.Output. An error status or an empty range is reported as an error
// and no file is written.
func (e *Exporter) Export(ctx context.Context, params Params) (Result, error) {
	if err := e.validate.Struct(params); err != nil {
		return Result{}, errors.Wrap(errors.ErrCodeInvalidParameter, "invalid export parameters", err)
	}

	result, err := e.provider.GetHistory(ctx, params.From, params.To, params.Symbol, params.Resolution)
	if err != nil {
		return Result{}, err
	}

	if result == nil {
		return Result{}, errors.Newf(errors.ErrCodeDataNotFound, "no bars for %s at %s", params.Symbol, params.Resolution)
	}

	if result.Status == udf.BarStatusError {
		return Result{}, errors.Newf(errors.ErrCodeProviderFailed, "history of %s failed: %s",
			params.Symbol, result.ErrorMessage.TakeOr("unknown error"))
	}

	if len(result.Bars) == 0 {
		return Result{}, errors.Newf(errors.ErrCodeDataNotFound, "no bars for %s at %s between %s and %s",
			params.Symbol, params.Resolution, params.From.Format(time.RFC3339), params.To.Format(time.RFC3339))
	}

	if dir := filepath.Dir(params.Output); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to create %s", dir)
		}
	}

	w := e.newWriter(params.Output)
	if err := w.Initialize(); err != nil {
		return Result{}, err
	}

	defer func() {
		if err := w.Close(); err != nil {
			e.logger.Warn("Failed to close writer", zap.Error(err))
		}
	}()

	for i, bar := range result.Bars {
		if err := w.Write(bar); err != nil {
			return Result{}, err
		}

		if e.onProgress != nil {
			e.onProgress(i+1, len(result.Bars))
		}
	}

	path, err := w.Finalize()
	if err != nil {
		return Result{}, err
	}

	e.logger.Info("Exported bars",
		zap.String("symbol", params.Symbol),
		zap.String("resolution", params.Resolution),
		zap.Int("bars", len(result.Bars)),
		zap.String("path", path),
	)

	return Result{Path: path, Bars: len(result.Bars)}, nil
}

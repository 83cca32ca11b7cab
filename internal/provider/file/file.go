// Package file serves bars from local CSV or parquet files through DuckDB.
//
// Every symbol and resolution pair of the catalogue points at one file. The
// file is mapped to a DuckDB view the first time it is queried and the view is
// reused afterwards.
package file

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/catalog"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"go.uber.org/zap"
)

const (
	TimeFormatUnixSeconds = "unix-sec"
	TimeFormatUnixMillis  = "unix-ms"
	TimeFormatDate        = "date"

	defaultTimeColumn = "time"
)

// Config configures the file provider.
type Config struct {
	// Database is the DuckDB database path. Empty means in-memory.
	Database string `yaml:"database" json:"database,omitempty" env:"DATABASE"`
	// DataDir is prepended to relative source paths.
	DataDir string `yaml:"data_dir" json:"data_dir,omitempty" env:"DATA_DIR"`
}

// Provider implements udf.Provider on top of the catalogue and DuckDB.
type Provider struct {
	catalog *catalog.Catalog
	config  Config
	db      *sql.DB
	sq      squirrel.StatementBuilderType
	logger  *logger.Logger

	mu    sync.Mutex
	views map[string]string
}

var _ udf.Provider = (*Provider)(nil)

// NewProvider opens the DuckDB database and returns a provider serving cat.
func NewProvider(cat *catalog.Catalog, config Config, logger *logger.Logger) (*Provider, error) {
	if cat == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "file provider needs a catalog")
	}

	db, err := sql.Open("duckdb", config.Database)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}

	return &Provider{
		catalog: cat,
		config:  config,
		db:      db,
		sq:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger:  logger,
		mu:      sync.Mutex{},
		views:   make(map[string]string),
	}, nil
}

// Close closes the database.
func (p *Provider) Close() error {
	return p.db.Close()
}

// GetConfiguration implements udf.Provider.
func (p *Provider) GetConfiguration(_ context.Context) (*udf.Configuration, error) {
	return p.catalog.Configuration(), nil
}

// GetSymbol implements udf.Provider.
func (p *Provider) GetSymbol(_ context.Context, symbol string) (*udf.SymbolInfo, error) {
	return p.catalog.SymbolInfo(symbol)
}

// FindSymbols implements udf.Provider.
func (p *Provider) FindSymbols(_ context.Context, query, symbolType, exchange string, limit optional.Option[int]) ([]udf.SymbolSearchResult, error) {
	return p.catalog.Search(query, symbolType, exchange, limit), nil
}

// GetMarks implements udf.Provider.
func (p *Provider) GetMarks(_ context.Context, from, to time.Time, symbol, _ string) ([]udf.Mark, error) {
	return p.catalog.MarksInRange(from, to, symbol), nil
}

// GetHistory implements udf.Provider. Bars within [from, to] are returned in
// ascending order. When there are none the result carries the time of the
// last bar before from, if any.
func (p *Provider) GetHistory(ctx context.Context, from, to time.Time, symbol, resolution string) (*udf.BarQueryResult, error) {
	s, ok := p.catalog.Lookup(symbol)
	if !ok {
		return errorResult(fmt.Sprintf("unknown symbol %s", symbol)), nil
	}

	source, ok := s.Sources[resolution]
	if !ok {
		p.logger.Debug("No source for resolution",
			zap.String("symbol", s.Symbol),
			zap.String("resolution", resolution),
		)

		return &udf.BarQueryResult{
			Status:       udf.BarStatusNoData,
			ErrorMessage: optional.None[string](),
			Bars:         []udf.Bar{},
			NextTime:     optional.None[time.Time](),
		}, nil
	}

	view, err := p.view(ctx, s.Symbol, resolution, source)
	if err != nil {
		return nil, err
	}

	bars, err := p.queryBars(ctx, view, from, to)
	if err != nil {
		return nil, err
	}

	if len(bars) > 0 {
		return &udf.BarQueryResult{
			Status:       udf.BarStatusOK,
			ErrorMessage: optional.None[string](),
			Bars:         bars,
			NextTime:     optional.None[time.Time](),
		}, nil
	}

	next, err := p.queryPreviousTime(ctx, view, from)
	if err != nil {
		return nil, err
	}

	return &udf.BarQueryResult{
		Status:       udf.BarStatusNoData,
		ErrorMessage: optional.None[string](),
		Bars:         bars,
		NextTime:     next,
	}, nil
}

func errorResult(message string) *udf.BarQueryResult {
	return &udf.BarQueryResult{
		Status:       udf.BarStatusError,
		ErrorMessage: optional.Some(message),
		Bars:         []udf.Bar{},
		NextTime:     optional.None[time.Time](),
	}
}

// view returns the DuckDB view of a source, creating it on first use.
func (p *Provider) view(ctx context.Context, symbol, resolution string, source catalog.Source) (string, error) {
	key := symbol + "__" + resolution

	p.mu.Lock()
	defer p.mu.Unlock()

	if name, ok := p.views[key]; ok {
		return name, nil
	}

	name := fmt.Sprintf("bars_%d", len(p.views))

	query, err := createViewQuery(name, p.resolvePath(source.Path), source)
	if err != nil {
		return "", err
	}

	p.logger.Debug("Creating bar view",
		zap.String("key", key),
		zap.String("view", name),
		zap.String("path", source.Path),
	)

	// squirrel has no CREATE VIEW support
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return "", errors.Wrapf(errors.ErrCodeDataSourceUnavailable, err, "failed to load %s", source.Path)
	}

	p.views[key] = name

	return name, nil
}

func (p *Provider) resolvePath(path string) string {
	if p.config.DataDir == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(p.config.DataDir, path)
}

// createViewQuery maps a source file onto the columns ts_us, open, high, low,
// close and volume. ts_us holds microseconds since the Unix epoch.
func createViewQuery(name, path string, source catalog.Source) (string, error) {
	column := source.TimeColumn
	if column == "" {
		column = defaultTimeColumn
	}

	timeExpr, err := timeExpression(quoteIdentifier(column), source.TimeFormat)
	if err != nil {
		return "", err
	}

	reader := "read_csv_auto"
	if strings.EqualFold(filepath.Ext(path), ".parquet") {
		reader = "read_parquet"
	}

	columns := []string{timeExpr + " AS ts_us"}
	for _, c := range []string{"open", "high", "low"} {
		columns = append(columns, valueExpression(c, source.Missing))
	}

	columns = append(columns, `CAST("close" AS DOUBLE) AS close`, valueExpression("volume", source.Missing))

	return fmt.Sprintf(
		"CREATE OR REPLACE VIEW %s AS SELECT %s FROM %s(%s) WHERE \"close\" IS NOT NULL",
		name, strings.Join(columns, ", "), reader, quoteLiteral(path),
	), nil
}

func timeExpression(column, format string) (string, error) {
	switch format {
	case "", TimeFormatUnixSeconds:
		return fmt.Sprintf("CAST(round(CAST(%s AS DOUBLE) * 1000000) AS BIGINT)", column), nil
	case TimeFormatUnixMillis:
		return fmt.Sprintf("CAST(CAST(%s AS BIGINT) * 1000 AS BIGINT)", column), nil
	case TimeFormatDate:
		return fmt.Sprintf("epoch_us(CAST(%s AS TIMESTAMP))", column), nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidConfiguration, "unsupported time format %s", format)
	}
}

func valueExpression(column string, missing []string) string {
	if slices.Contains(missing, column) {
		return fmt.Sprintf("CAST(NULL AS DOUBLE) AS %s", column)
	}

	return fmt.Sprintf("CAST(%s AS DOUBLE) AS %s", quoteIdentifier(column), column)
}

func quoteIdentifier(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (p *Provider) queryBars(ctx context.Context, view string, from, to time.Time) ([]udf.Bar, error) {
	query, args, err := p.sq.
		Select("ts_us", "open", "high", "low", "close", "volume").
		From(view).
		Where(squirrel.GtOrEq{"ts_us": from.UnixMicro()}).
		Where(squirrel.LtOrEq{"ts_us": to.UnixMicro()}).
		OrderBy("ts_us ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build history query", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query bars", err)
	}
	defer rows.Close()

	bars := make([]udf.Bar, 0)

	for rows.Next() {
		var (
			ts                      int64
			open, high, low, volume sql.NullFloat64
			closePrice              float64
		)

		if err := rows.Scan(&ts, &open, &high, &low, &closePrice, &volume); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan bar", err)
		}

		bars = append(bars, udf.Bar{
			Timestamp: time.UnixMicro(ts).UTC(),
			Close:     closePrice,
			Open:      nullable(open),
			High:      nullable(high),
			Low:       nullable(low),
			Volume:    nullable(volume),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating bars", err)
	}

	return bars, nil
}

func (p *Provider) queryPreviousTime(ctx context.Context, view string, before time.Time) (optional.Option[time.Time], error) {
	query, args, err := p.sq.
		Select("max(ts_us)").
		From(view).
		Where(squirrel.Lt{"ts_us": before.UnixMicro()}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build next time query", err)
	}

	var ts sql.NullInt64
	if err := p.db.QueryRowContext(ctx, query, args...).Scan(&ts); err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query next time", err)
	}

	if !ts.Valid {
		return optional.None[time.Time](), nil
	}

	return optional.Some(time.UnixMicro(ts.Int64).UTC()), nil
}

func nullable(v sql.NullFloat64) optional.Option[float64] {
	if !v.Valid {
		return optional.None[float64]()
	}

	return optional.Some(v.Float64)
}

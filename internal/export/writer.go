package export

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
)

// BarWriter persists bars to a destination.
type BarWriter interface {
	// Initialize sets up the writer, potentially creating tables or files.
	Initialize() error
	// Write persists a single bar.
	Write(bar udf.Bar) error
	// Finalize commits the written bars and produces the output file.
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}

// DuckDBWriter buffers bars in an in-memory DuckDB table and copies them to
// a parquet or CSV file on Finalize. The file uses the column layout the file
// provider reads by default: time in Unix seconds, then open, high, low, close
// and volume. Absent values are written as NULL.
type DuckDBWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
}

var _ BarWriter = (*DuckDBWriter)(nil)

// NewDuckDBWriter creates a writer for outputPath. A ".csv" extension selects
// CSV output, anything else parquet.
func NewDuckDBWriter(outputPath string) *DuckDBWriter {
	//nolint:exhaustruct // connection is opened by Initialize
	return &DuckDBWriter{
		outputPath: outputPath,
	}
}

// Initialize opens the database, creates the bars table, begins a
// transaction and prepares the insert statement.
func (w *DuckDBWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", "")
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to open duckdb", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS bars (
			time DOUBLE,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to begin transaction", err)
	}

	w.stmt, err = w.tx.Prepare(`
		INSERT INTO bars (time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		w.db.Close()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to prepare statement", err)
	}

	return nil
}

// Write inserts bar within the open transaction.
func (w *DuckDBWriter) Write(bar udf.Bar) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	_, err := w.stmt.Exec(
		udf.ToUnixSeconds(bar.Timestamp),
		nullable(bar.Open),
		nullable(bar.High),
		nullable(bar.Low),
		bar.Close,
		nullable(bar.Volume),
	)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to insert bar", err)
	}

	return nil
}

// Finalize commits the transaction and copies the bars, ordered by time, to
// the output file.
func (w *DuckDBWriter) Finalize() (string, error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized or already finalized")
	}

	if err := w.tx.Commit(); err != nil {
		w.tx.Rollback()
		w.tx = nil

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to commit transaction", err)
	}

	w.tx = nil

	format := "(FORMAT PARQUET)"
	if strings.EqualFold(filepath.Ext(w.outputPath), ".csv") {
		format = "(FORMAT CSV, HEADER)"
	}

	query := fmt.Sprintf(
		"COPY (SELECT * FROM bars ORDER BY time) TO '%s' %s",
		strings.ReplaceAll(w.outputPath, "'", "''"), format,
	)
	if _, err := w.db.Exec(query); err != nil {
		return "", errors.Wrapf(errors.ErrCodeMarketDataWriteFailed, err, "failed to export to %s", w.outputPath)
	}

	return w.outputPath, nil
}

// Close releases the statement, rolls back an unfinished transaction and
// closes the database. Close is safe to call more than once.
func (w *DuckDBWriter) Close() error {
	var firstErr error

	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil {
			firstErr = errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close statement", err)
		}

		w.stmt = nil
	}

	if w.tx != nil {
		// a failed rollback leaves nothing to clean up
		_ = w.tx.Rollback()
		w.tx = nil
	}

	if w.db != nil {
		if err := w.db.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close db connection", err)
		}

		w.db = nil
	}

	return firstErr
}

// GetOutputPath implements BarWriter.
func (w *DuckDBWriter) GetOutputPath() string {
	return w.outputPath
}

func nullable(v optional.Option[float64]) sql.NullFloat64 {
	if v.IsNone() {
		return sql.NullFloat64{Float64: 0, Valid: false}
	}

	return sql.NullFloat64{Float64: v.Unwrap(), Valid: true}
}

package udf

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
)

// Provider supplies the data behind the UDF routes. The handler makes exactly
// one Provider call per request and never caches or retries; an error returned
// here is handed to the handler's error writer untouched.
type Provider interface {
	// GetConfiguration returns the datafeed configuration.
	GetConfiguration(ctx context.Context) (*Configuration, error)
	// GetSymbol resolves a symbol. symbol is empty when the query omits it.
	GetSymbol(ctx context.Context, symbol string) (*SymbolInfo, error)
	// FindSymbols searches symbols. Empty strings mean the filter was not given.
	FindSymbols(ctx context.Context, query, symbolType, exchange string, limit optional.Option[int]) ([]SymbolSearchResult, error)
	// GetHistory returns the bars of symbol at resolution within [from, to].
	// A nil result is allowed and is shaped as missing data.
	GetHistory(ctx context.Context, from, to time.Time, symbol, resolution string) (*BarQueryResult, error)
	// GetMarks returns the marks of symbol within [from, to]. nil is treated as empty.
	GetMarks(ctx context.Context, from, to time.Time, symbol, resolution string) ([]Mark, error)
}

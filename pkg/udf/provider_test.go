package udf

import (
	"context"
	"time"

	"github.com/moznion/go-optional"
)

// staticProvider is a fixed Provider used by in-package tests.
type staticProvider struct{}

func (p *staticProvider) GetConfiguration(_ context.Context) (*Configuration, error) {
	return DefaultConfiguration(), nil
}

func (p *staticProvider) GetSymbol(_ context.Context, symbol string) (*SymbolInfo, error) {
	return NewSymbolInfo(symbol), nil
}

func (p *staticProvider) FindSymbols(_ context.Context, _, _, _ string, _ optional.Option[int]) ([]SymbolSearchResult, error) {
	return []SymbolSearchResult{}, nil
}

func (p *staticProvider) GetHistory(_ context.Context, _, _ time.Time, _, _ string) (*BarQueryResult, error) {
	return nil, nil
}

func (p *staticProvider) GetMarks(_ context.Context, _, _ time.Time, _, _ string) ([]Mark, error) {
	return nil, nil
}

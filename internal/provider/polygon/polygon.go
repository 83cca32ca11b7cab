// Package polygon serves bars from polygon.io aggregates. Symbols and marks
// come from the catalogue.
package polygon

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/moznion/go-optional"
	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/catalog"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"go.uber.org/zap"
)

// aggsLimit is the largest page the aggregates endpoint serves.
const aggsLimit = 50000

// Config configures the polygon provider.
type Config struct {
	APIKey string `yaml:"api_key" json:"api_key,omitempty" env:"API_KEY"`
	// Adjusted requests split adjusted aggregates.
	Adjusted bool `yaml:"adjusted" json:"adjusted,omitempty" env:"ADJUSTED"`
}

// AggregatesRequest selects aggregates of one ticker.
type AggregatesRequest struct {
	Ticker     string
	Multiplier int
	Timespan   models.Timespan
	From       time.Time
	To         time.Time
	Adjusted   bool
}

// Client is the part of the polygon REST API the provider uses.
type Client interface {
	Aggregates(ctx context.Context, req AggregatesRequest) ([]models.Agg, error)
}

type apiClient struct {
	client *polygon.Client
}

// NewClient returns a Client backed by the polygon REST API.
func NewClient(config Config) (Client, error) {
	if config.APIKey == "" {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon api key is required")
	}

	return &apiClient{client: polygon.New(config.APIKey)}, nil
}

func (c *apiClient) Aggregates(ctx context.Context, req AggregatesRequest) ([]models.Agg, error) {
	//nolint:exhaustruct // third-party struct with many optional fields
	params := models.ListAggsParams{
		Ticker:     req.Ticker,
		Multiplier: req.Multiplier,
		Timespan:   req.Timespan,
		From:       models.Millis(req.From),
		To:         models.Millis(req.To),
	}.WithAdjusted(req.Adjusted).WithLimit(aggsLimit)

	iter := c.client.ListAggs(ctx, params)

	aggs := make([]models.Agg, 0)
	for iter.Next() {
		aggs = append(aggs, iter.Item())
	}

	if err := iter.Err(); err != nil {
		return nil, err
	}

	return aggs, nil
}

// Provider implements udf.Provider on top of polygon aggregates.
type Provider struct {
	client   Client
	catalog  *catalog.Catalog
	adjusted bool
	logger   *logger.Logger
}

var _ udf.Provider = (*Provider)(nil)

// NewProvider returns a provider using client for bars and cat for symbols.
func NewProvider(client Client, cat *catalog.Catalog, config Config, logger *logger.Logger) (*Provider, error) {
	if cat == nil {
		return nil, errors.New(errors.ErrCodeInvalidConfiguration, "polygon provider needs a catalog")
	}

	return &Provider{
		client:   client,
		catalog:  cat,
		adjusted: config.Adjusted,
		logger:   logger,
	}, nil
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

// GetHistory implements udf.Provider.
func (p *Provider) GetHistory(ctx context.Context, from, to time.Time, symbol, resolution string) (*udf.BarQueryResult, error) {
	multiplier, timespan, err := ParseResolution(resolution)
	if err != nil {
		var resolutionErr *errors.Error
		if errors.As(err, &resolutionErr) {
			return errorResult(resolutionErr.Message), nil
		}

		return errorResult(err.Error()), nil
	}

	ticker := symbol
	if s, ok := p.catalog.Lookup(symbol); ok {
		ticker = s.Symbol
		if s.Ticker != "" {
			ticker = s.Ticker
		}
	} else {
		_, ticker = catalog.SplitSymbol(symbol)
	}

	p.logger.Debug("Fetching polygon aggregates",
		zap.String("ticker", ticker),
		zap.Int("multiplier", multiplier),
		zap.String("timespan", string(timespan)),
	)

	aggs, err := p.client.Aggregates(ctx, AggregatesRequest{
		Ticker:     ticker,
		Multiplier: multiplier,
		Timespan:   timespan,
		From:       from,
		To:         to,
		Adjusted:   p.adjusted,
	})
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch aggregates for %s", ticker)
	}

	bars := make([]udf.Bar, 0, len(aggs))

	for _, agg := range aggs {
		ts := time.Time(agg.Timestamp).UTC()
		if ts.Before(from) || ts.After(to) {
			continue
		}

		bars = append(bars, udf.Bar{
			Timestamp: ts,
			Close:     agg.Close,
			Open:      optional.Some(agg.Open),
			High:      optional.Some(agg.High),
			Low:       optional.Some(agg.Low),
			Volume:    optional.Some(agg.Volume),
		})
	}

	status := udf.BarStatusOK
	if len(bars) == 0 {
		status = udf.BarStatusNoData
	}

	return &udf.BarQueryResult{
		Status:       status,
		ErrorMessage: optional.None[string](),
		Bars:         bars,
		NextTime:     optional.None[time.Time](),
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

// ParseResolution converts a UDF resolution into a polygon multiplier and
// timespan. Plain numbers are minutes; the suffixes S, D, W and M mean
// seconds, days, weeks and months.
func ParseResolution(resolution string) (int, models.Timespan, error) {
	resolution = strings.ToUpper(strings.TrimSpace(resolution))
	if resolution == "" {
		return 0, "", errors.New(errors.ErrCodeUnsupportedResolution, "empty resolution")
	}

	timespan := models.Minute
	number := resolution

	switch resolution[len(resolution)-1] {
	case 'S':
		timespan = models.Second
		number = resolution[:len(resolution)-1]
	case 'D':
		timespan = models.Day
		number = resolution[:len(resolution)-1]
	case 'W':
		timespan = models.Week
		number = resolution[:len(resolution)-1]
	case 'M':
		timespan = models.Month
		number = resolution[:len(resolution)-1]
	}

	if number == "" {
		return 1, timespan, nil
	}

	multiplier, err := strconv.Atoi(number)
	if err != nil || multiplier <= 0 {
		return 0, "", errors.Newf(errors.ErrCodeUnsupportedResolution, "unsupported resolution %s", resolution)
	}

	return multiplier, timespan, nil
}

// Package binance serves bars and symbols from the Binance spot market.
package binance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/catalog"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// ExchangeName is the exchange reported for every symbol.
	ExchangeName = "BINANCE"
	// SymbolType is the type reported for every symbol.
	SymbolType = "crypto"

	// klinesPageSize is the largest page the klines endpoint returns.
	klinesPageSize = 1000
	// maxKlinePages bounds a single history request.
	maxKlinePages = 20

	tradingStatus = "TRADING"

	// invalidSymbolCode is the API error code for an unknown symbol.
	invalidSymbolCode = -1121
)

// intervals maps UDF resolutions onto Binance kline intervals.
var intervals = map[string]string{
	"1":   "1m",
	"3":   "3m",
	"5":   "5m",
	"15":  "15m",
	"30":  "30m",
	"60":  "1h",
	"120": "2h",
	"240": "4h",
	"360": "6h",
	"480": "8h",
	"720": "12h",
	"D":   "1d",
	"1D":  "1d",
	"3D":  "3d",
	"W":   "1w",
	"1W":  "1w",
	"M":   "1M",
	"1M":  "1M",
}

// Resolutions are the resolutions advertised in /config.
var Resolutions = []string{"1", "3", "5", "15", "30", "60", "120", "240", "360", "480", "720", "1D", "3D", "1W", "1M"}

// Client is the part of the Binance REST API the provider uses.
type Client interface {
	Klines(ctx context.Context, symbol, interval string, start, end optional.Option[int64], limit int) ([]*binance.Kline, error)
	ExchangeInfo(ctx context.Context, symbol string) (*binance.ExchangeInfo, error)
}

// Config configures the binance provider.
type Config struct {
	// BaseURL overrides the API endpoint, e.g. for the testnet.
	BaseURL string `yaml:"base_url" json:"base_url,omitempty" env:"BASE_URL" validate:"omitempty,url"`
	// SymbolsTTL is how long the exchange symbol list is cached.
	SymbolsTTL time.Duration `yaml:"symbols_ttl" json:"symbols_ttl,omitempty" env:"SYMBOLS_TTL"`
}

// DefaultSymbolsTTL is used when Config.SymbolsTTL is not set.
const DefaultSymbolsTTL = time.Hour

type apiClient struct {
	client *binance.Client
}

// NewClient returns a Client backed by the public Binance API.
func NewClient(config Config) Client {
	client := binance.NewClient("", "")
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return &apiClient{client: client}
}

func (c *apiClient) Klines(ctx context.Context, symbol, interval string, start, end optional.Option[int64], limit int) ([]*binance.Kline, error) {
	service := c.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit)

	if start.IsSome() {
		service = service.StartTime(start.Unwrap())
	}

	if end.IsSome() {
		service = service.EndTime(end.Unwrap())
	}

	return service.Do(ctx)
}

func (c *apiClient) ExchangeInfo(ctx context.Context, symbol string) (*binance.ExchangeInfo, error) {
	service := c.client.NewExchangeInfoService()
	if symbol != "" {
		service = service.Symbol(symbol)
	}

	return service.Do(ctx)
}

// Provider implements udf.Provider on top of the Binance API.
type Provider struct {
	client Client
	config Config
	logger *logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	symbols   []binance.Symbol
	fetchedAt time.Time
}

var _ udf.Provider = (*Provider)(nil)

// NewProvider returns a provider using client.
func NewProvider(client Client, config Config, logger *logger.Logger) *Provider {
	if config.SymbolsTTL <= 0 {
		config.SymbolsTTL = DefaultSymbolsTTL
	}

	return &Provider{
		client:    client,
		config:    config,
		logger:    logger,
		now:       time.Now,
		mu:        sync.Mutex{},
		symbols:   nil,
		fetchedAt: time.Time{},
	}
}

// GetConfiguration implements udf.Provider.
func (p *Provider) GetConfiguration(_ context.Context) (*udf.Configuration, error) {
	cfg := udf.DefaultConfiguration()
	cfg.SupportedResolutions = append([]string(nil), Resolutions...)
	cfg.SupportsSearch = true
	cfg.SupportsTime = true
	cfg.Exchanges = []udf.Exchange{{Value: ExchangeName, Name: "Binance", Desc: "Binance spot"}}
	cfg.SymbolsTypes = []udf.SymbolType{{Name: "Crypto", Value: SymbolType}}

	return cfg, nil
}

// GetSymbol implements udf.Provider.
func (p *Provider) GetSymbol(ctx context.Context, symbol string) (*udf.SymbolInfo, error) {
	name, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}

	info, err := p.client.ExchangeInfo(ctx, name)
	if isInvalidSymbol(err) {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "unknown symbol %s", symbol)
	}

	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch exchange info for %s", name)
	}

	for _, s := range info.Symbols {
		if s.Symbol == name {
			return symbolInfo(s), nil
		}
	}

	return nil, errors.Newf(errors.ErrCodeDataNotFound, "unknown symbol %s", symbol)
}

// FindSymbols implements udf.Provider. Only trading symbols are listed.
func (p *Provider) FindSymbols(ctx context.Context, query, symbolType, exchange string, limit optional.Option[int]) ([]udf.SymbolSearchResult, error) {
	results := make([]udf.SymbolSearchResult, 0)

	if symbolType != "" && !strings.EqualFold(symbolType, SymbolType) {
		return results, nil
	}

	if exchange != "" && !strings.EqualFold(exchange, ExchangeName) {
		return results, nil
	}

	symbols, err := p.listSymbols(ctx)
	if err != nil {
		return nil, err
	}

	maxResults := limit.TakeOr(catalog.DefaultSearchLimit)
	if maxResults <= 0 {
		maxResults = catalog.DefaultSearchLimit
	}

	query = strings.ToUpper(strings.ReplaceAll(query, "/", ""))

	for _, s := range symbols {
		if len(results) >= maxResults {
			break
		}

		if s.Status != tradingStatus || !strings.Contains(s.Symbol, query) {
			continue
		}

		results = append(results, udf.SymbolSearchResult{
			Symbol:      s.Symbol,
			FullName:    ExchangeName + ":" + s.Symbol,
			Ticker:      s.Symbol,
			Description: s.BaseAsset + " / " + s.QuoteAsset,
			Exchange:    ExchangeName,
			Type:        SymbolType,
		})
	}

	return results, nil
}

// listSymbols returns the cached exchange symbol list, refreshing it once it
// is older than the configured TTL.
func (p *Provider) listSymbols(ctx context.Context) ([]binance.Symbol, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.symbols != nil && p.now().Sub(p.fetchedAt) < p.config.SymbolsTTL {
		return p.symbols, nil
	}

	info, err := p.client.ExchangeInfo(ctx, "")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataFetchFailed, "failed to fetch exchange info", err)
	}

	symbols := append([]binance.Symbol(nil), info.Symbols...)
	sort.Slice(symbols, func(i, j int) bool {
		return symbols[i].Symbol < symbols[j].Symbol
	})

	p.logger.Debug("Refreshed binance symbols", zap.Int("count", len(symbols)))

	p.symbols = symbols
	p.fetchedAt = p.now()

	return symbols, nil
}

// GetHistory implements udf.Provider. Klines are paged until to is reached.
func (p *Provider) GetHistory(ctx context.Context, from, to time.Time, symbol, resolution string) (*udf.BarQueryResult, error) {
	interval, ok := intervals[resolution]
	if !ok {
		return errorResult(fmt.Sprintf("unsupported resolution %s", resolution)), nil
	}

	name, err := normalizeSymbol(symbol)
	if err != nil {
		return errorResult(err.Error()), nil
	}

	bars := make([]udf.Bar, 0)
	start := from.UnixMilli()
	end := to.UnixMilli()

	for page := 0; start <= end; page++ {
		if page == maxKlinePages {
			p.logger.Warn("History truncated after page limit",
				zap.String("symbol", name),
				zap.String("resolution", resolution),
				zap.Int("pages", maxKlinePages),
				zap.Time("dropped_from", time.UnixMilli(start).UTC()),
				zap.Time("dropped_to", to.UTC()),
			)

			break
		}

		klines, err := p.client.Klines(ctx, name, interval, optional.Some(start), optional.Some(end), klinesPageSize)
		if isInvalidSymbol(err) {
			return errorResult(fmt.Sprintf("unknown symbol %s", name)), nil
		}

		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch klines for %s", name)
		}

		for _, k := range klines {
			bar, err := klineToBar(k)
			if err != nil {
				return nil, err
			}

			bars = append(bars, bar)
		}

		if len(klines) < klinesPageSize {
			break
		}

		start = klines[len(klines)-1].CloseTime + 1
	}

	if len(bars) > 0 {
		return &udf.BarQueryResult{
			Status:       udf.BarStatusOK,
			ErrorMessage: optional.None[string](),
			Bars:         bars,
			NextTime:     optional.None[time.Time](),
		}, nil
	}

	previous, err := p.client.Klines(ctx, name, interval, optional.None[int64](), optional.Some(from.UnixMilli()-1), 1)
	if isInvalidSymbol(err) {
		return errorResult(fmt.Sprintf("unknown symbol %s", name)), nil
	}

	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataFetchFailed, err, "failed to fetch klines for %s", name)
	}

	next := optional.None[time.Time]()
	if len(previous) > 0 {
		next = optional.Some(time.UnixMilli(previous[len(previous)-1].OpenTime).UTC())
	}

	return &udf.BarQueryResult{
		Status:       udf.BarStatusNoData,
		ErrorMessage: optional.None[string](),
		Bars:         bars,
		NextTime:     next,
	}, nil
}

// GetMarks implements udf.Provider. Binance has no marks.
func (p *Provider) GetMarks(_ context.Context, _, _ time.Time, _, _ string) ([]udf.Mark, error) {
	return []udf.Mark{}, nil
}

func isInvalidSymbol(err error) bool {
	var apiErr *common.APIError

	return errors.As(err, &apiErr) && apiErr.Code == invalidSymbolCode
}

func errorResult(message string) *udf.BarQueryResult {
	return &udf.BarQueryResult{
		Status:       udf.BarStatusError,
		ErrorMessage: optional.Some(message),
		Bars:         []udf.Bar{},
		NextTime:     optional.None[time.Time](),
	}
}

// normalizeSymbol turns "BINANCE:BTC/USDT" into "BTCUSDT".
func normalizeSymbol(symbol string) (string, error) {
	exchange, name := catalog.SplitSymbol(symbol)
	if exchange != "" && !strings.EqualFold(exchange, ExchangeName) {
		return "", errors.Newf(errors.ErrCodeDataNotFound, "unknown exchange %s", exchange)
	}

	name = strings.ToUpper(strings.ReplaceAll(name, "/", ""))
	if name == "" {
		return "", errors.New(errors.ErrCodeInvalidParameter, "symbol is empty")
	}

	return name, nil
}

func klineToBar(k *binance.Kline) (udf.Bar, error) {
	values := make([]float64, 0, 5)

	for _, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return udf.Bar{}, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "invalid kline value %q", raw)
		}

		values = append(values, v)
	}

	return udf.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      optional.Some(values[0]),
		High:      optional.Some(values[1]),
		Low:       optional.Some(values[2]),
		Close:     values[3],
		Volume:    optional.Some(values[4]),
	}, nil
}

func symbolInfo(s binance.Symbol) *udf.SymbolInfo {
	info := udf.NewSymbolInfo(s.Symbol)
	info.Ticker = s.Symbol
	info.Description = s.BaseAsset + " / " + s.QuoteAsset
	info.Type = SymbolType
	info.Session = catalog.DefaultSession
	info.ExchangeTraded = ExchangeName
	info.ExchangeListed = ExchangeName
	info.MinMov = optional.Some(1.0)
	info.PriceScale = optional.Some(math.Pow10(s.QuotePrecision))
	info.HasIntraday = optional.Some(true)
	info.HasDaily = optional.Some(true)
	info.HasWeeklyAndMonthly = optional.Some(true)
	info.SupportedResolutions = append([]string(nil), Resolutions...)
	info.IntradayMultipliers = []string{"1", "3", "5", "15", "30", "60", "120", "240", "360", "480", "720"}
	info.VolumePrecision = optional.Some(s.BaseAssetPrecision)
	info.CurrencyCode = s.QuoteAsset

	if filter := s.PriceFilter(); filter != nil {
		if decimals, ok := stepDecimals(filter.TickSize); ok {
			info.PriceScale = optional.Some(math.Pow10(decimals))
		}
	}

	if filter := s.LotSizeFilter(); filter != nil {
		if decimals, ok := stepDecimals(filter.StepSize); ok {
			info.VolumePrecision = optional.Some(decimals)
		}
	}

	return info
}

// stepDecimals counts the decimals of a step like "0.01000000".
func stepDecimals(step string) (int, bool) {
	d, err := decimal.NewFromString(step)
	if err != nil || !d.IsPositive() {
		return 0, false
	}

	// String drops the trailing zeros
	normalized := d.String()

	i := strings.IndexByte(normalized, '.')
	if i < 0 {
		return 0, true
	}

	return len(normalized) - i - 1, true
}

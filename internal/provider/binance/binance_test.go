package binance

import (
	"context"
	"fmt"
	"testing"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type klinesCall struct {
	symbol   string
	interval string
	start    optional.Option[int64]
	end      optional.Option[int64]
	limit    int
}

type fakeClient struct {
	klines            [][]*binance.Kline
	previous          []*binance.Kline
	klinesErr         error
	previousErr       error
	exchangeInfo      *binance.ExchangeInfo
	exchangeInfoErr   error
	klinesCalls       []klinesCall
	exchangeInfoCalls []string
}

func (f *fakeClient) Klines(_ context.Context, symbol, interval string, start, end optional.Option[int64], limit int) ([]*binance.Kline, error) {
	f.klinesCalls = append(f.klinesCalls, klinesCall{symbol: symbol, interval: interval, start: start, end: end, limit: limit})

	if f.klinesErr != nil {
		return nil, f.klinesErr
	}

	if start.IsNone() {
		return f.previous, f.previousErr
	}

	if len(f.klines) == 0 {
		return nil, nil
	}

	page := f.klines[0]
	f.klines = f.klines[1:]

	return page, nil
}

func (f *fakeClient) ExchangeInfo(_ context.Context, symbol string) (*binance.ExchangeInfo, error) {
	f.exchangeInfoCalls = append(f.exchangeInfoCalls, symbol)

	if f.exchangeInfoErr != nil {
		return nil, f.exchangeInfoErr
	}

	return f.exchangeInfo, nil
}

type BinanceProviderTestSuite struct {
	suite.Suite
	client   *fakeClient
	provider *Provider
}

func TestBinanceProviderSuite(t *testing.T) {
	suite.Run(t, new(BinanceProviderTestSuite))
}

func (suite *BinanceProviderTestSuite) SetupTest() {
	suite.client = &fakeClient{
		exchangeInfo: &binance.ExchangeInfo{
			Symbols: []binance.Symbol{
				{
					Symbol:             "ETHUSDT",
					Status:             "TRADING",
					BaseAsset:          "ETH",
					BaseAssetPrecision: 8,
					QuoteAsset:         "USDT",
					QuotePrecision:     8,
					Filters: []map[string]interface{}{
						{"filterType": "PRICE_FILTER", "minPrice": "0.01", "maxPrice": "1000000", "tickSize": "0.01000000"},
						{"filterType": "LOT_SIZE", "minQty": "0.0001", "maxQty": "9000", "stepSize": "0.00010000"},
					},
				},
				{Symbol: "BTCUSDT", Status: "TRADING", BaseAsset: "BTC", QuoteAsset: "USDT", QuotePrecision: 2},
				{Symbol: "BTCBUSD", Status: "BREAK", BaseAsset: "BTC", QuoteAsset: "BUSD"},
			},
		},
	}
	suite.provider = NewProvider(suite.client, Config{}, logger.NewNopLogger())
}

func kline(openTime int64, closePrice string) *binance.Kline {
	return &binance.Kline{
		OpenTime:  openTime,
		Open:      "1.5",
		High:      "2.5",
		Low:       "1.0",
		Close:     closePrice,
		Volume:    "10",
		CloseTime: openTime + 59_999,
	}
}

func (suite *BinanceProviderTestSuite) TestGetConfiguration() {
	cfg, err := suite.provider.GetConfiguration(context.Background())
	suite.Require().NoError(err)

	suite.Equal(Resolutions, cfg.SupportedResolutions)
	suite.True(cfg.SupportsSearch)
	suite.False(cfg.SupportsMarks)
	suite.True(cfg.SupportsTime)
}

func (suite *BinanceProviderTestSuite) TestGetHistory() {
	suite.client.klines = [][]*binance.Kline{{kline(60_000, "2"), kline(120_000, "2.25")}}

	result, err := suite.provider.GetHistory(context.Background(), time.UnixMilli(60_000), time.UnixMilli(180_000), "BINANCE:ETH/USDT", "1")
	suite.Require().NoError(err)

	suite.Equal(udf.BarStatusOK, result.Status)
	suite.Require().Len(result.Bars, 2)
	suite.Equal(time.UnixMilli(60_000).UTC(), result.Bars[0].Timestamp)
	suite.Equal(2.25, result.Bars[1].Close)
	suite.Equal(optional.Some(1.5), result.Bars[0].Open)
	suite.Equal(optional.Some(10.0), result.Bars[0].Volume)

	suite.Require().Len(suite.client.klinesCalls, 1)
	call := suite.client.klinesCalls[0]
	suite.Equal("ETHUSDT", call.symbol)
	suite.Equal("1m", call.interval)
	suite.Equal(optional.Some(int64(60_000)), call.start)
	suite.Equal(optional.Some(int64(180_000)), call.end)
	suite.Equal(klinesPageSize, call.limit)
}

func (suite *BinanceProviderTestSuite) TestGetHistoryPaginates() {
	first := make([]*binance.Kline, 0, klinesPageSize)
	for i := range klinesPageSize {
		first = append(first, kline(int64(i)*60_000, "1"))
	}

	suite.client.klines = [][]*binance.Kline{first, {kline(int64(klinesPageSize)*60_000, "3")}}

	end := time.UnixMilli(int64(klinesPageSize+10) * 60_000)
	result, err := suite.provider.GetHistory(context.Background(), time.UnixMilli(0), end, "ETHUSDT", "1")
	suite.Require().NoError(err)

	suite.Len(result.Bars, klinesPageSize+1)
	suite.Require().Len(suite.client.klinesCalls, 2)
	suite.Equal(optional.Some(int64(klinesPageSize)*60_000), suite.client.klinesCalls[1].start)
}

func (suite *BinanceProviderTestSuite) TestGetHistoryWarnsWhenTruncated() {
	core, logs := observer.New(zapcore.WarnLevel)
	provider := NewProvider(suite.client, Config{}, &logger.Logger{Logger: zap.New(core)})

	pages := make([][]*binance.Kline, 0, maxKlinePages)
	for page := range maxKlinePages {
		klines := make([]*binance.Kline, 0, klinesPageSize)
		for i := range klinesPageSize {
			klines = append(klines, kline(int64(page*klinesPageSize+i)*60_000, "1"))
		}

		pages = append(pages, klines)
	}

	suite.client.klines = pages

	total := maxKlinePages * klinesPageSize
	end := time.UnixMilli(int64(total+100) * 60_000)
	result, err := provider.GetHistory(context.Background(), time.UnixMilli(0), end, "ETHUSDT", "1")
	suite.Require().NoError(err)

	suite.Equal(udf.BarStatusOK, result.Status)
	suite.Len(result.Bars, total)
	suite.Len(suite.client.klinesCalls, maxKlinePages)

	entries := logs.FilterMessage("History truncated after page limit").All()
	suite.Require().Len(entries, 1)

	fields := entries[0].ContextMap()
	suite.Equal("ETHUSDT", fields["symbol"])
	droppedFrom, ok := fields["dropped_from"].(time.Time)
	suite.Require().True(ok)
	suite.True(droppedFrom.Equal(time.UnixMilli(int64(total) * 60_000)))

	droppedTo, ok := fields["dropped_to"].(time.Time)
	suite.Require().True(ok)
	suite.True(droppedTo.Equal(end))
}

func (suite *BinanceProviderTestSuite) TestGetHistoryUnknownSymbol() {
	suite.client.klinesErr = &common.APIError{Code: invalidSymbolCode, Message: "Invalid symbol."}

	result, err := suite.provider.GetHistory(context.Background(), time.Unix(0, 0), time.Unix(60, 0), "DOGEUSDT", "60")
	suite.Require().NoError(err)
	suite.Equal(udf.BarStatusError, result.Status)
	suite.Equal(optional.Some("unknown symbol DOGEUSDT"), result.ErrorMessage)
	suite.NotNil(result.Bars)

	suite.client.klinesErr = nil
	suite.client.previousErr = &common.APIError{Code: invalidSymbolCode, Message: "Invalid symbol."}

	result, err = suite.provider.GetHistory(context.Background(), time.Unix(0, 0), time.Unix(60, 0), "DOGEUSDT", "60")
	suite.Require().NoError(err)
	suite.Equal(udf.BarStatusError, result.Status)
	suite.Equal(optional.Some("unknown symbol DOGEUSDT"), result.ErrorMessage)
}

func (suite *BinanceProviderTestSuite) TestGetHistoryNoData() {
	suite.client.previous = []*binance.Kline{kline(60_000, "2")}

	result, err := suite.provider.GetHistory(context.Background(), time.UnixMilli(600_000), time.UnixMilli(900_000), "ETHUSDT", "1D")
	suite.Require().NoError(err)

	suite.Equal(udf.BarStatusNoData, result.Status)
	suite.NotNil(result.Bars)
	suite.Empty(result.Bars)
	suite.Equal(optional.Some(time.UnixMilli(60_000).UTC()), result.NextTime)

	suite.Require().Len(suite.client.klinesCalls, 2)
	suite.Equal("1d", suite.client.klinesCalls[1].interval)
	suite.Equal(optional.Some(int64(599_999)), suite.client.klinesCalls[1].end)
	suite.Equal(1, suite.client.klinesCalls[1].limit)
}

func (suite *BinanceProviderTestSuite) TestGetHistoryUnsupportedResolution() {
	result, err := suite.provider.GetHistory(context.Background(), time.Unix(0, 0), time.Unix(60, 0), "ETHUSDT", "7")
	suite.Require().NoError(err)

	suite.Equal(udf.BarStatusError, result.Status)
	suite.Equal(optional.Some("unsupported resolution 7"), result.ErrorMessage)
	suite.Empty(suite.client.klinesCalls)
}

func (suite *BinanceProviderTestSuite) TestGetHistoryErrors() {
	suite.client.klinesErr = fmt.Errorf("connection reset")

	_, err := suite.provider.GetHistory(context.Background(), time.Unix(0, 0), time.Unix(60, 0), "ETHUSDT", "1")
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))

	suite.client.klinesErr = nil
	bad := kline(0, "not-a-number")
	suite.client.klines = [][]*binance.Kline{{bad}}

	_, err = suite.provider.GetHistory(context.Background(), time.Unix(0, 0), time.Unix(60, 0), "ETHUSDT", "1")
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataParseFailed))
}

func (suite *BinanceProviderTestSuite) TestGetSymbol() {
	info, err := suite.provider.GetSymbol(context.Background(), "binance:eth/usdt")
	suite.Require().NoError(err)

	suite.Equal([]string{"ETHUSDT"}, suite.client.exchangeInfoCalls)
	suite.Equal("ETHUSDT", info.Name)
	suite.Equal("ETH / USDT", info.Description)
	suite.Equal(SymbolType, info.Type)
	suite.Equal("24x7", info.Session)
	suite.Equal("Etc/UTC", info.Timezone)
	suite.Equal("USDT", info.CurrencyCode)
	suite.Equal(optional.Some(100.0), info.PriceScale)
	suite.Equal(optional.Some(4), info.VolumePrecision)

	info, err = suite.provider.GetSymbol(context.Background(), "BTCUSDT")
	suite.Require().NoError(err)
	suite.Equal(optional.Some(100.0), info.PriceScale)

	_, err = suite.provider.GetSymbol(context.Background(), "DOGEUSDT")
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))

	_, err = suite.provider.GetSymbol(context.Background(), "NASDAQ:AAPL")
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))

	suite.client.exchangeInfoErr = fmt.Errorf("timeout")
	_, err = suite.provider.GetSymbol(context.Background(), "ETHUSDT")
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
}

func (suite *BinanceProviderTestSuite) TestGetSymbolInvalidSymbolAPIError() {
	suite.client.exchangeInfoErr = &common.APIError{Code: invalidSymbolCode, Message: "Invalid symbol."}

	_, err := suite.provider.GetSymbol(context.Background(), "NOPE")
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func (suite *BinanceProviderTestSuite) TestFindSymbols() {
	tests := []struct {
		name       string
		query      string
		symbolType string
		exchange   string
		limit      optional.Option[int]
		want       []string
	}{
		{name: "substring", query: "btc", want: []string{"BTCUSDT"}},
		{name: "slash is ignored", query: "eth/usdt", want: []string{"ETHUSDT"}},
		{name: "all trading", query: "", want: []string{"BTCUSDT", "ETHUSDT"}},
		{name: "limit", query: "", limit: optional.Some(1), want: []string{"BTCUSDT"}},
		{name: "other type", query: "", symbolType: "stock", want: []string{}},
		{name: "other exchange", query: "", exchange: "NASDAQ", want: []string{}},
		{name: "matching filters", query: "eth", symbolType: "crypto", exchange: "binance", want: []string{"ETHUSDT"}},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			results, err := suite.provider.FindSymbols(context.Background(), tc.query, tc.symbolType, tc.exchange, tc.limit)
			suite.Require().NoError(err)

			symbols := make([]string, 0, len(results))
			for _, r := range results {
				symbols = append(symbols, r.Symbol)
			}

			suite.Equal(tc.want, symbols)
		})
	}

	suite.Equal([]string{""}, suite.client.exchangeInfoCalls)
}

func (suite *BinanceProviderTestSuite) TestFindSymbolsRefreshesAfterTTL() {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	suite.provider.now = func() time.Time { return now }

	_, err := suite.provider.FindSymbols(context.Background(), "", "", "", optional.None[int]())
	suite.Require().NoError(err)

	now = now.Add(DefaultSymbolsTTL - time.Second)
	_, err = suite.provider.FindSymbols(context.Background(), "", "", "", optional.None[int]())
	suite.Require().NoError(err)
	suite.Len(suite.client.exchangeInfoCalls, 1)

	now = now.Add(2 * time.Second)
	_, err = suite.provider.FindSymbols(context.Background(), "", "", "", optional.None[int]())
	suite.Require().NoError(err)
	suite.Len(suite.client.exchangeInfoCalls, 2)
}

func (suite *BinanceProviderTestSuite) TestGetMarks() {
	marks, err := suite.provider.GetMarks(context.Background(), time.Unix(0, 0), time.Unix(60, 0), "ETHUSDT", "1")
	suite.Require().NoError(err)
	suite.NotNil(marks)
	suite.Empty(marks)
}

func (suite *BinanceProviderTestSuite) TestStepDecimals() {
	tests := []struct {
		step string
		want int
		ok   bool
	}{
		{step: "0.01000000", want: 2, ok: true},
		{step: "1.00000000", want: 0, ok: true},
		{step: "0.00000100", want: 6, ok: true},
		{step: "0", ok: false},
		{step: "abc", ok: false},
	}

	for _, tc := range tests {
		got, ok := stepDecimals(tc.step)
		suite.Equal(tc.ok, ok, tc.step)
		suite.Equal(tc.want, got, tc.step)
	}
}

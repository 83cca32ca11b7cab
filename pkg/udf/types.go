// Package udf exposes TradingView's UDF (Universal Data Feed) REST contract
// over a pluggable Provider.
//
// The package owns three things: the Unix-seconds time codec, the shaping of
// history and marks results into the column layout the charting library
// expects, and the HTTP handler that glues query parameters to Provider calls.
// Everything about where bars, symbols and marks come from belongs to the
// Provider.
package udf

import (
	"time"

	"github.com/moznion/go-optional"
)

// DefaultSupportedResolutions is used by DefaultConfiguration.
var DefaultSupportedResolutions = []string{"1", "5", "15", "30", "60", "1D", "1W", "1M"}

// DefaultTimezone is the timezone NewSymbolInfo assigns.
const DefaultTimezone = "Etc/UTC"

// DefaultMarkMinSize is the minimum mark size used when a Mark leaves MinSize unset.
const DefaultMarkMinSize = 1

// BarStatus is the outcome of a history query.
type BarStatus string

const (
	BarStatusOK     BarStatus = "ok"
	BarStatusNoData BarStatus = "no_data"
	BarStatusError  BarStatus = "error"
)

// Bar is one OHLCV data point. Close is always set; the other prices and the
// volume may be absent, and absent is not the same as zero.
type Bar struct {
	Timestamp time.Time
	Close     float64
	Open      optional.Option[float64]
	High      optional.Option[float64]
	Low       optional.Option[float64]
	Volume    optional.Option[float64]
}

// BarQueryResult is what a Provider returns for a history query.
type BarQueryResult struct {
	Status BarStatus
	// ErrorMessage is only meaningful when Status is BarStatusError.
	ErrorMessage optional.Option[string]
	// Bars holds the bars in ascending time order. A nil slice means the
	// provider has no bar sequence at all; an empty slice is an empty sequence.
	Bars []Bar
	// NextTime is the time of the closest bar before the requested range,
	// reported with BarStatusNoData.
	NextTime optional.Option[time.Time]
}

// Mark is an annotated event drawn on the chart.
type Mark struct {
	ID             int
	Timestamp      time.Time
	Label          string
	LabelFontColor string
	Color          string
	Text           string
	MinSize        int
}

// SymbolSearchResult is one row of a symbol search.
type SymbolSearchResult struct {
	Symbol      string `json:"symbol" yaml:"symbol"`
	FullName    string `json:"full_name" yaml:"full_name"`
	Ticker      string `json:"ticker,omitempty" yaml:"ticker"`
	Description string `json:"description" yaml:"description"`
	Exchange    string `json:"exchange" yaml:"exchange"`
	Type        string `json:"type" yaml:"type"`
}

// Exchange is an entry of the exchange filter offered by the search dialog.
type Exchange struct {
	Value string `json:"value" yaml:"value"`
	Name  string `json:"name" yaml:"name"`
	Desc  string `json:"desc" yaml:"desc"`
}

// SymbolType is an entry of the symbol type filter offered by the search dialog.
type SymbolType struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Configuration is the datafeed configuration served by /config.
type Configuration struct {
	SupportedResolutions   []string     `json:"supported_resolutions"`
	SupportsGroupRequest   bool         `json:"supports_group_request"`
	SupportsMarks          bool         `json:"supports_marks"`
	SupportsSearch         bool         `json:"supports_search"`
	SupportsTimescaleMarks bool         `json:"supports_timescale_marks"`
	SupportsTime           bool         `json:"supports_time,omitempty"`
	Exchanges              []Exchange   `json:"exchanges,omitempty"`
	SymbolsTypes           []SymbolType `json:"symbols_types,omitempty"`
}

// DefaultConfiguration returns a Configuration with the default resolutions
// and every feature switched off.
func DefaultConfiguration() *Configuration {
	resolutions := make([]string, len(DefaultSupportedResolutions))
	copy(resolutions, DefaultSupportedResolutions)

	return &Configuration{
		SupportedResolutions:   resolutions,
		SupportsGroupRequest:   false,
		SupportsMarks:          false,
		SupportsSearch:         false,
		SupportsTimescaleMarks: false,
		SupportsTime:           false,
		Exchanges:              nil,
		SymbolsTypes:           nil,
	}
}

// SymbolInfo describes a tradable instrument, served by /symbols. Only Name is
// required; absent fields are left out of the response.
type SymbolInfo struct {
	Name                 string                   `json:"name"`
	Ticker               string                   `json:"ticker,omitempty"`
	Description          string                   `json:"description,omitempty"`
	Type                 string                   `json:"type,omitempty"`
	Session              string                   `json:"session,omitempty"`
	Holidays             string                   `json:"holidays,omitempty"`
	Corrections          string                   `json:"corrections,omitempty"`
	ExchangeTraded       string                   `json:"exchange-traded,omitempty"`
	ExchangeListed       string                   `json:"exchange-listed,omitempty"`
	Timezone             string                   `json:"timezone,omitempty"`
	Format               string                   `json:"format,omitempty"`
	MinMov               optional.Option[float64] `json:"minmov,omitempty"`
	PriceScale           optional.Option[float64] `json:"pricescale,omitempty"`
	MinMov2              optional.Option[float64] `json:"minmov2,omitempty"`
	Fractional           optional.Option[bool]    `json:"fractional,omitempty"`
	PointValue           optional.Option[float64] `json:"pointvalue,omitempty"`
	HasIntraday          optional.Option[bool]    `json:"has_intraday,omitempty"`
	SupportedResolutions []string                 `json:"supported_resolutions,omitempty"`
	IntradayMultipliers  []string                 `json:"intraday_multipliers,omitempty"`
	HasDaily             optional.Option[bool]    `json:"has_daily,omitempty"`
	HasSeconds           optional.Option[bool]    `json:"has_seconds,omitempty"`
	SecondsMultipliers   []string                 `json:"seconds_multipliers,omitempty"`
	HasWeeklyAndMonthly  optional.Option[bool]    `json:"has_weekly_and_monthly,omitempty"`
	HasEmptyBars         optional.Option[bool]    `json:"has_empty_bars,omitempty"`
	ForceSessionRebuild  optional.Option[bool]    `json:"force_session_rebuild,omitempty"`
	HasNoVolume          optional.Option[bool]    `json:"has_no_volume,omitempty"`
	VolumePrecision      optional.Option[int]     `json:"volume_precision,omitempty"`
	DataStatus           string                   `json:"data_status,omitempty"`
	Expired              optional.Option[bool]    `json:"expired,omitempty"`
	ExpirationDate       string                   `json:"expiration_date,omitempty"`
	Sector               string                   `json:"sector,omitempty"`
	Industry             string                   `json:"industry,omitempty"`
	OriginalCurrencyCode string                   `json:"original_currency_code,omitempty"`
	CurrencyCode         string                   `json:"currency_code,omitempty"`
}

// NewSymbolInfo returns a SymbolInfo for name with the default timezone.
//
//nolint:exhaustruct // every other field is optional
func NewSymbolInfo(name string) *SymbolInfo {
	return &SymbolInfo{
		Name:     name,
		Timezone: DefaultTimezone,
	}
}

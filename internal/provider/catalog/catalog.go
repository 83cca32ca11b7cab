// Package catalog holds the statically configured symbols and marks that the
// file and polygon providers serve from /config, /symbols, /search and /marks.
package catalog

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"gopkg.in/yaml.v3"
)

// DefaultSearchLimit caps search results when the request has no limit.
const DefaultSearchLimit = 100

// DefaultSession is the trading session of a symbol that does not set one.
const DefaultSession = "24x7"

// Source is a bar file for one symbol and resolution.
type Source struct {
	// Path of a CSV or parquet file, or a glob DuckDB understands.
	Path string `yaml:"path" json:"path" validate:"required" jsonschema:"description=CSV or parquet file with the bars"`
	// TimeColumn is the column holding the bar time. Defaults to "time".
	TimeColumn string `yaml:"time_column" json:"time_column,omitempty"`
	// TimeFormat is one of unix-sec, unix-ms or date. Defaults to unix-sec.
	TimeFormat string `yaml:"time_format" json:"time_format,omitempty" validate:"omitempty,oneof=unix-sec unix-ms date" jsonschema:"enum=unix-sec,enum=unix-ms,enum=date"`
	// Missing lists the optional columns the file does not have.
	Missing []string `yaml:"missing" json:"missing,omitempty" validate:"dive,oneof=open high low volume"`
}

// Symbol is one catalogue entry.
type Symbol struct {
	Symbol          string            `yaml:"symbol" json:"symbol" validate:"required"`
	FullName        string            `yaml:"full_name" json:"full_name,omitempty"`
	Ticker          string            `yaml:"ticker" json:"ticker,omitempty"`
	Description     string            `yaml:"description" json:"description,omitempty"`
	Exchange        string            `yaml:"exchange" json:"exchange,omitempty"`
	Type            string            `yaml:"type" json:"type,omitempty"`
	Session         string            `yaml:"session" json:"session,omitempty"`
	Timezone        string            `yaml:"timezone" json:"timezone,omitempty"`
	PriceScale      float64           `yaml:"pricescale" json:"pricescale,omitempty" validate:"gte=0"`
	MinMov          float64           `yaml:"minmov" json:"minmov,omitempty" validate:"gte=0"`
	HasIntraday     bool              `yaml:"has_intraday" json:"has_intraday,omitempty"`
	HasNoVolume     bool              `yaml:"has_no_volume" json:"has_no_volume,omitempty"`
	VolumePrecision int               `yaml:"volume_precision" json:"volume_precision,omitempty" validate:"gte=0"`
	CurrencyCode    string            `yaml:"currency_code" json:"currency_code,omitempty"`
	Resolutions     []string          `yaml:"resolutions" json:"resolutions,omitempty"`
	Sources         map[string]Source `yaml:"sources" json:"sources,omitempty" validate:"dive"`
}

// Mark is a configured chart annotation.
type Mark struct {
	ID             int       `yaml:"id" json:"id"`
	Symbol         string    `yaml:"symbol" json:"symbol" validate:"required"`
	Time           time.Time `yaml:"time" json:"time" validate:"required"`
	Label          string    `yaml:"label" json:"label,omitempty"`
	LabelFontColor string    `yaml:"label_font_color" json:"label_font_color,omitempty"`
	Color          string    `yaml:"color" json:"color,omitempty"`
	Text           string    `yaml:"text" json:"text,omitempty"`
	MinSize        int       `yaml:"min_size" json:"min_size,omitempty" validate:"gte=0"`
}

// Catalog is the set of symbols and marks a provider serves.
type Catalog struct {
	Resolutions  []string         `yaml:"resolutions" json:"resolutions,omitempty"`
	Exchanges    []udf.Exchange   `yaml:"exchanges" json:"exchanges,omitempty"`
	SymbolsTypes []udf.SymbolType `yaml:"symbols_types" json:"symbols_types,omitempty"`
	Symbols      []Symbol         `yaml:"symbols" json:"symbols,omitempty" validate:"dive"`
	Marks        []Mark           `yaml:"marks" json:"marks,omitempty" validate:"dive"`
}

// Load reads a catalogue from a YAML file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read catalog %s", path)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse catalog %s", path)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Validate checks the catalogue entries.
func (c *Catalog) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid catalog", err)
	}

	seen := make(map[string]struct{}, len(c.Symbols))
	for _, s := range c.Symbols {
		key := strings.ToUpper(s.Symbol)
		if _, ok := seen[key]; ok {
			return errors.Newf(errors.ErrCodeInvalidConfiguration, "duplicate catalog symbol %s", s.Symbol)
		}

		seen[key] = struct{}{}
	}

	return nil
}

// Configuration builds the /config payload. Marks are advertised only when
// the catalogue has some.
func (c *Catalog) Configuration() *udf.Configuration {
	cfg := udf.DefaultConfiguration()
	if len(c.Resolutions) > 0 {
		cfg.SupportedResolutions = append([]string(nil), c.Resolutions...)
	}

	cfg.SupportsSearch = true
	cfg.SupportsMarks = len(c.Marks) > 0
	cfg.SupportsTime = true
	cfg.Exchanges = c.Exchanges
	cfg.SymbolsTypes = c.SymbolsTypes

	return cfg
}

// Lookup finds a symbol by name. The name may carry an "EXCHANGE:" prefix, in
// which case the exchange has to match too. Matching ignores case.
func (c *Catalog) Lookup(name string) (*Symbol, bool) {
	exchange, symbol := SplitSymbol(name)

	for i := range c.Symbols {
		s := &c.Symbols[i]
		if !strings.EqualFold(s.Symbol, symbol) {
			continue
		}

		if exchange != "" && !strings.EqualFold(s.Exchange, exchange) {
			continue
		}

		return s, true
	}

	return nil, false
}

// SymbolInfo resolves name into the /symbols payload.
func (c *Catalog) SymbolInfo(name string) (*udf.SymbolInfo, error) {
	s, ok := c.Lookup(name)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDataNotFound, "unknown symbol %s", name)
	}

	info := udf.NewSymbolInfo(s.Symbol)
	info.Ticker = s.Symbol
	info.Description = s.Description
	info.Type = s.Type
	info.Session = s.Session
	info.ExchangeTraded = s.Exchange
	info.ExchangeListed = s.Exchange
	info.CurrencyCode = s.CurrencyCode
	info.HasIntraday = optional.Some(s.HasIntraday)
	info.HasNoVolume = optional.Some(s.HasNoVolume)
	info.VolumePrecision = optional.Some(s.VolumePrecision)
	info.PriceScale = optional.Some(s.PriceScale)
	info.MinMov = optional.Some(s.MinMov)
	info.SupportedResolutions = c.resolutionsOf(s)

	if s.Ticker != "" {
		info.Ticker = s.Ticker
	}

	if s.Session == "" {
		info.Session = DefaultSession
	}

	if s.Timezone != "" {
		info.Timezone = s.Timezone
	}

	if s.PriceScale == 0 {
		info.PriceScale = optional.Some(100.0)
	}

	if s.MinMov == 0 {
		info.MinMov = optional.Some(1.0)
	}

	return info, nil
}

func (c *Catalog) resolutionsOf(s *Symbol) []string {
	if len(s.Resolutions) > 0 {
		return append([]string(nil), s.Resolutions...)
	}

	if len(s.Sources) > 0 {
		resolutions := make([]string, 0, len(s.Sources))
		for resolution := range s.Sources {
			resolutions = append(resolutions, resolution)
		}

		sort.Strings(resolutions)

		return resolutions
	}

	return c.Configuration().SupportedResolutions
}

// Search returns the symbols whose name, full name or description contains
// query, ignoring case. Empty symbolType and exchange match everything.
func (c *Catalog) Search(query, symbolType, exchange string, limit optional.Option[int]) []udf.SymbolSearchResult {
	maxResults := limit.TakeOr(DefaultSearchLimit)
	if maxResults <= 0 {
		maxResults = DefaultSearchLimit
	}

	query = strings.ToLower(query)
	results := make([]udf.SymbolSearchResult, 0)

	for _, s := range c.Symbols {
		if len(results) >= maxResults {
			break
		}

		if symbolType != "" && !strings.EqualFold(s.Type, symbolType) {
			continue
		}

		if exchange != "" && !strings.EqualFold(s.Exchange, exchange) {
			continue
		}

		if !strings.Contains(strings.ToLower(s.Symbol), query) &&
			!strings.Contains(strings.ToLower(s.FullName), query) &&
			!strings.Contains(strings.ToLower(s.Description), query) {
			continue
		}

		results = append(results, s.SearchResult())
	}

	return results
}

// SearchResult converts the entry into a search row.
func (s Symbol) SearchResult() udf.SymbolSearchResult {
	fullName := s.FullName
	if fullName == "" {
		fullName = s.Symbol
		if s.Exchange != "" {
			fullName = s.Exchange + ":" + s.Symbol
		}
	}

	return udf.SymbolSearchResult{
		Symbol:      s.Symbol,
		FullName:    fullName,
		Ticker:      s.Ticker,
		Description: s.Description,
		Exchange:    s.Exchange,
		Type:        s.Type,
	}
}

// MarksInRange returns the marks of symbol within [from, to], ordered by time.
func (c *Catalog) MarksInRange(from, to time.Time, symbol string) []udf.Mark {
	s, ok := c.Lookup(symbol)
	if !ok {
		return []udf.Mark{}
	}

	marks := make([]udf.Mark, 0)

	for _, m := range c.Marks {
		if !strings.EqualFold(m.Symbol, s.Symbol) {
			continue
		}

		if m.Time.Before(from) || m.Time.After(to) {
			continue
		}

		marks = append(marks, udf.Mark{
			ID:             m.ID,
			Timestamp:      m.Time.UTC(),
			Label:          m.Label,
			LabelFontColor: m.LabelFontColor,
			Color:          m.Color,
			Text:           m.Text,
			MinSize:        m.MinSize,
		})
	}

	sort.SliceStable(marks, func(i, j int) bool {
		return marks[i].Timestamp.Before(marks[j].Timestamp)
	})

	return marks
}

// SplitSymbol splits "EXCHANGE:SYMBOL" into its parts. A name without a colon
// has no exchange.
func SplitSymbol(name string) (exchange string, symbol string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, ":"); i >= 0 {
		return name[:i], name[i+1:]
	}

	return "", name
}

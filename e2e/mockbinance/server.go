// Package mockbinance provides a mock Binance REST server for testing.
// It serves the klines and exchange info endpoints from bars seeded by the
// test.
package mockbinance

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// defaultKlinesLimit and maxKlinesLimit follow the real endpoint.
const (
	defaultKlinesLimit = 500
	maxKlinesLimit     = 1000
)

// Kline is one seeded candle.
type Kline struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// SymbolInfo represents symbol trading information.
type SymbolInfo struct {
	Symbol     string
	Status     string
	BaseAsset  string
	QuoteAsset string
	TickSize   string
	StepSize   string
}

// MockBinanceServer provides a mock Binance REST server for testing.
type MockBinanceServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener

	symbols map[string]SymbolInfo
	klines  map[string][]Kline
	calls   map[string]int
}

// NewMockBinanceServer creates a new mock Binance server.
func NewMockBinanceServer() *MockBinanceServer {
	return &MockBinanceServer{
		mu:         sync.RWMutex{},
		httpServer: nil,
		listener:   nil,
		symbols:    make(map[string]SymbolInfo),
		klines:     make(map[string][]Kline),
		calls:      make(map[string]int),
	}
}

// AddSymbol registers a symbol for the exchange info endpoint.
func (s *MockBinanceServer) AddSymbol(info SymbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info.Status == "" {
		info.Status = "TRADING"
	}

	s.symbols[info.Symbol] = info
}

// SetKlines replaces the candles of symbol at interval.
func (s *MockBinanceServer) SetKlines(symbol, interval string, klines []Kline) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]Kline(nil), klines...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].OpenTime.Before(sorted[j].OpenTime)
	})

	s.klines[symbol+"@"+interval] = sorted
}

// Calls returns how often path was requested.
func (s *MockBinanceServer) Calls(path string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.calls[path]
}

// Start starts the mock server on the given address.
// If address is empty or ":0", a random available port is used.
func (s *MockBinanceServer) Start(address string) error {
	if address == "" {
		address = "127.0.0.1:0"
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to create listener: %w", err)
	}

	router := mux.NewRouter()
	router.Use(s.countCalls)
	router.HandleFunc("/api/v3/klines", s.handleKlines).Methods("GET")
	router.HandleFunc("/api/v3/exchangeInfo", s.handleExchangeInfo).Methods("GET")

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(listener); err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	return nil
}

// Stop stops the mock server.
func (s *MockBinanceServer) Stop() error {
	s.mu.RLock()
	httpServer := s.httpServer
	s.mu.RUnlock()

	if httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}

// Address returns the address the server is listening on.
func (s *MockBinanceServer) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// BaseURL returns the base URL for the server.
func (s *MockBinanceServer) BaseURL() string {
	return "http://" + s.Address()
}

func (s *MockBinanceServer) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}

func writeAPIError(w http.ResponseWriter, status, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiError{Code: code, Message: message})
}

// handleKlines handles GET /api/v3/klines. With startTime the first candles
// at or after it are returned; without it the last candles up to endTime.
func (s *MockBinanceServer) handleKlines(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	symbol := query.Get("symbol")
	interval := query.Get("interval")

	if symbol == "" || interval == "" {
		writeAPIError(w, http.StatusBadRequest, -1102, "Mandatory parameter was not sent.")
		return
	}

	if _, ok := s.symbol(symbol); !ok {
		writeAPIError(w, http.StatusBadRequest, -1121, "Invalid symbol.")
		return
	}

	duration := parseInterval(interval)
	if duration == 0 {
		writeAPIError(w, http.StatusBadRequest, -1120, "Invalid interval.")
		return
	}

	limit := defaultKlinesLimit
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeAPIError(w, http.StatusBadRequest, -1100, "Illegal characters found in parameter 'limit'.")
			return
		}

		limit = min(n, maxKlinesLimit)
	}

	start, hasStart := millisParam(query.Get("startTime"))
	end, hasEnd := millisParam(query.Get("endTime"))

	s.mu.RLock()
	series := s.klines[symbol+"@"+interval]
	s.mu.RUnlock()

	selected := make([]Kline, 0)

	for _, k := range series {
		if hasStart && k.OpenTime.Before(start) {
			continue
		}

		if hasEnd && k.OpenTime.After(end) {
			continue
		}

		selected = append(selected, k)
	}

	if len(selected) > limit {
		if hasStart {
			selected = selected[:limit]
		} else {
			selected = selected[len(selected)-limit:]
		}
	}

	// [openTime, open, high, low, close, volume, closeTime, ...]
	klines := make([][]interface{}, 0, len(selected))
	for _, k := range selected {
		klines = append(klines, []interface{}{
			k.OpenTime.UnixMilli(),
			strconv.FormatFloat(k.Open, 'f', 8, 64),
			strconv.FormatFloat(k.High, 'f', 8, 64),
			strconv.FormatFloat(k.Low, 'f', 8, 64),
			strconv.FormatFloat(k.Close, 'f', 8, 64),
			strconv.FormatFloat(k.Volume, 'f', 8, 64),
			k.OpenTime.Add(duration).UnixMilli() - 1,
			"0",
			0,
			"0",
			"0",
			"0",
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(klines)
}

// handleExchangeInfo handles GET /api/v3/exchangeInfo
func (s *MockBinanceServer) handleExchangeInfo(w http.ResponseWriter, r *http.Request) {
	type filter map[string]interface{}

	type symbolResponse struct {
		Symbol             string   `json:"symbol"`
		Status             string   `json:"status"`
		BaseAsset          string   `json:"baseAsset"`
		BaseAssetPrecision int      `json:"baseAssetPrecision"`
		QuoteAsset         string   `json:"quoteAsset"`
		QuotePrecision     int      `json:"quotePrecision"`
		Filters            []filter `json:"filters"`
	}

	s.mu.RLock()
	infos := make([]SymbolInfo, 0, len(s.symbols))
	for _, info := range s.symbols {
		infos = append(infos, info)
	}
	s.mu.RUnlock()

	if name := r.URL.Query().Get("symbol"); name != "" {
		info, ok := s.symbol(name)
		if !ok {
			writeAPIError(w, http.StatusBadRequest, -1121, "Invalid symbol.")
			return
		}

		infos = []SymbolInfo{info}
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Symbol < infos[j].Symbol
	})

	symbols := make([]symbolResponse, 0, len(infos))
	for _, info := range infos {
		filters := []filter{}
		if info.TickSize != "" {
			filters = append(filters, filter{"filterType": "PRICE_FILTER", "minPrice": info.TickSize, "maxPrice": "1000000.00000000", "tickSize": info.TickSize})
		}

		if info.StepSize != "" {
			filters = append(filters, filter{"filterType": "LOT_SIZE", "minQty": info.StepSize, "maxQty": "9000.00000000", "stepSize": info.StepSize})
		}

		symbols = append(symbols, symbolResponse{
			Symbol:             info.Symbol,
			Status:             info.Status,
			BaseAsset:          info.BaseAsset,
			BaseAssetPrecision: 8,
			QuoteAsset:         info.QuoteAsset,
			QuotePrecision:     8,
			Filters:            filters,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"timezone":        "UTC",
		"serverTime":      time.Now().UnixMilli(),
		"rateLimits":      []interface{}{},
		"exchangeFilters": []interface{}{},
		"symbols":         symbols,
	})
}

func (s *MockBinanceServer) symbol(name string) (SymbolInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.symbols[name]

	return info, ok
}

func millisParam(raw string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}

	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}

	return time.UnixMilli(ms), true
}

// parseInterval parses interval strings like "1m", "1h", "1d".
func parseInterval(interval string) time.Duration {
	if len(interval) < 2 {
		return 0
	}

	numStr := interval[:len(interval)-1]
	unit := interval[len(interval)-1:]

	num, err := strconv.Atoi(numStr)
	if err != nil {
		return 0
	}

	switch unit {
	case "s":
		return time.Duration(num) * time.Second
	case "m":
		return time.Duration(num) * time.Minute
	case "h":
		return time.Duration(num) * time.Hour
	case "d":
		return time.Duration(num) * 24 * time.Hour
	case "w":
		return time.Duration(num) * 7 * 24 * time.Hour
	case "M":
		return time.Duration(num) * 30 * 24 * time.Hour
	default:
		return 0
	}
}

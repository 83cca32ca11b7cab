package udf

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"go.uber.org/zap"
)

// ErrorHandler writes err to w. It receives provider errors and query
// parameter errors.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// Handler serves the UDF routes on top of a Provider.
type Handler struct {
	provider     Provider
	settings     Settings
	logger       *zap.Logger
	errorHandler ErrorHandler
	now          func() time.Time
	router       *mux.Router
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithErrorHandler replaces the default JSON error writer.
func WithErrorHandler(errorHandler ErrorHandler) HandlerOption {
	return func(h *Handler) {
		h.errorHandler = errorHandler
	}
}

// WithClock sets the clock used by the /time route.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a Handler. It fails when provider is nil or the settings
// are invalid.
func NewHandler(provider Provider, settings Settings, opts ...HandlerOption) (*Handler, error) {
	if provider == nil {
		return nil, errors.New(errors.ErrCodeProviderNotSet, "udf provider is not set")
	}

	if err := settings.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid udf settings", err)
	}

	h := &Handler{
		provider:     provider,
		settings:     settings,
		logger:       zap.NewNop(),
		errorHandler: nil,
		now:          time.Now,
		router:       mux.NewRouter(),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.errorHandler == nil {
		h.errorHandler = h.writeError
	}

	h.Register(h.router)

	return h, nil
}

// Settings returns the settings the handler was built with.
func (h *Handler) Settings() Settings {
	return h.settings
}

// Register mounts the UDF routes on router under the configured base path.
func (h *Handler) Register(router *mux.Router) {
	r := router
	if prefix := h.settings.RoutePrefix(); prefix != "" {
		r = router.PathPrefix(prefix).Subrouter()
	}

	r.HandleFunc("/config", h.handleConfig).Methods(http.MethodGet)
	r.HandleFunc("/symbols", h.handleSymbols).Methods(http.MethodGet)
	r.HandleFunc("/search", h.handleSearch).Methods(http.MethodGet)
	r.HandleFunc("/history", h.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/marks", h.handleMarks).Methods(http.MethodGet)
	r.HandleFunc("/time", h.handleTime).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// handleConfig handles GET /config
func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	config, err := h.provider.GetConfiguration(r.Context())
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	h.writeJSON(w, config)
}

// handleSymbols handles GET /symbols
func (h *Handler) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	info, err := h.provider.GetSymbol(r.Context(), symbol)
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	h.writeJSON(w, info)
}

// handleSearch handles GET /search
func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := optionalIntParam(query.Get("limit"), "limit")
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	results, err := h.provider.FindSymbols(r.Context(), query.Get("query"), query.Get("type"), query.Get("exchange"), limit)
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	h.writeJSON(w, results)
}

// handleHistory handles GET /history
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, to, err := timeRangeParams(query.Get("from"), query.Get("to"))
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	symbol := query.Get("symbol")
	resolution := query.Get("resolution")

	h.logger.Debug("Fetching history",
		zap.String("symbol", symbol),
		zap.String("resolution", resolution),
		zap.Time("from", from),
		zap.Time("to", to),
	)

	result, err := h.provider.GetHistory(r.Context(), from, to, symbol, resolution)
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	h.writeJSON(w, ShapeHistory(result))
}

// handleMarks handles GET /marks
func (h *Handler) handleMarks(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	from, to, err := timeRangeParams(query.Get("from"), query.Get("to"))
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	marks, err := h.provider.GetMarks(r.Context(), from, to, query.Get("symbol"), query.Get("resolution"))
	if err != nil {
		h.errorHandler(w, r, err)
		return
	}

	h.writeJSON(w, ShapeMarks(marks))
}

// handleTime handles GET /time. The body is the server time in whole Unix
// seconds, as plain text.
func (h *Handler) handleTime(w http.ResponseWriter, _ *http.Request) {
	seconds := math.Floor(ToUnixSeconds(h.now()))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatFloat(seconds, 'f', 0, 64)))
}

func (h *Handler) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

type errorBody struct {
	Code    errors.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("UDF request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if encodeErr := json.NewEncoder(w).Encode(errorBody{Code: errors.GetCode(err), Message: err.Error()}); encodeErr != nil {
		h.logger.Error("Failed to encode error response", zap.Error(encodeErr))
	}
}

func timeRangeParams(fromParam, toParam string) (time.Time, time.Time, error) {
	from, err := unixSecondsParam(fromParam, "from")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	to, err := unixSecondsParam(toParam, "to")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	return from, to, nil
}

func unixSecondsParam(value, name string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.Newf(errors.ErrCodeMissingParameter, "%s is required", name)
	}

	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		return time.Time{}, errors.Newf(errors.ErrCodeInvalidParameter, "%s must be unix seconds, got %q", name, value)
	}

	if math.Abs(seconds) > MaxUnixSeconds {
		return time.Time{}, errors.Newf(errors.ErrCodeInvalidParameter, "%s is out of range, got %q", name, value)
	}

	return FromUnixSeconds(seconds), nil
}

func optionalIntParam(value, name string) (optional.Option[int], error) {
	if value == "" {
		return optional.None[int](), nil
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return optional.None[int](), errors.Newf(errors.ErrCodeInvalidParameter, "%s must be an integer, got %q", name, value)
	}

	return optional.Some(n), nil
}

package errors

import "net/http"

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Request errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeMissingParameter     ErrorCode = 109

	// Provider errors (200-299)
	ErrCodeProviderNotSet        ErrorCode = 200
	ErrCodeProviderFailed        ErrorCode = 201
	ErrCodeInvalidProvider       ErrorCode = 202
	ErrCodeUnsupportedResolution ErrorCode = 203

	// Data errors (300-399)
	ErrCodeDataNotFound          ErrorCode = 300
	ErrCodeDataSourceUnavailable ErrorCode = 301
	ErrCodeQueryFailed           ErrorCode = 302
	ErrCodeMarketDataFetchFailed ErrorCode = 303
	ErrCodeMarketDataParseFailed ErrorCode = 304

	// Export errors (700-799)
	ErrCodeMarketDataWriteFailed ErrorCode = 701
)

// HTTPStatus returns the HTTP status code used when an error with this code
// reaches the HTTP layer.
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case ErrCodeInvalidParameter, ErrCodeMissingParameter, ErrCodeUnsupportedResolution:
		return http.StatusBadRequest
	case ErrCodeDataNotFound:
		return http.StatusNotFound
	case ErrCodeDataSourceUnavailable, ErrCodeMarketDataFetchFailed, ErrCodeMarketDataParseFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the HTTP status code for err, based on its ErrorCode.
func HTTPStatus(err error) int {
	return GetCode(err).HTTPStatus()
}

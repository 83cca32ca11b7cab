// Package provider builds the configured udf.Provider.
package provider

import (
	"github.com/rxtech-lab/tradingview-udf/internal/config"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/binance"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/catalog"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/file"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/polygon"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"go.uber.org/zap"
)

// New creates the provider selected by cfg.Type. Providers holding resources
// also implement io.Closer.
func New(cfg config.ProviderConfig, logger *logger.Logger) (udf.Provider, error) {
	logger.Info("Creating provider", zap.String("type", string(cfg.Type)))

	switch cfg.Type {
	case config.ProviderFile:
		cat, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return nil, err
		}

		p, err := file.NewProvider(cat, cfg.File, logger)
		if err != nil {
			return nil, err
		}

		return p, nil
	case config.ProviderBinance:
		return binance.NewProvider(binance.NewClient(cfg.Binance), cfg.Binance, logger), nil
	case config.ProviderPolygon:
		cat, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return nil, err
		}

		client, err := polygon.NewClient(cfg.Polygon)
		if err != nil {
			return nil, err
		}

		p, err := polygon.NewProvider(client, cat, cfg.Polygon, logger)
		if err != nil {
			return nil, err
		}

		return p, nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidProvider, "unknown provider type %q", cfg.Type)
	}
}

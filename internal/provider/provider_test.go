package provider

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rxtech-lab/tradingview-udf/internal/config"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/binance"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/file"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/polygon"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/stretchr/testify/suite"
)

type ProviderFactoryTestSuite struct {
	suite.Suite
	catalogPath string
	logger      *logger.Logger
}

func TestProviderFactorySuite(t *testing.T) {
	suite.Run(t, new(ProviderFactoryTestSuite))
}

func (suite *ProviderFactoryTestSuite) SetupTest() {
	suite.logger = logger.NewNopLogger()
	suite.catalogPath = filepath.Join(suite.T().TempDir(), "catalog.yaml")
	suite.Require().NoError(os.WriteFile(suite.catalogPath, []byte("symbols:\n  - symbol: AAPL\n"), 0o600))
}

func (suite *ProviderFactoryTestSuite) TestFile() {
	//nolint:exhaustruct // only the selected provider block matters
	p, err := New(config.ProviderConfig{Type: config.ProviderFile, Catalog: suite.catalogPath}, suite.logger)
	suite.Require().NoError(err)
	suite.IsType(&file.Provider{}, p)

	closer, ok := p.(io.Closer)
	suite.Require().True(ok)
	suite.NoError(closer.Close())
}

func (suite *ProviderFactoryTestSuite) TestBinance() {
	//nolint:exhaustruct // only the selected provider block matters
	p, err := New(config.ProviderConfig{Type: config.ProviderBinance}, suite.logger)
	suite.Require().NoError(err)
	suite.IsType(&binance.Provider{}, p)
}

func (suite *ProviderFactoryTestSuite) TestPolygon() {
	//nolint:exhaustruct // only the selected provider block matters
	p, err := New(config.ProviderConfig{
		Type:    config.ProviderPolygon,
		Catalog: suite.catalogPath,
		Polygon: polygon.Config{APIKey: "key", Adjusted: false},
	}, suite.logger)
	suite.Require().NoError(err)
	suite.IsType(&polygon.Provider{}, p)
}

func (suite *ProviderFactoryTestSuite) TestErrors() {
	//nolint:exhaustruct // only the selected provider block matters
	_, err := New(config.ProviderConfig{Type: "kafka"}, suite.logger)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidProvider))

	//nolint:exhaustruct // only the selected provider block matters
	_, err = New(config.ProviderConfig{Type: config.ProviderFile, Catalog: "missing.yaml"}, suite.logger)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))

	//nolint:exhaustruct // only the selected provider block matters
	_, err = New(config.ProviderConfig{Type: config.ProviderPolygon, Catalog: suite.catalogPath}, suite.logger)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

package udf_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/tradingview-udf/internal/config"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider"
	"github.com/rxtech-lab/tradingview-udf/internal/server"
	"github.com/stretchr/testify/suite"
)

const catalogYAML = `resolutions: ["60", "1D"]
exchanges:
  - value: NASDAQ
    name: NASDAQ
    desc: Nasdaq Stock Market
symbols_types:
  - name: Stock
    value: stock
symbols:
  - symbol: AAPL
    exchange: NASDAQ
    type: stock
    description: Apple Inc.
    timezone: America/New_York
    session: "0930-1600"
    has_intraday: true
    sources:
      "60":
        path: hourly.csv
      "1D":
        path: daily.csv
        time_column: date
        time_format: date
        missing: [open, high, low, volume]
  - symbol: MSFT
    exchange: NASDAQ
    type: stock
    description: Microsoft Corp.
marks:
  - id: 7
    symbol: AAPL
    time: 2024-01-01T01:00:00Z
    label: E
    color: red
    text: Earnings
`

const configYAML = `server:
  address: 127.0.0.1:0
  base_path: /udf
log:
  level: error
provider:
  type: file
  catalog: catalog.yaml
  file:
    data_dir: .
`

const hourlyBars = `time,open,high,low,close,volume
1704067200,100,110,95,105,1000
1704070800,105,115,100,110,1500
1704074400,110,112,108,111,900
`

const dailyBars = `date,close
2024-01-01,105
2024-01-02,111
`

// FileUDFTestSuite runs the UDF server with the file provider configured from
// a YAML file on disk.
type FileUDFTestSuite struct {
	suite.Suite
	server   *server.Server
	provider io.Closer
}

func TestFileUDFSuite(t *testing.T) {
	suite.Run(t, new(FileUDFTestSuite))
}

func (suite *FileUDFTestSuite) SetupTest() {
	dir := suite.T().TempDir()
	suite.T().Chdir(dir)

	for name, content := range map[string]string{
		"catalog.yaml": catalogYAML,
		"udf.yaml":     configYAML,
		"hourly.csv":   hourlyBars,
		"daily.csv":    dailyBars,
	} {
		suite.Require().NoError(os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
	}

	cfg, err := config.Load("udf.yaml")
	suite.Require().NoError(err)

	log := logger.NewNopLogger()

	p, err := provider.New(cfg.Provider, log)
	suite.Require().NoError(err)

	closer, ok := p.(io.Closer)
	suite.Require().True(ok)
	suite.provider = closer

	srv, err := server.New(cfg.Server, p, log)
	suite.Require().NoError(err)
	suite.Require().NoError(srv.Start(""))
	suite.server = srv
}

func (suite *FileUDFTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	suite.NoError(suite.server.Stop(ctx))
	suite.NoError(suite.provider.Close())
}

func (suite *FileUDFTestSuite) get(path string) (int, []byte) {
	resp, err := http.Get(suite.server.BaseURL() + path)
	suite.Require().NoError(err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)

	return resp.StatusCode, body
}

func (suite *FileUDFTestSuite) TestConfig() {
	status, body := suite.get("/udf/config")
	suite.Equal(http.StatusOK, status)

	var cfg map[string]any
	suite.Require().NoError(json.Unmarshal(body, &cfg))
	suite.Equal(true, cfg["supports_marks"])
	suite.Equal([]any{"60", "1D"}, cfg["supported_resolutions"])
}

func (suite *FileUDFTestSuite) TestHourlyHistory() {
	status, body := suite.get("/udf/history?symbol=NASDAQ:AAPL&resolution=60&from=1704067200&to=1704070800")
	suite.Equal(http.StatusOK, status)
	suite.JSONEq(`{
		"s": "ok",
		"t": [1704067200, 1704070800],
		"c": [105, 110],
		"o": [100, 105],
		"h": [110, 115],
		"l": [95, 100],
		"v": [1000, 1500]
	}`, string(body))
}

func (suite *FileUDFTestSuite) TestDailyHistoryDropsMissingColumns() {
	status, body := suite.get("/udf/history?symbol=AAPL&resolution=1D&from=1704067200&to=1704153600")
	suite.Equal(http.StatusOK, status)
	suite.JSONEq(`{"s":"ok","t":[1704067200,1704153600],"c":[105,111]}`, string(body))
}

func (suite *FileUDFTestSuite) TestHistoryPastTheEndCarriesNextTime() {
	status, body := suite.get("/udf/history?symbol=AAPL&resolution=60&from=1704153600&to=1704157200")
	suite.Equal(http.StatusOK, status)
	suite.JSONEq(`{"s":"no_data","t":[],"c":[],"nextTime":1704074400}`, string(body))
}

func (suite *FileUDFTestSuite) TestSymbolsAndSearch() {
	status, body := suite.get("/udf/symbols?symbol=AAPL")
	suite.Equal(http.StatusOK, status)

	var info map[string]any
	suite.Require().NoError(json.Unmarshal(body, &info))
	suite.Equal("AAPL", info["name"])
	suite.Equal("America/New_York", info["timezone"])
	suite.Equal("0930-1600", info["session"])

	status, _ = suite.get("/udf/symbols?symbol=TSLA")
	suite.Equal(http.StatusNotFound, status)

	status, body = suite.get("/udf/search?query=m&limit=5")
	suite.Equal(http.StatusOK, status)

	var results []map[string]any
	suite.Require().NoError(json.Unmarshal(body, &results))
	suite.Require().Len(results, 1)
	suite.Equal("MSFT", results[0]["symbol"])
	suite.Equal("NASDAQ:MSFT", results[0]["full_name"])
}

func (suite *FileUDFTestSuite) TestMarks() {
	status, body := suite.get("/udf/marks?symbol=AAPL&resolution=60&from=1704067200&to=1704074400")
	suite.Equal(http.StatusOK, status)
	suite.JSONEq(`{
		"id": [7],
		"time": [1704070800],
		"label": ["E"],
		"labelFontColor": [""],
		"text": ["Earnings"],
		"color": ["red"],
		"minSize": [1]
	}`, string(body))
}

func (suite *FileUDFTestSuite) TestHealth() {
	status, _ := suite.get(server.HealthPath)
	suite.Equal(http.StatusOK, status)
}

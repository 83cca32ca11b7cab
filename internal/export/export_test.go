package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/tradingview-udf/internal/logger"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/catalog"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/file"
	"github.com/rxtech-lab/tradingview-udf/mocks"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type ExportTestSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	provider *mocks.MockProvider
	exporter *Exporter
	dir      string
	from     time.Time
	to       time.Time
}

func TestExportSuite(t *testing.T) {
	suite.Run(t, new(ExportTestSuite))
}

func (suite *ExportTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.provider = mocks.NewMockProvider(suite.ctrl)
	suite.exporter = NewExporter(suite.provider, logger.NewNopLogger())
	suite.dir = suite.T().TempDir()
	suite.from = time.Unix(1704067200, 0).UTC()
	suite.to = time.Unix(1704074400, 0).UTC()
}

func (suite *ExportTestSuite) TearDownTest() {
	suite.ctrl.Finish()
}

func (suite *ExportTestSuite) bars() []udf.Bar {
	return []udf.Bar{
		{
			Timestamp: suite.from,
			Close:     105,
			Open:      optional.Some(100.0),
			High:      optional.Some(110.0),
			Low:       optional.Some(95.0),
			Volume:    optional.None[float64](),
		},
		{
			Timestamp: suite.from.Add(time.Hour),
			Close:     110,
			Open:      optional.Some(105.0),
			High:      optional.Some(115.0),
			Low:       optional.Some(100.0),
			Volume:    optional.None[float64](),
		},
	}
}

func (suite *ExportTestSuite) params(output string) Params {
	return Params{
		Symbol:     "AAPL",
		Resolution: "60",
		From:       suite.from,
		To:         suite.to,
		Output:     filepath.Join(suite.dir, output),
	}
}

// readBack serves path through the file provider and returns the bars in
// [from, to].
func (suite *ExportTestSuite) readBack(path string) []udf.Bar {
	cat := &catalog.Catalog{
		Symbols: []catalog.Symbol{
			{Symbol: "AAPL", Sources: map[string]catalog.Source{"60": {Path: path}}},
		},
	}

	p, err := file.NewProvider(cat, file.Config{}, logger.NewNopLogger())
	suite.Require().NoError(err)
	defer p.Close()

	result, err := p.GetHistory(context.Background(), suite.from, suite.to, "AAPL", "60")
	suite.Require().NoError(err)
	suite.Require().Equal(udf.BarStatusOK, result.Status)

	return result.Bars
}

func (suite *ExportTestSuite) TestExportParquet() {
	suite.provider.EXPECT().
		GetHistory(gomock.Any(), suite.from, suite.to, "AAPL", "60").
		Return(&udf.BarQueryResult{Status: udf.BarStatusOK, Bars: suite.bars()}, nil)

	result, err := suite.exporter.Export(context.Background(), suite.params("out/aapl_60.parquet"))
	suite.Require().NoError(err)
	suite.Equal(2, result.Bars)
	suite.FileExists(result.Path)

	bars := suite.readBack(result.Path)
	suite.Require().Len(bars, 2)
	suite.Equal(suite.from.Add(time.Hour), bars[1].Timestamp)
	suite.Equal(110.0, bars[1].Close)
	suite.Equal(optional.Some(105.0), bars[1].Open)
	suite.True(bars[0].Volume.IsNone())
}

func (suite *ExportTestSuite) TestExportCSV() {
	suite.provider.EXPECT().
		GetHistory(gomock.Any(), suite.from, suite.to, "AAPL", "60").
		Return(&udf.BarQueryResult{Status: udf.BarStatusOK, Bars: suite.bars()}, nil)

	result, err := suite.exporter.Export(context.Background(), suite.params("aapl_60.csv"))
	suite.Require().NoError(err)

	data, err := os.ReadFile(result.Path)
	suite.Require().NoError(err)
	suite.Contains(string(data), "time,open,high,low,close,volume")

	bars := suite.readBack(result.Path)
	suite.Require().Len(bars, 2)
	suite.Equal(suite.from, bars[0].Timestamp)
	suite.Equal(105.0, bars[0].Close)
}

func (suite *ExportTestSuite) TestExportInvalidParams() {
	params := suite.params("bad.parquet")
	params.To = params.From

	_, err := suite.exporter.Export(context.Background(), params)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))

	params = suite.params("bad.parquet")
	params.Symbol = ""

	_, err = suite.exporter.Export(context.Background(), params)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *ExportTestSuite) TestExportErrorStatus() {
	suite.provider.EXPECT().
		GetHistory(gomock.Any(), gomock.Any(), gomock.Any(), "AAPL", "60").
		Return(&udf.BarQueryResult{
			Status:       udf.BarStatusError,
			ErrorMessage: optional.Some("unknown symbol AAPL"),
			Bars:         []udf.Bar{},
		}, nil)

	params := suite.params("err.parquet")

	_, err := suite.exporter.Export(context.Background(), params)
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeProviderFailed))
	suite.Contains(err.Error(), "unknown symbol AAPL")
	suite.NoFileExists(params.Output)
}

func (suite *ExportTestSuite) TestExportNoBars() {
	suite.provider.EXPECT().
		GetHistory(gomock.Any(), gomock.Any(), gomock.Any(), "AAPL", "60").
		Return(&udf.BarQueryResult{Status: udf.BarStatusNoData, Bars: []udf.Bar{}}, nil)

	params := suite.params("empty.parquet")

	_, err := suite.exporter.Export(context.Background(), params)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
	suite.NoFileExists(params.Output)
}

func (suite *ExportTestSuite) TestExportNilResult() {
	suite.provider.EXPECT().
		GetHistory(gomock.Any(), gomock.Any(), gomock.Any(), "AAPL", "60").
		Return(nil, nil)

	_, err := suite.exporter.Export(context.Background(), suite.params("nil.parquet"))
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func (suite *ExportTestSuite) TestExportProviderError() {
	suite.provider.EXPECT().
		GetHistory(gomock.Any(), gomock.Any(), gomock.Any(), "AAPL", "60").
		Return(nil, errors.New(errors.ErrCodeMarketDataFetchFailed, "upstream down"))

	_, err := suite.exporter.Export(context.Background(), suite.params("down.parquet"))
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataFetchFailed))
}

type recordingWriter struct {
	path      string
	bars      []udf.Bar
	finalized bool
	closed    bool
}

func (w *recordingWriter) Initialize() error { return nil }

func (w *recordingWriter) Write(bar udf.Bar) error {
	w.bars = append(w.bars, bar)

	return nil
}

func (w *recordingWriter) Finalize() (string, error) {
	w.finalized = true

	return w.path, nil
}

func (w *recordingWriter) Close() error {
	w.closed = true

	return nil
}

func (w *recordingWriter) GetOutputPath() string { return w.path }

func (suite *ExportTestSuite) TestExportWithWriterFactory() {
	var (
		writer   *recordingWriter
		progress [][2]int
	)

	exporter := NewExporter(suite.provider, logger.NewNopLogger(),
		WithWriterFactory(func(outputPath string) BarWriter {
			writer = &recordingWriter{path: outputPath}

			return writer
		}),
		WithProgress(func(written, total int) {
			progress = append(progress, [2]int{written, total})
		}),
	)

	suite.provider.EXPECT().
		GetHistory(gomock.Any(), gomock.Any(), gomock.Any(), "AAPL", "60").
		Return(&udf.BarQueryResult{Status: udf.BarStatusOK, Bars: suite.bars()}, nil)

	params := suite.params("custom.bin")

	result, err := exporter.Export(context.Background(), params)
	suite.Require().NoError(err)
	suite.Equal(params.Output, result.Path)
	suite.Require().NotNil(writer)
	suite.Len(writer.bars, 2)
	suite.True(writer.finalized)
	suite.True(writer.closed)
	suite.Equal([][2]int{{1, 2}, {2, 2}}, progress)
}

func (suite *ExportTestSuite) TestWriterLifecycle() {
	w := NewDuckDBWriter(filepath.Join(suite.dir, "lifecycle.parquet"))

	suite.Error(w.Write(suite.bars()[0]))

	_, err := w.Finalize()
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataWriteFailed))

	suite.Require().NoError(w.Initialize())
	suite.Require().NoError(w.Write(suite.bars()[0]))

	path, err := w.Finalize()
	suite.Require().NoError(err)
	suite.Equal(w.GetOutputPath(), path)

	_, err = w.Finalize()
	suite.Error(err)

	suite.NoError(w.Close())
	suite.NoError(w.Close())
}

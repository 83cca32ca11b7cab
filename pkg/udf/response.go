package udf

import (
	"encoding/json"

	"github.com/moznion/go-optional"
)

// MissingDataMessage is reported when a provider returns no bar sequence and
// no next available time.
const MissingDataMessage = "missing data"

// HistoryResponse is the /history body.
//
// Two layouts exist. The regular one carries the status under "s" together
// with the bar columns. The fallback one, produced when the provider gave no
// bar sequence, carries only "status" plus "nextTime" or "errmsg".
type HistoryResponse struct {
	Status       BarStatus                  `json:"s"`
	Times        []float64                  `json:"t"`
	Close        []float64                  `json:"c"`
	Open         []optional.Option[float64] `json:"o,omitempty"`
	High         []optional.Option[float64] `json:"h,omitempty"`
	Low          []optional.Option[float64] `json:"l,omitempty"`
	Volume       []optional.Option[float64] `json:"v,omitempty"`
	ErrorMessage optional.Option[string]    `json:"errmsg,omitempty"`
	NextTime     optional.Option[float64]   `json:"nextTime,omitempty"`

	fallback bool
}

type historyFallback struct {
	Status       BarStatus                `json:"status"`
	ErrorMessage optional.Option[string]  `json:"errmsg,omitempty"`
	NextTime     optional.Option[float64] `json:"nextTime,omitempty"`
}

// IsFallback reports whether r uses the fallback layout.
func (r HistoryResponse) IsFallback() bool {
	return r.fallback
}

// MarshalJSON implements json.Marshaler.
func (r HistoryResponse) MarshalJSON() ([]byte, error) {
	if r.fallback {
		return json.Marshal(historyFallback{
			Status:       r.Status,
			ErrorMessage: r.ErrorMessage,
			NextTime:     r.NextTime,
		})
	}

	type plain HistoryResponse

	return json.Marshal(plain(r))
}

// MarksResponse is the /marks body: one column per field, aligned by index.
type MarksResponse struct {
	ID             []int     `json:"id"`
	Time           []float64 `json:"time"`
	Label          []string  `json:"label"`
	LabelFontColor []string  `json:"labelFontColor"`
	Text           []string  `json:"text"`
	Color          []string  `json:"color"`
	MinSize        []int     `json:"minSize"`
}

// ShapeHistory turns a provider result into the /history body.
//
// The o, h, l and v columns are only emitted when at least one value in the
// column is greater than zero. A column of zeros, negatives or absent values
// is dropped as a whole. Charting clients depend on this, keep it.
//
//nolint:exhaustruct // fallback layouts leave the columns empty
func ShapeHistory(result *BarQueryResult) HistoryResponse {
	if result == nil || result.Bars == nil {
		nextTime := optional.None[float64]()
		if result != nil {
			nextTime = ToUnixSecondsOption(result.NextTime)
		}

		if nextTime.IsSome() {
			return HistoryResponse{
				Status:   BarStatusNoData,
				NextTime: nextTime,
				fallback: true,
			}
		}

		return HistoryResponse{
			Status:       BarStatusError,
			ErrorMessage: optional.Some(MissingDataMessage),
			fallback:     true,
		}
	}

	bars := result.Bars
	times := make([]float64, 0, len(bars))
	closing := make([]float64, 0, len(bars))
	opening := make([]optional.Option[float64], 0, len(bars))
	high := make([]optional.Option[float64], 0, len(bars))
	low := make([]optional.Option[float64], 0, len(bars))
	volume := make([]optional.Option[float64], 0, len(bars))

	for _, bar := range bars {
		times = append(times, ToUnixSeconds(bar.Timestamp))
		closing = append(closing, bar.Close)
		opening = append(opening, bar.Open)
		high = append(high, bar.High)
		low = append(low, bar.Low)
		volume = append(volume, bar.Volume)
	}

	return HistoryResponse{
		Status:       historyStatus(result.Status),
		Times:        times,
		Close:        closing,
		Open:         columnOrNil(opening),
		High:         columnOrNil(high),
		Low:          columnOrNil(low),
		Volume:       columnOrNil(volume),
		ErrorMessage: result.ErrorMessage,
		NextTime:     ToUnixSecondsOption(result.NextTime),
	}
}

// ShapeMarks turns provider marks into the /marks body. Every column is
// present, empty when there are no marks.
func ShapeMarks(marks []Mark) MarksResponse {
	response := MarksResponse{
		ID:             make([]int, 0, len(marks)),
		Time:           make([]float64, 0, len(marks)),
		Label:          make([]string, 0, len(marks)),
		LabelFontColor: make([]string, 0, len(marks)),
		Text:           make([]string, 0, len(marks)),
		Color:          make([]string, 0, len(marks)),
		MinSize:        make([]int, 0, len(marks)),
	}

	for _, mark := range marks {
		minSize := mark.MinSize
		if minSize < DefaultMarkMinSize {
			minSize = DefaultMarkMinSize
		}

		response.ID = append(response.ID, mark.ID)
		response.Time = append(response.Time, ToUnixSeconds(mark.Timestamp))
		response.Label = append(response.Label, mark.Label)
		response.LabelFontColor = append(response.LabelFontColor, mark.LabelFontColor)
		response.Text = append(response.Text, mark.Text)
		response.Color = append(response.Color, mark.Color)
		response.MinSize = append(response.MinSize, minSize)
	}

	return response
}

func historyStatus(status BarStatus) BarStatus {
	switch status {
	case BarStatusError:
		return BarStatusError
	case BarStatusNoData:
		return BarStatusNoData
	default:
		return BarStatusOK
	}
}

func columnOrNil(values []optional.Option[float64]) []optional.Option[float64] {
	for _, v := range values {
		if v.IsSome() && v.Unwrap() > 0 {
			return values
		}
	}

	return nil
}

package udf

import (
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
)

// ParamDoc describes a query parameter of a UDF route.
type ParamDoc struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// RouteDoc describes a UDF route for the API route catalogue.
type RouteDoc struct {
	Method   string             `json:"method"`
	Path     string             `json:"path"`
	Summary  string             `json:"summary"`
	Params   []ParamDoc         `json:"params"`
	Response *jsonschema.Schema `json:"response,omitempty"`
}

var rangeParams = []ParamDoc{
	{Name: "from", Type: "number", Required: true},
	{Name: "to", Type: "number", Required: true},
	{Name: "symbol", Type: "string", Required: false},
	{Name: "resolution", Type: "string", Required: false},
}

// Routes describes the UDF routes for API documentation. It returns nil when
// the handler was built with HideEndpoints.
func (h *Handler) Routes() []RouteDoc {
	if h.settings.HideEndpoints {
		return nil
	}

	prefix := h.settings.RoutePrefix()

	//nolint:exhaustruct // empty values are only reflected
	return []RouteDoc{
		{
			Method:   http.MethodGet,
			Path:     prefix + "/config",
			Summary:  "Datafeed configuration",
			Params:   []ParamDoc{},
			Response: reflectSchema(Configuration{}),
		},
		{
			Method:   http.MethodGet,
			Path:     prefix + "/symbols",
			Summary:  "Symbol resolution",
			Params:   []ParamDoc{{Name: "symbol", Type: "string", Required: false}},
			Response: reflectSchema(SymbolInfo{}),
		},
		{
			Method:  http.MethodGet,
			Path:    prefix + "/search",
			Summary: "Symbol search",
			Params: []ParamDoc{
				{Name: "query", Type: "string", Required: false},
				{Name: "type", Type: "string", Required: false},
				{Name: "exchange", Type: "string", Required: false},
				{Name: "limit", Type: "integer", Required: false},
			},
			Response: reflectSchema([]SymbolSearchResult{}),
		},
		{
			Method:   http.MethodGet,
			Path:     prefix + "/history",
			Summary:  "Bars of a symbol within a time range",
			Params:   rangeParams,
			Response: reflectSchema(HistoryResponse{}),
		},
		{
			Method:   http.MethodGet,
			Path:     prefix + "/marks",
			Summary:  "Marks of a symbol within a time range",
			Params:   rangeParams,
			Response: reflectSchema(MarksResponse{}),
		},
		{
			Method:   http.MethodGet,
			Path:     prefix + "/time",
			Summary:  "Server time in unix seconds",
			Params:   []ParamDoc{},
			Response: nil,
		},
	}
}

func reflectSchema(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Mapper:         optionSchema,
	}

	return reflector.Reflect(v)
}

// optionSchema maps optional.Option[T] to the schema of T; the generic type is
// a slice underneath and would otherwise be reflected as an array.
//
//nolint:exhaustruct // third-party struct with many optional fields
func optionSchema(t reflect.Type) *jsonschema.Schema {
	if !strings.HasPrefix(t.String(), "optional.Option[") {
		return nil
	}

	elem := t.Elem()
	if elem == reflect.TypeOf(time.Time{}) {
		return &jsonschema.Schema{Type: "string", Format: "date-time"}
	}

	switch elem.Kind() {
	case reflect.Bool:
		return &jsonschema.Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &jsonschema.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &jsonschema.Schema{Type: "number"}
	case reflect.String:
		return &jsonschema.Schema{Type: "string"}
	default:
		return nil
	}
}

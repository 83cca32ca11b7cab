// Package config loads the udf-server configuration. Values come from a YAML
// file, then from UDF_* environment variables (a .env file is honoured), and
// are validated before use.
package config

import (
	"encoding/json"
	"os"
	"reflect"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/binance"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/file"
	"github.com/rxtech-lab/tradingview-udf/internal/provider/polygon"
	"github.com/rxtech-lab/tradingview-udf/pkg/errors"
	"github.com/rxtech-lab/tradingview-udf/pkg/udf"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "UDF_"

// ProviderType selects the data provider.
type ProviderType string

const (
	ProviderFile    ProviderType = "file"
	ProviderBinance ProviderType = "binance"
	ProviderPolygon ProviderType = "polygon"
)

// Config is the udf-server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server" envPrefix:"SERVER_"`
	Log      LogConfig      `yaml:"log" json:"log" envPrefix:"LOG_"`
	Provider ProviderConfig `yaml:"provider" json:"provider" envPrefix:"PROVIDER_"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address           string        `yaml:"address" json:"address" env:"ADDRESS" validate:"required" jsonschema:"description=Listen address,default=:8080"`
	BasePath          string        `yaml:"base_path" json:"base_path" env:"BASE_PATH" validate:"omitempty,startswith=/" jsonschema:"description=Prefix of every UDF route,default=/api/trading-view/udf"`
	HideEndpoints     bool          `yaml:"hide_endpoints" json:"hide_endpoints" env:"HIDE_ENDPOINTS" jsonschema:"description=Leave the UDF routes out of /api-docs"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout" env:"READ_HEADER_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" validate:"gte=0"`
}

// UDFSettings returns the UDF handler settings.
func (s ServerConfig) UDFSettings() udf.Settings {
	return udf.Settings{
		BasePath:      s.BasePath,
		HideEndpoints: s.HideEndpoints,
	}
}

// LogConfig configures logging.
type LogConfig struct {
	Level       string `yaml:"level" json:"level" env:"LEVEL" validate:"omitempty,oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Development bool   `yaml:"development" json:"development" env:"DEVELOPMENT"`
}

// ProviderConfig selects and configures the data provider.
type ProviderConfig struct {
	Type ProviderType `yaml:"type" json:"type" env:"TYPE" validate:"required,oneof=file binance polygon" jsonschema:"enum=file,enum=binance,enum=polygon"`
	// Catalog is the symbol catalogue file used by the file and polygon providers.
	Catalog string         `yaml:"catalog" json:"catalog,omitempty" env:"CATALOG"`
	File    file.Config    `yaml:"file" json:"file,omitempty" envPrefix:"FILE_"`
	Binance binance.Config `yaml:"binance" json:"binance,omitempty" envPrefix:"BINANCE_"`
	Polygon polygon.Config `yaml:"polygon" json:"polygon,omitempty" envPrefix:"POLYGON_"`
}

// Default returns the configuration used before the file and the environment
// are applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:           ":8080",
			BasePath:          udf.DefaultBasePath,
			HideEndpoints:     false,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{
			Level:       "info",
			Development: false,
		},
		//nolint:exhaustruct // provider blocks are optional
		Provider: ProviderConfig{
			Type: ProviderFile,
		},
	}
}

// Load reads path (skipped when empty), applies the environment and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to parse config %s", path)
		}
	}

	// Load .env file if it exists
	_ = godotenv.Load()

	//nolint:exhaustruct // only the prefix is needed
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse environment", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints and the provider specific requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	switch c.Provider.Type {
	case ProviderFile:
		if c.Provider.Catalog == "" {
			return errors.New(errors.ErrCodeInvalidConfiguration, "provider.catalog is required for the file provider")
		}
	case ProviderPolygon:
		if c.Provider.Catalog == "" {
			return errors.New(errors.ErrCodeInvalidConfiguration, "provider.catalog is required for the polygon provider")
		}

		if c.Provider.Polygon.APIKey == "" {
			return errors.New(errors.ErrCodeInvalidConfiguration, "provider.polygon.api_key is required for the polygon provider")
		}
	case ProviderBinance:
	}

	return nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		FieldNameTag:              "yaml",
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Go duration, e.g. 15s",
				}
			}

			return nil
		},
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "udf-server-config"
	schema.Description = "Configuration schema for udf-server"

	return schema
}

// SchemaJSON returns Schema as indented JSON.
func SchemaJSON() (string, error) {
	schemaBytes, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}

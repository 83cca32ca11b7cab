package udf

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultBasePath is the route prefix used when Settings.BasePath is empty.
const DefaultBasePath = "/api/trading-view/udf"

// Settings are deployment-time options of the UDF handler. They are fixed once
// the handler is built.
type Settings struct {
	// BasePath is the prefix of every UDF route.
	BasePath string `yaml:"base_path" json:"base_path" jsonschema:"title=Base Path,description=Prefix of every UDF route,default=/api/trading-view/udf" validate:"omitempty,startswith=/"`
	// HideEndpoints leaves the UDF routes out of the API route catalogue.
	HideEndpoints bool `yaml:"hide_endpoints" json:"hide_endpoints" jsonschema:"title=Hide Endpoints,description=Leave the UDF routes out of the API route catalogue"`
}

// DefaultSettings returns the settings used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		BasePath:      DefaultBasePath,
		HideEndpoints: false,
	}
}

// Validate validates the settings.
func (s Settings) Validate() error {
	validate := validator.New()
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid udf settings: %w", err)
	}

	return nil
}

// RoutePrefix returns the base path without a trailing slash, falling back to
// DefaultBasePath. A base path of "/" mounts the routes at the root.
func (s Settings) RoutePrefix() string {
	if s.BasePath == "" {
		return DefaultBasePath
	}

	return strings.TrimRight(s.BasePath, "/")
}

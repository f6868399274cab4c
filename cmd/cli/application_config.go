package cli

import (
	_ "embed"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultLogLevelConstant  = "info"
	defaultLogFormatConstant = "console"
)

//go:embed config.yaml
var embeddedDefaultConfiguration string

// CommonConfiguration captures settings shared by every command.
type CommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// KilnConfiguration captures Kiln-specific settings.
type KilnConfiguration struct {
	IgnoreVersion string `mapstructure:"ignoreversion"`
}

// ApplicationConfiguration aggregates every configuration section.
type ApplicationConfiguration struct {
	Common CommonConfiguration `mapstructure:"common"`
	Kiln   KilnConfiguration   `mapstructure:"kiln"`
}

// DefaultApplicationConfiguration returns baseline configuration values.
func DefaultApplicationConfiguration() ApplicationConfiguration {
	return ApplicationConfiguration{
		Common: CommonConfiguration{
			LogLevel:  defaultLogLevelConstant,
			LogFormat: defaultLogFormatConstant,
		},
	}
}

// EmbeddedDefaultConfiguration exposes the default configuration file content.
func EmbeddedDefaultConfiguration() string {
	return embeddedDefaultConfiguration
}

func decodeConfiguration(loader *viper.Viper) (ApplicationConfiguration, error) {
	configuration := DefaultApplicationConfiguration()
	decodeError := loader.Unmarshal(&configuration, func(decoderConfig *mapstructure.DecoderConfig) {
		decoderConfig.ErrorUnused = false
	})
	if decodeError != nil {
		return ApplicationConfiguration{}, decodeError
	}
	return configuration, nil
}

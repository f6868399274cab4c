package cli

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const (
	testConfigurationContentConstant = "common:\n  log_level: debug\n  log_format: structured\nkiln:\n  ignoreversion: \"2.4.0\"\n"
	testExpectedLogLevelConstant     = "debug"
	testExpectedLogFormatConstant    = "structured"
	testExpectedIgnoreVersion        = "2.4.0"
)

func TestDefaultApplicationConfiguration(testInstance *testing.T) {
	configuration := DefaultApplicationConfiguration()
	require.Equal(testInstance, defaultLogLevelConstant, configuration.Common.LogLevel)
	require.Equal(testInstance, defaultLogFormatConstant, configuration.Common.LogFormat)
	require.Empty(testInstance, configuration.Kiln.IgnoreVersion)
}

func TestDecodeConfiguration(testInstance *testing.T) {
	loader := viper.New()
	loader.SetConfigType(configurationTypeConstant)
	require.NoError(testInstance, loader.ReadConfig(strings.NewReader(testConfigurationContentConstant)))

	configuration, decodeError := decodeConfiguration(loader)
	require.NoError(testInstance, decodeError)
	require.Equal(testInstance, testExpectedLogLevelConstant, configuration.Common.LogLevel)
	require.Equal(testInstance, testExpectedLogFormatConstant, configuration.Common.LogFormat)
	require.Equal(testInstance, testExpectedIgnoreVersion, configuration.Kiln.IgnoreVersion)
}

func TestDecodeConfigurationKeepsDefaultsForMissingKeys(testInstance *testing.T) {
	loader := viper.New()
	loader.SetConfigType(configurationTypeConstant)
	require.NoError(testInstance, loader.ReadConfig(strings.NewReader("kiln:\n  ignoreversion: \"2.4.0\"\n")))

	configuration, decodeError := decodeConfiguration(loader)
	require.NoError(testInstance, decodeError)
	require.Equal(testInstance, defaultLogLevelConstant, configuration.Common.LogLevel)
	require.Equal(testInstance, defaultLogFormatConstant, configuration.Common.LogFormat)
	require.Equal(testInstance, testExpectedIgnoreVersion, configuration.Kiln.IgnoreVersion)
}

func TestEmbeddedDefaultConfigurationMatchesDefaults(testInstance *testing.T) {
	var embeddedDocument struct {
		Common struct {
			LogLevel  string `yaml:"log_level"`
			LogFormat string `yaml:"log_format"`
		} `yaml:"common"`
		Kiln struct {
			IgnoreVersion string `yaml:"ignoreversion"`
		} `yaml:"kiln"`
	}
	require.NoError(testInstance, yaml.Unmarshal([]byte(EmbeddedDefaultConfiguration()), &embeddedDocument))

	defaults := DefaultApplicationConfiguration()
	require.Equal(testInstance, defaults.Common.LogLevel, embeddedDocument.Common.LogLevel)
	require.Equal(testInstance, defaults.Common.LogFormat, embeddedDocument.Common.LogFormat)
	require.Equal(testInstance, defaults.Kiln.IgnoreVersion, embeddedDocument.Kiln.IgnoreVersion)
}

package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/version"
)

const (
	applicationNameConstant                         = "kiln"
	applicationShortDescriptionConstant             = "Command-line companion for Kiln-hosted Mercurial repositories"
	applicationLongDescriptionConstant              = "kiln opens the hosted pages of the current repository and guesses remote Kiln repositories for push, pull, incoming, and outgoing destinations."
	configFileFlagNameConstant                      = "config"
	configFileFlagUsageConstant                     = "Optional path to a configuration file (YAML)."
	logLevelFlagNameConstant                        = "log-level"
	logLevelFlagUsageConstant                       = "Override the configured log level."
	logFormatFlagNameConstant                       = "log-format"
	logFormatFlagUsageConstant                      = "Override the configured log format (structured or console)."
	initializationFlagNameConstant                  = "init"
	initializationFlagUsageConstant                 = "Write the embedded default configuration to LOCAL (./config.yaml) or user ($HOME/.kiln/config.yaml)."
	initializationForceFlagNameConstant             = "force"
	initializationForceFlagUsageConstant            = "Overwrite an existing configuration file when initializing."
	initializationScopeLocalConstant                = "local"
	initializationScopeUserConstant                 = "user"
	initializationUnsupportedScopeTemplateConstant  = "unsupported initialization scope %q"
	initializationExistingFileTemplateConstant      = "configuration file already exists at %s (use --force to overwrite)"
	initializationDirectoryErrorTemplateConstant    = "unable to ensure configuration directory %s: %w"
	initializationWriteErrorTemplateConstant        = "unable to write configuration file %s: %w"
	initializationSuccessTemplateConstant           = "configuration file created at %s\n"
	environmentPrefixConstant                       = "KILN"
	configurationNameConstant                       = "config"
	configurationTypeConstant                       = "yaml"
	configurationFileNameConstant                   = configurationNameConstant + "." + configurationTypeConstant
	configurationDirectoryPermissionConstant        = 0o755
	configurationFilePermissionConstant             = 0o600
	userConfigurationDirectoryNameConstant          = ".kiln"
	defaultConfigurationSearchPathConstant          = "."
	environmentKeySeparatorConstant                 = "."
	environmentKeyReplacementConstant               = "_"
	configurationLoadErrorTemplateConstant          = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant             = "unable to create logger: %w"
	homeDirectoryErrorTemplateConstant              = "unable to determine user home directory: %w"
)

// Execute runs the kiln command-line application.
func Execute() error {
	application := newApplication()
	return application.rootCommand.Execute()
}

type application struct {
	rootCommand   *cobra.Command
	configuration ApplicationConfiguration
	logger        *zap.Logger
}

func newApplication() *application {
	applicationInstance := &application{}

	rootCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       version.NewDetector(nil).Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return applicationInstance.initialize(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return applicationInstance.runRoot(command)
		},
	}

	rootCommand.PersistentFlags().String(configFileFlagNameConstant, "", configFileFlagUsageConstant)
	rootCommand.PersistentFlags().String(logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	rootCommand.PersistentFlags().String(logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	rootCommand.Flags().String(initializationFlagNameConstant, "", initializationFlagUsageConstant)
	rootCommand.Flags().Lookup(initializationFlagNameConstant).NoOptDefVal = initializationScopeLocalConstant
	rootCommand.Flags().Bool(initializationForceFlagNameConstant, false, initializationForceFlagUsageConstant)

	registerBrowseFlags(rootCommand)

	for _, transferCommandName := range transferCommandNames {
		rootCommand.AddCommand(applicationInstance.newTransferCommand(transferCommandName))
	}

	return applicationInstance
}

func (applicationInstance *application) initialize(command *cobra.Command) error {
	configuration, configurationError := loadConfiguration(command)
	if configurationError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, configurationError)
	}
	applicationInstance.configuration = configuration

	logLevel := configuration.Common.LogLevel
	if flagValue, flagError := command.Flags().GetString(logLevelFlagNameConstant); flagError == nil && len(strings.TrimSpace(flagValue)) > 0 {
		logLevel = flagValue
	}

	logFormat := configuration.Common.LogFormat
	if flagValue, flagError := command.Flags().GetString(logFormatFlagNameConstant); flagError == nil && len(strings.TrimSpace(flagValue)) > 0 {
		logFormat = flagValue
	}

	logger, loggerError := createLogger(logLevel, logFormat)
	if loggerError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerError)
	}
	applicationInstance.logger = logger

	return nil
}

func (applicationInstance *application) runRoot(command *cobra.Command) error {
	defer applicationInstance.syncLogger()

	if command.Flags().Changed(initializationFlagNameConstant) {
		scope, _ := command.Flags().GetString(initializationFlagNameConstant)
		force, _ := command.Flags().GetBool(initializationForceFlagNameConstant)
		return initializeConfigurationFile(command, scope, force)
	}

	dependencies, dependenciesError := applicationInstance.buildDependencies(command)
	if dependenciesError != nil {
		return dependenciesError
	}

	return runBrowse(command, applicationInstance.configuration, dependencies)
}

func (applicationInstance *application) buildDependencies(command *cobra.Command) (*commandDependencies, error) {
	humanReadableLogging := !strings.EqualFold(applicationInstance.configuration.Common.LogFormat, logFormatStructuredConstant)
	return buildCommandDependencies(
		applicationInstance.logger,
		humanReadableLogging,
		command.InOrStdin(),
		command.OutOrStdout(),
		command.ErrOrStderr(),
	)
}

func (applicationInstance *application) syncLogger() {
	if applicationInstance.logger != nil {
		_ = applicationInstance.logger.Sync()
	}
}

func loadConfiguration(command *cobra.Command) (ApplicationConfiguration, error) {
	loader := viper.New()
	loader.SetConfigName(configurationNameConstant)
	loader.SetConfigType(configurationTypeConstant)
	loader.SetEnvPrefix(environmentPrefixConstant)
	loader.SetEnvKeyReplacer(strings.NewReplacer(environmentKeySeparatorConstant, environmentKeyReplacementConstant))
	loader.AutomaticEnv()

	configurationFilePath := ""
	if flagValue, flagError := command.Flags().GetString(configFileFlagNameConstant); flagError == nil {
		configurationFilePath = strings.TrimSpace(flagValue)
	}

	if len(configurationFilePath) > 0 {
		loader.SetConfigFile(configurationFilePath)
		if readError := loader.ReadInConfig(); readError != nil {
			return ApplicationConfiguration{}, readError
		}
		return decodeConfiguration(loader)
	}

	loader.AddConfigPath(defaultConfigurationSearchPathConstant)
	if homeDirectory, homeError := os.UserHomeDir(); homeError == nil {
		loader.AddConfigPath(filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant))
	}

	if readError := loader.ReadInConfig(); readError != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(readError, &configFileNotFound) {
			return ApplicationConfiguration{}, readError
		}
	}
	return decodeConfiguration(loader)
}

func initializeConfigurationFile(command *cobra.Command, scope string, force bool) error {
	var configurationFilePath string
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case initializationScopeLocalConstant:
		configurationFilePath = filepath.Join(defaultConfigurationSearchPathConstant, configurationFileNameConstant)
	case initializationScopeUserConstant:
		homeDirectory, homeError := os.UserHomeDir()
		if homeError != nil {
			return fmt.Errorf(homeDirectoryErrorTemplateConstant, homeError)
		}
		configurationDirectory := filepath.Join(homeDirectory, userConfigurationDirectoryNameConstant)
		if directoryError := os.MkdirAll(configurationDirectory, configurationDirectoryPermissionConstant); directoryError != nil {
			return fmt.Errorf(initializationDirectoryErrorTemplateConstant, configurationDirectory, directoryError)
		}
		configurationFilePath = filepath.Join(configurationDirectory, configurationFileNameConstant)
	default:
		return fmt.Errorf(initializationUnsupportedScopeTemplateConstant, scope)
	}

	if !force {
		if _, statError := os.Stat(configurationFilePath); statError == nil {
			return fmt.Errorf(initializationExistingFileTemplateConstant, configurationFilePath)
		}
	}

	if writeError := os.WriteFile(configurationFilePath, []byte(EmbeddedDefaultConfiguration()), configurationFilePermissionConstant); writeError != nil {
		return fmt.Errorf(initializationWriteErrorTemplateConstant, configurationFilePath, writeError)
	}

	_, printError := fmt.Fprintf(command.OutOrStdout(), initializationSuccessTemplateConstant, configurationFilePath)
	return printError
}

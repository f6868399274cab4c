package cli

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	logFormatConsoleConstant              = "console"
	logFormatStructuredConstant           = "structured"
	unsupportedLogFormatTemplateConstant  = "unsupported log format %q"
	unsupportedLogLevelTemplateConstant   = "unsupported log level %q"
)

func createLogger(logLevel string, logFormat string) (*zap.Logger, error) {
	parsedLevel, levelError := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(logLevel)))
	if levelError != nil {
		return nil, fmt.Errorf(unsupportedLogLevelTemplateConstant, logLevel)
	}

	var loggerConfiguration zap.Config
	switch strings.ToLower(strings.TrimSpace(logFormat)) {
	case logFormatConsoleConstant:
		loggerConfiguration = zap.NewDevelopmentConfig()
	case logFormatStructuredConstant:
		loggerConfiguration = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf(unsupportedLogFormatTemplateConstant, logFormat)
	}

	loggerConfiguration.Level = zap.NewAtomicLevelAt(parsedLevel)
	return loggerConfiguration.Build()
}

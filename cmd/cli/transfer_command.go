package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/authtokens"
	"github.com/tyemirov/kiln/internal/execshell"
	"github.com/tyemirov/kiln/internal/resolver"
	"github.com/tyemirov/kiln/internal/upgrade"
)

const (
	transferCommandPushConstant         = "push"
	transferCommandPullConstant         = "pull"
	transferCommandIncomingConstant     = "incoming"
	transferCommandOutgoingConstant     = "outgoing"
	transferCommandUseTemplateConstant  = "%s [destination] [-- mercurial arguments]"
	transferCommandShortTemplate        = "Run hg %s against a Kiln destination alias"
	insecureSchemePrefixConstant        = "http://"
	secureSchemePrefixConstant          = "https://"
	ignoreVersionConfigurationName      = "ignoreversion"
	mercurialKilnConfigurationSection   = "kiln"
	restoreFailureWarningConstant       = "unable to restore repository configuration"
)

// transferCommandNames lists the wrapped Mercurial commands whose destination
// arguments are resolved against the Kiln target catalog.
var transferCommandNames = []string{
	transferCommandOutgoingConstant,
	transferCommandPushConstant,
	transferCommandPullConstant,
	transferCommandIncomingConstant,
}

func (applicationInstance *application) newTransferCommand(transferCommandName string) *cobra.Command {
	return &cobra.Command{
		Use:                nameWithDestinationUsage(transferCommandName),
		Short:              shortTransferDescription(transferCommandName),
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			defer applicationInstance.syncLogger()

			dependencies, dependenciesError := applicationInstance.buildDependencies(command)
			if dependenciesError != nil {
				return dependenciesError
			}
			return runTransfer(command, applicationInstance.configuration, dependencies, transferCommandName, arguments)
		},
	}
}

func nameWithDestinationUsage(transferCommandName string) string {
	return fmt.Sprintf(transferCommandUseTemplateConstant, transferCommandName)
}

func shortTransferDescription(transferCommandName string) string {
	return fmt.Sprintf(transferCommandShortTemplate, transferCommandName)
}

func runTransfer(command *cobra.Command, configuration ApplicationConfiguration, dependencies *commandDependencies, transferCommandName string, arguments []string) error {
	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	destination := ""
	passthroughArguments := arguments
	if len(arguments) > 0 && !strings.HasPrefix(arguments[0], "-") {
		destination = arguments[0]
		passthroughArguments = arguments[1:]
	}

	expandedDestination := expandTransferDestination(executionContext, dependencies, transferCommandName, destination)

	resolvedDestination := destination
	if len(destination) > 0 {
		userName := authtokens.UserName(expandedDestination)
		resolution, guessError := dependencies.guesser.Guess(executionContext, dependencies.workingDirectory, destination, userName)
		if guessError != nil {
			return guessError
		}
		switch resolution.Kind {
		case resolver.ResolutionResolved:
			resolvedDestination = resolution.URL
			expandedDestination = resolution.URL
			if repositoryRoot, rootError := dependencies.repositoryManager.RepositoryRoot(executionContext, dependencies.workingDirectory); rootError == nil {
				dependencies.memoizer.Remember(executionContext, repositoryRoot, destination, resolution.URL)
				defer func() {
					if restoreError := dependencies.memoizer.Restore(repositoryRoot); restoreError != nil {
						dependencies.logger.Warn(restoreFailureWarningConstant, zap.Error(restoreError))
					}
				}()
			}
		case resolver.ResolutionAmbiguous:
			return resolver.AmbiguousDestinationError{Destination: destination, Matches: resolution.Matches}
		case resolver.ResolutionNearMiss:
			return resolver.NearMissDestinationError{Destination: destination, Matches: resolution.Matches}
		}
	}

	mercurialArguments := []string{transferCommandName}
	if len(resolvedDestination) > 0 {
		mercurialArguments = append(mercurialArguments, resolvedDestination)
	}
	mercurialArguments = append(mercurialArguments, passthroughArguments...)

	executionResult, executionError := dependencies.executor.ExecuteMercurial(executionContext, execshell.CommandDetails{
		Arguments:        mercurialArguments,
		WorkingDirectory: dependencies.workingDirectory,
	})
	if len(executionResult.StandardOutput) > 0 {
		_, _ = io.WriteString(dependencies.output, executionResult.StandardOutput)
	}
	if len(executionResult.StandardError) > 0 {
		_, _ = io.WriteString(dependencies.errorOutput, executionResult.StandardError)
	}
	if executionError != nil {
		return executionError
	}

	notifyUpgradeWhenAvailable(executionContext, configuration, dependencies, expandedDestination)
	return nil
}

// expandTransferDestination resolves the effective remote URL for the transfer:
// the expanded destination alias when one was given, otherwise the Mercurial
// default appropriate for the command direction.
func expandTransferDestination(executionContext context.Context, dependencies *commandDependencies, transferCommandName string, destination string) string {
	pathName := destination
	if len(pathName) == 0 {
		pathName = defaultPathAliasConstant
		if transferCommandName == transferCommandPushConstant || transferCommandName == transferCommandOutgoingConstant {
			pathName = defaultPushPathAliasConstant
		}
	}

	expandedPath, expandError := dependencies.repositoryManager.ResolvePath(executionContext, dependencies.workingDirectory, pathName)
	if expandError != nil || len(expandedPath) == 0 {
		return destination
	}
	return expandedPath
}

// notifyUpgradeWhenAvailable probes the remote's capability list after a
// successful transfer and surfaces the upgrade prompt when the server
// advertises a newer client version. Probe failures are ignored: the transfer
// already succeeded and the notice is best effort.
func notifyUpgradeWhenAvailable(executionContext context.Context, configuration ApplicationConfiguration, dependencies *commandDependencies, remoteURL string) {
	if !strings.HasPrefix(remoteURL, insecureSchemePrefixConstant) && !strings.HasPrefix(remoteURL, secureSchemePrefixConstant) {
		return
	}

	capabilities, capabilitiesError := dependencies.repositoryManager.Capabilities(executionContext, dependencies.workingDirectory, remoteURL)
	if capabilitiesError != nil {
		return
	}

	notifier, notifierError := dependencies.upgradeNotifier(resolveIgnoreVersion(executionContext, configuration, dependencies))
	if notifierError != nil {
		return
	}

	for _, capability := range capabilities {
		if upgrade.HasCapabilityPrefix(capability) {
			_ = notifier.Notify(executionContext, capability, remoteURL)
			return
		}
	}
}

// resolveIgnoreVersion prefers the repository-level Mercurial setting over the
// application configuration.
func resolveIgnoreVersion(executionContext context.Context, configuration ApplicationConfiguration, dependencies *commandDependencies) string {
	configurationItems, configurationError := dependencies.repositoryManager.ConfigurationSection(executionContext, dependencies.workingDirectory, mercurialKilnConfigurationSection)
	if configurationError == nil {
		for _, configurationItem := range configurationItems {
			if configurationItem.Name == ignoreVersionConfigurationName {
				return configurationItem.Value
			}
		}
	}
	return configuration.Kiln.IgnoreVersion
}

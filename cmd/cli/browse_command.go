package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tyemirov/kiln/internal/authtokens"
	"github.com/tyemirov/kiln/internal/resolver"
	"github.com/tyemirov/kiln/internal/targets"
)

const (
	annotateFlagNameConstant             = "annotate"
	annotateFlagShorthandConstant        = "a"
	annotateFlagUsageConstant            = "annotate the file provided"
	changesFlagNameConstant              = "changes"
	changesFlagShorthandConstant         = "c"
	changesFlagUsageConstant             = "view the history of this repository; this is the default"
	fileFlagNameConstant                 = "file"
	fileFlagShorthandConstant            = "f"
	fileFlagUsageConstant                = "view the file contents"
	fileHistoryFlagNameConstant          = "filehistory"
	fileHistoryFlagShorthandConstant     = "l"
	fileHistoryFlagUsageConstant         = "view the history of the file"
	outgoingFlagNameConstant             = "outgoing"
	outgoingFlagShorthandConstant        = "o"
	outgoingFlagUsageConstant            = "view the repository's outgoing tab"
	settingsFlagNameConstant             = "settings"
	settingsFlagShorthandConstant        = "s"
	settingsFlagUsageConstant            = "view the repository's settings tab"
	pathFlagNameConstant                 = "path"
	pathFlagShorthandConstant            = "p"
	pathFlagUsageConstant                = "override the default URL to use for Kiln"
	revisionFlagNameConstant             = "rev"
	revisionFlagShorthandConstant        = "r"
	revisionFlagUsageConstant            = "view the specified changeset in Kiln"
	targetsFlagNameConstant              = "targets"
	targetsFlagShorthandConstant         = "t"
	targetsFlagUsageConstant             = "view the repository's targets"
	logoutFlagNameConstant               = "logout"
	logoutFlagUsageConstant              = "log out of Kiln sessions"
	defaultPathAliasConstant             = "default"
	defaultPushPathAliasConstant         = "default-push"
	notKilnRepositoryMessageConstant     = "this does not appear to be a Kiln-hosted repository"
	unmatchedPatternWarningTemplate      = "cannot find %s\n"
	targetsHeaderMessageConstant         = "The following Kiln targets are available for this repository:\n\n"
	targetEntryTemplateConstant          = "    %s%s\n"
	singleAliasSuffixTemplateConstant    = " (alias: %s)"
	multipleAliasSuffixTemplateConstant  = " (aliases: %s)"
	aliasListSeparatorConstant           = ", "
)

var errNotKilnRepository = errors.New(notKilnRepositoryMessageConstant)

func registerBrowseFlags(command *cobra.Command) {
	registerBrowsePageFlags(command.Flags())
}

func registerBrowsePageFlags(flagSet *pflag.FlagSet) {
	flagSet.StringSliceP(annotateFlagNameConstant, annotateFlagShorthandConstant, nil, annotateFlagUsageConstant)
	flagSet.BoolP(changesFlagNameConstant, changesFlagShorthandConstant, false, changesFlagUsageConstant)
	flagSet.StringSliceP(fileFlagNameConstant, fileFlagShorthandConstant, nil, fileFlagUsageConstant)
	flagSet.StringSliceP(fileHistoryFlagNameConstant, fileHistoryFlagShorthandConstant, nil, fileHistoryFlagUsageConstant)
	flagSet.BoolP(outgoingFlagNameConstant, outgoingFlagShorthandConstant, false, outgoingFlagUsageConstant)
	flagSet.BoolP(settingsFlagNameConstant, settingsFlagShorthandConstant, false, settingsFlagUsageConstant)
	flagSet.StringP(pathFlagNameConstant, pathFlagShorthandConstant, "", pathFlagUsageConstant)
	flagSet.StringSliceP(revisionFlagNameConstant, revisionFlagShorthandConstant, nil, revisionFlagUsageConstant)
	flagSet.BoolP(targetsFlagNameConstant, targetsFlagShorthandConstant, false, targetsFlagUsageConstant)
	flagSet.Bool(logoutFlagNameConstant, false, logoutFlagUsageConstant)
}

func runBrowse(command *cobra.Command, configuration ApplicationConfiguration, dependencies *commandDependencies) error {
	executionContext := command.Context()
	if executionContext == nil {
		executionContext = context.Background()
	}

	pathOverride, _ := command.Flags().GetString(pathFlagNameConstant)
	revisionArguments, _ := command.Flags().GetStringSlice(revisionFlagNameConstant)
	annotatePatterns, _ := command.Flags().GetStringSlice(annotateFlagNameConstant)
	filePatterns, _ := command.Flags().GetStringSlice(fileFlagNameConstant)
	fileHistoryPatterns, _ := command.Flags().GetStringSlice(fileHistoryFlagNameConstant)
	outgoingRequested, _ := command.Flags().GetBool(outgoingFlagNameConstant)
	settingsRequested, _ := command.Flags().GetBool(settingsFlagNameConstant)
	targetsRequested, _ := command.Flags().GetBool(targetsFlagNameConstant)
	logoutRequested, _ := command.Flags().GetBool(logoutFlagNameConstant)
	changesRequested, _ := command.Flags().GetBool(changesFlagNameConstant)

	pagesRequested := len(revisionArguments) > 0 || len(annotatePatterns) > 0 || len(filePatterns) > 0 ||
		len(fileHistoryPatterns) > 0 || outgoingRequested || settingsRequested

	repositoryURL := ""
	if pagesRequested || changesRequested || !(targetsRequested || logoutRequested) {
		resolvedURL, resolveError := resolveKilnRepositoryURL(executionContext, dependencies, pathOverride)
		if resolveError != nil {
			return resolveError
		}
		repositoryURL = resolvedURL
	}

	defaultView := true

	for _, revisionArgument := range revisionArguments {
		defaultView = false
		revisionNode, revisionError := dependencies.repositoryManager.RevisionNode(executionContext, dependencies.workingDirectory, revisionArgument)
		if revisionError != nil {
			return revisionError
		}
		if openError := dependencies.navigator.OpenHistory(executionContext, repositoryURL, revisionNode); openError != nil {
			return openError
		}
	}

	if len(annotatePatterns) > 0 {
		defaultView = false
		for _, manifestFile := range expandPatterns(executionContext, dependencies, annotatePatterns) {
			if openError := dependencies.navigator.OpenAnnotate(executionContext, repositoryURL, manifestFile); openError != nil {
				return openError
			}
		}
	}
	if len(filePatterns) > 0 {
		defaultView = false
		for _, manifestFile := range expandPatterns(executionContext, dependencies, filePatterns) {
			if openError := dependencies.navigator.OpenFile(executionContext, repositoryURL, manifestFile); openError != nil {
				return openError
			}
		}
	}
	if len(fileHistoryPatterns) > 0 {
		defaultView = false
		for _, manifestFile := range expandPatterns(executionContext, dependencies, fileHistoryPatterns) {
			if openError := dependencies.navigator.OpenFileHistory(executionContext, repositoryURL, manifestFile); openError != nil {
				return openError
			}
		}
	}

	if outgoingRequested {
		defaultView = false
		if openError := dependencies.navigator.OpenOutgoing(executionContext, repositoryURL); openError != nil {
			return openError
		}
	}
	if settingsRequested {
		defaultView = false
		if openError := dependencies.navigator.OpenSettings(executionContext, repositoryURL); openError != nil {
			return openError
		}
	}

	if targetsRequested {
		defaultView = false
		if displayError := displayTargets(executionContext, dependencies); displayError != nil {
			return displayError
		}
	}
	if logoutRequested {
		defaultView = false
		if deleteError := dependencies.tokenFileStore.Delete(); deleteError != nil {
			return deleteError
		}
	}

	if defaultView || changesRequested {
		return dependencies.navigator.OpenRepository(executionContext, repositoryURL)
	}
	return nil
}

// resolveKilnRepositoryURL determines the hosted repository URL for page
// browsing: the path override or default path when it already points at the
// hosted service, otherwise the alias resolver's unique match.
func resolveKilnRepositoryURL(executionContext context.Context, dependencies *commandDependencies, pathOverride string) (string, error) {
	destination := expandDestination(executionContext, dependencies, pathOverride)

	if len(destination) > 0 && isKilnHostedURL(destination) {
		return stripCredentials(destination), nil
	}

	if len(pathOverride) > 0 {
		userName := authtokens.UserName(destination)
		resolution, guessError := dependencies.guesser.Guess(executionContext, dependencies.workingDirectory, pathOverride, userName)
		if guessError != nil {
			return "", guessError
		}
		switch resolution.Kind {
		case resolver.ResolutionResolved:
			return resolution.URL, nil
		case resolver.ResolutionAmbiguous:
			return "", resolver.AmbiguousDestinationError{Destination: pathOverride, Matches: resolution.Matches}
		case resolver.ResolutionNearMiss:
			return "", resolver.NearMissDestinationError{Destination: pathOverride, Matches: resolution.Matches}
		}
	}

	return "", errNotKilnRepository
}

func expandDestination(executionContext context.Context, dependencies *commandDependencies, pathOverride string) string {
	if len(pathOverride) > 0 {
		expandedOverride, expandError := dependencies.repositoryManager.ResolvePath(executionContext, dependencies.workingDirectory, pathOverride)
		if expandError != nil || len(expandedOverride) == 0 {
			return pathOverride
		}
		return expandedOverride
	}

	for _, pathAlias := range []string{defaultPathAliasConstant, defaultPushPathAliasConstant} {
		expandedAlias, expandError := dependencies.repositoryManager.ResolvePath(executionContext, dependencies.workingDirectory, pathAlias)
		if expandError == nil && len(expandedAlias) > 0 {
			return expandedAlias
		}
	}
	return ""
}

func isKilnHostedURL(candidateURL string) bool {
	_, hosted := targets.SchemeBaseURL(candidateURL)
	return hosted
}

func stripCredentials(remoteURL string) string {
	parsedURL, parseError := url.Parse(remoteURL)
	if parseError != nil || parsedURL.User == nil {
		return remoteURL
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func expandPatterns(executionContext context.Context, dependencies *commandDependencies, filePatterns []string) []string {
	manifestFiles := make([]string, 0)
	for _, filePattern := range filePatterns {
		matches, matchError := dependencies.repositoryManager.ManifestFiles(executionContext, dependencies.workingDirectory, filePattern)
		if matchError != nil || len(matches) == 0 {
			fmt.Fprintf(dependencies.errorOutput, unmatchedPatternWarningTemplate, filePattern)
			continue
		}
		manifestFiles = append(manifestFiles, matches...)
	}
	return manifestFiles
}

func displayTargets(executionContext context.Context, dependencies *commandDependencies) error {
	destination := expandDestination(executionContext, dependencies, "")
	userName := authtokens.UserName(destination)

	catalog, catalogError := dependencies.catalogBuilder.Build(executionContext, dependencies.workingDirectory, userName)
	if catalogError != nil {
		return catalogError
	}

	if _, writeError := io.WriteString(dependencies.output, targetsHeaderMessageConstant); writeError != nil {
		return writeError
	}
	for _, catalogTarget := range catalog {
		aliasSuffix := ""
		switch {
		case len(catalogTarget.Aliases) == 1:
			aliasSuffix = fmt.Sprintf(singleAliasSuffixTemplateConstant, catalogTarget.Aliases[0])
		case len(catalogTarget.Aliases) > 1:
			aliasSuffix = fmt.Sprintf(multipleAliasSuffixTemplateConstant, strings.Join(catalogTarget.Aliases, aliasListSeparatorConstant))
		}
		if _, writeError := fmt.Fprintf(dependencies.output, targetEntryTemplateConstant, catalogTarget.URL(), aliasSuffix); writeError != nil {
			return writeError
		}
	}
	return nil
}

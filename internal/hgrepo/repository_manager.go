package hgrepo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tyemirov/kiln/internal/execshell"
)

const (
	hgLogSubcommandConstant                   = "log"
	hgRevisionFlagConstant                    = "--rev"
	hgTemplateFlagConstant                    = "--template"
	hgTailRevisionSetConstant                 = "roots(all())"
	hgNodeTemplateConstant                    = "{node}\n"
	hgSingleNodeTemplateConstant              = "{node}"
	hgConfigSubcommandConstant                = "config"
	hgPathsSubcommandConstant                 = "paths"
	hgFilesSubcommandConstant                 = "files"
	hgRootSubcommandConstant                  = "root"
	hgDebugCapabilitiesSubcommandConstant     = "debugcapabilities"
	hgWorkingRevisionConstant                 = "."
	hgGlobPatternPrefixConstant               = "glob:"
	hgTerminalPromptEnvironmentNameConstant   = "HGPLAIN"
	hgTerminalPromptEnvironmentValueConstant  = "1"
	configurationItemSeparatorConstant        = "="
	configurationSectionSeparatorConstant     = "."
	repositoryPathFieldNameConstant           = "repository_path"
	sectionNameFieldNameConstant              = "section_name"
	pathNameFieldNameConstant                 = "path_name"
	revisionFieldNameConstant                 = "revision"
	remoteURLFieldNameConstant                = "remote_url"
	requiredValueMessageConstant              = "value required"
	executorNotConfiguredMessageConstant      = "mercurial executor not configured"
	repositoryOperationErrorTemplateConstant  = "%s operation failed"
	repositoryOperationErrorWithCauseConstant = "%s operation failed: %s"
	invalidRepositoryInputTemplateConstant    = "%s: %s"
	tailRevisionsOperationNameConstant        = RepositoryOperationName("TailRevisions")
	configurationSectionOperationNameConstant = RepositoryOperationName("ConfigurationSection")
	resolvePathOperationNameConstant          = RepositoryOperationName("ResolvePath")
	manifestFilesOperationNameConstant        = RepositoryOperationName("ManifestFiles")
	revisionNodeOperationNameConstant         = RepositoryOperationName("RevisionNode")
	repositoryRootOperationNameConstant       = RepositoryOperationName("RepositoryRoot")
	capabilitiesOperationNameConstant         = RepositoryOperationName("Capabilities")
)

// MercurialCommandExecutor exposes the subset of execshell functionality required by RepositoryManager.
type MercurialCommandExecutor interface {
	ExecuteMercurial(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// ConfigurationItem captures one entry of a Mercurial configuration section in file order.
type ConfigurationItem struct {
	Name  string
	Value string
}

// RepositoryManager coordinates Mercurial operations through execshell.
type RepositoryManager struct {
	executor MercurialCommandExecutor
}

var (
	// ErrMercurialExecutorNotConfigured indicates the RepositoryManager was constructed without an executor.
	ErrMercurialExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
)

// InvalidRepositoryInputError indicates validation failures for repository operations.
type InvalidRepositoryInputError struct {
	FieldName string
	Message   string
}

// Error describes the validation failure.
func (inputError InvalidRepositoryInputError) Error() string {
	return fmt.Sprintf(invalidRepositoryInputTemplateConstant, inputError.FieldName, inputError.Message)
}

// RepositoryOperationName captures descriptive names for repository operations.
type RepositoryOperationName string

// RepositoryOperationError wraps execution failures for Mercurial operations.
type RepositoryOperationError struct {
	Operation RepositoryOperationName
	Cause     error
}

// Error describes the repository operation failure.
func (operationError RepositoryOperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(repositoryOperationErrorTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(repositoryOperationErrorWithCauseConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying error.
func (operationError RepositoryOperationError) Unwrap() error {
	return operationError.Cause
}

// NewRepositoryManager constructs a RepositoryManager for the provided executor.
func NewRepositoryManager(executor MercurialCommandExecutor) (*RepositoryManager, error) {
	if executor == nil {
		return nil, ErrMercurialExecutorNotConfigured
	}
	return &RepositoryManager{executor: executor}, nil
}

// TailRevisions returns the node hash of every parentless changeset in history order.
func (manager *RepositoryManager) TailRevisions(executionContext context.Context, repositoryPath string) ([]string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{hgLogSubcommandConstant, hgRevisionFlagConstant, hgTailRevisionSetConstant, hgTemplateFlagConstant, hgNodeTemplateConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.execute(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: tailRevisionsOperationNameConstant, Cause: executionError}
	}

	return nonEmptyLines(executionResult.StandardOutput), nil
}

// ConfigurationSection returns the ordered entries of a Mercurial configuration section.
func (manager *RepositoryManager) ConfigurationSection(executionContext context.Context, repositoryPath string, sectionName string) ([]ConfigurationItem, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedSection := strings.TrimSpace(sectionName)
	if len(trimmedSection) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: sectionNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{hgConfigSubcommandConstant, trimmedSection},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.execute(executionContext, commandDetails)
	if executionError != nil {
		// hg config exits non-zero for sections with no entries.
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) {
			return nil, nil
		}
		return nil, RepositoryOperationError{Operation: configurationSectionOperationNameConstant, Cause: executionError}
	}

	sectionPrefix := trimmedSection + configurationSectionSeparatorConstant
	items := make([]ConfigurationItem, 0)
	for _, line := range nonEmptyLines(executionResult.StandardOutput) {
		separatorIndex := strings.Index(line, configurationItemSeparatorConstant)
		if separatorIndex < 0 {
			continue
		}
		qualifiedName := strings.TrimSpace(line[:separatorIndex])
		if !strings.HasPrefix(qualifiedName, sectionPrefix) {
			continue
		}
		items = append(items, ConfigurationItem{
			Name:  strings.TrimPrefix(qualifiedName, sectionPrefix),
			Value: strings.TrimSpace(line[separatorIndex+1:]),
		})
	}
	return items, nil
}

// ResolvePath expands a configured path alias into its URL.
func (manager *RepositoryManager) ResolvePath(executionContext context.Context, repositoryPath string, pathName string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedName := strings.TrimSpace(pathName)
	if len(trimmedName) == 0 {
		return "", InvalidRepositoryInputError{FieldName: pathNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{hgPathsSubcommandConstant, trimmedName},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.execute(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: resolvePathOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// PathAliases returns the configured path aliases of the repository.
func (manager *RepositoryManager) PathAliases(executionContext context.Context, repositoryPath string) ([]ConfigurationItem, error) {
	return manager.ConfigurationSection(executionContext, repositoryPath, hgPathsSubcommandConstant)
}

// ManifestFiles expands a glob pattern against the working revision manifest.
func (manager *RepositoryManager) ManifestFiles(executionContext context.Context, repositoryPath string, filePattern string) ([]string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedPattern := strings.TrimSpace(filePattern)
	if len(trimmedPattern) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: pathNameFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{hgFilesSubcommandConstant, hgRevisionFlagConstant, hgWorkingRevisionConstant, hgGlobPatternPrefixConstant + trimmedPattern},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.execute(executionContext, commandDetails)
	if executionError != nil {
		// hg files exits non-zero when the pattern matches nothing.
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) {
			return nil, nil
		}
		return nil, RepositoryOperationError{Operation: manifestFilesOperationNameConstant, Cause: executionError}
	}

	return nonEmptyLines(executionResult.StandardOutput), nil
}

// RevisionNode resolves a revision expression to its full node hash.
func (manager *RepositoryManager) RevisionNode(executionContext context.Context, repositoryPath string, revision string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedRevision := strings.TrimSpace(revision)
	if len(trimmedRevision) == 0 {
		return "", InvalidRepositoryInputError{FieldName: revisionFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{hgLogSubcommandConstant, hgRevisionFlagConstant, trimmedRevision, hgTemplateFlagConstant, hgSingleNodeTemplateConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.execute(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: revisionNodeOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// RepositoryRoot resolves the working copy root directory.
func (manager *RepositoryManager) RepositoryRoot(executionContext context.Context, repositoryPath string) (string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return "", InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{hgRootSubcommandConstant},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.execute(executionContext, commandDetails)
	if executionError != nil {
		return "", RepositoryOperationError{Operation: repositoryRootOperationNameConstant, Cause: executionError}
	}

	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// Capabilities lists the capability strings advertised by a remote repository.
func (manager *RepositoryManager) Capabilities(executionContext context.Context, repositoryPath string, remoteURL string) ([]string, error) {
	trimmedPath := strings.TrimSpace(repositoryPath)
	if len(trimmedPath) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: repositoryPathFieldNameConstant, Message: requiredValueMessageConstant}
	}

	trimmedURL := strings.TrimSpace(remoteURL)
	if len(trimmedURL) == 0 {
		return nil, InvalidRepositoryInputError{FieldName: remoteURLFieldNameConstant, Message: requiredValueMessageConstant}
	}

	commandDetails := execshell.CommandDetails{
		Arguments:        []string{hgDebugCapabilitiesSubcommandConstant, trimmedURL},
		WorkingDirectory: trimmedPath,
	}

	executionResult, executionError := manager.execute(executionContext, commandDetails)
	if executionError != nil {
		return nil, RepositoryOperationError{Operation: capabilitiesOperationNameConstant, Cause: executionError}
	}

	capabilities := make([]string, 0)
	for _, line := range nonEmptyLines(executionResult.StandardOutput) {
		capabilities = append(capabilities, strings.TrimSpace(line))
	}
	return capabilities, nil
}

func (manager *RepositoryManager) execute(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error) {
	environment := details.EnvironmentVariables
	if environment == nil {
		environment = map[string]string{}
	}
	environment[hgTerminalPromptEnvironmentNameConstant] = hgTerminalPromptEnvironmentValueConstant
	details.EnvironmentVariables = environment

	return manager.executor.ExecuteMercurial(executionContext, details)
}

func nonEmptyLines(commandOutput string) []string {
	trimmedOutput := strings.TrimSpace(commandOutput)
	if len(trimmedOutput) == 0 {
		return nil
	}

	lines := strings.Split(trimmedOutput, "\n")
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			entries = append(entries, trimmed)
		}
	}
	return entries
}

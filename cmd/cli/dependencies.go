package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/authtokens"
	"github.com/tyemirov/kiln/internal/browse"
	"github.com/tyemirov/kiln/internal/execshell"
	"github.com/tyemirov/kiln/internal/hgrepo"
	"github.com/tyemirov/kiln/internal/kilnapi"
	"github.com/tyemirov/kiln/internal/pathmemo"
	"github.com/tyemirov/kiln/internal/prompt"
	"github.com/tyemirov/kiln/internal/resolver"
	"github.com/tyemirov/kiln/internal/targets"
	"github.com/tyemirov/kiln/internal/upgrade"
)

const (
	apiRequestTimeoutConstant                  = 30 * time.Second
	workingDirectoryUnavailableMessageConstant = "unable to determine working directory: %w"
)

// commandDependencies aggregates the collaborators shared by every command.
type commandDependencies struct {
	logger            *zap.Logger
	executor          *execshell.ShellExecutor
	repositoryManager *hgrepo.RepositoryManager
	apiClient         *kilnapi.Client
	catalogBuilder    *targets.CatalogBuilder
	guesser           *resolver.Guesser
	memoizer          *pathmemo.Memoizer
	navigator         *browse.Navigator
	tokenFileStore    *authtokens.FileStore
	confirmPrompter   *prompt.IOConfirmationPrompter
	input             io.Reader
	output            io.Writer
	errorOutput       io.Writer
	workingDirectory  string
}

func buildCommandDependencies(logger *zap.Logger, humanReadableLogging bool, input io.Reader, output io.Writer, errorOutput io.Writer) (*commandDependencies, error) {
	workingDirectory, workingDirectoryError := os.Getwd()
	if workingDirectoryError != nil {
		return nil, fmt.Errorf(workingDirectoryUnavailableMessageConstant, workingDirectoryError)
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), humanReadableLogging)
	if executorError != nil {
		return nil, executorError
	}

	repositoryManager, managerError := hgrepo.NewRepositoryManager(shellExecutor)
	if managerError != nil {
		return nil, managerError
	}

	apiClient, apiClientError := kilnapi.NewClient(&http.Client{Timeout: apiRequestTimeoutConstant}, logger)
	if apiClientError != nil {
		return nil, apiClientError
	}

	tokenFilePath, tokenFilePathError := authtokens.DefaultTokenFilePath()
	if tokenFilePathError != nil {
		return nil, tokenFilePathError
	}
	tokenFileStore := authtokens.NewFileStore(tokenFilePath)

	cookieDirectoryPath, cookieDirectoryError := authtokens.DefaultCookieDirectoryPath()
	if cookieDirectoryError != nil {
		return nil, cookieDirectoryError
	}
	cookieStore := authtokens.NewCookieStore(cookieDirectoryPath)

	fileTokenProvider, fileProviderError := authtokens.NewFileTokenProvider(tokenFileStore)
	if fileProviderError != nil {
		return nil, fileProviderError
	}

	cookieTokenProvider, cookieProviderError := authtokens.NewCookieTokenProvider(cookieStore, tokenFileStore)
	if cookieProviderError != nil {
		return nil, cookieProviderError
	}

	loginProvider, loginProviderError := authtokens.NewInteractiveLoginProvider(
		apiClient,
		authtokens.NewIOUserNamePrompter(input, errorOutput),
		authtokens.NewTerminalPasswordReader(errorOutput),
		tokenFileStore,
	)
	if loginProviderError != nil {
		return nil, loginProviderError
	}

	tokenChain, tokenChainError := authtokens.NewProviderChain(fileTokenProvider, cookieTokenProvider, loginProvider)
	if tokenChainError != nil {
		return nil, tokenChainError
	}

	catalogBuilder, catalogBuilderError := targets.NewCatalogBuilder(repositoryManager, tokenChain, apiClient, logger)
	if catalogBuilderError != nil {
		return nil, catalogBuilderError
	}

	destinationGuesser, guesserError := resolver.NewGuesser(repositoryManager, catalogBuilder, nil)
	if guesserError != nil {
		return nil, guesserError
	}

	memoizer, memoizerError := pathmemo.NewMemoizer(repositoryManager, logger)
	if memoizerError != nil {
		return nil, memoizerError
	}

	navigator, navigatorError := browse.NewNavigator(shellExecutor)
	if navigatorError != nil {
		return nil, navigatorError
	}

	return &commandDependencies{
		logger:            logger,
		executor:          shellExecutor,
		repositoryManager: repositoryManager,
		apiClient:         apiClient,
		catalogBuilder:    catalogBuilder,
		guesser:           destinationGuesser,
		memoizer:          memoizer,
		navigator:         navigator,
		tokenFileStore:    tokenFileStore,
		confirmPrompter:   prompt.NewIOConfirmationPrompter(input, errorOutput),
		input:             input,
		output:            output,
		errorOutput:       errorOutput,
		workingDirectory:  workingDirectory,
	}, nil
}

func (dependencies *commandDependencies) upgradeNotifier(ignoreVersion string) (*upgrade.Notifier, error) {
	return upgrade.NewNotifier(dependencies.confirmPrompter, dependencies.executor, dependencies.output, ignoreVersion)
}

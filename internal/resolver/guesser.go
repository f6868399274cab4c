package resolver

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/tyemirov/kiln/internal/hgrepo"
	"github.com/tyemirov/kiln/internal/targets"
)

const (
	schemeSuffixSeparatorConstant        = "://"
	pathAliasSourceMissingConstant       = "path alias source not configured"
	catalogSourceMissingConstant         = "catalog source not configured"
	bundleSchemeNameConstant             = "bundle"
	fileSchemeNameConstant               = "file"
	httpSchemeNameConstant               = "http"
	httpsSchemeNameConstant              = "https"
	sshSchemeNameConstant                = "ssh"
	staticHTTPSchemeNameConstant         = "static-http"
)

var (
	// ErrPathAliasSourceNotConfigured indicates the path alias source dependency was missing.
	ErrPathAliasSourceNotConfigured = errors.New(pathAliasSourceMissingConstant)
	// ErrCatalogSourceNotConfigured indicates the catalog source dependency was missing.
	ErrCatalogSourceNotConfigured = errors.New(catalogSourceMissingConstant)
)

// recognizedURLSchemes lists the transport schemes Mercurial dispatches itself.
var recognizedURLSchemes = []string{
	bundleSchemeNameConstant,
	fileSchemeNameConstant,
	httpSchemeNameConstant,
	httpsSchemeNameConstant,
	sshSchemeNameConstant,
	staticHTTPSchemeNameConstant,
}

// PathAliasSource lists the configured path aliases of a repository.
type PathAliasSource interface {
	PathAliases(executionContext context.Context, repositoryPath string) ([]hgrepo.ConfigurationItem, error)
}

// CatalogSource builds the candidate target catalog for a repository.
type CatalogSource interface {
	Build(executionContext context.Context, repositoryPath string, userName string) ([]targets.Target, error)
}

// FileExistenceChecker reports whether a filesystem path exists.
type FileExistenceChecker func(candidatePath string) bool

// Guesser gates alias resolution behind the destination skip rules and delegates matching to Resolve.
type Guesser struct {
	pathAliases   PathAliasSource
	catalogSource CatalogSource
	fileExists    FileExistenceChecker
}

// NewGuesser constructs a Guesser with the required collaborators.
func NewGuesser(pathAliases PathAliasSource, catalogSource CatalogSource, fileExists FileExistenceChecker) (*Guesser, error) {
	if pathAliases == nil {
		return nil, ErrPathAliasSourceNotConfigured
	}
	if catalogSource == nil {
		return nil, ErrCatalogSourceNotConfigured
	}
	if fileExists == nil {
		fileExists = defaultFileExistenceChecker
	}
	return &Guesser{pathAliases: pathAliases, catalogSource: catalogSource, fileExists: fileExists}, nil
}

// Guess resolves the destination against the repository's target catalog.
//
// Destinations that are empty, name an existing filesystem path, name a
// configured path alias, or carry a recognized URL scheme are never candidates
// for guessing and pass through as NoMatch.
func (guesser *Guesser) Guess(executionContext context.Context, repositoryPath string, destination string, userName string) (Resolution, error) {
	if len(destination) == 0 || guesser.fileExists(destination) || isRecognizedScheme(destination) {
		return Resolution{Kind: ResolutionNoMatch}, nil
	}

	configuredAlias, aliasError := guesser.isConfiguredPathAlias(executionContext, repositoryPath, destination)
	if aliasError != nil {
		return Resolution{}, aliasError
	}
	if configuredAlias {
		return Resolution{Kind: ResolutionNoMatch}, nil
	}

	catalog, catalogError := guesser.catalogSource.Build(executionContext, repositoryPath, userName)
	if catalogError != nil {
		return Resolution{}, catalogError
	}

	return Resolve(destination, catalog), nil
}

func (guesser *Guesser) isConfiguredPathAlias(executionContext context.Context, repositoryPath string, destination string) (bool, error) {
	aliases, aliasError := guesser.pathAliases.PathAliases(executionContext, repositoryPath)
	if aliasError != nil {
		return false, aliasError
	}
	for _, alias := range aliases {
		if alias.Name == destination {
			return true, nil
		}
	}
	return false, nil
}

func isRecognizedScheme(destination string) bool {
	separatorIndex := strings.Index(destination, schemeSuffixSeparatorConstant)
	if separatorIndex <= 0 {
		return false
	}
	destinationScheme := destination[:separatorIndex]
	for _, recognizedScheme := range recognizedURLSchemes {
		if destinationScheme == recognizedScheme {
			return true
		}
	}
	return false
}

func defaultFileExistenceChecker(candidatePath string) bool {
	_, statError := os.Stat(candidatePath)
	return statError == nil
}

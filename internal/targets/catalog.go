package targets

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/hgrepo"
	"github.com/tyemirov/kiln/internal/kilnapi"
)

const (
	kilnSchemeSectionNameConstant          = "kiln_scheme"
	repositoryInspectorMissingConstant     = "repository inspector not configured"
	tokenResolverMissingConstant           = "token resolver not configured"
	relatedClientMissingConstant           = "related repositories client not configured"
	catalogLoggerMissingConstant           = "catalog builder logger not configured"
	emptyHistoryMessageConstant            = "path guessing is only enabled for non-empty repositories"
	schemeEntryLogMessageConstant          = "kiln scheme entry scoped"
	schemeEntrySkippedLogMessageConstant   = "kiln scheme entry skipped"
	schemeNameLogFieldNameConstant         = "scheme_name"
	schemeBaseURLLogFieldNameConstant      = "base_url"
	catalogSizeLogFieldNameConstant        = "target_count"
	catalogBuiltLogMessageConstant         = "target catalog built"
)

var (
	// ErrRepositoryInspectorNotConfigured indicates the repository inspector dependency was missing.
	ErrRepositoryInspectorNotConfigured = errors.New(repositoryInspectorMissingConstant)
	// ErrTokenResolverNotConfigured indicates the token resolver dependency was missing.
	ErrTokenResolverNotConfigured = errors.New(tokenResolverMissingConstant)
	// ErrRelatedClientNotConfigured indicates the related repositories client dependency was missing.
	ErrRelatedClientNotConfigured = errors.New(relatedClientMissingConstant)
	// ErrCatalogLoggerNotConfigured indicates the logger dependency was missing.
	ErrCatalogLoggerNotConfigured = errors.New(catalogLoggerMissingConstant)
	// ErrEmptyHistory indicates the repository has no changesets to derive tails from.
	ErrEmptyHistory = errors.New(emptyHistoryMessageConstant)
)

// RepositoryInspector exposes the Mercurial operations the catalog builder relies on.
type RepositoryInspector interface {
	ConfigurationSection(executionContext context.Context, repositoryPath string, sectionName string) ([]hgrepo.ConfigurationItem, error)
	TailRevisions(executionContext context.Context, repositoryPath string) ([]string, error)
}

// TokenResolver supplies an authentication token for a base URL and login name.
type TokenResolver interface {
	Resolve(executionContext context.Context, baseURL string, userName string) (string, error)
}

// RelatedRepositoriesClient lists repositories related to the provided tail revisions.
type RelatedRepositoriesClient interface {
	RelatedRepositories(executionContext context.Context, baseURL string, tailRevisions []string, token string) ([]kilnapi.RelatedRepository, error)
}

// CatalogBuilder assembles the flat list of candidate targets for a repository.
type CatalogBuilder struct {
	inspector     RepositoryInspector
	tokenResolver TokenResolver
	relatedClient RelatedRepositoriesClient
	logger        *zap.Logger
}

// NewCatalogBuilder constructs a CatalogBuilder with the required collaborators.
func NewCatalogBuilder(inspector RepositoryInspector, tokenResolver TokenResolver, relatedClient RelatedRepositoriesClient, logger *zap.Logger) (*CatalogBuilder, error) {
	if inspector == nil {
		return nil, ErrRepositoryInspectorNotConfigured
	}
	if tokenResolver == nil {
		return nil, ErrTokenResolverNotConfigured
	}
	if relatedClient == nil {
		return nil, ErrRelatedClientNotConfigured
	}
	if logger == nil {
		return nil, ErrCatalogLoggerNotConfigured
	}
	return &CatalogBuilder{
		inspector:     inspector,
		tokenResolver: tokenResolver,
		relatedClient: relatedClient,
		logger:        logger,
	}, nil
}

// Build enumerates the configured kiln scheme entries and collects related repositories for each.
// The catalog preserves configuration order, then API response order.
func (builder *CatalogBuilder) Build(executionContext context.Context, repositoryPath string, userName string) ([]Target, error) {
	schemeEntries, schemeError := builder.inspector.ConfigurationSection(executionContext, repositoryPath, kilnSchemeSectionNameConstant)
	if schemeError != nil {
		return nil, schemeError
	}

	catalog := make([]Target, 0)
	var cachedTailRevisions []string

	for _, schemeEntry := range schemeEntries {
		baseURL, relevant := SchemeBaseURL(schemeEntry.Value)
		if !relevant {
			builder.logger.Debug(schemeEntrySkippedLogMessageConstant,
				zap.String(schemeNameLogFieldNameConstant, schemeEntry.Name),
			)
			continue
		}

		builder.logger.Debug(schemeEntryLogMessageConstant,
			zap.String(schemeNameLogFieldNameConstant, schemeEntry.Name),
			zap.String(schemeBaseURLLogFieldNameConstant, baseURL),
		)

		if cachedTailRevisions == nil {
			tailRevisions, tailsError := builder.inspector.TailRevisions(executionContext, repositoryPath)
			if tailsError != nil {
				return nil, tailsError
			}
			if len(tailRevisions) == 0 {
				return nil, ErrEmptyHistory
			}
			cachedTailRevisions = tailRevisions
		}

		token, tokenError := builder.tokenResolver.Resolve(executionContext, baseURL, userName)
		if tokenError != nil {
			return nil, tokenError
		}

		relatedRepositories, relatedError := builder.relatedClient.RelatedRepositories(executionContext, baseURL, cachedTailRevisions, token)
		if relatedError != nil {
			return nil, relatedError
		}

		for _, relatedRepository := range relatedRepositories {
			catalog = append(catalog, Target{
				BaseURL:        baseURL,
				ProjectSlug:    relatedRepository.ProjectSlug,
				GroupSlug:      relatedRepository.GroupSlug,
				RepositorySlug: relatedRepository.RepositorySlug,
				Aliases:        relatedRepository.Aliases,
			})
		}
	}

	builder.logger.Debug(catalogBuiltLogMessageConstant,
		zap.Int(catalogSizeLogFieldNameConstant, len(catalog)),
	)
	return catalog, nil
}

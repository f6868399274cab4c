package targets_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/hgrepo"
	"github.com/tyemirov/kiln/internal/kilnapi"
	"github.com/tyemirov/kiln/internal/targets"
)

const (
	testCatalogRepositoryPathConstant = "/tmp/repository"
	testCatalogUserNameConstant       = "developer@example.com"
	testCatalogTokenConstant          = "catalog-token"
	testCatalogTailRevisionConstant   = "aaaa1111"
	testFirstSchemeBaseURLConstant    = "https://acme.kilnhg.com/"
	testSecondSchemeBaseURLConstant   = "http://kiln.example.com/kiln/"
)

type scriptedRepositoryInspector struct {
	schemeEntries      []hgrepo.ConfigurationItem
	tailRevisions      []string
	tailRevisionsError error
	tailRequestCount   int
}

func (inspector *scriptedRepositoryInspector) ConfigurationSection(executionContext context.Context, repositoryPath string, sectionName string) ([]hgrepo.ConfigurationItem, error) {
	return inspector.schemeEntries, nil
}

func (inspector *scriptedRepositoryInspector) TailRevisions(executionContext context.Context, repositoryPath string) ([]string, error) {
	inspector.tailRequestCount++
	return inspector.tailRevisions, inspector.tailRevisionsError
}

type staticTokenResolver struct {
	token            string
	recordedBaseURLs []string
}

func (resolver *staticTokenResolver) Resolve(executionContext context.Context, baseURL string, userName string) (string, error) {
	resolver.recordedBaseURLs = append(resolver.recordedBaseURLs, baseURL)
	return resolver.token, nil
}

type scriptedRelatedClient struct {
	repositoriesByBaseURL map[string][]kilnapi.RelatedRepository
	recordedTokens        []string
}

func (client *scriptedRelatedClient) RelatedRepositories(executionContext context.Context, baseURL string, tailRevisions []string, token string) ([]kilnapi.RelatedRepository, error) {
	client.recordedTokens = append(client.recordedTokens, token)
	return client.repositoriesByBaseURL[baseURL], nil
}

func TestCatalogBuilderSkipsUnrelatedSchemes(testInstance *testing.T) {
	inspector := &scriptedRepositoryInspector{
		schemeEntries: []hgrepo.ConfigurationItem{
			{Name: "mirror", Value: "https://hg.example.com/{project}"},
		},
	}
	builder, creationError := targets.NewCatalogBuilder(inspector, &staticTokenResolver{}, &scriptedRelatedClient{}, zap.NewNop())
	require.NoError(testInstance, creationError)

	catalog, buildError := builder.Build(context.Background(), testCatalogRepositoryPathConstant, testCatalogUserNameConstant)
	require.NoError(testInstance, buildError)
	require.Empty(testInstance, catalog)
	require.Zero(testInstance, inspector.tailRequestCount)
}

func TestCatalogBuilderEmptyHistory(testInstance *testing.T) {
	inspector := &scriptedRepositoryInspector{
		schemeEntries: []hgrepo.ConfigurationItem{
			{Name: "kiln", Value: testFirstSchemeBaseURLConstant + "{project}"},
		},
	}
	builder, creationError := targets.NewCatalogBuilder(inspector, &staticTokenResolver{}, &scriptedRelatedClient{}, zap.NewNop())
	require.NoError(testInstance, creationError)

	_, buildError := builder.Build(context.Background(), testCatalogRepositoryPathConstant, testCatalogUserNameConstant)
	require.ErrorIs(testInstance, buildError, targets.ErrEmptyHistory)
}

func TestCatalogBuilderPreservesOrderAcrossSchemes(testInstance *testing.T) {
	inspector := &scriptedRepositoryInspector{
		schemeEntries: []hgrepo.ConfigurationItem{
			{Name: "kiln", Value: testFirstSchemeBaseURLConstant + "{project}"},
			{Name: "mirror", Value: "https://hg.example.com/{project}"},
			{Name: "onprem", Value: testSecondSchemeBaseURLConstant + "Project/{project}"},
		},
		tailRevisions: []string{testCatalogTailRevisionConstant},
	}
	tokenResolver := &staticTokenResolver{token: testCatalogTokenConstant}
	relatedClient := &scriptedRelatedClient{
		repositoriesByBaseURL: map[string][]kilnapi.RelatedRepository{
			testFirstSchemeBaseURLConstant: {
				{ProjectSlug: "proj", GroupSlug: "grp", RepositorySlug: "api", Aliases: []string{"backend"}},
				{ProjectSlug: "proj", GroupSlug: "grp", RepositorySlug: "web"},
			},
			testSecondSchemeBaseURLConstant: {
				{ProjectSlug: "tools", GroupSlug: "grp", RepositorySlug: "cli"},
			},
		},
	}

	builder, creationError := targets.NewCatalogBuilder(inspector, tokenResolver, relatedClient, zap.NewNop())
	require.NoError(testInstance, creationError)

	catalog, buildError := builder.Build(context.Background(), testCatalogRepositoryPathConstant, testCatalogUserNameConstant)
	require.NoError(testInstance, buildError)

	require.Equal(testInstance, []targets.Target{
		{BaseURL: testFirstSchemeBaseURLConstant, ProjectSlug: "proj", GroupSlug: "grp", RepositorySlug: "api", Aliases: []string{"backend"}},
		{BaseURL: testFirstSchemeBaseURLConstant, ProjectSlug: "proj", GroupSlug: "grp", RepositorySlug: "web"},
		{BaseURL: testSecondSchemeBaseURLConstant, ProjectSlug: "tools", GroupSlug: "grp", RepositorySlug: "cli"},
	}, catalog)

	// Tails are read once and reused for every relevant scheme.
	require.Equal(testInstance, 1, inspector.tailRequestCount)
	require.Equal(testInstance, []string{testFirstSchemeBaseURLConstant, testSecondSchemeBaseURLConstant}, tokenResolver.recordedBaseURLs)
	require.Equal(testInstance, []string{testCatalogTokenConstant, testCatalogTokenConstant}, relatedClient.recordedTokens)
}

package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/authtokens"
	"github.com/tyemirov/kiln/internal/hgrepo"
	"github.com/tyemirov/kiln/internal/kilnapi"
	"github.com/tyemirov/kiln/internal/resolver"
	"github.com/tyemirov/kiln/internal/targets"
)

const (
	integrationSchemePathPrefixConstant  = "/kiln"
	integrationLoginRoutePathConstant    = "/Api/1.0/Auth/Login"
	integrationRelatedRoutePathConstant  = "/Api/1.0/Repo/Related"
	integrationUserNameConstant          = "developer@example.com"
	integrationPasswordConstant          = "hunter2"
	integrationTokenConstant             = "integration-token"
	integrationTailRevisionConstant      = "aaaa1111bbbb2222"
	integrationRepositoryPathConstant    = "/tmp/integration-repository"
	integrationTokenFileNameConstant     = "hgkiln"
	integrationUserParameterNameConstant = "sUser"
	integrationTailsParameterName        = "revTails"
	integrationTokenParameterName        = "token"
)

type stubRepositoryInspector struct {
	schemeBaseURL string
}

func (inspector stubRepositoryInspector) ConfigurationSection(executionContext context.Context, repositoryPath string, sectionName string) ([]hgrepo.ConfigurationItem, error) {
	return []hgrepo.ConfigurationItem{{Name: "kiln", Value: inspector.schemeBaseURL + "{project}"}}, nil
}

func (inspector stubRepositoryInspector) TailRevisions(executionContext context.Context, repositoryPath string) ([]string, error) {
	return []string{integrationTailRevisionConstant}, nil
}

func (inspector stubRepositoryInspector) PathAliases(executionContext context.Context, repositoryPath string) ([]hgrepo.ConfigurationItem, error) {
	return nil, nil
}

// newStubKilnServer serves the login and related-repositories endpoints the
// way the hosted service does: login issues a token for known credentials,
// related lists repositories for the advertised tail revisions.
func newStubKilnServer(testInstance *testing.T) *httptest.Server {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	loginHandler := func(requestContext *gin.Context) {
		if requestContext.Query(integrationUserParameterNameConstant) != integrationUserNameConstant {
			requestContext.JSON(http.StatusOK, gin.H{
				"errors": []gin.H{{"codeError": "InvalidCredentials", "sError": "unknown user"}},
			})
			return
		}
		requestContext.JSON(http.StatusOK, integrationTokenConstant)
	}

	relatedHandler := func(requestContext *gin.Context) {
		require.Equal(testInstance, []string{integrationTailRevisionConstant}, requestContext.QueryArray(integrationTailsParameterName))
		require.Equal(testInstance, integrationTokenConstant, requestContext.Query(integrationTokenParameterName))
		requestContext.JSON(http.StatusOK, []gin.H{
			{"sProjectSlug": "acme-web", "sGroupSlug": "tools", "sSlug": "api", "rgAliases": []string{"backend"}},
			{"sProjectSlug": "acme-web", "sGroupSlug": "tools", "sSlug": "web", "rgAliases": []string{}},
		})
	}

	// The API lives relative to the scheme base URL, so a "/kiln/" install
	// serves it under that prefix; the root registrations cover tests that
	// talk to the server URL directly.
	router.GET(integrationLoginRoutePathConstant, loginHandler)
	router.GET(integrationRelatedRoutePathConstant, relatedHandler)
	router.GET(integrationSchemePathPrefixConstant+integrationLoginRoutePathConstant, loginHandler)
	router.GET(integrationSchemePathPrefixConstant+integrationRelatedRoutePathConstant, relatedHandler)

	server := httptest.NewServer(router)
	testInstance.Cleanup(server.Close)
	return server
}

func newIntegrationTokenChain(testInstance *testing.T, serverURL string) *authtokens.ProviderChain {
	tokenFilePath := filepath.Join(testInstance.TempDir(), integrationTokenFileNameConstant)
	fileStore := authtokens.NewFileStore(tokenFilePath)
	require.NoError(testInstance, fileStore.Append(
		authtokens.Domain(serverURL),
		authtokens.UserNameHash(integrationUserNameConstant),
		integrationTokenConstant,
	))

	fileProvider, providerError := authtokens.NewFileTokenProvider(fileStore)
	require.NoError(testInstance, providerError)

	chain, chainError := authtokens.NewProviderChain(fileProvider)
	require.NoError(testInstance, chainError)
	return chain
}

func TestLoginAgainstStubServer(testInstance *testing.T) {
	server := newStubKilnServer(testInstance)

	apiClient, clientError := kilnapi.NewClient(server.Client(), zap.NewNop())
	require.NoError(testInstance, clientError)

	token, loginError := apiClient.Login(context.Background(), server.URL, integrationUserNameConstant, integrationPasswordConstant)
	require.NoError(testInstance, loginError)
	require.Equal(testInstance, integrationTokenConstant, token)

	_, rejectedError := apiClient.Login(context.Background(), server.URL, "stranger@example.com", integrationPasswordConstant)
	var apiError kilnapi.APIError
	require.ErrorAs(testInstance, rejectedError, &apiError)
	require.Contains(testInstance, apiError.Error(), "InvalidCredentials")
}

func TestCatalogBuildAgainstStubServer(testInstance *testing.T) {
	server := newStubKilnServer(testInstance)
	schemeBaseURL := server.URL + "/kiln/"

	apiClient, clientError := kilnapi.NewClient(server.Client(), zap.NewNop())
	require.NoError(testInstance, clientError)

	catalogBuilder, builderError := targets.NewCatalogBuilder(
		stubRepositoryInspector{schemeBaseURL: schemeBaseURL},
		newIntegrationTokenChain(testInstance, schemeBaseURL),
		apiClient,
		zap.NewNop(),
	)
	require.NoError(testInstance, builderError)

	catalog, buildError := catalogBuilder.Build(context.Background(), integrationRepositoryPathConstant, integrationUserNameConstant)
	require.NoError(testInstance, buildError)
	require.Len(testInstance, catalog, 2)
	require.Equal(testInstance, schemeBaseURL+"acme-web/tools/api", catalog[0].URL())
}

func TestAliasResolutionAgainstStubServer(testInstance *testing.T) {
	server := newStubKilnServer(testInstance)
	schemeBaseURL := server.URL + "/kiln/"

	apiClient, clientError := kilnapi.NewClient(server.Client(), zap.NewNop())
	require.NoError(testInstance, clientError)

	inspector := stubRepositoryInspector{schemeBaseURL: schemeBaseURL}
	catalogBuilder, builderError := targets.NewCatalogBuilder(
		inspector,
		newIntegrationTokenChain(testInstance, schemeBaseURL),
		apiClient,
		zap.NewNop(),
	)
	require.NoError(testInstance, builderError)

	guesser, guesserError := resolver.NewGuesser(inspector, catalogBuilder, func(candidatePath string) bool { return false })
	require.NoError(testInstance, guesserError)

	testCases := []struct {
		name         string
		destination  string
		expectedKind resolver.ResolutionKind
		expectedURL  string
	}{
		{
			name:         "alias_resolves",
			destination:  "backend",
			expectedKind: resolver.ResolutionResolved,
			expectedURL:  schemeBaseURL + "acme-web/tools/api",
		},
		{
			name:         "slug_resolves",
			destination:  "web",
			expectedKind: resolver.ResolutionResolved,
			expectedURL:  schemeBaseURL + "acme-web/tools/web",
		},
		{
			name:         "project_join_ambiguous",
			destination:  "acme-web/tools",
			expectedKind: resolver.ResolutionAmbiguous,
		},
		{
			name:         "prefix_near_miss",
			destination:  "ac",
			expectedKind: resolver.ResolutionNearMiss,
		},
		{
			name:         "unknown_destination",
			destination:  "sandbox",
			expectedKind: resolver.ResolutionNoMatch,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			resolution, guessError := guesser.Guess(context.Background(), integrationRepositoryPathConstant, testCase.destination, integrationUserNameConstant)
			require.NoError(testInstance, guessError)
			require.Equal(testInstance, testCase.expectedKind, resolution.Kind)
			require.Equal(testInstance, testCase.expectedURL, resolution.URL)
		})
	}
}

package kilnapi_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/kilnapi"
)

const (
	testLoginUserNameConstant           = "developer@example.com"
	testLoginPasswordConstant           = "hunter2"
	testLoginTokenConstant              = "token-123"
	testTailRevisionFirstConstant       = "aaaa1111"
	testTailRevisionSecondConstant      = "bbbb2222"
	testLoginEndpointPathConstant       = "/Api/1.0/Auth/Login"
	testRelatedEndpointPathConstant     = "/Api/1.0/Repo/Related"
	testUserParameterNameConstant       = "sUser"
	testPasswordParameterNameConstant   = "sPassword"
	testTailsParameterNameConstant      = "revTails"
	testTokenParameterNameConstant      = "token"
	testRelatedResponseBodyConstant     = `[{"sProjectSlug":"proj","sGroupSlug":"grp","sSlug":"api","rgAliases":["backend"]}]`
	testErrorEnvelopeBodyConstant       = `{"errors":[{"codeError":"InvalidToken","sError":"the token has expired"}]}`
	testExpectedErrorMessageConstant    = "InvalidToken: the token has expired"
	testMalformedResponseBodyConstant   = "<html>not json</html>"
	testMissingClientCaseNameConstant   = "missing_http_client"
	testMissingLoggerCaseNameConstant   = "missing_logger"
	testValidClientCaseNameConstant     = "valid_dependencies"
)

func TestNewClientValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		httpClient    kilnapi.HTTPClient
		logger        *zap.Logger
		expectedError error
	}{
		{
			name:          testMissingClientCaseNameConstant,
			httpClient:    nil,
			logger:        zap.NewNop(),
			expectedError: kilnapi.ErrHTTPClientNotConfigured,
		},
		{
			name:          testMissingLoggerCaseNameConstant,
			httpClient:    http.DefaultClient,
			logger:        nil,
			expectedError: kilnapi.ErrLoggerNotConfigured,
		},
		{
			name:       testValidClientCaseNameConstant,
			httpClient: http.DefaultClient,
			logger:     zap.NewNop(),
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			client, creationError := kilnapi.NewClient(testCase.httpClient, testCase.logger)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, creationError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, creationError)
			require.NotNil(testInstance, client)
		})
	}
}

func TestClientLogin(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, testLoginEndpointPathConstant, request.URL.Path)
		require.Equal(testInstance, testLoginUserNameConstant, request.URL.Query().Get(testUserParameterNameConstant))
		require.Equal(testInstance, testLoginPasswordConstant, request.URL.Query().Get(testPasswordParameterNameConstant))
		_, _ = responseWriter.Write([]byte(`"` + testLoginTokenConstant + `"`))
	}))
	defer server.Close()

	client, creationError := kilnapi.NewClient(server.Client(), zap.NewNop())
	require.NoError(testInstance, creationError)

	token, loginError := client.Login(context.Background(), server.URL, testLoginUserNameConstant, testLoginPasswordConstant)
	require.NoError(testInstance, loginError)
	require.Equal(testInstance, testLoginTokenConstant, token)
}

func TestClientRelatedRepositories(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		require.Equal(testInstance, testRelatedEndpointPathConstant, request.URL.Path)
		require.Equal(testInstance, []string{testTailRevisionFirstConstant, testTailRevisionSecondConstant}, request.URL.Query()[testTailsParameterNameConstant])
		require.Equal(testInstance, testLoginTokenConstant, request.URL.Query().Get(testTokenParameterNameConstant))
		_, _ = responseWriter.Write([]byte(testRelatedResponseBodyConstant))
	}))
	defer server.Close()

	client, creationError := kilnapi.NewClient(server.Client(), zap.NewNop())
	require.NoError(testInstance, creationError)

	repositories, relatedError := client.RelatedRepositories(
		context.Background(),
		server.URL,
		[]string{testTailRevisionFirstConstant, testTailRevisionSecondConstant},
		testLoginTokenConstant,
	)
	require.NoError(testInstance, relatedError)
	require.Equal(testInstance, []kilnapi.RelatedRepository{
		{ProjectSlug: "proj", GroupSlug: "grp", RepositorySlug: "api", Aliases: []string{"backend"}},
	}, repositories)
}

func TestClientSurfacesAPIErrorEnvelope(testInstance *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		_, _ = responseWriter.Write([]byte(testErrorEnvelopeBodyConstant))
	}))
	defer server.Close()

	client, creationError := kilnapi.NewClient(server.Client(), zap.NewNop())
	require.NoError(testInstance, creationError)

	_, relatedError := client.RelatedRepositories(context.Background(), server.URL, []string{testTailRevisionFirstConstant}, testLoginTokenConstant)

	var apiError kilnapi.APIError
	require.ErrorAs(testInstance, relatedError, &apiError)
	require.Equal(testInstance, testExpectedErrorMessageConstant, apiError.Error())
}

func TestClientTreatsProtocolFailuresAsUnsupportedServer(testInstance *testing.T) {
	testCases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "non_success_status",
			handler: func(responseWriter http.ResponseWriter, request *http.Request) {
				responseWriter.WriteHeader(http.StatusNotFound)
			},
		},
		{
			name: "malformed_body",
			handler: func(responseWriter http.ResponseWriter, request *http.Request) {
				_, _ = responseWriter.Write([]byte(testMalformedResponseBodyConstant))
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			server := httptest.NewServer(testCase.handler)
			defer server.Close()

			client, creationError := kilnapi.NewClient(server.Client(), zap.NewNop())
			require.NoError(testInstance, creationError)

			_, relatedError := client.RelatedRepositories(context.Background(), server.URL, []string{testTailRevisionFirstConstant}, testLoginTokenConstant)
			require.ErrorIs(testInstance, relatedError, kilnapi.ErrServerVersionUnsupported)
		})
	}
}

func TestClientRequiresBaseURL(testInstance *testing.T) {
	client, creationError := kilnapi.NewClient(http.DefaultClient, zap.NewNop())
	require.NoError(testInstance, creationError)

	_, loginError := client.Login(context.Background(), " ", testLoginUserNameConstant, testLoginPasswordConstant)
	require.ErrorIs(testInstance, loginError, kilnapi.ErrBaseURLMissing)
}

package authtokens_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/kiln/internal/authtokens"
)

const (
	testProviderBaseURLConstant    = "https://acme.kilnhg.com/Code/"
	testProviderUserNameConstant   = "developer@example.com"
	testProviderTokenConstant      = "provider-token"
	testLoginUserResponseConstant  = "developer@example.com\n"
	testLoginPasswordConstant      = "hunter2"
	testLoginIssuedTokenConstant   = "login-token"
	testRealmPromptFragment        = "realm: " + testProviderBaseURLConstant
	testUserNamePromptFragment     = "username: "
)

type staticTokenProvider struct {
	token            string
	tokenError       error
	recordedRequests []authtokens.TokenRequest
}

func (provider *staticTokenProvider) Token(executionContext context.Context, request authtokens.TokenRequest) (string, error) {
	provider.recordedRequests = append(provider.recordedRequests, request)
	return provider.token, provider.tokenError
}

type scriptedLoginService struct {
	issuedToken       string
	loginError        error
	recordedUserNames []string
	recordedPasswords []string
}

func (service *scriptedLoginService) Login(executionContext context.Context, baseURL string, userName string, password string) (string, error) {
	service.recordedUserNames = append(service.recordedUserNames, userName)
	service.recordedPasswords = append(service.recordedPasswords, password)
	return service.issuedToken, service.loginError
}

type staticPasswordReader struct {
	password string
}

func (reader staticPasswordReader) ReadPassword() (string, error) {
	return reader.password, nil
}

func TestNewProviderChainRequiresProviders(testInstance *testing.T) {
	chain, creationError := authtokens.NewProviderChain()
	require.ErrorIs(testInstance, creationError, authtokens.ErrProviderChainEmpty)
	require.Nil(testInstance, chain)
}

func TestProviderChainFirstNonEmptyTokenWins(testInstance *testing.T) {
	emptyProvider := &staticTokenProvider{}
	winningProvider := &staticTokenProvider{token: testProviderTokenConstant}
	unreachedProvider := &staticTokenProvider{token: "never-used"}

	chain, creationError := authtokens.NewProviderChain(emptyProvider, winningProvider, unreachedProvider)
	require.NoError(testInstance, creationError)

	token, resolveError := chain.Resolve(context.Background(), testProviderBaseURLConstant, testProviderUserNameConstant)
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, testProviderTokenConstant, token)
	require.Empty(testInstance, unreachedProvider.recordedRequests)

	require.Len(testInstance, emptyProvider.recordedRequests, 1)
	request := emptyProvider.recordedRequests[0]
	require.Equal(testInstance, testProviderBaseURLConstant, request.BaseURL)
	require.Equal(testInstance, authtokens.Domain(testProviderBaseURLConstant), request.Domain)
	require.Equal(testInstance, authtokens.UserNameHash(testProviderUserNameConstant), request.UserNameHash)
}

func TestProviderChainFailsWhenEveryProviderIsEmpty(testInstance *testing.T) {
	chain, creationError := authtokens.NewProviderChain(&staticTokenProvider{}, &staticTokenProvider{})
	require.NoError(testInstance, creationError)

	_, resolveError := chain.Resolve(context.Background(), testProviderBaseURLConstant, testProviderUserNameConstant)
	require.ErrorIs(testInstance, resolveError, authtokens.ErrAuthenticationFailed)
}

func TestCookieTokenProviderPromotesHitIntoTokenFile(testInstance *testing.T) {
	cookieDirectory := testInstance.TempDir()
	domain := authtokens.Domain(testProviderBaseURLConstant)
	userNameHash := authtokens.UserNameHash(testProviderUserNameConstant)
	jarLine := domain + "\tFALSE\t/\tTRUE\t0\tfbToken\t" + testProviderTokenConstant + "\n"
	require.NoError(testInstance, os.WriteFile(filepath.Join(cookieDirectory, userNameHash), []byte(jarLine), 0o600))

	fileStore := authtokens.NewFileStore(filepath.Join(testInstance.TempDir(), "hgkiln"))
	provider, creationError := authtokens.NewCookieTokenProvider(authtokens.NewCookieStore(cookieDirectory), fileStore)
	require.NoError(testInstance, creationError)

	token, tokenError := provider.Token(context.Background(), authtokens.TokenRequest{
		BaseURL:      testProviderBaseURLConstant,
		Domain:       domain,
		UserNameHash: userNameHash,
	})
	require.NoError(testInstance, tokenError)
	require.Equal(testInstance, testProviderTokenConstant, token)

	promotedToken, lookupError := fileStore.Lookup(domain, userNameHash)
	require.NoError(testInstance, lookupError)
	require.Equal(testInstance, testProviderTokenConstant, promotedToken)
}

func TestInteractiveLoginProviderPersistsToken(testInstance *testing.T) {
	loginService := &scriptedLoginService{issuedToken: testLoginIssuedTokenConstant}
	promptOutput := &strings.Builder{}
	prompter := authtokens.NewIOUserNamePrompter(strings.NewReader(testLoginUserResponseConstant), promptOutput)
	fileStore := authtokens.NewFileStore(filepath.Join(testInstance.TempDir(), "hgkiln"))

	provider, creationError := authtokens.NewInteractiveLoginProvider(loginService, prompter, staticPasswordReader{password: testLoginPasswordConstant}, fileStore)
	require.NoError(testInstance, creationError)

	domain := authtokens.Domain(testProviderBaseURLConstant)
	userNameHash := authtokens.UserNameHash(testProviderUserNameConstant)

	token, tokenError := provider.Token(context.Background(), authtokens.TokenRequest{
		BaseURL:      testProviderBaseURLConstant,
		Domain:       domain,
		UserNameHash: userNameHash,
	})
	require.NoError(testInstance, tokenError)
	require.Equal(testInstance, testLoginIssuedTokenConstant, token)

	require.Contains(testInstance, promptOutput.String(), testRealmPromptFragment)
	require.Contains(testInstance, promptOutput.String(), testUserNamePromptFragment)
	require.Equal(testInstance, []string{testProviderUserNameConstant}, loginService.recordedUserNames)
	require.Equal(testInstance, []string{testLoginPasswordConstant}, loginService.recordedPasswords)

	persistedToken, lookupError := fileStore.Lookup(domain, userNameHash)
	require.NoError(testInstance, lookupError)
	require.Equal(testInstance, testLoginIssuedTokenConstant, persistedToken)
}

func TestInteractiveLoginProviderRejectsEmptyToken(testInstance *testing.T) {
	loginService := &scriptedLoginService{issuedToken: ""}
	prompter := authtokens.NewIOUserNamePrompter(strings.NewReader(testLoginUserResponseConstant), nil)
	fileStore := authtokens.NewFileStore(filepath.Join(testInstance.TempDir(), "hgkiln"))

	provider, creationError := authtokens.NewInteractiveLoginProvider(loginService, prompter, staticPasswordReader{password: testLoginPasswordConstant}, fileStore)
	require.NoError(testInstance, creationError)

	_, tokenError := provider.Token(context.Background(), authtokens.TokenRequest{BaseURL: testProviderBaseURLConstant})
	require.ErrorIs(testInstance, tokenError, authtokens.ErrAuthenticationFailed)
}

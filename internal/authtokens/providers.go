package authtokens

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

const (
	authenticationFailedMessageConstant     = "authorization failed"
	providerChainEmptyMessageConstant       = "token provider chain is empty"
	realmDisplayTemplateConstant            = "realm: %s\n"
	userNamePromptConstant                  = "username: "
	passwordPromptConstant                  = "password: "
	promptNewlineConstant                   = "\n"
	loginServiceMissingMessageConstant      = "login service not configured"
	userNamePrompterMissingMessageConstant  = "username prompter not configured"
	passwordReaderMissingMessageConstant    = "password reader not configured"
	tokenFileStoreMissingMessageConstant    = "token file store not configured"
	cookieStoreMissingMessageConstant       = "cookie store not configured"
)

var (
	// ErrAuthenticationFailed indicates no provider produced a token.
	ErrAuthenticationFailed = errors.New(authenticationFailedMessageConstant)
	// ErrProviderChainEmpty indicates a chain was constructed without providers.
	ErrProviderChainEmpty = errors.New(providerChainEmptyMessageConstant)
	// ErrLoginServiceNotConfigured indicates the login service dependency was missing.
	ErrLoginServiceNotConfigured = errors.New(loginServiceMissingMessageConstant)
	// ErrUserNamePrompterNotConfigured indicates the username prompter dependency was missing.
	ErrUserNamePrompterNotConfigured = errors.New(userNamePrompterMissingMessageConstant)
	// ErrPasswordReaderNotConfigured indicates the password reader dependency was missing.
	ErrPasswordReaderNotConfigured = errors.New(passwordReaderMissingMessageConstant)
	// ErrTokenFileStoreNotConfigured indicates the token file store dependency was missing.
	ErrTokenFileStoreNotConfigured = errors.New(tokenFileStoreMissingMessageConstant)
	// ErrCookieStoreNotConfigured indicates the cookie store dependency was missing.
	ErrCookieStoreNotConfigured = errors.New(cookieStoreMissingMessageConstant)
)

// TokenRequest scopes a token lookup to one server and login name.
type TokenRequest struct {
	BaseURL      string
	Domain       string
	UserNameHash string
}

// TokenProvider attempts to supply an authentication token for a request.
type TokenProvider interface {
	Token(executionContext context.Context, request TokenRequest) (string, error)
}

// ProviderChain walks an ordered list of providers; the first non-empty token wins.
type ProviderChain struct {
	providers []TokenProvider
}

// NewProviderChain constructs a ProviderChain from the provided providers.
func NewProviderChain(providers ...TokenProvider) (*ProviderChain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderChainEmpty
	}
	return &ProviderChain{providers: providers}, nil
}

// Resolve walks the chain for the base URL and login name and fails when every provider comes up empty.
func (chain *ProviderChain) Resolve(executionContext context.Context, baseURL string, userName string) (string, error) {
	request := TokenRequest{
		BaseURL:      baseURL,
		Domain:       Domain(baseURL),
		UserNameHash: UserNameHash(userName),
	}

	for _, provider := range chain.providers {
		token, providerError := provider.Token(executionContext, request)
		if providerError != nil {
			return "", providerError
		}
		if len(token) > 0 {
			return token, nil
		}
	}
	return "", ErrAuthenticationFailed
}

// FileTokenProvider serves tokens recorded in the token file.
type FileTokenProvider struct {
	store *FileStore
}

// NewFileTokenProvider constructs a FileTokenProvider over the provided store.
func NewFileTokenProvider(store *FileStore) (*FileTokenProvider, error) {
	if store == nil {
		return nil, ErrTokenFileStoreNotConfigured
	}
	return &FileTokenProvider{store: store}, nil
}

// Token looks the request up in the token file.
func (provider *FileTokenProvider) Token(_ context.Context, request TokenRequest) (string, error) {
	return provider.store.Lookup(request.Domain, request.UserNameHash)
}

// CookieTokenProvider serves tokens from the cookie store and promotes hits into the token file.
type CookieTokenProvider struct {
	cookies   *CookieStore
	fileStore *FileStore
}

// NewCookieTokenProvider constructs a CookieTokenProvider over the provided stores.
func NewCookieTokenProvider(cookies *CookieStore, fileStore *FileStore) (*CookieTokenProvider, error) {
	if cookies == nil {
		return nil, ErrCookieStoreNotConfigured
	}
	if fileStore == nil {
		return nil, ErrTokenFileStoreNotConfigured
	}
	return &CookieTokenProvider{cookies: cookies, fileStore: fileStore}, nil
}

// Token looks the request up in the cookie store and records any hit in the token file.
func (provider *CookieTokenProvider) Token(_ context.Context, request TokenRequest) (string, error) {
	token, lookupError := provider.cookies.Lookup(request.Domain, request.UserNameHash)
	if lookupError != nil {
		return "", lookupError
	}
	if len(token) == 0 {
		return "", nil
	}
	if appendError := provider.fileStore.Append(request.Domain, request.UserNameHash, token); appendError != nil {
		return "", appendError
	}
	return token, nil
}

// LoginService exchanges credentials for an authentication token.
type LoginService interface {
	Login(executionContext context.Context, baseURL string, userName string, password string) (string, error)
}

// UserNamePrompter asks the user for a login name.
type UserNamePrompter interface {
	PromptUserName(realm string) (string, error)
}

// PasswordReader obtains a password without echoing it.
type PasswordReader interface {
	ReadPassword() (string, error)
}

// InteractiveLoginProvider prompts for credentials and persists the obtained token.
type InteractiveLoginProvider struct {
	loginService   LoginService
	prompter       UserNamePrompter
	passwordReader PasswordReader
	fileStore      *FileStore
}

// NewInteractiveLoginProvider constructs an InteractiveLoginProvider with the required collaborators.
func NewInteractiveLoginProvider(loginService LoginService, prompter UserNamePrompter, passwordReader PasswordReader, fileStore *FileStore) (*InteractiveLoginProvider, error) {
	if loginService == nil {
		return nil, ErrLoginServiceNotConfigured
	}
	if prompter == nil {
		return nil, ErrUserNamePrompterNotConfigured
	}
	if passwordReader == nil {
		return nil, ErrPasswordReaderNotConfigured
	}
	if fileStore == nil {
		return nil, ErrTokenFileStoreNotConfigured
	}
	return &InteractiveLoginProvider{
		loginService:   loginService,
		prompter:       prompter,
		passwordReader: passwordReader,
		fileStore:      fileStore,
	}, nil
}

// Token prompts for credentials, logs in, and records the obtained token.
func (provider *InteractiveLoginProvider) Token(executionContext context.Context, request TokenRequest) (string, error) {
	userName, promptError := provider.prompter.PromptUserName(request.BaseURL)
	if promptError != nil {
		return "", promptError
	}

	password, passwordError := provider.passwordReader.ReadPassword()
	if passwordError != nil {
		return "", passwordError
	}

	token, loginError := provider.loginService.Login(executionContext, request.BaseURL, userName, password)
	if loginError != nil {
		return "", loginError
	}
	if len(token) == 0 {
		return "", ErrAuthenticationFailed
	}

	if appendError := provider.fileStore.Append(request.Domain, request.UserNameHash, token); appendError != nil {
		return "", appendError
	}
	return token, nil
}

// IOUserNamePrompter reads the login name from an io.Reader after announcing the realm.
type IOUserNamePrompter struct {
	reader *bufio.Reader
	writer io.Writer
}

// NewIOUserNamePrompter constructs a prompter from the provided reader and writer.
func NewIOUserNamePrompter(input io.Reader, output io.Writer) *IOUserNamePrompter {
	return &IOUserNamePrompter{reader: bufio.NewReader(input), writer: output}
}

// PromptUserName announces the realm, writes the prompt, and reads one line.
func (prompter *IOUserNamePrompter) PromptUserName(realm string) (string, error) {
	if prompter.writer != nil {
		if _, writeError := fmt.Fprintf(prompter.writer, realmDisplayTemplateConstant, realm); writeError != nil {
			return "", writeError
		}
		if _, writeError := io.WriteString(prompter.writer, userNamePromptConstant); writeError != nil {
			return "", writeError
		}
	}

	response, readError := prompter.reader.ReadString('\n')
	if readError != nil && readError != io.EOF {
		return "", readError
	}
	return strings.TrimSpace(response), nil
}

// TerminalPasswordReader reads a password from the controlling terminal without echo.
type TerminalPasswordReader struct {
	writer io.Writer
}

// NewTerminalPasswordReader constructs a TerminalPasswordReader writing prompts to the provided writer.
func NewTerminalPasswordReader(output io.Writer) *TerminalPasswordReader {
	return &TerminalPasswordReader{writer: output}
}

// ReadPassword prompts on the writer and reads the password with echo disabled.
func (reader *TerminalPasswordReader) ReadPassword() (string, error) {
	if reader.writer != nil {
		if _, writeError := io.WriteString(reader.writer, passwordPromptConstant); writeError != nil {
			return "", writeError
		}
	}

	passwordBytes, readError := term.ReadPassword(int(os.Stdin.Fd()))
	if reader.writer != nil {
		_, _ = io.WriteString(reader.writer, promptNewlineConstant)
	}
	if readError != nil {
		return "", readError
	}
	return string(passwordBytes), nil
}

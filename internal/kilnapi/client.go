package kilnapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	loginEndpointPathConstant             = "Api/1.0/Auth/Login"
	relatedEndpointPathConstant           = "Api/1.0/Repo/Related"
	loginUserParameterNameConstant        = "sUser"
	loginPasswordParameterNameConstant    = "sPassword"
	relatedTailsParameterNameConstant     = "revTails"
	relatedTokenParameterNameConstant     = "token"
	projectSlugFieldNameConstant          = "sProjectSlug"
	groupSlugFieldNameConstant            = "sGroupSlug"
	repositorySlugFieldNameConstant       = "sSlug"
	aliasesFieldNameConstant              = "rgAliases"
	errorsFieldNameConstant               = "errors"
	errorCodeFieldNameConstant            = "codeError"
	errorMessageFieldNameConstant         = "sError"
	apiErrorEntryTemplateConstant         = "%s: %s"
	httpClientMissingMessageConstant      = "kiln api http client not configured"
	loggerMissingMessageConstant          = "kiln api logger not configured"
	baseURLMissingMessageConstant         = "kiln base url must be provided"
	serverVersionRequiredMessageConstant  = "path guessing requires Kiln 2.0; if the server runs Kiln 2.0 and problems persist, contact the server administrator"
	requestCreationErrorTemplateConstant  = "unable to create request for %s: %w"
	requestQueryStringSeparatorConstant   = "?"
	requestEndpointLogFieldNameConstant   = "endpoint"
	requestStatusCodeLogFieldNameConstant = "status_code"
	requestFailureLogMessageConstant      = "kiln api request failed"
	requestSuccessLogMessageConstant      = "kiln api request completed"
)

var (
	// ErrHTTPClientNotConfigured indicates the HTTP client dependency was missing.
	ErrHTTPClientNotConfigured = errors.New(httpClientMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(loggerMissingMessageConstant)
	// ErrBaseURLMissing indicates an empty base URL was supplied.
	ErrBaseURLMissing = errors.New(baseURLMissingMessageConstant)
	// ErrServerVersionUnsupported indicates the server did not speak the expected API contract.
	ErrServerVersionUnsupported = errors.New(serverVersionRequiredMessageConstant)
)

// HTTPClient abstracts the Do method of http.Client for easier testing.
type HTTPClient interface {
	Do(request *http.Request) (*http.Response, error)
}

// APIError describes an explicit error payload returned by the Kiln API.
type APIError struct {
	Errors []string
}

// Error joins the per-error code and message pairs.
func (apiError APIError) Error() string {
	return strings.Join(apiError.Errors, "\n")
}

// RelatedRepository describes one related repository returned by the API.
type RelatedRepository struct {
	ProjectSlug    string
	GroupSlug      string
	RepositorySlug string
	Aliases        []string
}

// Client invokes the Kiln JSON API.
type Client struct {
	httpClient HTTPClient
	logger     *zap.Logger
}

// NewClient constructs a Client for the provided HTTP client and logger.
func NewClient(httpClient HTTPClient, logger *zap.Logger) (*Client, error) {
	if httpClient == nil {
		return nil, ErrHTTPClientNotConfigured
	}
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Client{httpClient: httpClient, logger: logger}, nil
}

// Login exchanges credentials for an authentication token.
func (client *Client) Login(executionContext context.Context, baseURL string, userName string, password string) (string, error) {
	parameters := url.Values{}
	parameters.Set(loginUserParameterNameConstant, userName)
	parameters.Set(loginPasswordParameterNameConstant, password)

	var token string
	if callError := client.call(executionContext, baseURL, loginEndpointPathConstant, parameters, &token); callError != nil {
		return "", callError
	}
	return token, nil
}

// RelatedRepositories lists the repositories related to the provided tail revisions.
func (client *Client) RelatedRepositories(executionContext context.Context, baseURL string, tailRevisions []string, token string) ([]RelatedRepository, error) {
	parameters := url.Values{}
	for _, tailRevision := range tailRevisions {
		parameters.Add(relatedTailsParameterNameConstant, tailRevision)
	}
	parameters.Set(relatedTokenParameterNameConstant, token)

	var payload []relatedRepositoryPayload
	if callError := client.call(executionContext, baseURL, relatedEndpointPathConstant, parameters, &payload); callError != nil {
		return nil, callError
	}

	repositories := make([]RelatedRepository, 0, len(payload))
	for _, entry := range payload {
		repositories = append(repositories, RelatedRepository{
			ProjectSlug:    entry.ProjectSlug,
			GroupSlug:      entry.GroupSlug,
			RepositorySlug: entry.RepositorySlug,
			Aliases:        entry.Aliases,
		})
	}
	return repositories, nil
}

type relatedRepositoryPayload struct {
	ProjectSlug    string   `json:"sProjectSlug"`
	GroupSlug      string   `json:"sGroupSlug"`
	RepositorySlug string   `json:"sSlug"`
	Aliases        []string `json:"rgAliases"`
}

type apiErrorEntryPayload struct {
	Code    string `json:"codeError"`
	Message string `json:"sError"`
}

type apiErrorEnvelopePayload struct {
	Errors []apiErrorEntryPayload `json:"errors"`
}

func (client *Client) call(executionContext context.Context, baseURL string, endpointPath string, parameters url.Values, target any) error {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if len(trimmedBaseURL) == 0 {
		return ErrBaseURLMissing
	}

	endpointURL := joinEndpoint(trimmedBaseURL, endpointPath) + requestQueryStringSeparatorConstant + parameters.Encode()

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, endpointURL, nil)
	if requestError != nil {
		return fmt.Errorf(requestCreationErrorTemplateConstant, endpointPath, requestError)
	}

	response, responseError := client.httpClient.Do(request)
	if responseError != nil {
		client.logger.Debug(requestFailureLogMessageConstant,
			zap.String(requestEndpointLogFieldNameConstant, endpointPath),
			zap.Error(responseError),
		)
		return ErrServerVersionUnsupported
	}
	defer func() {
		_ = response.Body.Close()
	}()

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return ErrServerVersionUnsupported
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		client.logger.Debug(requestFailureLogMessageConstant,
			zap.String(requestEndpointLogFieldNameConstant, endpointPath),
			zap.Int(requestStatusCodeLogFieldNameConstant, response.StatusCode),
		)
		return ErrServerVersionUnsupported
	}

	var errorEnvelope apiErrorEnvelopePayload
	if envelopeError := json.Unmarshal(responseBody, &errorEnvelope); envelopeError == nil && len(errorEnvelope.Errors) > 0 {
		formattedErrors := make([]string, 0, len(errorEnvelope.Errors))
		for _, entry := range errorEnvelope.Errors {
			formattedErrors = append(formattedErrors, fmt.Sprintf(apiErrorEntryTemplateConstant, entry.Code, entry.Message))
		}
		return APIError{Errors: formattedErrors}
	}

	if decodeError := json.Unmarshal(responseBody, target); decodeError != nil {
		return ErrServerVersionUnsupported
	}

	client.logger.Debug(requestSuccessLogMessageConstant,
		zap.String(requestEndpointLogFieldNameConstant, endpointPath),
		zap.Int(requestStatusCodeLogFieldNameConstant, response.StatusCode),
	)
	return nil
}

func joinEndpoint(baseURL string, endpointPath string) string {
	if strings.HasSuffix(baseURL, "/") {
		return baseURL + endpointPath
	}
	return baseURL + "/" + endpointPath
}

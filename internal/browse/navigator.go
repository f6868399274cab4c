package browse

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/tyemirov/kiln/internal/execshell"
)

const (
	urlComponentSeparatorConstant      = "/"
	queryStringSeparatorConstant       = "?"
	reservedSentinelConstant           = "$"
	historyPageSegmentConstant         = "History"
	filePageSegmentConstant            = "File"
	fileHistoryPageSegmentConstant     = "FileHistory"
	outgoingPageSegmentConstant        = "Outgoing"
	settingsPageSegmentConstant        = "Settings"
	annotateQuerySuffixConstant        = "?view=annotate"
	fileHistoryQuerySuffixConstant     = "?rev=tip"
	launcherMissingMessageConstant     = "browser launcher not configured"
	reservedComponentPatternConstant   = `^(((com[1-9]|lpt[1-9]|con|prn|aux)(\..*)?)|web\.config|clock\$|app_data|app_code|app_browsers|app_globalresources|app_localresources|app_themes|app_webreferences|bin)$`
)

// Path components colliding with server-side reserved routes and platform device names.
var reservedComponentPattern = regexp.MustCompile(`(?i)` + reservedComponentPatternConstant)

var (
	// ErrBrowserLauncherNotConfigured indicates the browser launcher dependency was missing.
	ErrBrowserLauncherNotConfigured = errors.New(launcherMissingMessageConstant)
)

// JoinURL joins URL components with exactly one slash between each pair.
func JoinURL(components ...string) string {
	if len(components) == 0 {
		return ""
	}

	joinedURL := components[0]
	for _, component := range components[1:] {
		if !strings.HasSuffix(joinedURL, urlComponentSeparatorConstant) {
			joinedURL += urlComponentSeparatorConstant
		}
		joinedURL += strings.TrimPrefix(component, urlComponentSeparatorConstant)
	}
	return joinedURL
}

// EscapeReserved prefixes the sentinel to reserved path components so they do
// not collide with server-side routes. Components already carrying the
// sentinel are left untouched.
func EscapeReserved(pageURL string) string {
	pathPortion := pageURL
	queryPortion := ""
	if queryIndex := strings.Index(pageURL, queryStringSeparatorConstant); queryIndex >= 0 {
		pathPortion = pageURL[:queryIndex]
		queryPortion = pageURL[queryIndex:]
	}

	components := strings.Split(pathPortion, urlComponentSeparatorConstant)
	escapedComponents := make([]string, 0, len(components))
	for _, component := range components {
		if reservedComponentPattern.MatchString(component) && !strings.HasPrefix(component, reservedSentinelConstant) {
			escapedComponents = append(escapedComponents, reservedSentinelConstant+component)
			continue
		}
		escapedComponents = append(escapedComponents, component)
	}
	return strings.Join(escapedComponents, urlComponentSeparatorConstant) + queryPortion
}

// BrowserLauncher opens a URL in the system's default viewer.
type BrowserLauncher interface {
	ExecuteBrowser(executionContext context.Context, pageURL string) (execshell.ExecutionResult, error)
}

// Navigator constructs hosted page URLs and opens them in the default browser.
type Navigator struct {
	launcher BrowserLauncher
}

// NewNavigator constructs a Navigator over the provided launcher.
func NewNavigator(launcher BrowserLauncher) (*Navigator, error) {
	if launcher == nil {
		return nil, ErrBrowserLauncherNotConfigured
	}
	return &Navigator{launcher: launcher}, nil
}

// OpenRepository opens the repository's root hosted page.
func (navigator *Navigator) OpenRepository(executionContext context.Context, baseURL string) error {
	return navigator.open(executionContext, baseURL)
}

// OpenHistory opens the hosted view of one changeset.
func (navigator *Navigator) OpenHistory(executionContext context.Context, baseURL string, revisionNode string) error {
	return navigator.open(executionContext, JoinURL(baseURL, historyPageSegmentConstant, revisionNode))
}

// OpenFile opens the hosted contents view of one file.
func (navigator *Navigator) OpenFile(executionContext context.Context, baseURL string, filePath string) error {
	return navigator.open(executionContext, JoinURL(baseURL, filePageSegmentConstant, filePath))
}

// OpenAnnotate opens the hosted annotation view of one file.
func (navigator *Navigator) OpenAnnotate(executionContext context.Context, baseURL string, filePath string) error {
	return navigator.open(executionContext, JoinURL(baseURL, filePageSegmentConstant, filePath)+annotateQuerySuffixConstant)
}

// OpenFileHistory opens the hosted history view of one file.
func (navigator *Navigator) OpenFileHistory(executionContext context.Context, baseURL string, filePath string) error {
	return navigator.open(executionContext, JoinURL(baseURL, fileHistoryPageSegmentConstant, filePath)+fileHistoryQuerySuffixConstant)
}

// OpenOutgoing opens the repository's outgoing changes page.
func (navigator *Navigator) OpenOutgoing(executionContext context.Context, baseURL string) error {
	return navigator.open(executionContext, JoinURL(baseURL, outgoingPageSegmentConstant))
}

// OpenSettings opens the repository's settings page.
func (navigator *Navigator) OpenSettings(executionContext context.Context, baseURL string) error {
	return navigator.open(executionContext, JoinURL(baseURL, settingsPageSegmentConstant))
}

func (navigator *Navigator) open(executionContext context.Context, pageURL string) error {
	_, launchError := navigator.launcher.ExecuteBrowser(executionContext, EscapeReserved(pageURL))
	return launchError
}

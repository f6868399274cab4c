package upgrade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/tyemirov/kiln/internal/browse"
)

const (
	// ClientVersion is the version of the client tools this build ships.
	ClientVersion = "2.3.29"

	capabilityPrefixConstant               = "kiln-"
	capabilityPatternConstant              = `^kiln-([0-9.]+).*`
	defaultIgnoreVersionConstant           = "0.0.0"
	semverPrefixConstant                   = "v"
	versionComponentSeparatorConstant      = "."
	maximumVersionComponentCountConstant   = 3
	toolsPageSegmentConstant               = "Tools"
	repositoryPathMarkerConstant           = "/repo"
	windowsOperatingSystemNameConstant     = "windows"
	windowsConfigFileNameConstant          = "Mercurial.ini"
	unixConfigFileNameConstant             = "~/.hgrc"
	upgradePromptTemplateConstant          = "You are currently running Kiln client tools version %s. Version %s is available.\nUpgrade now? (y/n) "
	ignoreVersionHintTemplateConstant      = "If you'd like Kiln to stop prompting you about version %s and below, add ignoreversion=%s to the [kiln] section of your %s\n"
	upgradeNoticeTemplateConstant          = "You are currently running Kiln client tools version %s. Version %s is available.\nVisit %s to download the new client tools.\n"
	trailingSpacerConstant                 = "\n"
	prompterMissingMessageConstant         = "upgrade prompter not configured"
	launcherMissingMessageConstant         = "upgrade browser launcher not configured"
	outputWriterMissingMessageConstant     = "upgrade output writer not configured"
)

var capabilityPattern = regexp.MustCompile(capabilityPatternConstant)

var (
	// ErrPrompterNotConfigured indicates the confirmation prompter dependency was missing.
	ErrPrompterNotConfigured = errors.New(prompterMissingMessageConstant)
	// ErrLauncherNotConfigured indicates the browser launcher dependency was missing.
	ErrLauncherNotConfigured = errors.New(launcherMissingMessageConstant)
	// ErrOutputWriterNotConfigured indicates the output writer dependency was missing.
	ErrOutputWriterNotConfigured = errors.New(outputWriterMissingMessageConstant)
)

// ConfirmationPrompter asks the user a yes/no question, defaulting to no.
type ConfirmationPrompter interface {
	Confirm(prompt string) (bool, error)
}

// Notifier compares server-advertised capability versions against the client
// version and prompts for upgrades. Each Notifier instance notifies at most
// once; the guard is explicit instance state rather than process-global.
type Notifier struct {
	prompter      ConfirmationPrompter
	launcher      browse.BrowserLauncher
	output        io.Writer
	clientVersion string
	ignoreVersion string
	notified      bool
}

// NewNotifier constructs a Notifier. An empty ignoreVersion disables no threshold.
func NewNotifier(prompter ConfirmationPrompter, launcher browse.BrowserLauncher, output io.Writer, ignoreVersion string) (*Notifier, error) {
	if prompter == nil {
		return nil, ErrPrompterNotConfigured
	}
	if launcher == nil {
		return nil, ErrLauncherNotConfigured
	}
	if output == nil {
		return nil, ErrOutputWriterNotConfigured
	}

	trimmedIgnoreVersion := strings.TrimSpace(ignoreVersion)
	if len(trimmedIgnoreVersion) == 0 {
		trimmedIgnoreVersion = defaultIgnoreVersionConstant
	}

	return &Notifier{
		prompter:      prompter,
		launcher:      launcher,
		output:        output,
		clientVersion: ClientVersion,
		ignoreVersion: trimmedIgnoreVersion,
	}, nil
}

// Notify inspects one advertised capability string and, when the server ships
// newer client tools, prompts for or mentions the upgrade. Subsequent calls on
// the same instance are no-ops.
func (notifier *Notifier) Notify(executionContext context.Context, capability string, repositoryURL string) error {
	if notifier.notified {
		return nil
	}

	capabilityMatch := capabilityPattern.FindStringSubmatch(capability)
	if capabilityMatch == nil {
		return nil
	}
	notifier.notified = true

	serverVersion := capabilityMatch[1]
	if CompareVersions(serverVersion, notifier.clientVersion) <= 0 {
		return nil
	}

	toolsURL := toolsPageURL(repositoryURL)

	if CompareVersions(serverVersion, notifier.ignoreVersion) <= 0 {
		_, writeError := fmt.Fprintf(notifier.output, upgradeNoticeTemplateConstant, notifier.clientVersion, serverVersion, toolsURL)
		if writeError != nil {
			return writeError
		}
		_, writeError = io.WriteString(notifier.output, trailingSpacerConstant)
		return writeError
	}

	accepted, promptError := notifier.prompter.Confirm(fmt.Sprintf(upgradePromptTemplateConstant, notifier.clientVersion, serverVersion))
	if promptError != nil {
		return promptError
	}

	if accepted {
		if _, launchError := notifier.launcher.ExecuteBrowser(executionContext, toolsURL); launchError != nil {
			return launchError
		}
	} else {
		configFileName := unixConfigFileNameConstant
		if runtime.GOOS == windowsOperatingSystemNameConstant {
			configFileName = windowsConfigFileNameConstant
		}
		if _, writeError := fmt.Fprintf(notifier.output, ignoreVersionHintTemplateConstant, serverVersion, serverVersion, configFileName); writeError != nil {
			return writeError
		}
	}

	_, writeError := io.WriteString(notifier.output, trailingSpacerConstant)
	return writeError
}

// CompareVersions compares two dotted version strings numerically, returning
// -1, 0, or +1 in the manner of semver comparison.
func CompareVersions(firstVersion string, secondVersion string) int {
	return semver.Compare(canonicalVersion(firstVersion), canonicalVersion(secondVersion))
}

// HasCapabilityPrefix reports whether the capability string advertises client tools.
func HasCapabilityPrefix(capability string) bool {
	return strings.HasPrefix(capability, capabilityPrefixConstant)
}

func canonicalVersion(version string) string {
	components := make([]string, 0, maximumVersionComponentCountConstant)
	for _, component := range strings.Split(strings.TrimSpace(version), versionComponentSeparatorConstant) {
		if len(component) == 0 {
			continue
		}
		components = append(components, component)
		if len(components) == maximumVersionComponentCountConstant {
			break
		}
	}
	if len(components) == 0 {
		components = append(components, "0")
	}
	return semverPrefixConstant + strings.Join(components, versionComponentSeparatorConstant)
}

func toolsPageURL(repositoryURL string) string {
	serverRoot := repositoryURL
	if markerIndex := strings.Index(strings.ToLower(repositoryURL), repositoryPathMarkerConstant); markerIndex >= 0 {
		serverRoot = repositoryURL[:markerIndex]
	}
	return browse.JoinURL(serverRoot, toolsPageSegmentConstant)
}

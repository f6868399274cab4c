package version

import (
	"runtime/debug"
	"strings"

	"github.com/tyemirov/kiln/internal/upgrade"
)

const buildInfoDevelVersionValue = "devel"

// BuildInfoProvider exposes runtime build metadata.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// Detector resolves the application version string.
type Detector struct {
	buildInfoProvider BuildInfoProvider
}

// NewDetector constructs a Detector using the provided build info source, defaulting to the runtime's.
func NewDetector(buildInfoProvider BuildInfoProvider) *Detector {
	if buildInfoProvider == nil {
		buildInfoProvider = runtimeBuildInfoProvider{}
	}
	return &Detector{buildInfoProvider: buildInfoProvider}
}

// Version returns the module build version, falling back to the client tools version.
func (detector *Detector) Version() string {
	buildInfo, available := detector.buildInfoProvider.Read()
	if available && buildInfo != nil {
		trimmedVersion := strings.TrimSpace(buildInfo.Main.Version)
		if len(trimmedVersion) > 0 && !strings.EqualFold(trimmedVersion, buildInfoDevelVersionValue) {
			return trimmedVersion
		}
	}
	return upgrade.ClientVersion
}

type runtimeBuildInfoProvider struct{}

func (runtimeBuildInfoProvider) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

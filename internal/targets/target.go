package targets

import "strings"

const (
	slugSeparatorConstant           = "/"
	baseURLTrailingSlashConstant    = "/"
	kilnPathMarkerConstant          = "/kiln/"
	kilnHostedServiceMarkerConstant = "kilnhg.com/"
	spaceCharacterConstant          = " "
	hyphenCharacterConstant         = "-"
)

// Target identifies one remote-hosted repository reachable under a scheme's base URL.
type Target struct {
	BaseURL        string
	ProjectSlug    string
	GroupSlug      string
	RepositorySlug string
	Aliases        []string
}

// URL returns the fully qualified repository URL for the target.
func (target Target) URL() string {
	baseURL := target.BaseURL
	if !strings.HasSuffix(baseURL, baseURLTrailingSlashConstant) {
		baseURL += baseURLTrailingSlashConstant
	}
	return baseURL + strings.Join([]string{target.ProjectSlug, target.GroupSlug, target.RepositorySlug}, slugSeparatorConstant)
}

// Normalize produces the canonical comparison form of an identifier: lowercase, spaces as hyphens.
func Normalize(identifier string) string {
	return strings.ReplaceAll(strings.ToLower(identifier), spaceCharacterConstant, hyphenCharacterConstant)
}

// SchemeBaseURL scopes a scheme template URL to its hosted-service base URL.
// The second return value reports whether the template references the hosted service at all.
func SchemeBaseURL(templateURL string) (string, bool) {
	loweredTemplate := strings.ToLower(templateURL)

	if markerIndex := strings.Index(loweredTemplate, kilnPathMarkerConstant); markerIndex >= 0 {
		return templateURL[:markerIndex+len(kilnPathMarkerConstant)], true
	}
	if markerIndex := strings.Index(loweredTemplate, kilnHostedServiceMarkerConstant); markerIndex >= 0 {
		return templateURL[:markerIndex+len(kilnHostedServiceMarkerConstant)], true
	}
	return "", false
}

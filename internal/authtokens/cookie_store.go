package authtokens

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	cookieDirectoryBaseNameConstant = "hgcookies"
	cookieCommentPrefixConstant     = "#"
	cookieFieldSeparatorConstant    = "\t"
	cookieFieldCountConstant        = 7
	cookieDomainFieldIndexConstant  = 0
	cookieNameFieldIndexConstant    = 5
	cookieValueFieldIndexConstant   = 6
	authTokenCookieNameConstant     = "fbToken"
)

// DefaultCookieDirectoryPath resolves the per-user cookie store directory.
func DefaultCookieDirectoryPath() (string, error) {
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		return "", homeError
	}

	prefix := unixHiddenFilePrefixConstant
	if runtime.GOOS == windowsOperatingSystemConstant {
		prefix = windowsHiddenFilePrefixConstant
	}
	return filepath.Join(homeDirectory, prefix+cookieDirectoryBaseNameConstant), nil
}

// CookieStore reads browser-style cookie jars written by the Kiln authentication helpers.
// One jar file exists per user, named by the hash of the login name.
type CookieStore struct {
	directoryPath string
}

// NewCookieStore constructs a CookieStore over the provided directory.
func NewCookieStore(directoryPath string) *CookieStore {
	return &CookieStore{directoryPath: directoryPath}
}

// Lookup returns the auth token cookie recorded for the domain, or empty when absent.
func (store *CookieStore) Lookup(domain string, userNameHash string) (string, error) {
	directoryInfo, statError := os.Stat(store.directoryPath)
	if statError != nil || !directoryInfo.IsDir() {
		return "", nil
	}

	jarPath := filepath.Join(store.directoryPath, userNameHash)
	jarContent, readError := os.ReadFile(jarPath)
	if readError != nil {
		return "", nil
	}

	for _, line := range strings.Split(string(jarContent), "\n") {
		trimmedLine := strings.TrimRight(line, "\r")
		if len(trimmedLine) == 0 || strings.HasPrefix(trimmedLine, cookieCommentPrefixConstant) {
			continue
		}
		fields := strings.Split(trimmedLine, cookieFieldSeparatorConstant)
		if len(fields) != cookieFieldCountConstant {
			continue
		}
		if fields[cookieDomainFieldIndexConstant] != domain {
			continue
		}
		if fields[cookieNameFieldIndexConstant] != authTokenCookieNameConstant {
			continue
		}
		return fields[cookieValueFieldIndexConstant], nil
	}
	return "", nil
}

package authtokens

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const (
	tokenFileBaseNameConstant              = "hgkiln"
	unixHiddenFilePrefixConstant           = "."
	windowsHiddenFilePrefixConstant        = "_"
	windowsOperatingSystemConstant         = "windows"
	tokenFileFieldCountConstant            = 3
	tokenFieldSeparatorConstant            = " "
	tokenLineTemplateConstant              = "%s %s %s\n"
	malformedTokenFileTemplateConstant     = "authentication file %s is malformed"
	tokenPathIsDirectoryTemplateConstant   = "authentication file %s exists, but is a directory"
	homeDirectoryUnavailableGlobalConstant = "unable to determine user home directory: %w"
	tokenFilePermissionsConstant           = 0o600
)

// DefaultTokenFilePath resolves the per-user token file location.
func DefaultTokenFilePath() (string, error) {
	homeDirectory, homeError := os.UserHomeDir()
	if homeError != nil {
		return "", fmt.Errorf(homeDirectoryUnavailableGlobalConstant, homeError)
	}

	prefix := unixHiddenFilePrefixConstant
	if runtime.GOOS == windowsOperatingSystemConstant {
		prefix = windowsHiddenFilePrefixConstant
	}
	return filepath.Join(homeDirectory, prefix+tokenFileBaseNameConstant), nil
}

// FileStore persists authentication tokens as append-only `domain userhash token` lines.
type FileStore struct {
	filePath string
}

// NewFileStore constructs a FileStore over the provided path.
func NewFileStore(filePath string) *FileStore {
	return &FileStore{filePath: filePath}
}

// Lookup returns the token recorded for the domain and user hash; the last matching line wins.
func (store *FileStore) Lookup(domain string, userNameHash string) (string, error) {
	fileInfo, statError := os.Stat(store.filePath)
	if statError != nil || fileInfo.IsDir() {
		return "", nil
	}

	fileContent, readError := os.ReadFile(store.filePath)
	if readError != nil {
		return "", nil
	}

	token := ""
	for _, line := range strings.Split(string(fileContent), "\n") {
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		fields := strings.Split(strings.TrimRight(line, "\r\n"), tokenFieldSeparatorConstant)
		if len(fields) != tokenFileFieldCountConstant {
			return "", fmt.Errorf(malformedTokenFileTemplateConstant, store.filePath)
		}
		if fields[0] == domain && fields[1] == userNameHash {
			token = fields[2]
		}
	}
	return token, nil
}

// Append records a token for the domain and user hash; empty tokens are ignored.
func (store *FileStore) Append(domain string, userNameHash string, token string) error {
	if len(token) == 0 {
		return nil
	}

	fileInfo, statError := os.Stat(store.filePath)
	if statError == nil && fileInfo.IsDir() {
		return fmt.Errorf(tokenPathIsDirectoryTemplateConstant, store.filePath)
	}

	fileHandle, openError := os.OpenFile(store.filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, tokenFilePermissionsConstant)
	if openError != nil {
		return openError
	}
	defer func() {
		_ = fileHandle.Close()
	}()

	_, writeError := fmt.Fprintf(fileHandle, tokenLineTemplateConstant, domain, userNameHash, token)
	return writeError
}

// Delete removes the token file entirely.
func (store *FileStore) Delete() error {
	fileInfo, statError := os.Stat(store.filePath)
	if statError != nil {
		if errors.Is(statError, os.ErrNotExist) {
			return nil
		}
		return statError
	}
	if fileInfo.IsDir() {
		return fmt.Errorf(tokenPathIsDirectoryTemplateConstant, store.filePath)
	}
	return os.Remove(store.filePath)
}

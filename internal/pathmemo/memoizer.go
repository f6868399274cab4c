package pathmemo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"

	"github.com/tyemirov/kiln/internal/hgrepo"
)

const (
	mercurialMetadataDirectoryConstant  = ".hg"
	repositoryConfigFileNameConstant    = "hgrc"
	repositoryConfigBackupNameConstant  = "hgrc.backup"
	pathsSectionStanzaTemplateConstant  = "\n[paths]\n"
	memoEntryTemplateConstant           = " = "
	memoEntryTerminatorConstant         = "\n"
	configFilePermissionsConstant       = 0o644
	aliasSourceMissingMessageConstant   = "path alias source not configured"
	memoLoggerMissingMessageConstant    = "path memoizer logger not configured"
	memoSkippedLogMessageConstant       = "path memo skipped"
	memoWriteFailedLogMessageConstant   = "path memo write failed"
	memoWrittenLogMessageConstant       = "path memo written"
	memoNameLogFieldNameConstant        = "path_name"
	memoReasonLogFieldNameConstant      = "reason"
	memoReasonAlreadyConfiguredConstant = "already a configured path"
	memoReasonUnsafeNameConstant        = "name would corrupt the configuration format"
)

// Characters the hgrc INI format cannot carry in a path name.
var unsafePathNamePattern = regexp.MustCompile(`[:=\s]`)

var (
	// ErrPathAliasSourceNotConfigured indicates the path alias source dependency was missing.
	ErrPathAliasSourceNotConfigured = errors.New(aliasSourceMissingMessageConstant)
	// ErrLoggerNotConfigured indicates the logger dependency was missing.
	ErrLoggerNotConfigured = errors.New(memoLoggerMissingMessageConstant)
)

// PathAliasSource lists the configured path aliases of a repository.
type PathAliasSource interface {
	PathAliases(executionContext context.Context, repositoryPath string) ([]hgrepo.ConfigurationItem, error)
}

// Memoizer temporarily records a resolved destination as a named path in the
// repository configuration, restoring the original file afterwards.
type Memoizer struct {
	pathAliases  PathAliasSource
	logger       *zap.Logger
	memoWritten  bool
	configExists bool
}

// NewMemoizer constructs a Memoizer with the required collaborators.
func NewMemoizer(pathAliases PathAliasSource, logger *zap.Logger) (*Memoizer, error) {
	if pathAliases == nil {
		return nil, ErrPathAliasSourceNotConfigured
	}
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	return &Memoizer{pathAliases: pathAliases, logger: logger}, nil
}

// Remember backs up the repository configuration and appends `name = url` to
// its paths section. Filesystem failures are swallowed: the wrapped command
// then runs without the memo and reports the unknown path itself.
func (memoizer *Memoizer) Remember(executionContext context.Context, repositoryRoot string, pathName string, resolvedURL string) {
	if memoizer.isConfiguredAlias(executionContext, repositoryRoot, pathName) {
		memoizer.logger.Debug(memoSkippedLogMessageConstant,
			zap.String(memoNameLogFieldNameConstant, pathName),
			zap.String(memoReasonLogFieldNameConstant, memoReasonAlreadyConfiguredConstant),
		)
		return
	}
	if unsafePathNamePattern.MatchString(pathName) {
		memoizer.logger.Debug(memoSkippedLogMessageConstant,
			zap.String(memoNameLogFieldNameConstant, pathName),
			zap.String(memoReasonLogFieldNameConstant, memoReasonUnsafeNameConstant),
		)
		return
	}

	configPath := memoizer.configFilePath(repositoryRoot)
	backupPath := memoizer.backupFilePath(repositoryRoot)

	existingContent, readError := os.ReadFile(configPath)
	memoizer.configExists = readError == nil
	if memoizer.configExists {
		if backupError := os.WriteFile(backupPath, existingContent, configFilePermissionsConstant); backupError != nil {
			memoizer.logger.Warn(memoWriteFailedLogMessageConstant, zap.Error(backupError))
			return
		}
	}

	memoStanza := pathsSectionStanzaTemplateConstant + pathName + memoEntryTemplateConstant + resolvedURL + memoEntryTerminatorConstant
	updatedContent := append(existingContent, []byte(memoStanza)...)
	if writeError := os.WriteFile(configPath, updatedContent, configFilePermissionsConstant); writeError != nil {
		memoizer.logger.Warn(memoWriteFailedLogMessageConstant, zap.Error(writeError))
		return
	}

	memoizer.memoWritten = true
	memoizer.logger.Debug(memoWrittenLogMessageConstant, zap.String(memoNameLogFieldNameConstant, pathName))
}

// Restore reverts the repository configuration to its pre-memo state. It must
// run after the wrapped command on every exit path.
func (memoizer *Memoizer) Restore(repositoryRoot string) error {
	if !memoizer.memoWritten {
		return nil
	}
	memoizer.memoWritten = false

	configPath := memoizer.configFilePath(repositoryRoot)
	backupPath := memoizer.backupFilePath(repositoryRoot)

	if !memoizer.configExists {
		return os.Remove(configPath)
	}

	backupContent, readError := os.ReadFile(backupPath)
	if readError != nil {
		return readError
	}
	if writeError := os.WriteFile(configPath, backupContent, configFilePermissionsConstant); writeError != nil {
		return writeError
	}
	return os.Remove(backupPath)
}

func (memoizer *Memoizer) isConfiguredAlias(executionContext context.Context, repositoryRoot string, pathName string) bool {
	aliases, aliasError := memoizer.pathAliases.PathAliases(executionContext, repositoryRoot)
	if aliasError != nil {
		return false
	}
	for _, alias := range aliases {
		if alias.Name == pathName {
			return true
		}
	}
	return false
}

func (memoizer *Memoizer) configFilePath(repositoryRoot string) string {
	return filepath.Join(repositoryRoot, mercurialMetadataDirectoryConstant, repositoryConfigFileNameConstant)
}

func (memoizer *Memoizer) backupFilePath(repositoryRoot string) string {
	return filepath.Join(repositoryRoot, mercurialMetadataDirectoryConstant, repositoryConfigBackupNameConstant)
}

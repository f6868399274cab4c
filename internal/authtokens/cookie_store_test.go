package authtokens_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tyemirov/kiln/internal/authtokens"
)

const (
	testCookieDomainConstant   = "acme.kilnhg.com"
	testCookieUserHashConstant = "fedcba9876543210fedcba9876543210"
	testCookieTokenConstant    = "cookie-token"
	testCookieJarContent       = "# Netscape HTTP Cookie File\n" +
		"acme.kilnhg.com\tFALSE\t/\tTRUE\t0\tsessionid\tabc123\n" +
		"acme.kilnhg.com\tFALSE\t/\tTRUE\t0\tfbToken\tcookie-token\n" +
		"other.kilnhg.com\tFALSE\t/\tTRUE\t0\tfbToken\tother-token\n"
)

func newPopulatedCookieStore(testInstance *testing.T) *authtokens.CookieStore {
	cookieDirectory := testInstance.TempDir()
	jarPath := filepath.Join(cookieDirectory, testCookieUserHashConstant)
	require.NoError(testInstance, os.WriteFile(jarPath, []byte(testCookieJarContent), 0o600))
	return authtokens.NewCookieStore(cookieDirectory)
}

func TestCookieStoreLookup(testInstance *testing.T) {
	store := newPopulatedCookieStore(testInstance)

	token, lookupError := store.Lookup(testCookieDomainConstant, testCookieUserHashConstant)
	require.NoError(testInstance, lookupError)
	require.Equal(testInstance, testCookieTokenConstant, token)
}

func TestCookieStoreLookupUnknownDomain(testInstance *testing.T) {
	store := newPopulatedCookieStore(testInstance)

	token, lookupError := store.Lookup("unknown.kilnhg.com", testCookieUserHashConstant)
	require.NoError(testInstance, lookupError)
	require.Empty(testInstance, token)
}

func TestCookieStoreLookupMissingJar(testInstance *testing.T) {
	store := authtokens.NewCookieStore(testInstance.TempDir())

	token, lookupError := store.Lookup(testCookieDomainConstant, testCookieUserHashConstant)
	require.NoError(testInstance, lookupError)
	require.Empty(testInstance, token)
}

func TestCookieStoreLookupMissingDirectory(testInstance *testing.T) {
	store := authtokens.NewCookieStore(filepath.Join(testInstance.TempDir(), "absent"))

	token, lookupError := store.Lookup(testCookieDomainConstant, testCookieUserHashConstant)
	require.NoError(testInstance, lookupError)
	require.Empty(testInstance, token)
}

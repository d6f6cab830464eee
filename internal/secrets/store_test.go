package secrets

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()
	s := Store{Dir: t.TempDir()}

	require.NoError(t, s.StoreToken("http://127.0.0.1:5000/api/", "tok-123"))

	got, err := s.FetchToken("HTTP://127.0.0.1:5000/api")
	require.NoError(t, err)
	require.Equal(t, "tok-123", got)

	raw, err := os.ReadFile(filepath.Join(s.Dir, fileName))
	require.NoError(t, err)
	require.False(t, strings.Contains(string(raw), "tok-123"), "token must not be stored in plain text")

	info, err := os.Stat(filepath.Join(s.Dir, fileName))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestTokenMissingAndDelete(t *testing.T) {
	t.Parallel()
	s := Store{Dir: t.TempDir()}

	_, err := s.FetchToken("http://a/api")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.StoreToken("http://a/api", "one"))
	require.NoError(t, s.StoreToken("http://b/api", "two"))
	require.NoError(t, s.DeleteToken("http://a/api"))

	_, err = s.FetchToken("http://a/api")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.DeleteToken("http://a/api"), ErrNotFound)
	got, err := s.FetchToken("http://b/api")
	require.NoError(t, err)
	require.Equal(t, "two", got)

	require.Error(t, s.StoreToken("", "x"))
	require.Error(t, s.StoreToken("http://a/api", "  "))
}

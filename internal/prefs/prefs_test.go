package prefs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefsRoundTrip(t *testing.T) {
	t.Parallel()
	s := Store{Dir: t.TempDir()}

	empty, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, Prefs{}, empty)

	want := Prefs{UploadDir: "/tmp/scans", StatusFilter: "ENTREGA_PENDENTE"}
	require.NoError(t, s.Save(want))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

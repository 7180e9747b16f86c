package sink

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.264")

	// existing content is truncated
	err := os.WriteFile(path, []byte("previous content"), 0o644)
	require.NoError(t, err)

	s, err := NewFile(path)
	require.NoError(t, err)

	err = s.Append([]byte{0x00, 0x00, 0x01, 0x65, 0x88})
	require.NoError(t, err)

	err = s.Append(nil)
	require.NoError(t, err)

	err = s.Append([]byte{0x84, 0x00})
	require.NoError(t, err)

	err = s.Close()
	require.NoError(t, err)

	byts, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x01, 0x65, 0x88, 0x84, 0x00}, byts)
}

func TestFileInvalidPath(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "missing", "out.264"))
	require.Error(t, err)
}

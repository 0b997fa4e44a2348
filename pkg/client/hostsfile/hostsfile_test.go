package hostsfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateAppendsBlockWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0o644))

	require.NoError(t, Update(path, []string{"myapp.example.com"}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1 localhost\n\n"+header+"\n127.0.0.1 myapp.example.com\n"+footer+"\n", string(got))
}

func TestUpdateCreatesFileIfMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")

	require.NoError(t, Update(path, []string{"myapp.example.com"}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\n"+header+"\n127.0.0.1 myapp.example.com\n"+footer+"\n", string(got))
}

func TestUpdateReplacesExistingBlockOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	existing := "127.0.0.1 localhost\n" +
		header + "\n" +
		"127.0.0.1 stale.example.com\n" +
		footer + "\n" +
		"::1 localhost\n"
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	require.NoError(t, Update(path, []string{"fresh.example.com"}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "127.0.0.1 localhost\n" +
		header + "\n" +
		"127.0.0.1 fresh.example.com\n" +
		footer +
		"\n::1 localhost\n"
	assert.Equal(t, want, string(got))
}

func TestUpdateIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("127.0.0.1 localhost\n"), 0o644))

	require.NoError(t, Update(path, []string{"a.example.com", "b.example.com"}))
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, Update(path, []string{"a.example.com", "b.example.com"}))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestUpdateHandlesMultipleHosts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, Update(path, []string{"a.example.com", "b.example.com"}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "\n"+header+"\n127.0.0.1 a.example.com\n127.0.0.1 b.example.com\n"+footer+"\n", string(got))
}

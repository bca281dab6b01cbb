package credentials_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alexxxstep/djwr-client/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds", "credentials.json")

	storage, err := credentials.NewFileStorage(path)
	require.NoError(t, err)

	require.NoError(t, storage.Set("access_token", "access-0"))
	require.NoError(t, storage.Set("refresh_token", "refresh-0"))

	value, ok, err := storage.Get("access_token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "access-0", value)

	// a second instance sees the persisted state
	reopened, err := credentials.NewFileStorage(path)
	require.NoError(t, err)

	value, ok, err = reopened.Get("refresh_token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "refresh-0", value)
}

func TestFileStorageMissingFileIsEmpty(t *testing.T) {
	storage, err := credentials.NewFileStorage(filepath.Join(t.TempDir(), "credentials.json"))
	require.NoError(t, err)

	_, ok, err := storage.Get("access_token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStorageDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	storage, err := credentials.NewFileStorage(path)
	require.NoError(t, err)

	require.NoError(t, storage.Set("access_token", "access-0"))
	require.NoError(t, storage.Delete("access_token"))

	_, ok, err := storage.Get("access_token")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting an absent key is not an error
	require.NoError(t, storage.Delete("access_token"))
}

func TestFileStorageCorruptFileReadsAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	storage, err := credentials.NewFileStorage(path)
	require.NoError(t, err)

	_, ok, err := storage.Get("access_token")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStoragePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	storage, err := credentials.NewFileStorage(path)
	require.NoError(t, err)

	require.NoError(t, storage.Set("access_token", "access-0"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNewFileStorageRejectsEmptyPath(t *testing.T) {
	_, err := credentials.NewFileStorage("")
	assert.Error(t, err)
}

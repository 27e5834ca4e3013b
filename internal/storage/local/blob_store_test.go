package local_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/wayback-mirror/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ExistingDir", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingDirIsNotCreated", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "website_backup")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		_, err = os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "website_backup")
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("CreatesParents", func(t *testing.T) {
		data := []byte("<html></html>")
		uri, err := store.PutObject(context.Background(), "blog/post/index.html", "text/html", bytes.NewReader(data))
		require.NoError(t, err)

		full := filepath.Join(tempDir, "blog", "post", "index.html")
		assert.Equal(t, "file://"+filepath.ToSlash(full), uri)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(full)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	})

	t.Run("Overwrites", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "images/logo.png", "", strings.NewReader("first"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "images/logo.png", "", strings.NewReader("second"))
		require.NoError(t, err)
		// #nosec G304 -- test reads from the controlled temp directory.
		got, err := os.ReadFile(filepath.Join(tempDir, "images", "logo.png"))
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "", "text/plain", strings.NewReader("data"))
		assert.Error(t, err)
	})

	t.Run("Traversal", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "../escape.txt", "", strings.NewReader("data"))
		assert.Error(t, err)
		_, statErr := os.Stat(filepath.Join(filepath.Dir(tempDir), "escape.txt"))
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("CanceledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := store.PutObject(ctx, "js/app.js", "", strings.NewReader("x"))
		assert.Error(t, err)
	})

	t.Run("ParentIsAFile", func(t *testing.T) {
		_, err := store.PutObject(context.Background(), "css", "", strings.NewReader("file"))
		require.NoError(t, err)
		_, err = store.PutObject(context.Background(), "css/site.css", "", strings.NewReader("x"))
		assert.Error(t, err)
	})
}

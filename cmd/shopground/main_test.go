package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/shopground/internal/core/domain"
	"github.com/custodia-labs/shopground/internal/core/ports/driven"
)

func TestLoadEnv(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnv(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("sets unset variables only", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("SHOPGROUND_TEST_A=from-file\nSHOPGROUND_TEST_B=from-file\n"), 0600))
		t.Setenv("SHOPGROUND_TEST_B", "from-env")
		t.Cleanup(func() { os.Unsetenv("SHOPGROUND_TEST_A") })

		require.NoError(t, loadEnv(path))

		assert.Equal(t, "from-file", os.Getenv("SHOPGROUND_TEST_A"))
		assert.Equal(t, "from-env", os.Getenv("SHOPGROUND_TEST_B"))
	})
}

func TestDiscoverSources(t *testing.T) {
	t.Run("missing root registers nothing", func(t *testing.T) {
		registry, err := discoverSources(filepath.Join(t.TempDir(), "content"))
		require.NoError(t, err)
		assert.Empty(t, registry.Types())
	})

	t.Run("one source per type directory", func(t *testing.T) {
		root := t.TempDir()
		for _, dir := range []string{"product", "policy", ".drafts"} {
			require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
		}

		registry, err := discoverSources(root)

		require.NoError(t, err)
		assert.ElementsMatch(t, []domain.ContentType{domain.ContentTypeProduct, domain.ContentTypePolicy}, registry.Types())
	})
}

func TestOpenVectors_DiscardsUnreadableIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), vectorFile)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0600))
	require.NoError(t, os.WriteFile(path+".meta", []byte("garbage"), 0600))

	idx, err := openVectors(path)

	require.NoError(t, err)
	defer idx.Close()
	assert.Equal(t, 0, idx.Len())
	require.NoError(t, idx.Upsert(context.Background(), "c-1", []float32{1, 0}, driven.VectorMetadata{ContentType: "page"}))
}

package bundle

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupArtifacts(t *testing.T, files map[string]string) (outputDir, archivePath string) {
	t.Helper()
	base := t.TempDir()
	outputDir = filepath.Join(base, "static", "gifs")
	require.NoError(t, os.MkdirAll(outputDir, 0o755))
	for name, content := range files {
		p := filepath.Join(outputDir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return outputDir, filepath.Join(base, "gifs.zip")
}

func TestBuild_NamesRelativeToParent(t *testing.T) {
	outputDir, archivePath := setupArtifacts(t, map[string]string{
		"output_gif_0.gif": "GIF89a-0",
		"output_gif_2.gif": "GIF89a-2",
		"nested/extra.gif": "GIF89a-x",
	})

	res, err := Build(context.Background(), outputDir, archivePath)
	require.NoError(t, err)
	assert.Equal(t, archivePath, res.Path)
	assert.Positive(t, res.Bytes)

	names, err := Manifest(archivePath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"gifs/output_gif_0.gif",
		"gifs/output_gif_2.gif",
		"gifs/nested/extra.gif",
	}, names)
	assert.ElementsMatch(t, names, res.Files)

	zr, err := zip.OpenReader(archivePath)
	require.NoError(t, err)
	defer zr.Close()
	for _, f := range zr.File {
		assert.Equal(t, zip.Deflate, f.Method, f.Name)
		if f.Name == "gifs/output_gif_2.gif" {
			rc, err := f.Open()
			require.NoError(t, err)
			data, err := io.ReadAll(rc)
			rc.Close()
			require.NoError(t, err)
			assert.Equal(t, "GIF89a-2", string(data))
		}
	}
}

func TestBuild_RebuiltFromScratch(t *testing.T) {
	outputDir, archivePath := setupArtifacts(t, map[string]string{"output_gif_0.gif": "a"})

	_, err := Build(context.Background(), outputDir, archivePath)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(outputDir, "output_gif_0.gif")))
	require.NoError(t, os.WriteFile(filepath.Join(outputDir, "output_gif.gif"), []byte("b"), 0o644))

	_, err = Build(context.Background(), outputDir, archivePath)
	require.NoError(t, err)

	names, err := Manifest(archivePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"gifs/output_gif.gif"}, names)
}

func TestBuild_EmptyDirectory(t *testing.T) {
	outputDir, archivePath := setupArtifacts(t, nil)

	res, err := Build(context.Background(), outputDir, archivePath)
	require.NoError(t, err)
	assert.Empty(t, res.Files)

	names, err := Manifest(archivePath)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestBuild_MissingOutputDir(t *testing.T) {
	base := t.TempDir()
	_, err := Build(context.Background(), filepath.Join(base, "gifs"), filepath.Join(base, "gifs.zip"))
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(base, "gifs.zip"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestBuild_CancelledContext(t *testing.T) {
	outputDir, archivePath := setupArtifacts(t, map[string]string{"output_gif_0.gif": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, outputDir, archivePath)
	require.ErrorIs(t, err, context.Canceled)
}

func TestClearDir(t *testing.T) {
	outputDir, _ := setupArtifacts(t, map[string]string{
		"output_gif_0.gif": "a",
		"sub/b.gif":        "b",
	})

	require.NoError(t, ClearDir(outputDir))
	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	missing := filepath.Join(t.TempDir(), "new", "gifs")
	require.NoError(t, ClearDir(missing))
	assert.DirExists(t, missing)
}

func TestListArtifacts(t *testing.T) {
	outputDir, _ := setupArtifacts(t, map[string]string{
		"output_gif_1.gif": "a",
		"output_gif_0.gif": "b",
		".DS_Store":        "x",
		"sub/c.gif":        "c",
	})

	names, err := ListArtifacts(outputDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"output_gif_0.gif", "output_gif_1.gif"}, names)

	names, err = ListArtifacts(filepath.Join(outputDir, "missing"))
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestListArtifacts_NumericOrder(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 12; i++ {
		files[fmt.Sprintf("output_gif_%d.gif", i)] = "x"
	}
	outputDir, _ := setupArtifacts(t, files)

	names, err := ListArtifacts(outputDir)
	require.NoError(t, err)
	require.Len(t, names, 12)
	for i, name := range names {
		assert.Equal(t, fmt.Sprintf("output_gif_%d.gif", i), name)
	}
}

func TestNaturalLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"output_gif_2.gif", "output_gif_10.gif", true},
		{"output_gif_10.gif", "output_gif_2.gif", false},
		{"output_gif_9.gif", "output_gif_9.gif", false},
		{"output_gif.gif", "output_gif_0.gif", true},
		{"a01", "a1", false},
		{"a1", "a01", true},
		{"abc", "abcd", true},
	}
	for _, tt := range tests {
		if got := naturalLess(tt.a, tt.b); got != tt.want {
			t.Errorf("naturalLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestBuild_ArchiveInsideOutputDir(t *testing.T) {
	outputDir, _ := setupArtifacts(t, map[string]string{
		"output_gif_0.gif": "a",
		"output_gif_1.gif": "b",
	})
	archivePath := filepath.Join(outputDir, "gifs.zip")

	for i := 0; i < 2; i++ {
		res, err := Build(context.Background(), outputDir, archivePath)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"gifs/output_gif_0.gif", "gifs/output_gif_1.gif"}, res.Files)
	}

	names, err := Manifest(archivePath)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gifs/output_gif_0.gif", "gifs/output_gif_1.gif"}, names)

	entries, err := os.ReadDir(outputDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".bundle-")
	}
	require.NoError(t, err)
	assert.Nil(t, names)
}

func TestValidateOutputDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"valid", dir, false},
		{"empty", "  ", true},
		{"traversal", dir + "/../x", true},
		{"unclean", dir + "/", true},
		{"missing", filepath.Join(dir, "missing"), true},
		{"file", file, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputDir(tt.dir)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

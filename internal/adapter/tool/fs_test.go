package tool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "note.txt")

	out, err := handleWriteFile(context.Background(), Args{"path": path, "content": "hello world"})
	require.NoError(t, err)
	assert.Equal(t, "✓ Wrote 11 bytes to "+path, out)

	out, err = handleReadFile(context.Background(), Args{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestReadFileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.txt")

	out, err := handleReadFile(context.Background(), Args{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "Error: File '"+path+"' not found", out)
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	out, err := handleListFiles(context.Background(), Args{"path": dir})
	require.NoError(t, err)

	want := "Contents of " + dir + ":\n" +
		"📄 a.txt\n" +
		"📄 b.txt\n" +
		"📁 sub"
	assert.Equal(t, want, out)
}

func TestListFilesDefaultsToCwd(t *testing.T) {
	out, err := handleListFiles(context.Background(), Args{})
	require.NoError(t, err)
	assert.Contains(t, out, "Contents of .:")
}

func TestListFilesNotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	out, err := handleListFiles(context.Background(), Args{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "Error: '"+path+"' is not a directory", out)
}

func TestListFilesMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nowhere")

	out, err := handleListFiles(context.Background(), Args{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "Error: Directory '"+path+"' not found", out)
}

func TestDeleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gone.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	out, err := handleDeleteFile(context.Background(), Args{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "✓ Deleted "+path, out)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeleteFileRejectsDirectory(t *testing.T) {
	dir := t.TempDir()

	out, err := handleDeleteFile(context.Background(), Args{"path": dir})
	require.NoError(t, err)
	assert.Equal(t, "Error deleting file: '"+dir+"' is a directory", out)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}

func TestDeleteFileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.txt")

	out, err := handleDeleteFile(context.Background(), Args{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "Error: File '"+path+"' not found", out)
}

package fingerprint

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestLink(t *testing.T) {
	assert.Equal(t, "81cbacec3a991c7cf1671cb33b904442", Link("https://data.stadt-zuerich.ch/"))
	assert.Equal(t, Link("https://a.example"), Link("https://a.example"))
	assert.NotEqual(t, Link("https://a.example"), Link("https://b.example"))
}

func TestFile(t *testing.T) {
	f := New(OptDelay(0))

	t.Run("small file", func(t *testing.T) {
		got, err := f.File(writeFile(t, "a.txt", []byte("hello world")))
		require.NoError(t, err)
		assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", got)
	})

	t.Run("spans several chunks", func(t *testing.T) {
		data := bytes.Repeat([]byte("0123456789abcdef"), 3*chunkSize/16+7)
		sum := md5.Sum(data)

		got, err := f.File(writeFile(t, "big.bin", data))
		require.NoError(t, err)
		assert.Equal(t, hex.EncodeToString(sum[:]), got)
	})

	t.Run("missing file is not retried", func(t *testing.T) {
		calls := 0
		g := New(OptDelay(0))
		g.open = func(path string) (io.ReadCloser, error) {
			calls++
			return os.Open(path)
		}

		_, err := g.File(filepath.Join(t.TempDir(), "nope.csv"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, fs.ErrNotExist))

		var readErr *ReadError
		assert.False(t, errors.As(err, &readErr))
		assert.Equal(t, 1, calls)
	})
}

func TestFileRetriesTransientErrors(t *testing.T) {
	path := writeFile(t, "flaky.csv", []byte("hello world"))

	fails := 2
	f := New(OptDelay(0), OptAttempts(5))
	f.open = func(p string) (io.ReadCloser, error) {
		if fails > 0 {
			fails--
			return nil, &fs.PathError{Op: "open", Path: p, Err: syscall.EIO}
		}
		return os.Open(p)
	}

	got, err := f.File(path)
	require.NoError(t, err)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", got)
	assert.Equal(t, 0, fails)
}

func TestFileGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	f := New(OptDelay(0), OptAttempts(3))
	f.open = func(p string) (io.ReadCloser, error) {
		calls++
		return nil, &fs.PathError{Op: "open", Path: p, Err: syscall.EIO}
	}

	_, err := f.File("/dropzone/a.csv")

	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.Equal(t, 3, readErr.Attempts)
	assert.Equal(t, "/dropzone/a.csv", readErr.Path)
	assert.ErrorIs(t, err, syscall.EIO)
	assert.Equal(t, 3, calls)
}

func TestReadFile(t *testing.T) {
	f := New(OptDelay(0))
	got, err := f.ReadFile(writeFile(t, "meta.xml", []byte("<x/>")))
	require.NoError(t, err)
	assert.Equal(t, []byte("<x/>"), got)
}

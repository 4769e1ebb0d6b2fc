package geonames

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipArchive(t *testing.T, name, content string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func serve(t *testing.T, h http.HandlerFunc) string {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := []string{}
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownloadAndExtract(t *testing.T) {
	table := geoNamesRow("Oslo", "NO", "Europe/Oslo") + "\n"
	archive := zipArchive(t, CacheFileName, table)
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	dir := t.TempDir()
	target := filepath.Join(dir, CacheFileName)

	require.NoError(t, downloadAndExtract(context.Background(), url, target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, table, string(data))
	assert.Equal(t, []string{CacheFileName}, dirNames(t, dir))

	cities, err := parseFile(target)
	require.NoError(t, err)
	require.Len(t, cities, 1)
	assert.Equal(t, "Oslo", cities[0].City)
}

func TestDownloadAndExtract_leavesNothingOnFailure(t *testing.T) {
	archive := zipArchive(t, CacheFileName, geoNamesRow("Oslo", "NO", "Europe/Oslo"))
	readmeOnly := zipArchive(t, "readme.txt", "nothing here")

	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"bad status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}},
		{"interrupted download", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
			w.Write(archive[:len(archive)/2])
		}},
		{"entry missing", func(w http.ResponseWriter, r *http.Request) {
			w.Write(readmeOnly)
		}},
		{"not a zip", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>maintenance</html>"))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := serve(t, tt.handler)
			dir := t.TempDir()
			target := filepath.Join(dir, CacheFileName)

			err := downloadAndExtract(context.Background(), url, target)

			require.Error(t, err)
			assert.NoFileExists(t, target)
			assert.Empty(t, dirNames(t, dir))
		})
	}
}

func TestDownloadAndExtract_cancelled(t *testing.T) {
	archive := zipArchive(t, CacheFileName, "unused")
	url := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	})
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := downloadAndExtract(ctx, url, filepath.Join(dir, CacheFileName))

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, dirNames(t, dir))
}

package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/adampresley/photomap/internal/configuration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	dir := t.TempDir()
	photos := filepath.Join(dir, "photos")
	require.NoError(t, os.Mkdir(photos, 0o755))

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetArgs(append([]string{
		"--dsn", "file:" + filepath.Join(dir, "cache.db"),
		"--source", "filesystem",
		"--sourcearg", photos,
	}, args...))

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestScanEmptySource(t *testing.T) {
	assert.Equal(t, "0 located images, 0 skipped\n", execute(t, "scan"))
}

func TestBoundsEmptySource(t *testing.T) {
	assert.JSONEq(t, `{"lat":0,"long":0,"dlat":0,"dlong":0}`, execute(t, "bounds"))
}

func TestTileWritesPNG(t *testing.T) {
	target := filepath.Join(t.TempDir(), "out.png")

	out := execute(t, "tile", "1", "2", "3", "-o", target, "--layer", "spot")
	assert.Contains(t, out, "tile 3/1/2 written to")

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()

	im, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 256, 256), im.Bounds())
}

func TestTileRejectsBadArguments(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})

	rootCmd.SetArgs([]string{"tile", "1", "x", "3"})
	assert.Error(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"tile", "1", "2"})
	assert.Error(t, rootCmd.Execute())
}

func TestFlagDefaultsFollowServerConfig(t *testing.T) {
	defaults, err := configuration.LoadEnvConfig()
	require.NoError(t, err)

	flags := rootCmd.PersistentFlags()
	assert.Equal(t, defaults.DSN, flags.Lookup("dsn").DefValue)
	assert.Equal(t, defaults.Source, flags.Lookup("source").DefValue)
	assert.Equal(t, defaults.SourceArg, flags.Lookup("sourcearg").DefValue)
	assert.Equal(t, strconv.Itoa(defaults.MaxWorkers), flags.Lookup("workers").DefValue)
}

func TestNearestEmptySource(t *testing.T) {
	assert.Empty(t, execute(t, "nearest", "47.5", "19", "-n", "3"))
}

func TestNearestRejectsBadCoordinates(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})

	rootCmd.SetArgs([]string{"nearest", "north", "19"})
	assert.Error(t, rootCmd.Execute())
}

package configuration

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizePath(t *testing.T) {
	root := t.TempDir()
	c := &Config{StaticDirectory: root}

	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{name: "index", requested: "/index.html", want: filepath.Join(root, "index.html")},
		{name: "nested", requested: "js/map.js", want: filepath.Join(root, "js", "map.js")},
		{name: "root", requested: "/", want: root},
		{name: "parent is clamped", requested: "/../../etc/passwd", want: filepath.Join(root, "etc", "passwd")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.SanitizePath(tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizePathWithoutStaticDirectory(t *testing.T) {
	c := &Config{}

	_, err := c.SanitizePath("/index.html")
	assert.Error(t, err)
}

func TestSourceArgument(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   string
	}{
		{name: "filesystem ignores profile", config: Config{Source: "filesystem", SourceArg: "/photos", AWSProfile: "p"}, want: "/photos"},
		{name: "s3 without profile", config: Config{Source: "s3", SourceArg: "bucket/prefix"}, want: "bucket/prefix"},
		{name: "s3 with profile", config: Config{Source: "s3", SourceArg: "bucket/prefix", AWSProfile: "photos"}, want: "bucket/prefix?profile=photos"},
		{name: "explicit profile wins", config: Config{Source: "s3", SourceArg: "bucket?profile=a", AWSProfile: "b"}, want: "bucket?profile=a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.SourceArgument())
		})
	}
}

func TestLoadEnvConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SOURCE_ARG=/srv/photos\n"), 0o644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("SOURCE", "s3")
	t.Setenv("MAX_WORKERS", "9")
	t.Setenv("AWS_PROFILE", "")

	config, err := LoadEnvConfig()
	require.NoError(t, err)

	assert.Equal(t, "s3", config.Source)
	assert.Equal(t, 9, config.MaxWorkers)
	assert.Equal(t, "file:./data/photomap.db?_pragma=busy_timeout(5000)", config.DSN)
	assert.Equal(t, "/srv/photos", config.SourceArg)
	assert.Equal(t, 4096, config.TileCacheSize)
	assert.Equal(t, "", config.AWSProfile)
}

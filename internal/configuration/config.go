package configuration

import (
	"fmt"
	"net/url"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/app-nerds/configinator"
	"github.com/app-nerds/configinator/container"
	"github.com/app-nerds/configinator/env"
)

type Config struct {
	AWSProfile       string `flag:"awsprofile" env:"AWS_PROFILE" default:"" description:"Shared config profile used by the s3 image source"`
	DSN              string `flag:"dsn" env:"DSN" default:"file:./data/photomap.db?_pragma=busy_timeout(5000)" description:"Image cache database connection"`
	EnableMetrics    bool   `flag:"metrics" env:"ENABLE_METRICS" default:"false" description:"Expose prometheus metrics"`
	GoogleMapsAPIKey string `flag:"gmapskey" env:"GOOGLEMAPS_APIKEY" default:"" description:"Google Maps API key handed to the page templates"`
	Host             string `flag:"host" env:"HOST" default:"localhost:6677" description:"The address and port to bind the HTTP server to"`
	LogLevel         string `flag:"loglevel" env:"LOG_LEVEL" default:"debug" description:"The log level to use. Valid values are 'debug', 'info', 'warn', and 'error'"`
	MaxWorkers       int    `flag:"workers" env:"MAX_WORKERS" default:"4" description:"Number of concurrent scan and thumbnail workers"`
	MetricsPath      string `flag:"metricspath" env:"METRICS_PATH" default:"/metrics" description:"Path the metrics are served on"`
	RescanSchedule   string `flag:"rescan" env:"RESCAN_SCHEDULE" default:"" description:"Cron schedule for rescanning the image source. Empty disables rescans"`
	Source           string `flag:"source" env:"SOURCE" default:"filesystem" description:"Image source driver: 'filesystem' or 's3'"`
	SourceArg        string `flag:"sourcearg" env:"SOURCE_ARG" default:"./photos" description:"Image source argument: directory list, or bucket[/prefix] for s3"`
	StaticDirectory  string `flag:"static" env:"STATIC_DIRECTORY" default:"" description:"Directory of page assets. HTML files are executed as templates"`
	TileCacheSize    int    `flag:"tilecache" env:"TILE_CACHE_SIZE" default:"4096" description:"Number of rendered tiles kept in memory"`
}

func LoadConfig() Config {
	config := Config{}
	configinator.Behold(&config)
	return config
}

/*
LoadEnvConfig fills a Config from the tag defaults, the environment and
an .env file, leaving command line parsing to the caller. Tools with
their own flag handling use it to share the server's defaults.
*/
func LoadEnvConfig() (Config, error) {
	var (
		err     error
		envFile = map[string]string{}
	)

	config := Config{}

	if env.FileExists(".env") {
		if envFile, err = env.ReadFile(".env"); err != nil {
			return config, fmt.Errorf("error reading .env: %w", err)
		}
	}

	t := reflect.TypeOf(config)

	for index := 0; index < t.NumField(); index++ {
		c, fieldErr := container.New(&config, index, envFile)
		if fieldErr != nil {
			continue
		}

		switch {
		case c.IsBool():
			if value, ok := c.EnvBool(); ok {
				c.SetConfigBool(value)
			}

			if value, ok := c.EnvFileBool(); ok {
				c.SetConfigBool(value)
			}

		case c.IsInt():
			if value, ok := c.EnvInt(); ok {
				c.SetConfigInt(value)
			}

			if value, ok := c.EnvFileInt(); ok {
				c.SetConfigInt(value)
			}

		case c.IsString():
			if value, ok := c.EnvString(); ok {
				c.SetConfigString(value)
			}

			if value, ok := c.EnvFileString(); ok {
				c.SetConfigString(value)
			}
		}
	}

	return config, nil
}

/*
SourceArgument returns the argument handed to the image source driver.
The s3 driver receives the configured AWS profile as a query parameter.
*/
func (c *Config) SourceArgument() string {
	if c.Source != "s3" || c.AWSProfile == "" || strings.Contains(c.SourceArg, "?") {
		return c.SourceArg
	}

	return c.SourceArg + "?profile=" + url.QueryEscape(c.AWSProfile)
}

// SanitizePath ensures that a requested path cannot traverse outside the static directory.
// It returns the absolute path of the file within the static directory.
func (c *Config) SanitizePath(requestedPath string) (string, error) {
	if c.StaticDirectory == "" {
		return "", fmt.Errorf("no static directory configured")
	}

	root, err := filepath.Abs(c.StaticDirectory)
	if err != nil {
		return "", err
	}

	// Rooting the request before cleaning resolves any ".." against "/"
	targetPath := filepath.Join(root, filepath.Clean("/"+filepath.FromSlash(requestedPath)))

	if targetPath != root && !strings.HasPrefix(targetPath, root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path traversal attempt: %s", requestedPath)
	}

	return targetPath, nil
}

/*
Package s3source provides an image source backed by an S3 bucket. Import it
for its side effect of registering the "s3" source. The source argument
has the form "bucket[/prefix][?profile=name]".
*/
package s3source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/adampresley/photomap/pkg/source"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	mapset "github.com/deckarep/golang-set/v2"
)

const (
	Name   = "s3"
	prefix = "s3://"
)

var (
	ErrInvalidArgument = fmt.Errorf("invalid s3 source argument")

	supportedExtensions = mapset.NewSet(".jpg", ".jpeg", ".png")
)

func init() {
	source.Register(Name, func(arg string) (source.ImageSource, error) {
		cfg, err := ParseArgument(arg)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return NewS3Source(ctx, cfg)
	})
}

/*
ObjectAPI is the subset of the S3 client used by S3Source.
*/
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	manager.DownloadAPIClient
}

type S3SourceConfig struct {
	Bucket  string
	Prefix  string
	Profile string

	// Client overrides the client built from the shared AWS configuration
	Client ObjectAPI
}

type S3Source struct {
	bucket     string
	prefix     string
	client     ObjectAPI
	downloader *manager.Downloader

	mu       sync.RWMutex
	modTimes map[string]time.Time
}

/*
ParseArgument splits a source argument of the form
"bucket[/prefix][?profile=name]".
*/
func ParseArgument(arg string) (S3SourceConfig, error) {
	var (
		err   error
		query url.Values
	)

	result := S3SourceConfig{}
	location, rawQuery, _ := strings.Cut(arg, "?")

	if query, err = url.ParseQuery(rawQuery); err != nil {
		return result, fmt.Errorf("%w '%s': %w", ErrInvalidArgument, arg, err)
	}

	result.Bucket, result.Prefix, _ = strings.Cut(strings.Trim(location, "/"), "/")
	result.Profile = query.Get("profile")

	if result.Bucket == "" {
		return result, fmt.Errorf("%w '%s': missing bucket", ErrInvalidArgument, arg)
	}

	return result, nil
}

func NewS3Source(ctx context.Context, cfg S3SourceConfig) (*S3Source, error) {
	client := cfg.Client

	if client == nil {
		options := []func(*config.LoadOptions) error{}

		if cfg.Profile != "" {
			options = append(options, config.WithSharedConfigProfile(cfg.Profile))
		}

		awsConfig, err := config.LoadDefaultConfig(ctx, options...)
		if err != nil {
			return nil, fmt.Errorf("error loading aws configuration: %w", err)
		}

		client = s3.NewFromConfig(awsConfig)
	}

	return &S3Source{
		bucket:     cfg.Bucket,
		prefix:     cfg.Prefix,
		client:     client,
		downloader: manager.NewDownloader(client),
		modTimes:   map[string]time.Time{},
	}, nil
}

/*
ModTimes lists every supported image under the configured prefix.
*/
func (s *S3Source) ModTimes(ctx context.Context) (map[string]time.Time, error) {
	result := map[string]time.Time{}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}

	if s.prefix != "" {
		input.Prefix = aws.String(s.prefix)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, input)

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return result, fmt.Errorf("error listing bucket '%s': %w", s.bucket, err)
		}

		for _, object := range page.Contents {
			key := aws.ToString(object.Key)

			if !supportedExtensions.Contains(strings.ToLower(path.Ext(key))) {
				continue
			}

			result[s.id(key)] = aws.ToTime(object.LastModified)
		}
	}

	s.mu.Lock()
	s.modTimes = result
	s.mu.Unlock()

	slog.Debug("listed s3 images", "bucket", s.bucket, "prefix", s.prefix, "count", len(result))
	return result, nil
}

/*
Info downloads the object and reads its metadata.
*/
func (s *S3Source) Info(ctx context.Context, id string) (source.ImageInfo, error) {
	var (
		err error
		key string
	)

	if key, err = s.key(id); err != nil {
		return source.ImageInfo{}, err
	}

	buf := manager.NewWriteAtBuffer([]byte{})

	if _, err = s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return source.ImageInfo{}, fmt.Errorf("error downloading '%s': %w", id, err)
	}

	s.mu.RLock()
	modTime := s.modTimes[id]
	s.mu.RUnlock()

	return source.InfoFromReader(modTime, bytes.NewReader(buf.Bytes()))
}

func (s *S3Source) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	var (
		err    error
		key    string
		output *s3.GetObjectOutput
	)

	if key, err = s.key(id); err != nil {
		return nil, err
	}

	if output, err = s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("error fetching '%s': %w", id, err)
	}

	return output.Body, nil
}

func (s *S3Source) Close() error {
	return nil
}

func (s *S3Source) id(key string) string {
	return prefix + s.bucket + "/" + key
}

func (s *S3Source) key(id string) (string, error) {
	bucketPrefix := prefix + s.bucket + "/"

	if !strings.HasPrefix(id, bucketPrefix) {
		return "", fmt.Errorf("%w: %s", source.ErrUnknownImage, id)
	}

	key := strings.TrimPrefix(id, bucketPrefix)

	if s.prefix != "" && !strings.HasPrefix(key, s.prefix) {
		return "", fmt.Errorf("%w: %s", source.ErrUnknownImage, id)
	}

	return key, nil
}

package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// maxResourceSize caps how much of a calibration resource is read.
const maxResourceSize = 32 << 20

// ErrUnsupportedScheme is returned for source URIs no fetcher handles.
var ErrUnsupportedScheme = errors.New("unsupported source scheme")

// S3Getter is the subset of the S3 client used to read calibration objects.
type S3Getter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options configures the lazily built S3 client.
type S3Options struct {
	Region    string
	Endpoint  string
	PathStyle bool
}

// Fetcher reads calibration resources from local files, HTTP(S) or S3.
type Fetcher struct {
	httpClient *http.Client

	s3Opts  S3Options
	s3Mu    sync.Mutex
	s3      S3Getter
	buildS3 func(context.Context, S3Options) (S3Getter, error)
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.httpClient = c }
}

// WithS3 configures the S3 client built on first s3:// fetch.
func WithS3(opts S3Options) FetcherOption {
	return func(f *Fetcher) { f.s3Opts = opts }
}

// WithS3Getter injects a ready S3 client.
func WithS3Getter(g S3Getter) FetcherOption {
	return func(f *Fetcher) { f.s3 = g }
}

// NewFetcher creates a Fetcher. timeout bounds HTTP requests; zero means 30s.
func NewFetcher(timeout time.Duration, opts ...FetcherOption) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	f := &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		buildS3: func(ctx context.Context, opts S3Options) (S3Getter, error) {
			return NewS3Client(ctx, opts)
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the raw bytes behind uri. Plain paths and file:// read the
// local filesystem, http(s):// issues a GET and s3://bucket/key reads an object.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare path, including Windows drive letters
		return readFile(uri)
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		path := u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = "//" + u.Host + u.Path
		}
		return readFile(path)
	case "http", "https":
		return f.fetchHTTP(ctx, uri)
	case "s3":
		return f.fetchS3(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxResourceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calibration request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("calibration request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, nil
}

func (f *Fetcher) fetchS3(ctx context.Context, bucket, key string) ([]byte, error) {
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 source needs s3://bucket/key, got bucket=%q key=%q", bucket, key)
	}

	client, err := f.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get object %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxResourceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read s3 object body: %w", err)
	}
	return data, nil
}

// s3Client builds the client on first use. A failed build is retried on the
// next fetch so a later reload can pick up fixed credentials.
func (f *Fetcher) s3Client(ctx context.Context) (S3Getter, error) {
	f.s3Mu.Lock()
	defer f.s3Mu.Unlock()
	if f.s3 != nil {
		return f.s3, nil
	}
	client, err := f.buildS3(ctx, f.s3Opts)
	if err != nil {
		return nil, err
	}
	f.s3 = client
	return client, nil
}

// NewS3Client builds an S3 client from the default credential chain.
func NewS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.PathStyle
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	}), nil
}

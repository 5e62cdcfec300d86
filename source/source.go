// Package source reads and writes change content at local paths and
// file://, http(s):// and s3:// URLs.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds optional S3 settings. Empty fields fall back to the AWS
// default configuration chain.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // custom S3-compatible endpoint
}

// Scheme is the kind of location a source URL names
type Scheme string

const (
	SchemeFile  Scheme = "file"
	SchemeS3    Scheme = "s3"
	SchemeHTTP  Scheme = "http"
	SchemeHTTPS Scheme = "https"
	SchemeLocal Scheme = "local" // no scheme, local path
)

// HTTPTimeout bounds a single HTTP fetch
var HTTPTimeout = 5 * time.Minute

// DetectScheme returns the scheme of location
func DetectScheme(location string) Scheme {
	lower := strings.ToLower(location)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return SchemeS3
	case strings.HasPrefix(lower, "https://"):
		return SchemeHTTPS
	case strings.HasPrefix(lower, "http://"):
		return SchemeHTTP
	case strings.HasPrefix(lower, "file://"):
		return SchemeFile
	default:
		return SchemeLocal
	}
}

// Open returns a reader for location
func Open(ctx context.Context, location string, cfg *S3Config) (io.ReadCloser, error) {
	switch scheme := DetectScheme(location); scheme {
	case SchemeLocal, SchemeFile:
		return os.Open(localPath(location, scheme))
	case SchemeHTTP, SchemeHTTPS:
		return openHTTPReader(ctx, location)
	case SchemeS3:
		return openS3Reader(ctx, location, cfg)
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s", location)
	}
}

// Create returns a writer for location. HTTP locations are read-only.
func Create(ctx context.Context, location string, cfg *S3Config) (io.WriteCloser, error) {
	switch scheme := DetectScheme(location); scheme {
	case SchemeLocal, SchemeFile:
		return os.Create(localPath(location, scheme))
	case SchemeHTTP, SchemeHTTPS:
		return nil, fmt.Errorf("HTTP/HTTPS does not support writing")
	case SchemeS3:
		return openS3Writer(ctx, location, cfg)
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s", location)
	}
}

// Load reads all of location
func Load(ctx context.Context, location string, cfg *S3Config) ([]byte, error) {
	reader, err := Open(ctx, location, cfg)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", location, err)
	}
	return data, nil
}

// Store writes data to location, replacing what was there
func Store(ctx context.Context, location string, cfg *S3Config, data []byte) error {
	writer, err := Create(ctx, location, cfg)
	if err != nil {
		return err
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write %s: %w", location, err)
	}
	return writer.Close()
}

func localPath(location string, scheme Scheme) string {
	if scheme == SchemeFile {
		return location[len("file://"):]
	}
	return location
}

func openHTTPReader(ctx context.Context, url string) (io.ReadCloser, error) {
	client := &http.Client{
		Timeout: HTTPTimeout,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request returned status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// ParseS3URL splits s3://bucket/key into bucket and key
func ParseS3URL(url string) (bucket, key string, err error) {
	if DetectScheme(url) != SchemeS3 {
		return "", "", fmt.Errorf("invalid S3 URL: %s", url)
	}
	parts := strings.SplitN(url[len("s3://"):], "/", 2)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid S3 URL: %s", url)
	}
	return parts[0], parts[1], nil
}

// S3Options turns cfg into AWS config load options
func S3Options(cfg *S3Config) []func(*config.LoadOptions) error {
	var opts []func(*config.LoadOptions) error
	if cfg == nil {
		return opts
	}

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		opts = append(opts, config.WithCredentialsProvider(creds))
	}
	return opts
}

func newS3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, S3Options(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := []func(*s3.Options){}
	if cfg != nil && cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, clientOpts...), nil
}

func openS3Reader(ctx context.Context, url string, cfg *S3Config) (io.ReadCloser, error) {
	bucket, key, err := ParseS3URL(url)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get S3 object: %w", err)
	}

	return resp.Body, nil
}

// s3Writer buffers content and uploads it on Close
type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buffer bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return w.buffer.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buffer.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}
	return nil
}

func openS3Writer(ctx context.Context, url string, cfg *S3Config) (io.WriteCloser, error) {
	bucket, key, err := ParseS3URL(url)
	if err != nil {
		return nil, err
	}

	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return &s3Writer{
		ctx:    ctx,
		client: client,
		bucket: bucket,
		key:    key,
	}, nil
}

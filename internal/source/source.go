// Package source resolves document references (local paths, file://,
// http(s):// and s3:// URLs) to local files and publishes results back.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/local/cropmargins/internal/config"
)

// CroppedSuffix is appended to the input name when no output is given.
const CroppedSuffix = "_cropped"

// HTTPError represents a non-200 response while downloading a document.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
}

// Local is a resolved document on disk.
type Local struct {
	Path string
	temp bool
}

// Cleanup removes the file when it was downloaded to a temp location.
func (l *Local) Cleanup() {
	if l != nil && l.temp {
		_ = os.Remove(l.Path)
	}
}

// Fetcher downloads inputs and uploads outputs.
type Fetcher struct {
	cfg  config.StorageConfig
	http *http.Client

	s3Once sync.Once
	s3     *s3.Client
	s3Err  error
}

// New creates a fetcher for the given storage settings.
func New(cfg config.StorageConfig) *Fetcher {
	return &Fetcher{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.HTTPTimeout},
	}
}

// Fetch resolves ref to a local PDF. Downloads land in the work dir and are
// removed by Local.Cleanup.
func (f *Fetcher) Fetch(ctx context.Context, ref string) (*Local, error) {
	// Strip optional #page fragment if present
	if i := strings.Index(ref, "#"); i >= 0 {
		ref = ref[:i]
	}

	var local *Local
	var err error
	switch {
	case strings.HasPrefix(ref, "s3://"):
		local, err = f.downloadS3(ctx, ref)
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		local, err = f.downloadHTTP(ctx, ref)
	case strings.HasPrefix(ref, "file://"):
		local = &Local{Path: LocalPath(ref)}
	default:
		local = &Local{Path: ref}
	}
	if err != nil {
		return nil, err
	}

	if err := VerifyPDF(local.Path); err != nil {
		local.Cleanup()
		return nil, err
	}
	return local, nil
}

// TempFile creates an empty file in the work dir.
func (f *Fetcher) TempFile(pattern string) (string, error) {
	dir := f.cfg.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	tf, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := tf.Name()
	return name, tf.Close()
}

func (f *Fetcher) downloadHTTP(ctx context.Context, url string) (*Local, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	name, err := f.TempFile("pdfdl-*.pdf")
	if err != nil {
		return nil, err
	}
	out, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(name)
		return nil, err
	}
	log.Debug().Str("url", url).Str("file", filepath.Base(name)).Msg("downloaded pdf to temp")
	return &Local{Path: name, temp: true}, nil
}

func (f *Fetcher) downloadS3(ctx context.Context, ref string) (*Local, error) {
	bucket, key, err := ParseS3URL(ref)
	if err != nil {
		return nil, err
	}
	cli, err := f.client(ctx)
	if err != nil {
		return nil, err
	}

	// Ensure .pdf extension for pdfcpu expectations
	name, err := f.TempFile("s3pdf-*.pdf")
	if err != nil {
		return nil, err
	}
	out, err := os.Create(name)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	n, err := manager.NewDownloader(cli).Download(ctx, out, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		os.Remove(name)
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Int64("bytes", n).Str("file", filepath.Base(name)).Msg("downloaded s3 pdf to temp")
	return &Local{Path: name, temp: true}, nil
}

// Publish delivers the file at localPath to dest and returns the final
// reference. An empty dest leaves the file where it is.
func (f *Fetcher) Publish(ctx context.Context, localPath, dest string) (string, error) {
	switch {
	case dest == "" || dest == localPath:
		return localPath, nil
	case strings.HasPrefix(dest, "s3://"):
		return f.uploadS3(ctx, localPath, dest)
	case strings.HasPrefix(dest, "http://") || strings.HasPrefix(dest, "https://"):
		return "", fmt.Errorf("cannot publish to %s: http outputs are not supported", dest)
	default:
		target := LocalPath(dest)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", err
		}
		if err := moveFile(localPath, target); err != nil {
			return "", fmt.Errorf("publish %s: %w", target, err)
		}
		return target, nil
	}
}

func (f *Fetcher) uploadS3(ctx context.Context, localPath, dest string) (string, error) {
	bucket, key, err := ParseS3URL(dest)
	if err != nil {
		return "", err
	}
	cli, err := f.client(ctx)
	if err != nil {
		return "", err
	}
	in, err := os.Open(localPath)
	if err != nil {
		return "", err
	}
	defer in.Close()

	_, err = manager.NewUploader(cli).Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        in,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	log.Info().Str("bucket", bucket).Str("key", key).Msg("uploaded cropped pdf")
	return "s3://" + bucket + "/" + key, nil
}

// CheckBucket verifies the output bucket is reachable.
func (f *Fetcher) CheckBucket(ctx context.Context) error {
	if f.cfg.OutputBucket == "" {
		return nil
	}
	cli, err := f.client(ctx)
	if err != nil {
		return err
	}
	_, err = cli.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(f.cfg.OutputBucket)})
	return err
}

// OutputRef derives where the cropped copy of input goes when the caller
// did not say: the output bucket for s3 inputs when one is configured,
// otherwise next to the input (or in the work dir for remote inputs).
func (f *Fetcher) OutputRef(input string) string {
	name := CroppedName(input)

	switch {
	case strings.HasPrefix(input, "s3://"):
		if f.cfg.OutputBucket != "" {
			return "s3://" + f.cfg.OutputBucket + "/" + f.cfg.OutputPrefix + name
		}
		bucket, key, err := ParseS3URL(input)
		if err == nil {
			dir := ""
			if i := strings.LastIndex(key, "/"); i >= 0 {
				dir = key[:i+1]
			}
			return "s3://" + bucket + "/" + dir + name
		}
		return filepath.Join(f.workDir(), name)
	case strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://"):
		return filepath.Join(f.workDir(), name)
	default:
		return filepath.Join(filepath.Dir(LocalPath(input)), name)
	}
}

func (f *Fetcher) workDir() string {
	if f.cfg.WorkDir != "" {
		return f.cfg.WorkDir
	}
	return os.TempDir()
}

// client lazily builds the S3 client. Static credentials, when configured,
// take precedence over the default chain.
func (f *Fetcher) client(ctx context.Context) (*s3.Client, error) {
	f.s3Once.Do(func() {
		opts := []func(*awscfg.LoadOptions) error{}
		if f.cfg.Region != "" {
			opts = append(opts, awscfg.WithRegion(f.cfg.Region))
		}
		if f.cfg.AccessKeyID != "" && f.cfg.SecretAccessKey != "" {
			opts = append(opts, awscfg.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(f.cfg.AccessKeyID, f.cfg.SecretAccessKey, ""),
			))
		}
		awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			f.s3Err = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}
		f.s3 = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if f.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(f.cfg.Endpoint)
			}
			o.UsePathStyle = f.cfg.UsePathStyle
		})
	})
	return f.s3, f.s3Err
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(ref string) (bucket, key string, err error) {
	path := strings.TrimPrefix(ref, "s3://")
	slash := strings.Index(path, "/")
	if !strings.HasPrefix(ref, "s3://") || slash <= 0 || slash == len(path)-1 {
		return "", "", fmt.Errorf("invalid s3 url: %s", ref)
	}
	return path[:slash], path[slash+1:], nil
}

func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

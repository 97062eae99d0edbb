package export

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"

	"github.com/sells-group/envprep/internal/config"
	"github.com/sells-group/envprep/internal/plan"
	"github.com/sells-group/envprep/internal/resilience"
)

// ObjectPutter is the part of *minio.Client the S3 destination uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// NewS3Client builds a minio client from config.
func NewS3Client(cfg config.S3Config) (*minio.Client, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "export: s3 client for %s", cfg.Endpoint)
	}
	return c, nil
}

// S3 uploads artifacts to a bucket under an optional key prefix.
type S3 struct {
	client ObjectPutter
	bucket string
	prefix string
	retry  resilience.RetryConfig
}

// NewS3 returns an S3 destination. Uploads are retried on transient errors.
func NewS3(client ObjectPutter, bucket, prefix string) *S3 {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = isTransientS3
	retry.OnRetry = resilience.RetryLogger("s3", "put_object")
	return &S3{client: client, bucket: bucket, prefix: prefix, retry: retry}
}

// WithRetry overrides the upload retry policy.
func (s *S3) WithRetry(cfg resilience.RetryConfig) *S3 {
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = isTransientS3
	}
	s.retry = cfg
	return s
}

// Key returns the object key for an export spec.
func (s *S3) Key(spec plan.ExportSpec) string {
	return path.Join(s.prefix, spec.Folder, fileName(spec))
}

// Write implements Destination. The table is encoded to a temp file first so
// every attempt uploads the same bytes with a known size.
func (s *S3) Write(ctx context.Context, spec plan.ExportSpec, t Table) (Artifact, error) {
	dir, err := os.MkdirTemp("", "envprep-s3-*")
	if err != nil {
		return Artifact{}, eris.Wrap(err, "export: s3 temp dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	local := filepath.Join(dir, fileName(spec))
	if err := WriteFile(local, spec.Format, t); err != nil {
		return Artifact{}, err
	}

	f, err := os.Open(local)
	if err != nil {
		return Artifact{}, eris.Wrap(err, "export: open encoded table")
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return Artifact{}, eris.Wrap(err, "export: stat encoded table")
	}

	key := s.Key(spec)
	err = resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err := s.client.PutObject(ctx, s.bucket, key, f, info.Size(), minio.PutObjectOptions{
			ContentType: contentType(spec.Format),
		})
		return err
	})
	if err != nil {
		return Artifact{}, eris.Wrapf(err, "export: put s3://%s/%s", s.bucket, key)
	}

	return Artifact{URI: "s3://" + s.bucket + "/" + key, Rows: len(t.Rows)}, nil
}

func isTransientS3(err error) bool {
	if resilience.IsTransient(err) {
		return true
	}
	return resilience.IsTransientHTTPStatus(minio.ToErrorResponse(err).StatusCode)
}

func contentType(format string) string {
	switch format {
	case plan.FormatCSV:
		return "text/csv"
	case plan.FormatGeoJSON:
		return "application/geo+json"
	case plan.FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/docker/go-units"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/benchsubmit/pkg/config"
)

// s3API is the subset of the S3 client used by the uploader.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// s3Uploader implements Uploader for S3-compatible storage.
type s3Uploader struct {
	log    logrus.FieldLogger
	cfg    *config.S3UploadConfig
	client s3API
}

// Ensure interface compliance.
var _ Uploader = (*s3Uploader)(nil)

// NewS3Uploader creates a new S3 uploader from the given configuration.
func NewS3Uploader(
	log logrus.FieldLogger,
	cfg *config.S3UploadConfig,
) (Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	return &s3Uploader{
		log:    log.WithField("component", "s3-uploader"),
		cfg:    cfg,
		client: newS3Client(cfg),
	}, nil
}

func newS3Client(cfg *config.S3UploadConfig) *s3.Client {
	return s3.New(s3.Options{}, func(o *s3.Options) {
		if cfg.Region != "" {
			o.Region = cfg.Region
		} else {
			o.Region = "us-east-1"
		}

		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}

		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}

		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, "",
			)
		}
	})
}

// Preflight verifies S3 connectivity by writing a small test object.
func (u *s3Uploader) Preflight(ctx context.Context) error {
	content := fmt.Sprintf("benchsubmit write test: %s", time.Now().UTC().Format(time.RFC3339))

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(".benchsubmit-write-test"),
		Body:        strings.NewReader(content),
		ContentType: aws.String("text/plain"),
	})
	if err != nil {
		return fmt.Errorf("writing test object to s3://%s: %w", u.cfg.Bucket, err)
	}

	return nil
}

type localFile struct {
	path string
	key  string
	size int64
}

// Upload copies all files under localDir to
// s3://<bucket>/<prefix>/<buildIdentifier>/. Objects that already exist
// with the same size are skipped, so an interrupted submission can be
// retried without re-sending the whole run.
func (u *s3Uploader) Upload(
	ctx context.Context, localDir, buildIdentifier string,
) (string, error) {
	prefix := u.resolvePrefix(buildIdentifier)

	files, total, err := collectFiles(localDir, prefix)
	if err != nil {
		return "", err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(u.cfg.Concurrency, 1))

	var skipped atomic.Int64

	for _, f := range files {
		g.Go(func() error {
			exists, err := u.objectExists(gCtx, f.key, f.size)
			if err != nil {
				return err
			}

			if exists {
				skipped.Add(1)

				return nil
			}

			if err := u.uploadFile(gCtx, f.path, f.key); err != nil {
				return fmt.Errorf("uploading %s: %w", f.path, err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	uri := "s3://" + u.cfg.Bucket + "/" + prefix

	u.log.WithFields(logrus.Fields{
		"files":   len(files),
		"skipped": skipped.Load(),
		"size":    units.HumanSize(float64(total)),
		"uri":     uri,
	}).Info("Upload completed")

	return uri, nil
}

// collectFiles lists the regular files under localDir with their keys.
func collectFiles(localDir, prefix string) ([]localFile, int64, error) {
	var (
		files []localFile
		total int64
	)

	err := filepath.WalkDir(localDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(localDir, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}

		files = append(files, localFile{
			path: path,
			key:  prefix + "/" + filepath.ToSlash(relPath),
			size: info.Size(),
		})
		total += info.Size()

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walking directory %s: %w", localDir, err)
	}

	return files, total, nil
}

// objectExists reports whether key is already stored with the given size.
func (u *s3Uploader) objectExists(ctx context.Context, key string, size int64) (bool, error) {
	out, err := u.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(u.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}

		return false, fmt.Errorf("checking object %q: %w", key, err)
	}

	return aws.ToInt64(out.ContentLength) == size, nil
}

// uploadFile uploads a single file to S3.
func (u *s3Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath) //nolint:gosec // path comes from walking the run directory
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer func() { _ = f.Close() }()

	input := &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(detectContentType(localPath)),
	}

	if u.cfg.StorageClass != "" {
		input.StorageClass = s3types.StorageClass(u.cfg.StorageClass)
	}

	if u.cfg.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(u.cfg.ACL)
	}

	u.log.WithFields(logrus.Fields{
		"key":    key,
		"bucket": u.cfg.Bucket,
	}).Debug("Uploading file")

	if _, err := u.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("PutObject: %w", err)
	}

	return nil
}

// resolvePrefix builds the S3 key prefix for a build.
func (u *s3Uploader) resolvePrefix(buildIdentifier string) string {
	prefix := u.cfg.Prefix
	if prefix == "" {
		prefix = config.DefaultS3Prefix
	}

	return strings.TrimRight(prefix, "/") + "/" + buildIdentifier
}

// isS3NotFound returns true if the error indicates the object does not exist.
func isS3NotFound(err error) bool {
	var (
		nf  *s3types.NotFound
		nsk *s3types.NoSuchKey
	)

	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return true
	}

	// Some S3-compatible implementations return a generic error with
	// "NotFound" in the message rather than the typed error.
	msg := err.Error()

	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey")
}

// detectContentType returns a MIME type based on file extension.
func detectContentType(path string) string {
	ext := filepath.Ext(path)
	if ext == "" {
		return "application/octet-stream"
	}

	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return "application/octet-stream"
	}

	return ct
}

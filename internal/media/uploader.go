package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/ignite/signup-portal/internal/config"
	"github.com/ignite/signup-portal/internal/domain"
	"github.com/ignite/signup-portal/internal/pkg/logger"
)

// MaxUploadBytes caps accepted image payloads.
const MaxUploadBytes = 10 << 20

// KeyPrefix is the bucket folder every uploaded image lives under.
const KeyPrefix = "images/"

var (
	ErrUnsupportedImageType = errors.New("media: unsupported image type")
	ErrImageTooLarge        = errors.New("media: image exceeds 10 MB")
	ErrEmptyImage           = errors.New("media: image is empty")
	ErrInvalidStorageKey    = errors.New("media: storage key is not an uploaded image")
)

var supportedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ObjectStore is the subset of the S3 API the uploader needs.
// *s3.Client satisfies it.
type ObjectStore interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Uploader stores images in a bucket and describes them as ImageReferences.
type Uploader struct {
	store     ObjectStore
	bucket    string
	cdnDomain string
	region    string
}

// NewUploader creates an Uploader over an existing object store.
func NewUploader(store ObjectStore, cfg config.StorageConfig) *Uploader {
	return &Uploader{
		store:     store,
		bucket:    cfg.S3Bucket,
		cdnDomain: cfg.CDNDomain,
		region:    cfg.AWSRegion,
	}
}

// NewS3Uploader builds an S3 client from cfg. Static credentials are used
// when both keys are set; otherwise the default credential chain applies.
func NewS3Uploader(ctx context.Context, cfg config.StorageConfig) (*Uploader, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewUploader(s3.NewFromConfig(awsCfg), cfg), nil
}

// Upload stores the image read from r and returns its reference. The blur
// placeholder is left absent when it cannot be generated.
func (u *Uploader) Upload(ctx context.Context, filename string, r io.Reader) (*domain.ImageReference, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrImageTooLarge
	}

	contentType := detectContentType(data)
	ext, ok := supportedImageTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImageType, contentType)
	}

	key := KeyPrefix + uuid.New().String() + ext
	_, err = u.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000"),
		Metadata:     map[string]string{"original-filename": sanitizeFilename(filename)},
	})
	if err != nil {
		return nil, fmt.Errorf("uploading %s: %w", key, err)
	}

	ref := &domain.ImageReference{
		URL:   u.publicURL(key),
		UTKey: aws.String(key),
	}
	if blur, err := BlurPlaceholder(data); err != nil {
		logger.Warn("blur placeholder skipped", "object", key, "error", err)
	} else {
		ref.BlurData = aws.String(blur)
	}

	logger.Info("image uploaded", "object", key, "bytes", len(data), "content_type", contentType)
	return ref, nil
}

// Delete removes the object named by ref's storage key. References
// without a storage key are left alone.
func (u *Uploader) Delete(ctx context.Context, ref domain.ImageReference) error {
	if ref.UTKey == nil || *ref.UTKey == "" {
		return nil
	}
	if err := validateKey(*ref.UTKey); err != nil {
		return err
	}
	_, err := u.store.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    ref.UTKey,
	})
	if err != nil {
		return fmt.Errorf("deleting %s: %w", *ref.UTKey, err)
	}
	logger.Info("image deleted", "object", *ref.UTKey)
	return nil
}

// validateKey only admits keys Upload could have produced, so a caller
// cannot name arbitrary objects in the bucket.
func validateKey(key string) error {
	name, ok := strings.CutPrefix(key, KeyPrefix)
	if !ok || name == "" || strings.Contains(key, "..") || strings.ContainsAny(name, "/\\") {
		return fmt.Errorf("%w: %q", ErrInvalidStorageKey, key)
	}
	return nil
}

func (u *Uploader) publicURL(key string) string {
	if u.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", u.cdnDomain, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
}

func detectContentType(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 8 && bytes.Equal(data[:8], []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}):
		return "image/png"
	case len(data) >= 6 && (bytes.Equal(data[:6], []byte("GIF87a")) || bytes.Equal(data[:6], []byte("GIF89a"))):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}
	return "application/octet-stream"
}

func sanitizeFilename(filename string) string {
	name := filepath.Base(filename)
	if name == "." || name == "/" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, name)
}

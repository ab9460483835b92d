package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	aws_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kaanagar1/equimarket-sub000/internal/config"
)

const presignExpiry = 15 * time.Minute

// ErrUnsupportedType is returned for uploads that are not listing images.
var ErrUnsupportedType = errors.New("unsupported image type")

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// IS3Storage stores listing images.
type IS3Storage interface {
	// PresignImageUpload returns a PUT URL and the object key the client must upload to.
	PresignImageUpload(ctx context.Context, sellerID, listingID, filename, contentType string) (url, key string, err error)
	GetObject(ctx context.Context, key string) (body []byte, contentType string, err error)
	PutObject(ctx context.Context, key string, body []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
	// OwnsKey reports whether key lies under the upload prefix of the listing.
	OwnsKey(listingID, key string) bool
}

type s3Storage struct {
	bucket        string
	s3Client      *s3.Client
	presignClient *s3.PresignClient
	logger        *zap.Logger
}

// NewS3Storage creates the S3-backed image store.
func NewS3Storage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (IS3Storage, error) {
	if cfg.AwsS3Bucket == "" {
		return nil, errors.New("AWS_S3_BUCKET is not configured")
	}
	opts := []func(*aws_config.LoadOptions) error{aws_config.WithRegion(cfg.AwsRegion)}
	if cfg.AwsAccessKeyID != "" {
		opts = append(opts, aws_config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AwsAccessKeyID, cfg.AwsSecretAccessKey, ""),
		))
	}
	awsCfg, err := aws_config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg)
	return &s3Storage{
		bucket:        cfg.AwsS3Bucket,
		s3Client:      client,
		presignClient: s3.NewPresignClient(client),
		logger:        logger.Named("s3"),
	}, nil
}

func listingPrefix(listingID string) string {
	return "listings/" + listingID + "/"
}

// ImageKey builds the object key of a new listing image.
func ImageKey(sellerID, listingID, filename, contentType string) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(contentType)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, base)
	if len(base) > 40 {
		base = base[:40]
	}
	name := uuid.NewString()
	if base != "" {
		name += "_" + base
	}
	return listingPrefix(listingID) + sellerID + "/" + name + ext, nil
}

func (s *s3Storage) OwnsKey(listingID, key string) bool {
	return strings.HasPrefix(key, listingPrefix(listingID)) && !strings.Contains(key, "..")
}

func (s *s3Storage) PresignImageUpload(ctx context.Context, sellerID, listingID, filename, contentType string) (string, string, error) {
	key, err := ImageKey(sellerID, listingID, filename, contentType)
	if err != nil {
		return "", "", err
	}
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", "", fmt.Errorf("failed to generate presigned PUT URL for key %s: %w", key, err)
	}
	s.logger.Debug("presigned image upload", zap.String("key", key))
	return req.URL, key, nil
}

func (s *s3Storage) GetObject(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, "", fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read object %s: %w", key, err)
	}
	return body, aws.ToString(out.ContentType), nil
}

func (s *s3Storage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

func (s *s3Storage) DeleteObject(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

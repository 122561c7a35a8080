// Package storage keeps the image preview attached to a report.
package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/waste-report/internal/classifier"
	"github.com/example/waste-report/internal/logging"
)

// ImageStore persists an encoded image and returns the URL saved on the
// report.
type ImageStore interface {
	Store(ctx context.Context, userID uint, image classifier.Image) (string, error)
}

// InlineStore keeps the preview in the report row as a data: URL.
type InlineStore struct{}

// Store returns the image as a data: URL.
func (InlineStore) Store(_ context.Context, _ uint, image classifier.Image) (string, error) {
	return image.DataURL(), nil
}

// PutObjectAPI is the part of the S3 client S3Store needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads previews to an S3 bucket.
type S3Store struct {
	client PutObjectAPI
	bucket string
	prefix string
	region string
	logger *zap.Logger
}

// NewS3Store creates an S3 backed store. region is used only to build the
// returned object URL.
func NewS3Store(client PutObjectAPI, bucket, prefix, region string, logger *zap.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
		logger: logger.Named("storage.s3"),
	}
}

// Store uploads the decoded image under <prefix>/<userID>/<uuid><ext>.
func (s *S3Store) Store(ctx context.Context, userID uint, image classifier.Image) (string, error) {
	data, err := base64.StdEncoding.DecodeString(image.Base64)
	if err != nil {
		return "", logging.NewOperationError("storage.s3.decode_image", "", err)
	}

	key := s.objectKey(userID, image.MIMEType)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(image.MIMEType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		wrapped := logging.NewOperationError("storage.s3.put_object", "", err)
		s.logger.Error("failed to upload report image", zap.Error(wrapped), zap.String("key", key))
		return "", wrapped
	}
	return s.objectURL(key), nil
}

func (s *S3Store) objectKey(userID uint, mimeType string) string {
	ext := ""
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		ext = exts[0]
	}
	return path.Join(s.prefix, fmt.Sprint(userID), uuid.NewString()+ext)
}

func (s *S3Store) objectURL(key string) string {
	if s.region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

package attachments

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/wolfman30/medicare-assistant/internal/appointment"
	"github.com/wolfman30/medicare-assistant/internal/conversation"
	"github.com/wolfman30/medicare-assistant/pkg/logging"
)

const (
	keyPrefix      = "medical-records"
	downloadExpiry = 7 * 24 * time.Hour
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner issues time-limited download links. *s3.PresignClient satisfies it.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store uploads patients' medical records to S3.
type Store struct {
	bucket    string
	s3Client  S3API
	presigner Presigner
	now       func() time.Time
	logger    *logging.Logger
}

var _ conversation.AttachmentUploader = (*Store)(nil)

// NewStore creates an attachment Store. presigner may be nil, in which case
// records are addressed by their s3:// URI.
func NewStore(s3Client S3API, presigner Presigner, bucket string, logger *logging.Logger) *Store {
	if s3Client == nil {
		panic("attachments: s3 client cannot be nil")
	}
	if bucket == "" {
		panic("attachments: bucket cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:    bucket,
		s3Client:  s3Client,
		presigner: presigner,
		now:       time.Now,
		logger:    logger,
	}
}

// Upload writes file under medical-records/<owner>/<unixMillis>_<name>.
func (s *Store) Upload(ctx context.Context, ownerID string, file conversation.Upload) (appointment.Attachment, error) {
	if strings.TrimSpace(ownerID) == "" {
		return appointment.Attachment{}, appointment.ErrAuthRequired
	}
	name := cleanName(file.Name)
	if name == "" {
		return appointment.Attachment{}, fmt.Errorf("attachments: file name required: %w", appointment.ErrValidation)
	}
	if file.Body == nil {
		return appointment.Attachment{}, errors.New("attachments: file body required")
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := ObjectKey(ownerID, name, s.now())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file.Body,
		ContentType: aws.String(contentType),
		Metadata:    map[string]string{"owner-id": ownerID, "original-name": name},
	}
	if file.Size > 0 {
		input.ContentLength = aws.Int64(file.Size)
	}
	if _, err := s.s3Client.PutObject(ctx, input); err != nil {
		return appointment.Attachment{}, fmt.Errorf("attachments: s3 put %s: %w", key, err)
	}

	url, err := s.downloadURL(ctx, key)
	if err != nil {
		return appointment.Attachment{}, err
	}
	s.logger.Info("medical record uploaded", "owner_id", ownerID, "s3_key", key, "size", file.Size)
	return appointment.Attachment{Name: name, URL: url, MimeType: contentType}, nil
}

func (s *Store) downloadURL(ctx context.Context, key string) (string, error) {
	if s.presigner == nil {
		return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
	}
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(downloadExpiry))
	if err != nil {
		return "", fmt.Errorf("attachments: presign %s: %w", key, err)
	}
	return req.URL, nil
}

// ObjectKey builds the S3 key for a record uploaded by owner at t.
func ObjectKey(ownerID, name string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%d_%s", keyPrefix, ownerID, t.UnixMilli(), name)
}

func cleanName(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	base := path.Base(name)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

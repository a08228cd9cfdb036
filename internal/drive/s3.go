package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/yanizio/mqa/internal/record"
)

// S3Options configures the S3 backend.
type S3Options struct {
	Bucket        string
	Region        string
	Endpoint      string // optional, for S3-compatible services
	AccessKeyID   string
	SecretKey     string
	UsePathStyle  bool
	PublicBaseURL string // objects are linked as <PublicBaseURL>/<key>
}

// S3 uploads to an S3-compatible bucket.
type S3 struct {
	client  *s3.Client
	bucket  string
	baseURL string
}

// NewS3 builds an S3 uploader with static credentials.
func NewS3(ctx context.Context, o S3Options) (*S3, error) {
	if strings.TrimSpace(o.Bucket) == "" {
		return nil, errors.New("drive: s3 bucket is not configured")
	}
	if strings.TrimSpace(o.PublicBaseURL) == "" {
		return nil, errors.New("drive: s3 public_base_url is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(o.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(so *s3.Options) {
		so.UsePathStyle = o.UsePathStyle
		if o.Endpoint != "" {
			so.BaseEndpoint = aws.String(o.Endpoint)
		}
	})

	return &S3{
		client:  client,
		bucket:  o.Bucket,
		baseURL: strings.TrimSuffix(o.PublicBaseURL, "/"),
	}, nil
}

func (s *S3) Upload(ctx context.Context, data []byte, filename, mime string) (record.Attachment, error) {
	if len(data) == 0 {
		return record.Attachment{}, ErrEmptyFile
	}
	mime = DetectMIME(data, mime)
	id := NewID()
	key := objectKey(id, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mime),
	})
	if err != nil {
		return record.Attachment{}, fmt.Errorf("s3 put %s: %w", key, err)
	}

	url := s.baseURL + "/" + key
	return record.Attachment{
		ID:       id,
		Name:     filename,
		MIME:     mime,
		ViewURL:  url,
		EmbedURL: url,
		IsImage:  IsImage(mime),
	}, nil
}

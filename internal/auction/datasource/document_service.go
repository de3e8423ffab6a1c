package datasource

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"auctionworker/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DocumentService stores a file and returns the URL it can be fetched from.
type DocumentService interface {
	Upload(ctx context.Context, name string, content []byte) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3DocumentService keeps audit files in an S3 compatible bucket.
type S3DocumentService struct {
	client  objectPutter
	bucket  string
	baseURL string
}

func NewS3DocumentService(ctx context.Context, cfg *config.Config) (*S3DocumentService, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.DocServiceRegion),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.DocServiceKey, cfg.DocServiceSecret, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load document service config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.DocServiceURL != "" {
			o.BaseEndpoint = aws.String(cfg.DocServiceURL)
			o.UsePathStyle = true
		}
	})

	baseURL := cfg.DocServiceURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.DocServiceRegion)
	}
	return newS3DocumentService(client, cfg.DocServiceBucket, baseURL), nil
}

func newS3DocumentService(client objectPutter, bucket, baseURL string) *S3DocumentService {
	return &S3DocumentService{
		client:  client,
		bucket:  bucket,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *S3DocumentService) Upload(ctx context.Context, name string, content []byte) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(name),
		Body:        bytes.NewReader(content),
		ContentType: aws.String("application/yaml"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, s.bucket, name), nil
}

// utils/r2.go
package utils

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"civic-task-engine/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of the S3 client the photo store needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// R2PhotoStore uploads proof photos to a Cloudflare R2 bucket.
type R2PhotoStore struct {
	Client     ObjectPutter
	Bucket     string
	CDNBaseURL string
}

// NewR2PhotoStore builds an S3 client against the account's R2 endpoint.
func NewR2PhotoStore(ctx context.Context, cfg config.R2Config) (*R2PhotoStore, error) {
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.AccessKeySecret, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	cdn := cfg.CDNBaseURL
	if cdn == "" {
		cdn = endpoint + "/" + cfg.Bucket
	}
	return &R2PhotoStore{Client: client, Bucket: cfg.Bucket, CDNBaseURL: cdn}, nil
}

// UploadProofPhoto stores the file under proofs/<user>/ and returns its public URL.
func (s *R2PhotoStore) UploadProofPhoto(ctx context.Context, userID string, fileHeader *multipart.FileHeader) (string, error) {
	key, err := ProofPhotoKey(userID, fileHeader)
	if err != nil {
		return "", err
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(fileHeader.Size),
		ContentType:   aws.String(fileHeader.Header.Get("Content-Type")),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to R2: %w", err)
	}

	return strings.TrimRight(s.CDNBaseURL, "/") + "/" + key, nil
}

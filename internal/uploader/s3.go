package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"attach-go/internal/config"
	"attach-go/internal/intake"
)

// S3 stores images in an S3 bucket, keyed by content hash.
type S3 struct {
	uploader      *manager.Uploader
	bucket        string
	prefix        string
	region        string
	publicBaseURL string
}

var _ intake.Uploader = (*S3)(nil)

// NewS3 creates an S3 uploader. Static credentials are used when configured;
// otherwise the default AWS credential chain applies.
func NewS3(ctx context.Context, cfg config.UploaderConfig, timeout time.Duration) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{
		uploader:      manager.NewUploader(client),
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		region:        awsCfg.Region,
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

func (u *S3) Tag() string { return "s3" }

func (u *S3) Upload(ctx context.Context, data []byte, filename string) (*intake.UploadResult, error) {
	key, err := objectKey(u.prefix, data, filename)
	if err != nil {
		return nil, err
	}

	out, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimetype.Detect(data).String()),
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) {
			return nil, intake.NewUploadRejectedError(re.HTTPStatusCode(), re.Error())
		}
		return nil, fmt.Errorf("uploading %s to s3: %w", key, err)
	}

	return &intake.UploadResult{URL: u.objectURL(key, out.Location), PublicID: key}, nil
}

func (u *S3) objectURL(key, location string) string {
	switch {
	case u.publicBaseURL != "":
		return publicURL(u.publicBaseURL, key)
	case location != "":
		return location
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key)
	}
}

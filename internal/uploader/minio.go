package uploader

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"attach-go/internal/config"
	"attach-go/internal/intake"
)

// MinIO stores images in a bucket of an S3-compatible server, keyed by content hash.
type MinIO struct {
	client        *minio.Client
	bucket        string
	prefix        string
	publicBaseURL string
}

var _ intake.Uploader = (*MinIO)(nil)

// NewMinIO creates a MinIO client from the uploader config.
func NewMinIO(cfg config.UploaderConfig, timeout time.Duration) (*MinIO, error) {
	transport, err := minio.DefaultTransport(cfg.UseSSL)
	if err != nil {
		return nil, fmt.Errorf("init minio transport: %w", err)
	}
	transport.ResponseHeaderTimeout = timeout

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:    cfg.UseSSL,
		Region:    cfg.Region,
		Transport: transport,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &MinIO{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		publicBaseURL: cfg.PublicBaseURL,
	}, nil
}

func (u *MinIO) Tag() string { return "minio" }

func (u *MinIO) Upload(ctx context.Context, data []byte, filename string) (*intake.UploadResult, error) {
	key, err := objectKey(u.prefix, data, filename)
	if err != nil {
		return nil, err
	}

	opts := minio.PutObjectOptions{ContentType: mimetype.Detect(data).String()}
	_, err = u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
			msg := resp.Message
			if msg == "" {
				msg = resp.Code
			}
			return nil, intake.NewUploadRejectedError(resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("upload object %s: %w", key, err)
	}

	base := u.publicBaseURL
	if base == "" {
		base = u.client.EndpointURL().String() + "/" + u.bucket
	}
	return &intake.UploadResult{URL: publicURL(base, key), PublicID: key}, nil
}

// Package r2 stores blobs in Cloudflare R2 through its S3 API.
package r2

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"staging-studio-backend/internal/blob"
)

type Client struct {
	client       *minio.Client
	bucket       string
	publicDomain string
	baseURL      string
}

// NewClient connects to endpoint (host only, no scheme). Objects are
// addressed through publicDomain when set, otherwise through the media
// proxy under baseURL.
func NewClient(endpoint, accessKey, secretKey, bucket, publicDomain, baseURL string) (*Client, error) {
	endpoint = strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://")
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: true,
		Region: "auto",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create r2 client: %w", err)
	}

	return &Client{
		client:       minioClient,
		bucket:       bucket,
		publicDomain: strings.TrimSuffix(publicDomain, "/"),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// EnsureBucket checks that the bucket exists.
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("failed to check if bucket exists: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}

func (c *Client) Put(ctx context.Context, path, contentType string, data []byte) (string, error) {
	_, err := c.client.PutObject(ctx, c.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}
	return PublicURL(c.publicDomain, c.baseURL, path), nil
}

func (c *Client) Get(ctx context.Context, path string) (*blob.Object, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, blob.ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return &blob.Object{Body: obj, ContentType: info.ContentType, Size: info.Size}, nil
}

// PublicURL builds the address clients use to fetch path.
func PublicURL(publicDomain, baseURL, path string) string {
	if publicDomain != "" {
		return fmt.Sprintf("https://%s/%s", publicDomain, path)
	}
	return fmt.Sprintf("%s/api/media?path=%s", baseURL, url.QueryEscape(path))
}

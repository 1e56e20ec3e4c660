// Package objstore 封装 MinIO 对象存储客户端，存放用户头像
package objstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"contacts-api/internal/config"
)

// Client MinIO 客户端封装
type Client struct {
	mc      *minio.Client
	bucket  string
	baseURL string // 对外可见的访问基址，头像 URL 以此开头
}

// NewClient 创建 MinIO 客户端
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "contacts-api"
	}

	baseURL := cfg.PublicURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = scheme + "://" + cfg.Endpoint
	}

	return &Client{mc: mc, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// EnsureBucket 确保 bucket 存在且对象可匿名读取
//
// 头像通过公开 URL 引用，bucket 需要 public-read 策略。
func (c *Client) EnsureBucket(ctx context.Context) error {
	exists, err := c.mc.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := c.mc.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("[minio] Created bucket: %s", c.bucket)

		policy := fmt.Sprintf(`{
			"Version": "2012-10-17",
			"Statement": [{
				"Effect": "Allow",
				"Principal": {"AWS": ["*"]},
				"Action": ["s3:GetObject"],
				"Resource": ["arn:aws:s3:::%s/*"]
			}]
		}`, c.bucket)
		if err := c.mc.SetBucketPolicy(ctx, c.bucket, policy); err != nil {
			return fmt.Errorf("set bucket policy: %w", err)
		}
	}
	return nil
}

// UploadAvatar 上传用户头像并返回公开访问 URL
//
// 对象键按用户固定为 avatars/<id>，重复上传即覆盖，URL 保持稳定。
func (c *Client) UploadAvatar(ctx context.Context, userID int64, reader io.Reader, size int64, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := fmt.Sprintf("avatars/%d", userID)
	_, err := c.mc.PutObject(ctx, c.bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.bucket, key), nil
}

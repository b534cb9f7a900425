package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"video-publisher/internal"
)

type Client interface {
	PutBytes(ctx context.Context, key string, b []byte, contentType string) error
	GetBytes(ctx context.Context, key string) ([]byte, string, error)
	GetReader(ctx context.Context, key string) (*ObjectReader, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Copy(ctx context.Context, srcKey, dstKey string) error

	// Upload and Download go through the multipart transfer managers; use them for video payloads.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)

	ReadJSON(ctx context.Context, key string, out any) (bool, error)
	WriteJSON(ctx context.Context, key string, v any) error
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

type ObjectReader struct {
	Reader io.ReadCloser
	Size   int64
}

type s3Client struct {
	bucket string
	api    *awss3.Client
	upl    *manager.Uploader
	dl     *manager.Downloader
}

func New(cfg internal.Config) (Client, error) {
	endpoint := cfg.S3Endpoint
	forcePathStyle := true
	if strings.Contains(endpoint, "amazonaws.com") {
		forcePathStyle = false
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, err
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.UsePathStyle = forcePathStyle
		o.BaseEndpoint = &endpoint
	})

	return &s3Client{
		bucket: cfg.S3Bucket,
		api:    client,
		upl:    manager.NewUploader(client),
		dl:     manager.NewDownloader(client),
	}, nil
}

func (c *s3Client) PutBytes(ctx context.Context, key string, b []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      &c.bucket,
		Key:         &key,
		Body:        bytes.NewReader(b),
		ContentType: &contentType,
	})
	return err
}

func (c *s3Client) GetBytes(ctx context.Context, key string) ([]byte, string, error) {
	out, err := c.api.GetObject(ctx, &awss3.GetObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return nil, "", mapNotFound(err)
	}
	defer out.Body.Close()
	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", err
	}
	return b, aws.ToString(out.ContentType), nil
}

func (c *s3Client) GetReader(ctx context.Context, key string) (*ObjectReader, error) {
	out, err := c.api.GetObject(ctx, &awss3.GetObjectInput{Bucket: &c.bucket, Key: &key})
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &ObjectReader{
		Reader: out.Body,
		Size:   aws.ToInt64(out.ContentLength),
	}, nil
}

func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &awss3.DeleteObjectInput{Bucket: &c.bucket, Key: &key})
	return err
}

func (c *s3Client) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	p := awss3.NewListObjectsV2Paginator(c.api, &awss3.ListObjectsV2Input{Bucket: &c.bucket, Prefix: &prefix})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}
	}
	return out, nil
}

func (c *s3Client) Copy(ctx context.Context, srcKey, dstKey string) error {
	source := c.bucket + "/" + srcKey
	_, err := c.api.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     &c.bucket,
		Key:        &dstKey,
		CopySource: &source,
	})
	return mapNotFound(err)
}

func (c *s3Client) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	_, err := c.upl.Upload(ctx, &awss3.PutObjectInput{
		Bucket:      &c.bucket,
		Key:         &key,
		Body:        r,
		ContentType: &contentType,
	})
	return err
}

func (c *s3Client) Download(ctx context.Context, key string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := c.dl.Download(ctx, buf, &awss3.GetObjectInput{Bucket: &c.bucket, Key: &key}); err != nil {
		return nil, mapNotFound(err)
	}
	return buf.Bytes(), nil
}

func (c *s3Client) ReadJSON(ctx context.Context, key string, out any) (bool, error) {
	b, _, err := c.GetBytes(ctx, key)
	if err != nil {
		if IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, json.Unmarshal(b, out)
}

func (c *s3Client) WriteJSON(ctx context.Context, key string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return c.PutBytes(ctx, key, b, "application/json")
}

// ErrNotExist is returned for missing keys by every Client implementation.
var ErrNotExist = errors.New("not exist")

func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

func mapNotFound(err error) error {
	if err == nil {
		return nil
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return ErrNotExist
	}
	return err
}

package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"github.com/sangshuduo/yt-downloader-wasm/internal/resolver"
)

const (
	fetchTimeout = 5 * time.Minute
	contentType  = "video/mp4"
)

// Uploader streams remote video content into an S3 bucket and hands back
// public object URLs. Concurrent Store calls are independent; the uploader
// itself holds no mutable state.
type Uploader struct {
	s3     s3iface.S3API
	bucket string
	region string
	client *http.Client
	log    *logrus.Logger
}

func NewUploader(api s3iface.S3API, bucket, region string, log *logrus.Logger) *Uploader {
	return &Uploader{
		s3:     api,
		bucket: bucket,
		region: region,
		client: resolver.NewHTTPClient(fetchTimeout),
		log:    log,
	}
}

// Store downloads streamURL into a temporary file and uploads it under a key
// derived from title. The temp file is removed on success and failure alike.
// Returns the public object URL and the object key.
func (u *Uploader) Store(ctx context.Context, streamURL, title string) (publicURL, key string, err error) {
	key = objectKey(title, time.Now())

	tmp, err := os.CreateTemp("", "ytstream-*.mp4")
	if err != nil {
		return "", "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := u.fetch(ctx, streamURL, tmp)
	if err != nil {
		return "", "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", "", fmt.Errorf("rewinding temp file: %w", err)
	}

	u.log.WithFields(logrus.Fields{"key": key, "bytes": size}).Info("uploading to s3")
	_, err = u.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        tmp,
		ContentType: aws.String(contentType),
		ACL:         aws.String(s3.ObjectCannedACLPublicRead),
	})
	if err != nil {
		return "", "", fmt.Errorf("uploading to s3: %w", err)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.bucket, u.region, key), key, nil
}

func (u *Uploader) fetch(ctx context.Context, streamURL string, dst io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building fetch request: %w", err)
	}
	req.Header.Set("Range", "bytes=0-")

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching stream: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("fetching stream: unexpected status %d", resp.StatusCode)
	}

	written, err := io.Copy(dst, resp.Body)
	if err != nil {
		return 0, fmt.Errorf("fetching stream: %w", err)
	}
	return written, nil
}

package s3blob

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3 rejects multipart parts under 5 MiB, so smaller objects go up in one
// PutObject.
const partSize int64 = 5 * 1024 * 1024

// Uploader stores one object. *Writer is the S3 implementation.
type Uploader interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
}

// Writer uploads run artefacts to the report bucket.
type Writer struct {
	client   *s3.Client
	bucket   string
	uploader *manager.Uploader
}

var _ Uploader = (*Writer)(nil)

// NewWriter creates a Writer on c's bucket.
func NewWriter(c *Client) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
		uploader: manager.NewUploader(c.S3(), func(u *manager.Uploader) {
			u.PartSize = partSize
		}),
	}
}

// Upload writes body under key. Bodies larger than one part are streamed
// through the multipart upload manager.
func (w *Writer) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	}

	if int64(len(body)) > partSize {
		if _, err := w.uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
		return nil
	}
	if _, err := w.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

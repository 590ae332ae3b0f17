package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/plumed-nebula/yana/internal/instance"
)

type mockInst struct {
	mtx     sync.Mutex
	buckets map[string]map[string][]byte
}

// NewMock returns an in-memory S3 backed by a bucket -> key -> bytes map.
func NewMock(buckets map[string]map[string][]byte) (instance.S3, error) {
	if buckets == nil {
		buckets = map[string]map[string][]byte{}
	}

	return &mockInst{buckets: buckets}, nil
}

func (m *mockInst) UploadFile(ctx context.Context, input *s3manager.UploadInput) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	bucket, ok := m.buckets[aws.StringValue(input.Bucket)]
	if !ok {
		return fmt.Errorf("unknown bucket: %s", aws.StringValue(input.Bucket))
	}

	data, err := io.ReadAll(input.Body)
	if err != nil {
		return err
	}

	bucket[aws.StringValue(input.Key)] = data

	return nil
}

func (m *mockInst) DownloadFile(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	bucket, ok := m.buckets[aws.StringValue(input.Bucket)]
	if !ok {
		return fmt.Errorf("unknown bucket: %s", aws.StringValue(input.Bucket))
	}

	data, ok := bucket[aws.StringValue(input.Key)]
	if !ok {
		return fmt.Errorf("unknown key: %s", aws.StringValue(input.Key))
	}

	_, err := io.Copy(&writerAtAdapter{w: w}, bytes.NewReader(data))

	return err
}

func (m *mockInst) DeleteFile(ctx context.Context, input *s3.DeleteObjectInput) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	bucket, ok := m.buckets[aws.StringValue(input.Bucket)]
	if !ok {
		return fmt.Errorf("unknown bucket: %s", aws.StringValue(input.Bucket))
	}

	delete(bucket, aws.StringValue(input.Key))

	return nil
}

func (m *mockInst) ListBuckets(ctx context.Context) ([]string, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	buckets := make([]string, 0, len(m.buckets))
	for name := range m.buckets {
		buckets = append(buckets, name)
	}

	return buckets, nil
}

type writerAtAdapter struct {
	w   io.WriterAt
	off int64
}

func (a *writerAtAdapter) Write(p []byte) (int, error) {
	n, err := a.w.WriteAt(p, a.off)
	a.off += int64(n)

	return n, err
}

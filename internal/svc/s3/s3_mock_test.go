package s3

import (
	"bytes"
	"context"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/plumed-nebula/yana/internal/testutil"
)

func TestMockRoundTrip(t *testing.T) {
	t.Parallel()

	inst, err := NewMock(map[string]map[string][]byte{
		"media":  {},
		"backup": {},
	})
	testutil.IsNil(t, err, "mock init")

	ctx := context.Background()
	payload := []byte("compressed image bytes")

	testutil.IsNil(t, inst.UploadFile(ctx, &s3manager.UploadInput{
		Bucket:      aws.String("media"),
		Key:         aws.String("out/a.webp"),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("image/webp"),
	}), "upload")

	buf := aws.NewWriteAtBuffer(nil)
	testutil.IsNil(t, inst.DownloadFile(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String("media"),
		Key:    aws.String("out/a.webp"),
	}), "download")
	testutil.Assert(t, payload, buf.Bytes(), "round trip")

	buckets, err := inst.ListBuckets(ctx)
	testutil.IsNil(t, err, "list buckets")
	sort.Strings(buckets)
	testutil.Assert(t, []string{"backup", "media"}, buckets, "bucket names")

	testutil.IsNil(t, inst.DeleteFile(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String("media"),
		Key:    aws.String("out/a.webp"),
	}), "delete")

	err = inst.DownloadFile(ctx, aws.NewWriteAtBuffer(nil), &s3.GetObjectInput{
		Bucket: aws.String("media"),
		Key:    aws.String("out/a.webp"),
	})
	testutil.IsNotNil(t, err, "deleted key must miss")
}

func TestMockUnknownBucket(t *testing.T) {
	t.Parallel()

	inst, err := NewMock(nil)
	testutil.IsNil(t, err, "mock init")

	err = inst.UploadFile(context.Background(), &s3manager.UploadInput{
		Bucket: aws.String("nope"),
		Key:    aws.String("k"),
		Body:   bytes.NewReader([]byte("x")),
	})
	testutil.IsNotNil(t, err, "unknown bucket must fail")
}

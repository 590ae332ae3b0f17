package s3

import (
	"context"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/plumed-nebula/yana/internal/configure"
	"github.com/plumed-nebula/yana/internal/instance"
)

type s3Inst struct {
	client     *s3.S3
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

func New(cfg *configure.Config) (instance.S3, error) {
	sess, err := session.NewSession(&aws.Config{
		Region:           aws.String(cfg.S3.Region),
		Endpoint:         aws.String(cfg.S3.Endpoint),
		Credentials:      credentials.NewStaticCredentials(cfg.S3.AccessToken, cfg.S3.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}

	return &s3Inst{
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
	}, nil
}

func (a *s3Inst) UploadFile(ctx context.Context, input *s3manager.UploadInput) error {
	_, err := a.uploader.UploadWithContext(ctx, input)

	return err
}

func (a *s3Inst) DownloadFile(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput) error {
	_, err := a.downloader.DownloadWithContext(ctx, w, input)

	return err
}

func (a *s3Inst) DeleteFile(ctx context.Context, input *s3.DeleteObjectInput) error {
	_, err := a.client.DeleteObjectWithContext(ctx, input)

	return err
}

func (a *s3Inst) ListBuckets(ctx context.Context) ([]string, error) {
	out, err := a.client.ListBucketsWithContext(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}

	buckets := make([]string, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		buckets = append(buckets, aws.StringValue(b.Name))
	}

	return buckets, nil
}

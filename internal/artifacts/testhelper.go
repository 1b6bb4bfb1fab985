package artifacts

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// TestS3Sink returns a sink backed by an in-memory gofakes3 server with bucket created.
// The server is closed when the test completes.
func TestS3Sink(t testing.TB, bucket, prefix string) (*S3Sink, string) {
	t.Helper()

	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	ctx := context.Background()
	sink, err := NewS3Sink(ctx, S3Config{
		Endpoint:        ts.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      bucket,
		Prefix:          prefix,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to build S3 sink: %v", err)
	}
	if _, err := sink.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)}); err != nil {
		t.Fatalf("failed to create test bucket: %v", err)
	}
	return sink, ts.URL
}

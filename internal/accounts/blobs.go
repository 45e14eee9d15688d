package accounts

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3BlobCleaner.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// S3BlobCleaner removes every object under a user's prefix.
type S3BlobCleaner struct {
	client S3API
	bucket string
}

// NewS3BlobCleaner returns a cleaner, or nil when bucket or client is missing.
func NewS3BlobCleaner(client S3API, bucket string) *S3BlobCleaner {
	if client == nil || bucket == "" {
		return nil
	}
	return &S3BlobCleaner{client: client, bucket: bucket}
}

// DeletePrefix deletes all objects under prefix and returns the count removed. An empty
// prefix is refused so a bug can never wipe the bucket.
func (c *S3BlobCleaner) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" || prefix == "/" {
		return 0, fmt.Errorf("accounts: refusing to delete empty blob prefix")
	}

	deleted := 0
	pager := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("accounts: list %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}
		ids := make([]s3types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		out, err := c.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(c.bucket),
			Delete: &s3types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("accounts: delete objects under %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted + len(ids) - len(out.Errors), fmt.Errorf("accounts: %d objects under %s not deleted (first %s: %s)",
				len(out.Errors), prefix, aws.ToString(first.Key), aws.ToString(first.Message))
		}
		deleted += len(ids)
	}
	return deleted, nil
}

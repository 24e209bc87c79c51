package s3

import (
	"context"
	"testing"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_s3_v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3_types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeS3 struct {
	createInput *aws_s3_v2.CreateBucketInput

	pages       [][]s3_types.Object
	page        int
	deletedKeys []string
}

func (f *fakeS3) CreateBucket(ctx context.Context, input *aws_s3_v2.CreateBucketInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.CreateBucketOutput, error) {
	f.createInput = input
	return &aws_s3_v2.CreateBucketOutput{}, nil
}

func (f *fakeS3) PutBucketTagging(ctx context.Context, input *aws_s3_v2.PutBucketTaggingInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.PutBucketTaggingOutput, error) {
	return &aws_s3_v2.PutBucketTaggingOutput{}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, input *aws_s3_v2.PutObjectInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.PutObjectOutput, error) {
	return &aws_s3_v2.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, input *aws_s3_v2.ListObjectsV2Input, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.ListObjectsV2Output, error) {
	if f.page >= len(f.pages) {
		return &aws_s3_v2.ListObjectsV2Output{}, nil
	}
	out := &aws_s3_v2.ListObjectsV2Output{Contents: f.pages[f.page]}
	f.page++
	if f.page < len(f.pages) {
		out.NextContinuationToken = aws_v2.String("next")
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, input *aws_s3_v2.DeleteObjectsInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.DeleteObjectsOutput, error) {
	for _, obj := range input.Delete.Objects {
		f.deletedKeys = append(f.deletedKeys, aws_v2.ToString(obj.Key))
	}
	return &aws_s3_v2.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) DeleteBucket(ctx context.Context, input *aws_s3_v2.DeleteBucketInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.DeleteBucketOutput, error) {
	return &aws_s3_v2.DeleteBucketOutput{}, nil
}

func TestEnsureBucketLocationConstraint(t *testing.T) {
	fake := &fakeS3{}
	require.NoError(t, EnsureBucket(context.Background(), zap.NewNop(), fake, "b", "us-west-2"))
	require.NotNil(t, fake.createInput.CreateBucketConfiguration)
	assert.Equal(t, s3_types.BucketLocationConstraint("us-west-2"), fake.createInput.CreateBucketConfiguration.LocationConstraint)

	fake = &fakeS3{}
	require.NoError(t, EnsureBucket(context.Background(), zap.NewNop(), fake, "b", "us-east-1"))
	assert.Nil(t, fake.createInput.CreateBucketConfiguration)
}

func TestEmptyBucketPaginates(t *testing.T) {
	fake := &fakeS3{
		pages: [][]s3_types.Object{
			{{Key: aws_v2.String("a")}, {Key: aws_v2.String("b")}},
			{{Key: aws_v2.String("c")}},
		},
	}
	require.NoError(t, EmptyBucket(context.Background(), zap.NewNop(), fake, "b"))
	assert.Equal(t, []string{"a", "b", "c"}, fake.deletedKeys)
}

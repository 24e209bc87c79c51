// Package s3 implements S3 utilities.
package s3

import (
	"bytes"
	"context"
	"errors"
	"time"

	aws_v2 "github.com/aws/aws-sdk-go-v2/aws"
	aws_s3_v2 "github.com/aws/aws-sdk-go-v2/service/s3"
	s3_types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// API is the subset of the S3 API used by this package.
type API interface {
	CreateBucket(ctx context.Context, input *aws_s3_v2.CreateBucketInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.CreateBucketOutput, error)
	PutBucketTagging(ctx context.Context, input *aws_s3_v2.PutBucketTaggingInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.PutBucketTaggingOutput, error)
	PutObject(ctx context.Context, input *aws_s3_v2.PutObjectInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *aws_s3_v2.ListObjectsV2Input, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, input *aws_s3_v2.DeleteObjectsInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.DeleteObjectsOutput, error)
	DeleteBucket(ctx context.Context, input *aws_s3_v2.DeleteBucketInput, optFns ...func(*aws_s3_v2.Options)) (*aws_s3_v2.DeleteBucketOutput, error)
}

// EnsureBucket creates the S3 bucket if it does not exist yet.
func EnsureBucket(
	ctx context.Context,
	lg *zap.Logger,
	s3API API,
	bucket string,
	region string) error {

	lg.Info("creating S3 bucket", zap.String("s3-bucket", bucket))
	input := &aws_s3_v2.CreateBucketInput{
		Bucket: aws_v2.String(bucket),
	}
	// us-east-1 rejects an explicit location constraint
	// ref. https://github.com/boto/boto3/issues/125
	if region != "us-east-1" {
		input.CreateBucketConfiguration = &s3_types.CreateBucketConfiguration{
			LocationConstraint: s3_types.BucketLocationConstraint(region),
		}
	}
	_, err := s3API.CreateBucket(ctx, input)
	if err != nil {
		var owned *s3_types.BucketAlreadyOwnedByYou
		var exists *s3_types.BucketAlreadyExists
		switch {
		case errors.As(err, &owned):
			lg.Warn("bucket already owned by me", zap.String("s3-bucket", bucket))
			return nil
		case errors.As(err, &exists):
			lg.Warn("bucket already exists", zap.String("s3-bucket", bucket), zap.Error(err))
			return err
		default:
			lg.Warn("failed to create bucket", zap.String("s3-bucket", bucket), zap.Error(err))
			return err
		}
	}

	_, err = s3API.PutBucketTagging(ctx, &aws_s3_v2.PutBucketTaggingInput{
		Bucket: aws_v2.String(bucket),
		Tagging: &s3_types.Tagging{TagSet: []s3_types.Tag{
			{Key: aws_v2.String("Kind"), Value: aws_v2.String("aws-quicksight-tester")},
			{Key: aws_v2.String("Creation"), Value: aws_v2.String(time.Now().String())},
		}},
	})
	if err != nil {
		lg.Warn("failed to tag bucket", zap.String("s3-bucket", bucket), zap.Error(err))
		return err
	}

	lg.Info("created S3 bucket", zap.String("s3-bucket", bucket))
	return nil
}

// UploadBody uploads the body to S3.
func UploadBody(
	ctx context.Context,
	lg *zap.Logger,
	s3API API,
	bucket string,
	s3Key string,
	body []byte) error {

	lg.Info("uploading",
		zap.String("s3-bucket", bucket),
		zap.String("remote-path", s3Key),
		zap.String("size", humanize.Bytes(uint64(len(body)))),
	)
	_, err := s3API.PutObject(ctx, &aws_s3_v2.PutObjectInput{
		Bucket: aws_v2.String(bucket),
		Key:    aws_v2.String(s3Key),
		Body:   bytes.NewReader(body),
		ACL:    s3_types.ObjectCannedACLPrivate,
		Metadata: map[string]string{
			"Kind": "aws-quicksight-tester",
		},
	})
	if err != nil {
		lg.Warn("failed to upload",
			zap.String("s3-bucket", bucket),
			zap.String("remote-path", s3Key),
			zap.Error(err),
		)
		return err
	}
	lg.Info("uploaded",
		zap.String("s3-bucket", bucket),
		zap.String("remote-path", s3Key),
	)
	return nil
}

// EmptyBucket deletes all objects in the bucket so the bucket itself
// can be deleted.
func EmptyBucket(
	ctx context.Context,
	lg *zap.Logger,
	s3API API,
	bucket string) error {

	lg.Info("emptying bucket", zap.String("s3-bucket", bucket))
	var token *string
	for {
		listOut, err := s3API.ListObjectsV2(ctx, &aws_s3_v2.ListObjectsV2Input{
			Bucket:            aws_v2.String(bucket),
			ContinuationToken: token,
		})
		if err != nil {
			var notFound *s3_types.NoSuchBucket
			if errors.As(err, &notFound) {
				lg.Info("no such bucket", zap.String("s3-bucket", bucket))
				return nil
			}
			lg.Warn("failed to list objects", zap.String("s3-bucket", bucket), zap.Error(err))
			return err
		}
		if len(listOut.Contents) == 0 {
			break
		}

		objs := make([]s3_types.ObjectIdentifier, 0, len(listOut.Contents))
		for _, obj := range listOut.Contents {
			objs = append(objs, s3_types.ObjectIdentifier{Key: obj.Key})
		}
		if _, err = s3API.DeleteObjects(ctx, &aws_s3_v2.DeleteObjectsInput{
			Bucket: aws_v2.String(bucket),
			Delete: &s3_types.Delete{Objects: objs},
		}); err != nil {
			lg.Warn("failed to delete objects", zap.String("s3-bucket", bucket), zap.Error(err))
			return err
		}
		lg.Info("deleted objects", zap.String("s3-bucket", bucket), zap.Int("objects", len(objs)))

		if listOut.NextContinuationToken == nil {
			break
		}
		token = listOut.NextContinuationToken
	}
	lg.Info("emptied bucket", zap.String("s3-bucket", bucket))
	return nil
}

// DeleteBucket deletes the S3 bucket.
func DeleteBucket(
	ctx context.Context,
	lg *zap.Logger,
	s3API API,
	bucket string) error {

	lg.Info("deleting bucket", zap.String("s3-bucket", bucket))
	_, err := s3API.DeleteBucket(ctx, &aws_s3_v2.DeleteBucketInput{
		Bucket: aws_v2.String(bucket),
	})
	if err != nil {
		var notFound *s3_types.NoSuchBucket
		if errors.As(err, &notFound) {
			lg.Info("no such bucket", zap.String("s3-bucket", bucket))
			return nil
		}
		lg.Warn("failed to delete bucket", zap.String("s3-bucket", bucket), zap.Error(err))
		return err
	}
	lg.Info("deleted bucket", zap.String("s3-bucket", bucket))
	return nil
}

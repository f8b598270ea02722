package export

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutObjectAPI is the part of the S3 client the exporter uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client loads the default AWS credential chain for region.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// S3Object buffers writes and uploads them as one object on Close.
type S3Object struct {
	client PutObjectAPI
	bucket string
	key    string
	buffer bytes.Buffer
}

// NewS3Object creates a buffered object writer.
func NewS3Object(client PutObjectAPI, bucket, key string) *S3Object {
	return &S3Object{client: client, bucket: bucket, key: key}
}

func (o *S3Object) Write(p []byte) (int, error) {
	return o.buffer.Write(p)
}

// Close uploads the buffered bytes.
func (o *S3Object) Close() error {
	_, err := o.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(o.key),
		Body:   bytes.NewReader(o.buffer.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("unable to upload s3://%s/%s: %w", o.bucket, o.key, err)
	}
	return nil
}

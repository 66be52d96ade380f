package output

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory; only single part uploads are supported
type fakeS3 struct {
	objects       map[string][]byte
	bucketExists  bool
	createdBucket string
	putErr        error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not supported by fake")
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for key := range f.objects {
		if len(key) >= len(aws.ToString(in.Prefix)) && key[:len(aws.ToString(in.Prefix))] == aws.ToString(in.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if !f.bucketExists {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.createdBucket = aws.ToString(in.Bucket)
	f.bucketExists = true
	return &s3.CreateBucketOutput{}, nil
}

func TestS3Sink_WriteListRead(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()

	sink, err := NewS3SinkWithClient(ctx, client, &S3Config{Bucket: "demobucket", Prefix: "data/", CreateBucket: true})
	require.NoError(t, err)
	assert.Equal(t, "demobucket", client.createdBucket)

	require.NoError(t, sink.Write(ctx, "adb.collection.0000.json.gz.enc", []byte("cipher")))
	require.NoError(t, sink.Write(ctx, "adb.collection.0000.json.encryption.json", []byte("{}")))
	assert.Contains(t, client.objects, "data/adb.collection.0000.json.gz.enc")

	names, err := sink.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"adb.collection.0000.json.encryption.json", "adb.collection.0000.json.gz.enc"}, names)

	data, err := sink.Read(ctx, "adb.collection.0000.json.gz.enc")
	require.NoError(t, err)
	assert.Equal(t, []byte("cipher"), data)

	assert.Equal(t, "s3://demobucket/data/adb.collection.0000.json.gz.enc", sink.URI("adb.collection.0000.json.gz.enc"))
}

func TestS3Sink_ExistingBucketNotRecreated(t *testing.T) {
	client := newFakeS3()
	client.bucketExists = true

	_, err := NewS3SinkWithClient(context.Background(), client, &S3Config{Bucket: "demobucket", CreateBucket: true})
	require.NoError(t, err)
	assert.Empty(t, client.createdBucket)
}

func TestS3Sink_WriteError(t *testing.T) {
	client := newFakeS3()
	client.putErr = errors.New("connection refused")

	sink, err := NewS3SinkWithClient(context.Background(), client, &S3Config{Bucket: "demobucket"})
	require.NoError(t, err)

	err = sink.Write(context.Background(), "x", []byte("data"))
	assert.ErrorIs(t, err, ErrFileWriteFailed)
}

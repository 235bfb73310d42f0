package metadata

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in a map and pages listings by two.
type fakeS3 struct {
	objects map[string][]byte
	failPut error
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: map[string][]byte{}} }

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	v, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(v))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := min(start+2, len(keys))

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestS3Repository_CRUD(t *testing.T) {
	fake := newFakeS3()
	r := NewS3Repository(fake, "vault", "users/alice")
	ctx := context.Background()

	v, err := r.Get(ctx, "missing")
	require.NoError(t, err)
	require.Nil(t, v)

	require.NoError(t, r.Set(ctx, "encrypted_db_blob", []byte("blob")))
	assert.Contains(t, fake.objects, "users/alice/encrypted_db_blob")

	v, err = r.Get(ctx, "encrypted_db_blob")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), v)

	require.NoError(t, r.Delete(ctx, "encrypted_db_blob"))
	require.NoError(t, r.Delete(ctx, "encrypted_db_blob"))
	v, err = r.Get(ctx, "encrypted_db_blob")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestS3Repository_ListAndClear_Paginated(t *testing.T) {
	fake := newFakeS3()
	fake.objects["other/x"] = []byte("untouched")
	r := NewS3Repository(fake, "vault", "p/")
	ctx := context.Background()

	require.NoError(t, r.Clear(ctx)) // пустое хранилище

	require.NoError(t, r.SetMany(ctx, map[string][]byte{
		"a": []byte("1"), "b": []byte("2"), "c": []byte("3"), "d": []byte("4"), "e": []byte("5"),
	}))

	m, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, m, 5)
	assert.Equal(t, []byte("3"), m["c"])

	require.NoError(t, r.Clear(ctx))
	m, err = r.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, m)
	assert.Equal(t, []byte("untouched"), fake.objects["other/x"])
}

func TestS3Repository_PutErrorWrapped(t *testing.T) {
	fake := newFakeS3()
	fake.failPut = errors.New("access denied")
	r := NewS3Repository(fake, "vault", "")

	err := r.Set(context.Background(), "k", []byte("v"))
	require.ErrorIs(t, err, fake.failPut)
	require.ErrorContains(t, err, "failed to set metadata[k]")
}

func TestNewS3Client_AppliesOptions(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		creds, err := lo.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, "minioadmin", creds.AccessKeyID)
		return aws.Config{Region: lo.Region}, nil
	}

	var applied s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&applied)
		}
		return &s3.Client{}
	}

	c, err := NewS3Client(context.Background(), S3Options{
		Region:       "eu-west-1",
		BaseEndpoint: "http://127.0.0.1:9000",
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
	})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(applied.BaseEndpoint))
	assert.True(t, applied.UsePathStyle)
}

func TestNewS3Client_ConfigError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	boom := errors.New("no config")
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, boom
	}

	_, err := NewS3Client(context.Background(), S3Options{Region: "x"})
	require.ErrorIs(t, err, boom)
}

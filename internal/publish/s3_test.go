package publish

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"himawari-desktop/internal/snapshot"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	bucket, key, contentType string
	body                     []byte
	err                      error
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = aws.ToString(in.Bucket)
	f.key = aws.ToString(in.Key)
	f.contentType = aws.ToString(in.ContentType)
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

var testStamp = snapshot.At(time.Date(2024, 1, 2, 3, 40, 0, 0, time.UTC))

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{}, zerolog.Nop())
	require.ErrorIs(t, err, ErrBucketRequired)
}

func TestKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{"himawari", "himawari/20240102/202401020340.jpg"},
		{"/nested/prefix/", "nested/prefix/20240102/202401020340.jpg"},
		{"", "20240102/202401020340.jpg"},
	}

	local := filepath.Join("archive", "20240102", "202401020340.jpg")
	for _, tt := range tests {
		p := newPublisher(&fakePutter{}, Config{Bucket: "b", Prefix: tt.prefix}, zerolog.Nop())
		assert.Equal(t, tt.want, p.Key(local))
	}
}

func TestPublishUploadsFile(t *testing.T) {
	local := filepath.Join(t.TempDir(), "20240102", "202401020340.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(local), 0755))
	require.NoError(t, os.WriteFile(local, []byte("jpeg"), 0644))

	api := &fakePutter{}
	p := newPublisher(api, Config{Bucket: "earth", Prefix: "himawari"}, zerolog.Nop())

	require.NoError(t, p.Publish(context.Background(), testStamp, local))
	assert.Equal(t, "earth", api.bucket)
	assert.Equal(t, "himawari/20240102/202401020340.jpg", api.key)
	assert.Equal(t, "image/jpeg", api.contentType)
	assert.Equal(t, []byte("jpeg"), api.body)
}

func TestPublishErrors(t *testing.T) {
	p := newPublisher(&fakePutter{}, Config{Bucket: "earth"}, zerolog.Nop())
	require.Error(t, p.Publish(context.Background(), testStamp, filepath.Join(t.TempDir(), "missing.jpg")))

	local := filepath.Join(t.TempDir(), "x.jpg")
	require.NoError(t, os.WriteFile(local, []byte("jpeg"), 0644))
	p = newPublisher(&fakePutter{err: errors.New("denied")}, Config{Bucket: "earth"}, zerolog.Nop())
	require.Error(t, p.Publish(context.Background(), testStamp, local))
}

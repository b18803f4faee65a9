package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type fakeLister struct {
	keys       []string
	err        error
	bucket     string
	prefix     string
	listCalled bool
}

func (f *fakeLister) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	f.listCalled = true
	f.bucket = bucket
	f.prefix = prefix
	if f.err != nil {
		return nil, f.err
	}

	var out []string
	for _, k := range f.keys {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func TestCheckpointResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("local pointer passes through", func(t *testing.T) {
		lister := &fakeLister{}
		r := NewCheckpointResolver(quietLogger(), lister)

		got, err := r.Resolve(ctx, "logs/checkpoints/epoch=3.ckpt")
		require.NoError(t, err)
		assert.Equal(t, "logs/checkpoints/epoch=3.ckpt", got)
		assert.False(t, lister.listCalled)
	})

	t.Run("empty pointer means no resume", func(t *testing.T) {
		got, err := NewCheckpointResolver(quietLogger(), &fakeLister{}).Resolve(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("single match", func(t *testing.T) {
		lister := &fakeLister{keys: []string{
			"run42/epoch=5.ckpt",
			"run42/submission.zip",
			"run42/events.log",
			"run43/epoch=1.ckpt",
		}}
		r := NewCheckpointResolver(quietLogger(), lister)

		got, err := r.Resolve(ctx, "s3://mybucket/run42/")
		require.NoError(t, err)
		assert.Equal(t, "s3://mybucket/run42/epoch=5.ckpt", got)
		assert.Equal(t, "mybucket", lister.bucket)
		assert.Equal(t, "run42/", lister.prefix)
	})

	t.Run("two matches are listed", func(t *testing.T) {
		lister := &fakeLister{keys: []string{"run42/epoch3.ckpt", "run42/epoch5.ckpt"}}
		r := NewCheckpointResolver(quietLogger(), lister)

		_, err := r.Resolve(ctx, "s3://mybucket/run42/")
		require.ErrorIs(t, err, ErrAmbiguousCheckpoint)

		var resErr *ResolutionError
		require.ErrorAs(t, err, &resErr)
		assert.Equal(t, []string{
			"s3://mybucket/run42/epoch3.ckpt",
			"s3://mybucket/run42/epoch5.ckpt",
		}, resErr.Candidates)
		assert.Contains(t, err.Error(), "s3://mybucket/run42/epoch3.ckpt")
		assert.Contains(t, err.Error(), "s3://mybucket/run42/epoch5.ckpt")
	})

	t.Run("no match", func(t *testing.T) {
		lister := &fakeLister{keys: []string{"run42/notes.txt"}}
		_, err := NewCheckpointResolver(quietLogger(), lister).Resolve(ctx, "s3://mybucket/run42/")

		require.ErrorIs(t, err, ErrNoCheckpoint)
		assert.Contains(t, err.Error(), "no matches")
	})

	t.Run("malformed pointer", func(t *testing.T) {
		_, err := NewCheckpointResolver(quietLogger(), &fakeLister{}).Resolve(ctx, "s3://mybucket")
		assert.ErrorIs(t, err, ErrMalformedLocator)
	})

	t.Run("listing failure", func(t *testing.T) {
		lister := &fakeLister{err: errors.New("AccessDenied")}
		_, err := NewCheckpointResolver(quietLogger(), lister).Resolve(ctx, "s3://mybucket/run42/")
		assert.ErrorContains(t, err, "AccessDenied")
	})
}

type fakeS3 struct {
	pages   [][]string
	puts    map[string]string
	deleted []string
}

func (f *fakeS3) ListObjectsV2(_ context.Context, params *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := 0
	if params.ContinuationToken != nil {
		page = int((*params.ContinuationToken)[0] - '0')
	}

	out := &s3.ListObjectsV2Output{}
	for _, key := range f.pages[page] {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(key)})
	}
	if page+1 < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.puts[aws.ToString(params.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{
		pages: [][]string{
			{"run42/a.ckpt", "run42/b.log"},
			{"run42/c.ckpt"},
		},
		puts: map[string]string{},
	}
	store := &S3Store{log: quietLogger(), client: fake}
	ctx := context.Background()

	keys, err := store.ListKeys(ctx, "bucket", "run42/")
	require.NoError(t, err)
	assert.Equal(t, []string{"run42/a.ckpt", "run42/b.log", "run42/c.ckpt"}, keys)

	require.NoError(t, store.PutObject(ctx, "bucket", "run42/d.ckpt", strings.NewReader("weights")))
	assert.Equal(t, "weights", fake.puts["run42/d.ckpt"])

	require.NoError(t, store.DeleteObject(ctx, "bucket", "run42/a.ckpt"))
	assert.Equal(t, []string{"run42/a.ckpt"}, fake.deleted)
}

func TestIsS3NotFound(t *testing.T) {
	assert.True(t, isS3NotFound(&s3types.NoSuchKey{}))
	assert.True(t, isS3NotFound(errors.New("api error NoSuchKey: gone")))
	assert.False(t, isS3NotFound(errors.New("AccessDenied")))
}

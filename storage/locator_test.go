package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocator(t *testing.T) {
	tests := []struct {
		raw     string
		want    Locator
		wantErr bool
	}{
		{raw: "store://bucket123/path/to/run/", want: Locator{Scheme: "store", Bucket: "bucket123", Key: "path/to/run/"}},
		{raw: "s3://mybucket/run42/", want: Locator{Scheme: "s3", Bucket: "mybucket", Key: "run42/"}},
		{raw: "s3://mybucket/run42/epoch=3.ckpt", want: Locator{Scheme: "s3", Bucket: "mybucket", Key: "run42/epoch=3.ckpt"}},
		{raw: "s3://mybucket/", want: Locator{Scheme: "s3", Bucket: "mybucket", Key: ""}},
		{raw: "s3://mybucket", wantErr: true},
		{raw: "s3:/mybucket/key", wantErr: true},
		{raw: "s3:///key", wantErr: true},
		{raw: "://bucket/key", wantErr: true},
		{raw: "logs/checkpoints/last.ckpt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocator(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedLocator)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.raw, got.String())
		})
	}
}

func TestLocator_Child(t *testing.T) {
	assert.Equal(t, "s3://b/run/x.ckpt", NewLocator("b", "run/").Child("x.ckpt").String())
	assert.Equal(t, "s3://b/run/x.ckpt", NewLocator("b", "run").Child("x.ckpt").String())
	assert.Equal(t, "s3://b/x.ckpt", NewLocator("b", "").Child("x.ckpt").String())
}

func TestRunPrefix(t *testing.T) {
	loc := RunPrefix("bucket", "G7_1016-0930_x_0123456789")
	assert.Equal(t, "s3://bucket/G7_1016-0930_x_0123456789/", loc.String())
	assert.Equal(t,
		"https://s3.console.aws.amazon.com/s3/buckets/bucket?region=us-east-1&prefix=G7_1016-0930_x_0123456789/",
		loc.ConsoleURL("us-east-1"))
}

func TestIsRemote(t *testing.T) {
	assert.True(t, IsRemote("s3://bucket/run/"))
	assert.False(t, IsRemote("logs/checkpoints/epoch=1.ckpt"))
	assert.False(t, IsRemote(""))
}

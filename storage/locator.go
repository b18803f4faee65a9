package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Scheme is the locator scheme of the durable checkpoint store
const Scheme = "s3"

// ErrMalformedLocator is returned for locators not shaped scheme://store/key
var ErrMalformedLocator = errors.New("malformed store locator")

// Locator addresses a key (or key prefix) inside a durable store
type Locator struct {
	Scheme string
	Bucket string
	Key    string
}

// ParseLocator splits scheme://bucket/key... into its parts. The key may be
// empty ("s3://bucket/") but the separator after the bucket may not.
func ParseLocator(raw string) (Locator, error) {
	parts := strings.SplitN(raw, "/", 4)
	if len(parts) < 4 {
		return Locator{}, fmt.Errorf("%w: %q has fewer than three segments", ErrMalformedLocator, raw)
	}

	scheme, ok := strings.CutSuffix(parts[0], ":")
	if !ok || scheme == "" || parts[1] != "" {
		return Locator{}, fmt.Errorf("%w: %q does not start with scheme://", ErrMalformedLocator, raw)
	}

	if parts[2] == "" {
		return Locator{}, fmt.Errorf("%w: %q has an empty store id", ErrMalformedLocator, raw)
	}

	return Locator{
		Scheme: scheme,
		Bucket: parts[2],
		Key:    parts[3],
	}, nil
}

// IsRemote reports whether pointer names the durable store rather than a local path
func IsRemote(pointer string) bool {
	return strings.HasPrefix(pointer, Scheme+"://")
}

// NewLocator returns an s3 locator for bucket and key
func NewLocator(bucket, key string) Locator {
	return Locator{Scheme: Scheme, Bucket: bucket, Key: key}
}

// String re-serializes the locator
func (l Locator) String() string {
	return l.Scheme + "://" + l.Bucket + "/" + l.Key
}

// Child returns the locator of name below this prefix
func (l Locator) Child(name string) Locator {
	key := l.Key
	if key != "" && !strings.HasSuffix(key, "/") {
		key += "/"
	}
	return Locator{Scheme: l.Scheme, Bucket: l.Bucket, Key: key + name}
}

// RunPrefix returns the store prefix holding a run's checkpoints
func RunPrefix(bucket, runName string) Locator {
	return NewLocator(bucket, runName+"/")
}

// ConsoleURL links the prefix in the S3 web console
func (l Locator) ConsoleURL(region string) string {
	return fmt.Sprintf("https://s3.console.aws.amazon.com/s3/buckets/%s?region=%s&prefix=%s", l.Bucket, region, l.Key)
}

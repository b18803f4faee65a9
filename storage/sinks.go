package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Snapshot is a serialized model state that can be read once per destination
type Snapshot interface {
	Open() (io.ReadCloser, error)
}

// FileSnapshot reads the state from a file written by the training framework
type FileSnapshot string

// Open implements Snapshot
func (f FileSnapshot) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// BytesSnapshot holds the state in memory
type BytesSnapshot []byte

// Open implements Snapshot
func (b BytesSnapshot) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Sink is one independent checkpoint destination
type Sink interface {
	Name() string
	Put(ctx context.Context, fileName string, snap Snapshot) (string, error)
	Delete(ctx context.Context, location string) error
}

// ObjectStore is the subset of S3Store used by S3Sink
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader) error
	DeleteObject(ctx context.Context, bucket, key string) error
}

// LocalSink writes checkpoints into a directory on the instance
type LocalSink struct {
	dir string
}

// NewLocalSink creates a sink rooted at dir
func NewLocalSink(dir string) *LocalSink {
	return &LocalSink{dir: dir}
}

// Name implements Sink
func (s *LocalSink) Name() string {
	return "local"
}

// Put writes the snapshot atomically and returns its path
func (s *LocalSink) Put(_ context.Context, fileName string, snap Snapshot) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating checkpoint directory: %w", err)
	}

	src, err := snap.Open()
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return "", fmt.Errorf("creating temporary checkpoint: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("writing checkpoint: %w", err)
	}

	path := filepath.Join(s.dir, fileName)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("publishing checkpoint: %w", err)
	}

	return path, nil
}

// Delete removes a checkpoint written by Put
func (s *LocalSink) Delete(_ context.Context, location string) error {
	if err := os.Remove(location); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// S3Sink writes checkpoints below the run's prefix in the durable store
type S3Sink struct {
	store  ObjectStore
	prefix Locator
}

// NewS3Sink creates a sink writing below prefix
func NewS3Sink(store ObjectStore, prefix Locator) *S3Sink {
	return &S3Sink{store: store, prefix: prefix}
}

// Name implements Sink
func (s *S3Sink) Name() string {
	return Scheme
}

// Put uploads the snapshot and returns its locator
func (s *S3Sink) Put(ctx context.Context, fileName string, snap Snapshot) (string, error) {
	loc := s.prefix.Child(fileName)

	src, err := snap.Open()
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = src.Close() }()

	if err := s.store.PutObject(ctx, loc.Bucket, loc.Key, src); err != nil {
		return "", err
	}

	return loc.String(), nil
}

// Delete removes a checkpoint written by Put
func (s *S3Sink) Delete(ctx context.Context, location string) error {
	loc, err := ParseLocator(location)
	if err != nil {
		return err
	}
	return s.store.DeleteObject(ctx, loc.Bucket, loc.Key)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// CheckpointSuffix identifies checkpoint objects in the store
const CheckpointSuffix = ".ckpt"

var (
	// ErrNoCheckpoint is returned when a store prefix matches no checkpoint
	ErrNoCheckpoint = errors.New("no checkpoint matches the resume pointer")

	// ErrAmbiguousCheckpoint is returned when a store prefix matches several checkpoints
	ErrAmbiguousCheckpoint = errors.New("resume pointer matches more than one checkpoint")
)

// ObjectLister enumerates keys under a prefix
type ObjectLister interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// ResolutionError explains why a remote pointer did not resolve to exactly
// one checkpoint and lists every match so a narrower prefix can be chosen
type ResolutionError struct {
	Pointer    string
	Candidates []string
	Err        error
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %v", e.Pointer, e.Err)

	if len(e.Candidates) == 0 {
		b.WriteString(" (no matches)")
		return b.String()
	}

	b.WriteString("; please be more specific, candidates:")
	for _, c := range e.Candidates {
		b.WriteString("\n  ")
		b.WriteString(c)
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// CheckpointResolver turns a resume pointer into a concrete checkpoint path
type CheckpointResolver struct {
	log    logrus.FieldLogger
	lister ObjectLister
	suffix string
}

// NewCheckpointResolver creates a resolver listing remote prefixes with lister
func NewCheckpointResolver(log logrus.FieldLogger, lister ObjectLister) *CheckpointResolver {
	return &CheckpointResolver{
		log:    log.WithField("component", "checkpoint-resolver"),
		lister: lister,
		suffix: CheckpointSuffix,
	}
}

// Resolve returns local pointers unchanged. Remote pointers are expanded to
// the single checkpoint under their prefix; zero or several matches fail
// rather than picking one.
func (r *CheckpointResolver) Resolve(ctx context.Context, pointer string) (string, error) {
	if pointer == "" || !IsRemote(pointer) {
		return pointer, nil
	}

	prefix, err := ParseLocator(pointer)
	if err != nil {
		return "", err
	}

	keys, err := r.lister.ListKeys(ctx, prefix.Bucket, prefix.Key)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", pointer, err)
	}

	var matches []string
	for _, key := range keys {
		if strings.HasPrefix(key, prefix.Key) && strings.HasSuffix(key, r.suffix) {
			matches = append(matches, Locator{Scheme: prefix.Scheme, Bucket: prefix.Bucket, Key: key}.String())
		}
	}
	sort.Strings(matches)

	switch len(matches) {
	case 1:
		r.log.WithFields(logrus.Fields{
			"pointer":    pointer,
			"checkpoint": matches[0],
		}).Info("Resolved resume checkpoint")
		return matches[0], nil
	case 0:
		return "", &ResolutionError{Pointer: pointer, Err: ErrNoCheckpoint}
	default:
		return "", &ResolutionError{Pointer: pointer, Candidates: matches, Err: ErrAmbiguousCheckpoint}
	}
}

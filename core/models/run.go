package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// RunTimestampLayout formats the run timestamp as MMDD-HHMM
	RunTimestampLayout = "0102-1504"

	// UniquifierLength is the number of random hex digits appended to a run name
	UniquifierLength = 10

	// MaxGroupID is the exclusive upper bound for operator group identifiers
	MaxGroupID = 100
)

var (
	// ErrInvalidGroupID is returned for group identifiers outside [0, MaxGroupID)
	ErrInvalidGroupID = errors.New("group id must be an integer between 0 and 99")

	// ErrInvalidLabel is returned for labels that cannot be used in tags or object keys
	ErrInvalidLabel = errors.New("label may only contain letters, digits, '.', '_' and '-'")

	labelPattern = regexp.MustCompile(`^[A-Za-z0-9._-]*$`)
)

// RunIdentity identifies one training attempt. The derived Name tags the
// instance, namespaces the logs and prefixes the checkpoint store path.
type RunIdentity struct {
	GroupID    int
	Timestamp  string
	Label      string
	Uniquifier string
}

// NewRunIdentity creates a run identity stamped with now
func NewRunIdentity(groupID int, label string, now time.Time) (RunIdentity, error) {
	if err := ValidateGroupID(groupID); err != nil {
		return RunIdentity{}, err
	}

	if !labelPattern.MatchString(label) {
		return RunIdentity{}, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}

	return RunIdentity{
		GroupID:    groupID,
		Timestamp:  now.Format(RunTimestampLayout),
		Label:      label,
		Uniquifier: newUniquifier(),
	}, nil
}

// Name returns the run name, e.g. G7_1016-0930_branched_3f9a1c02be
func (r RunIdentity) Name() string {
	parts := []string{fmt.Sprintf("G%d", r.GroupID), r.Timestamp}
	if r.Label != "" {
		parts = append(parts, r.Label)
	}
	parts = append(parts, r.Uniquifier)

	return strings.Join(parts, "_")
}

// String implements fmt.Stringer
func (r RunIdentity) String() string {
	return r.Name()
}

// ValidateGroupID checks that groupID lies in [0, MaxGroupID)
func ValidateGroupID(groupID int) error {
	if groupID < 0 || groupID >= MaxGroupID {
		return fmt.Errorf("%w: got %d", ErrInvalidGroupID, groupID)
	}
	return nil
}

// newUniquifier takes the leading hex digits of a random UUID. The first
// twelve digits of a version 4 UUID are all random.
func newUniquifier() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return hex[:UniquifierLength]
}

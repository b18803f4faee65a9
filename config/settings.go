package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"spot-trainer/core/models"
)

const (
	// DefaultConfigDir holds one plain-text file per operator setting
	DefaultConfigDir = "aws_configs"

	BucketFile  = "default_s3_bucket.txt"
	GroupIDFile = "group_id.txt"
	APIKeyFile  = "wandb.key"
)

var (
	// ErrSettingsMissing is returned when a settings file has not been written yet
	ErrSettingsMissing = errors.New("operator setting not configured")

	// ErrInvalidGroupID is returned for non-numeric or out-of-range group ids
	ErrInvalidGroupID = models.ErrInvalidGroupID

	// ErrEmptySetting is returned when a required value is blank
	ErrEmptySetting = errors.New("setting must not be empty")
)

// Settings are the operator values persisted on first use
type Settings struct {
	Bucket  string
	GroupID int
	// APIKey is handed to the training job as its tracker key
	APIKey string
}

// ParseGroupID parses a raw group id and checks its range
func ParseGroupID(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	groupID, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a valid integer", ErrInvalidGroupID, raw)
	}

	if err := models.ValidateGroupID(groupID); err != nil {
		return 0, err
	}
	return groupID, nil
}

// LoadSettings reads and validates all operator settings from dir
func LoadSettings(dir string) (*Settings, error) {
	bucket, err := readSetting(dir, BucketFile)
	if err != nil {
		return nil, err
	}

	rawGroupID, err := readSetting(dir, GroupIDFile)
	if err != nil {
		return nil, err
	}

	groupID, err := ParseGroupID(rawGroupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, GroupIDFile), err)
	}

	apiKey, err := readSetting(dir, APIKeyFile)
	if err != nil {
		return nil, err
	}

	return &Settings{
		Bucket:  bucket,
		GroupID: groupID,
		APIKey:  apiKey,
	}, nil
}

// InitSettings writes the settings that are not configured yet. Every value is
// validated before anything is written, so a rejected call leaves dir as it
// was. Existing files are never overwritten.
func InitSettings(dir, bucket, rawGroupID, apiKey string) (*Settings, error) {
	bucket = strings.TrimPrefix(strings.TrimSpace(bucket), "s3://")
	apiKey = strings.TrimSpace(apiKey)

	groupID, err := ParseGroupID(rawGroupID)
	if err != nil {
		return nil, err
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket: %w", ErrEmptySetting)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("api key: %w", ErrEmptySetting)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating settings directory: %w", err)
	}

	values := map[string]string{
		BucketFile:  bucket,
		GroupIDFile: strconv.Itoa(groupID),
		APIKeyFile:  apiKey,
	}
	for name, value := range values {
		if err := writeOnce(filepath.Join(dir, name), value); err != nil {
			return nil, err
		}
	}

	return LoadSettings(dir)
}

func readSetting(dir, name string) (string, error) {
	path := filepath.Join(dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s (run `spot-trainer init`)", ErrSettingsMissing, path)
		}
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	value := strings.TrimSpace(string(data))
	if value == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmptySetting)
	}
	return value, nil
}

func writeOnce(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil
		}
		return fmt.Errorf("writing %s: %w", path, err)
	}

	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

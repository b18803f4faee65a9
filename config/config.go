package config

import (
	"os"
	"strconv"
)

// RunNameEnv carries the run name into the training session
const RunNameEnv = "SPOT_TRAINER_RUN"

// TrackerKeyEnv carries the experiment-tracking API key into the training session
const TrackerKeyEnv = "WANDB_API_KEY"

// Config holds the process-level configuration
type Config struct {
	// Operator settings directory (bucket, group id, tracking key)
	ConfigDir string

	// Launch request YAML
	LaunchSpecPath string

	// Append-only launch log
	RunLogPath string

	// Run name exported to the job on the instance
	RunName string

	// Optional Postgres launch ledger
	DatabaseURL string

	// AWS
	AWSRegion string

	// S3-compatible endpoint overrides, mainly for local stores
	S3EndpointURL     string
	S3ForcePathStyle  bool
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		ConfigDir:        getEnv("CONFIG_DIR", DefaultConfigDir),
		LaunchSpecPath:   getEnv("LAUNCH_SPEC", "launch.yaml"),
		RunLogPath:       getEnv("RUN_LOG", "aws.log"),
		RunName:          getEnv(RunNameEnv, ""),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		S3EndpointURL:    getEnv("S3_ENDPOINT_URL", ""),
		S3ForcePathStyle: getEnvBool("S3_FORCE_PATH_STYLE", false),

		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
	}
}

// S3 returns the checkpoint store settings
func (c *Config) S3() *S3Config {
	return &S3Config{
		Region:          c.AWSRegion,
		EndpointURL:     c.S3EndpointURL,
		ForcePathStyle:  c.S3ForcePathStyle,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
	}
}

// S3Config configures the durable checkpoint store client
type S3Config struct {
	Region          string
	EndpointURL     string
	ForcePathStyle  bool
	AccessKeyID     string
	SecretAccessKey string
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

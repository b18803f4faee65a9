package spec

import (
	"errors"
	"fmt"
	"os"
	"time"

	"spot-trainer/core/retry"

	"gopkg.in/yaml.v3"
)

// LaunchSpec represents the YAML launch specification
type LaunchSpec struct {
	Region     string         `yaml:"region"`
	Instance   InstanceSpec   `yaml:"instance"`
	Access     AccessSpec     `yaml:"access"`
	Sync       SyncSpec       `yaml:"sync"`
	Job        JobSpec        `yaml:"job"`
	Retry      RetrySpec      `yaml:"retry"`
	Checkpoint CheckpointSpec `yaml:"checkpoint"`
}

// InstanceSpec describes the interruptible instance request
type InstanceSpec struct {
	ImageID            string   `yaml:"image_id"`
	InstanceType       string   `yaml:"instance_type"`
	VolumeType         string   `yaml:"volume_type"`
	RootDevice         string   `yaml:"root_device"`
	KeyName            string   `yaml:"key_name"`
	SecurityGroups     []string `yaml:"security_groups"`
	InstanceProfile    string   `yaml:"iam_instance_profile"`
	MarketOptionsFile  string   `yaml:"market_options_file"`
	CapPriceAtOnDemand bool     `yaml:"cap_price_at_on_demand"`
	VerifyImage        bool     `yaml:"verify_image"`
}

// AccessSpec holds the fixed secure-shell connection options
type AccessSpec struct {
	User           string   `yaml:"user"`
	IdentityFile   string   `yaml:"identity_file"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	Port           int      `yaml:"port"`
}

// SyncSpec describes the code snapshot pushed to the instance
type SyncSpec struct {
	LocalRoot string   `yaml:"local_root"`
	RemoteDir string   `yaml:"remote_dir"`
	Exclude   []string `yaml:"exclude"`
}

// JobSpec describes the unattended job and its lifetime cap
type JobSpec struct {
	Session        string  `yaml:"session"`
	Entrypoint     string  `yaml:"entrypoint"`
	TimeoutHours   float64 `yaml:"timeout_hours"`
	TimeoutAction  string  `yaml:"timeout_action"`
	TimeoutLogPath string  `yaml:"timeout_log"`
}

// RetrySpec holds one policy per blocking wait
type RetrySpec struct {
	Launch  RetryPolicySpec `yaml:"launch"`
	Sync    RetryPolicySpec `yaml:"sync"`
	Address RetryPolicySpec `yaml:"address"`
}

// RetryPolicySpec mirrors retry.Policy; max_attempts 0 means no limit
type RetryPolicySpec struct {
	Delay       Duration `yaml:"delay"`
	Multiplier  float64  `yaml:"multiplier"`
	MaxDelay    Duration `yaml:"max_delay"`
	MaxAttempts int      `yaml:"max_attempts"`
}

// CheckpointSpec configures best-checkpoint tracking on the instance
type CheckpointSpec struct {
	Monitor  string `yaml:"monitor"`
	Mode     string `yaml:"mode"`
	LocalDir string `yaml:"local_dir"`
}

// Duration is a time.Duration written as "120s" or "3m" in YAML
type Duration time.Duration

// UnmarshalYAML parses a Go duration string
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the launch specification used when no file is present
func Default() *LaunchSpec {
	return &LaunchSpec{
		Region: "us-east-1",
		Instance: InstanceSpec{
			ImageID:           "ami-05f6982c11ca3027d", // Deep Learning AMI (Ubuntu 18.04) Version 41.0
			InstanceType:      "p2.xlarge",
			VolumeType:        "gp2",
			RootDevice:        "/dev/sda1",
			KeyName:           "dlad-aws",
			SecurityGroups:    []string{"dlad-sg"},
			InstanceProfile:   "dlad-instance-profile",
			MarketOptionsFile: "aws_configs/spot-options.json",
		},
		Access: AccessSpec{
			User:           "ubuntu",
			IdentityFile:   "~/.ssh/dlad-aws.pem",
			ConnectTimeout: Duration(180 * time.Second),
			Port:           22,
		},
		Sync: SyncSpec{
			LocalRoot: ".",
			RemoteDir: "~/code/",
			Exclude:   []string{"wandb/", "doc/"},
		},
		Job: JobSpec{
			Session:        "dlad",
			Entrypoint:     "bash aws_train.sh",
			TimeoutHours:   24,
			TimeoutAction:  "sudo shutdown -h now",
			TimeoutLogPath: "timeout.log",
		},
		Retry: RetrySpec{
			Launch:  RetryPolicySpec{Delay: Duration(120 * time.Second)},
			Sync:    RetryPolicySpec{},
			Address: RetryPolicySpec{Delay: Duration(10 * time.Second)},
		},
		Checkpoint: CheckpointSpec{
			Monitor:  "metrics_summary/grader",
			Mode:     "max",
			LocalDir: "logs/checkpoints",
		},
	}
}

// ParseLaunchSpec parses YAML on top of the defaults
func ParseLaunchSpec(data []byte) (*LaunchSpec, error) {
	spec := Default()
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// LoadLaunchSpec reads path, falling back to the defaults when it does not exist
func LoadLaunchSpec(path string) (*LaunchSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading launch spec: %w", err)
	}
	return ParseLaunchSpec(data)
}

// Validate checks the specification for errors
func (s *LaunchSpec) Validate() error {
	if s.Instance.ImageID == "" {
		return fmt.Errorf("instance.image_id is required")
	}
	if s.Instance.InstanceType == "" {
		return fmt.Errorf("instance.instance_type is required")
	}
	if s.Access.User == "" {
		return fmt.Errorf("access.user is required")
	}
	if s.Access.IdentityFile == "" {
		return fmt.Errorf("access.identity_file is required")
	}
	if s.Job.Session == "" {
		return fmt.Errorf("job.session is required")
	}
	if s.Job.Entrypoint == "" {
		return fmt.Errorf("job.entrypoint is required")
	}
	if s.Job.TimeoutHours <= 0 {
		return fmt.Errorf("job.timeout_hours must be positive, got %v", s.Job.TimeoutHours)
	}
	if s.Checkpoint.Mode != "max" && s.Checkpoint.Mode != "min" {
		return fmt.Errorf("checkpoint.mode must be max or min, got %q", s.Checkpoint.Mode)
	}

	for name, p := range map[string]RetryPolicySpec{
		"launch":  s.Retry.Launch,
		"sync":    s.Retry.Sync,
		"address": s.Retry.Address,
	} {
		if p.Delay < 0 || p.MaxAttempts < 0 {
			return fmt.Errorf("retry.%s: delay and max_attempts must not be negative", name)
		}
	}
	return nil
}

// Timeout returns the hard lifetime budget of the instance
func (s *LaunchSpec) Timeout() time.Duration {
	return time.Duration(s.Job.TimeoutHours * float64(time.Hour))
}

// Policy converts the YAML form into a retry policy
func (p RetryPolicySpec) Policy() retry.Policy {
	return retry.Policy{
		Delay:       p.Delay.Std(),
		Multiplier:  p.Multiplier,
		MaxDelay:    p.MaxDelay.Std(),
		MaxAttempts: p.MaxAttempts,
	}
}

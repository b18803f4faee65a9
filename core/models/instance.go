package models

import "time"

// InstanceStatus mirrors the provider's lifecycle state of an instance
type InstanceStatus string

const (
	InstanceStatusPending      InstanceStatus = "pending"
	InstanceStatusRunning      InstanceStatus = "running"
	InstanceStatusShuttingDown InstanceStatus = "shutting-down"
	InstanceStatusTerminated   InstanceStatus = "terminated"
	InstanceStatusStopping     InstanceStatus = "stopping"
	InstanceStatusStopped      InstanceStatus = "stopped"
)

// Gone reports whether the instance can no longer become reachable
func (s InstanceStatus) Gone() bool {
	switch s {
	case InstanceStatusShuttingDown, InstanceStatusTerminated, InstanceStatusStopping, InstanceStatusStopped:
		return true
	default:
		return false
	}
}

// InstanceRecord is the cached view of a provisioned instance. The provider
// owns the instance; this record is never updated after provisioning.
type InstanceRecord struct {
	InstanceID    string
	PublicAddress string
	Tag           string
	SpotRequestID string
	Region        string
	LaunchedAt    time.Time
}

// InstanceState is one observation of an instance while waiting for it to run
type InstanceState struct {
	InstanceID    string
	Status        InstanceStatus
	PublicAddress string
	SpotRequestID string
}

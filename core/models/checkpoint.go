package models

import "time"

// MonitorMode selects whether larger or smaller metric values are better
type MonitorMode string

const (
	MonitorMax MonitorMode = "max"
	MonitorMin MonitorMode = "min"
)

// Improves reports whether candidate beats best under the mode
func (m MonitorMode) Improves(candidate, best float64) bool {
	if m == MonitorMin {
		return candidate < best
	}
	return candidate > best
}

// SinkStatus is the outcome of writing a checkpoint to one destination
type SinkStatus struct {
	Sink     string `json:"sink"`
	Location string `json:"location,omitempty"`
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the write to this sink succeeded. Err does not survive
// serialization, so a reloaded status is judged by Error.
func (s SinkStatus) OK() bool {
	return s.Err == nil && s.Error == ""
}

// CheckpointArtifact is the current best checkpoint of a run. The local and
// remote destinations are written independently and may diverge.
type CheckpointArtifact struct {
	RunName   string       `json:"run_name"`
	Monitor   string       `json:"monitor"`
	Mode      MonitorMode  `json:"mode"`
	Epoch     int          `json:"epoch"`
	Value     float64      `json:"value"`
	FileName  string       `json:"file_name"`
	Sinks     []SinkStatus `json:"sinks"`
	CreatedAt time.Time    `json:"created_at"`
}

// Location returns where the named sink holds this artifact
func (a *CheckpointArtifact) Location(sink string) (string, bool) {
	for _, s := range a.Sinks {
		if s.Sink == sink && s.OK() {
			return s.Location, true
		}
	}
	return "", false
}

// Persisted reports whether at least one destination holds the artifact
func (a *CheckpointArtifact) Persisted() bool {
	for _, s := range a.Sinks {
		if s.OK() {
			return true
		}
	}
	return false
}

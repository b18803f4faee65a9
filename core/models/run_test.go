package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIdentity(t *testing.T) {
	now := time.Date(2026, time.October, 16, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		groupID int
		label   string
		wantErr error
	}{
		{name: "lowest group", groupID: 0, label: "baseline"},
		{name: "highest group", groupID: 99, label: "branched"},
		{name: "empty label", groupID: 7, label: ""},
		{name: "negative group", groupID: -1, label: "x", wantErr: ErrInvalidGroupID},
		{name: "group too large", groupID: 100, label: "x", wantErr: ErrInvalidGroupID},
		{name: "slash in label", groupID: 7, label: "a/b", wantErr: ErrInvalidLabel},
		{name: "space in label", groupID: 7, label: "a b", wantErr: ErrInvalidLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := NewRunIdentity(tt.groupID, tt.label, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "1016-0930", run.Timestamp)
			assert.Len(t, run.Uniquifier, UniquifierLength)
		})
	}
}

func TestRunIdentity_Name(t *testing.T) {
	run := RunIdentity{GroupID: 7, Timestamp: "1016-0930", Label: "branched", Uniquifier: "3f9a1c02be"}
	assert.Equal(t, "G7_1016-0930_branched_3f9a1c02be", run.Name())

	run.Label = ""
	assert.Equal(t, "G7_1016-0930_3f9a1c02be", run.Name())
}

func TestRunIdentity_UniqueAcrossGenerations(t *testing.T) {
	now := time.Now()
	seen := make(map[string]struct{}, 10000)

	for i := 0; i < 10000; i++ {
		run, err := NewRunIdentity(12, "sweep", now)
		require.NoError(t, err)

		name := run.Name()
		_, dup := seen[name]
		require.False(t, dup, "duplicate run name %s after %d generations", name, i)
		seen[name] = struct{}{}
	}
}

func TestMonitorMode_Improves(t *testing.T) {
	assert.True(t, MonitorMax.Improves(0.6, 0.5))
	assert.False(t, MonitorMax.Improves(0.5, 0.5))
	assert.True(t, MonitorMin.Improves(0.4, 0.5))
	assert.False(t, MonitorMin.Improves(0.6, 0.5))
}

func TestInstanceStatus_Gone(t *testing.T) {
	assert.False(t, InstanceStatusPending.Gone())
	assert.False(t, InstanceStatusRunning.Gone())
	assert.True(t, InstanceStatusTerminated.Gone())
	assert.True(t, InstanceStatusShuttingDown.Gone())
}

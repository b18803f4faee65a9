package models

import "time"

// LaunchRecord summarises one successful launch for the operator run log
type LaunchRecord struct {
	Run             RunIdentity
	Instance        InstanceRecord
	SSHCommand      string
	RsyncCommand    string
	AttachCommand   string
	JobStarted      bool
	TimeoutDeadline time.Time
	CreatedAt       time.Time
}

// RemoteAccessCommand holds the printable commands for one target host
type RemoteAccessCommand struct {
	SSH    string
	Rsync  string
	Attach string
}

// Package state records training launches in a local SQLite database.
package state

import "time"

// LaunchStatus is the lifecycle state of a launch.
type LaunchStatus string

const (
	LaunchStatusRunning   LaunchStatus = "running"
	LaunchStatusCompleted LaunchStatus = "completed"
	LaunchStatusFailed    LaunchStatus = "failed"
)

// Launch is one delegated training call.
type Launch struct {
	ID          string
	Task        string
	Model       string
	Data        string
	Project     string
	Name        string
	Device      string
	Epochs      int
	Runner      string
	Kwargs      string // JSON object
	Status      LaunchStatus
	ExitCode    *int
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
}

// Duration returns the elapsed time of a finished launch, or zero.
func (l *Launch) Duration() time.Duration {
	if l.CompletedAt == nil {
		return 0
	}
	return l.CompletedAt.Sub(l.StartedAt)
}

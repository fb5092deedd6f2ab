package runner

import "time"

// Status is the lifecycle state of one scenario run.
//
// starting -> running -> {stopping -> stopped} | completed | error
type Status string

const (
	StatusStarting  Status = "starting"
	StatusRunning   Status = "running"
	StatusStopping  Status = "stopping"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusError     Status = "error"
)

// Terminal reports whether the status is an end state
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusStopped || s == StatusError
}

// ScenarioError is one timestamped entry in a run's error list
type ScenarioError struct {
	Time    time.Time
	Message string
}

// State describes one scenario run. The runner owns the authoritative
// copy and mutates it only under its lock; callers receive snapshots.
type State struct {
	ID          string
	Name        string
	Status      Status
	CurrentStep int
	TotalSteps  int
	Errors      []ScenarioError
	StartTime   time.Time
	EndTime     time.Time
}

// clone returns a deep copy safe to hand to callers
func (s *State) clone() State {
	out := *s
	out.Errors = make([]ScenarioError, len(s.Errors))
	copy(out.Errors, s.Errors)
	return out
}

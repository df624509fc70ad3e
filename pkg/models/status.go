package models

// SessionStatus represents the lifecycle state of a crawl session
type SessionStatus string

const (
	SessionStatusIdle      SessionStatus = "idle"      // Registered but not started
	SessionStatusRunning   SessionStatus = "running"   // Loop in progress
	SessionStatusCompleted SessionStatus = "completed" // Finished, possibly with page errors
	SessionStatusFailed    SessionStatus = "failed"    // Failed before any page was fetched
	SessionStatusStopped   SessionStatus = "stopped"   // Stopped on request
)

// String implements fmt.Stringer for logging
func (s SessionStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known value
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionStatusIdle, SessionStatusRunning, SessionStatusCompleted, SessionStatusFailed, SessionStatusStopped:
		return true
	}
	return false
}

// IsTerminal returns true for absorbing states
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusStopped:
		return true
	}
	return false
}

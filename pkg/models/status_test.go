package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatus_String(t *testing.T) {
	tests := []struct {
		status SessionStatus
		want   string
	}{
		{SessionStatus(""), "unset"},
		{SessionStatusIdle, "idle"},
		{SessionStatusRunning, "running"},
		{SessionStatusCompleted, "completed"},
		{SessionStatusFailed, "failed"},
		{SessionStatusStopped, "stopped"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestSessionStatus_IsValid(t *testing.T) {
	tests := []struct {
		status SessionStatus
		want   bool
	}{
		{SessionStatusIdle, true},
		{SessionStatusRunning, true},
		{SessionStatusCompleted, true},
		{SessionStatusFailed, true},
		{SessionStatusStopped, true},
		{SessionStatus(""), false},
		{SessionStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "SessionStatus(%q).IsValid()", string(tt.status))
	}
}

func TestSessionStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status SessionStatus
		want   bool
	}{
		{SessionStatusIdle, false},
		{SessionStatusRunning, false},
		{SessionStatusCompleted, true},
		{SessionStatusFailed, true},
		{SessionStatusStopped, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsTerminal(), "SessionStatus(%q).IsTerminal()", string(tt.status))
	}
}

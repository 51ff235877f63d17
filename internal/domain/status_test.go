package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want Status
		ok   bool
	}{
		{in: "READY", want: StatusReady, ok: true},
		{in: " running ", want: StatusRunning, ok: true},
		{in: "Disabled", want: StatusDisabled, ok: true},
		{in: "paused", want: StatusPaused, ok: true},
		{in: "", ok: false},
		{in: "RETRIED", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseStatus(tt.in)
		require.Equal(t, tt.ok, ok, tt.in)
		require.Equal(t, tt.want, got, tt.in)
	}
}

func TestStatusPredicates(t *testing.T) {
	require.True(t, StatusSkipped.IsTerminal())
	require.False(t, StatusDisabled.IsTerminal())
	require.True(t, StatusDisabled.IsSettled())
	require.False(t, StatusPaused.IsSettled())
	require.True(t, StatusQueued.IsActive())
	require.False(t, StatusSucceeded.IsActive())
	require.True(t, StatusKilled.IsStarted())
	require.False(t, StatusReady.IsStarted())
	require.True(t, StatusFailed.IsFailure())
	require.False(t, StatusKilled.IsFailure())
}

func TestCanTransitionStatus(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusReady, StatusQueued, true},
		{StatusReady, StatusDisabled, true},
		{StatusReady, StatusRunning, false},
		{StatusQueued, StatusRunning, true},
		{StatusRunning, StatusSucceeded, true},
		{StatusRunning, StatusReady, false},
		{StatusPaused, StatusRunning, true},
		{StatusDisabled, StatusReady, true},
		{StatusDisabled, StatusRunning, false},
		{StatusRunning, StatusKilled, true},
		{StatusSucceeded, StatusKilled, false},
		{StatusFailed, StatusReady, false},
		{StatusReady, StatusReady, true},
		{"", StatusReady, false},
		{StatusReady, "", false},
	}
	for _, tt := range tests {
		require.Equalf(t, tt.want, CanTransitionStatus(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

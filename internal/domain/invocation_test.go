package domain

import (
	"errors"
	"testing"
	"time"
)

func TestInvocationRecord_Lifecycle(t *testing.T) {
	r := NewInvocationRecord("t1", "echo", "initiator", "u1")

	if r.Status != InvocationPending || r.Status.IsTerminal() {
		t.Fatalf("new record should be PENDING, got %s", r.Status)
	}
	if r.EntryName() != "echo:initiator" {
		t.Errorf("unexpected entry name %q", r.EntryName())
	}
	if r.Duration() != 0 {
		t.Error("duration of unstarted record should be 0")
	}

	r.MarkRunning("/tmp/w")
	if r.Status != InvocationRunning || r.StartedAt == nil || r.Workdir != "/tmp/w" {
		t.Errorf("unexpected running record: %+v", r)
	}

	time.Sleep(time.Millisecond)
	r.MarkFinished(InvocationFailed, errors.New("boom"))
	if !r.Status.IsTerminal() || r.Error != "boom" {
		t.Errorf("unexpected finished record: %+v", r)
	}
	if r.Duration() <= 0 {
		t.Error("duration should be positive")
	}
}

func TestParseInvocationStatus(t *testing.T) {
	tests := []struct {
		in   string
		want InvocationStatus
	}{
		{"RUNNING", InvocationRunning},
		{"SUCCEEDED", InvocationSucceeded},
		{"FAILED", InvocationFailed},
		{"REJECTED", InvocationRejected},
		{"CANCELLED", InvocationCancelled},
		{"bogus", InvocationPending},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseInvocationStatus(tt.in); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAssignment_RolesOf(t *testing.T) {
	a := Assignment{Participants: []Participant{
		{UserID: "u1", Role: "b"},
		{UserID: "u2", Role: "a"},
		{UserID: "u1", Role: "a"},
		{UserID: "u1", Role: "b"},
	}}

	roles := a.RolesOf("u1")
	if len(roles) != 2 || roles[0] != "b" || roles[1] != "a" {
		t.Errorf("unexpected roles %v", roles)
	}
	if CountRole(a.Participants, "a") != 2 {
		t.Error("expected 2 participants with role a")
	}
	if got := WithRole(a.Participants, "a"); got[0].UserID != "u2" {
		t.Errorf("WithRole must keep order, got %v", got)
	}
}

func TestRoleSpec_AcceptsCount(t *testing.T) {
	r := RoleSpec{MinParticipants: 1, MaxParticipants: 2}
	for n, want := range map[int]bool{0: false, 1: true, 2: true, 3: false} {
		if got := r.AcceptsCount(n); got != want {
			t.Errorf("AcceptsCount(%d) = %v, want %v", n, got, want)
		}
	}
}

package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/mq"
)

func assignment() domain.Assignment {
	return domain.Assignment{
		TaskID:   "T1",
		Protocol: "ping",
		Participants: []domain.Participant{
			{UserID: "u1", Role: "caller"},
			{UserID: "u2", Role: "callee"},
			{UserID: "u1", Role: "callee"},
		},
	}
}

func completion(user string, status domain.InvocationStatus) domain.Completion {
	return domain.Completion{TaskID: "T1", Protocol: "ping", UserID: user, Status: status}
}

// --- TaskState ---

func TestTaskState(t *testing.T) {
	state := NewTaskState(assignment())

	if got := state.Pending(); len(got) != 2 || got[0] != "u1" || got[1] != "u2" {
		t.Fatalf("expected pending [u1 u2], got %v", got)
	}
	if state.Status() != domain.InvocationRunning {
		t.Errorf("expected RUNNING, got %s", state.Status())
	}

	finished, err := state.Record(completion("u2", domain.InvocationSucceeded))
	if err != nil || finished {
		t.Fatalf("first record: finished=%v err=%v", finished, err)
	}

	finished, err = state.Record(completion("u1", domain.InvocationSucceeded))
	if err != nil || !finished {
		t.Fatalf("last record: finished=%v err=%v", finished, err)
	}

	select {
	case <-state.Done():
	default:
		t.Fatal("done channel should be closed")
	}
	if state.Status() != domain.InvocationSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", state.Status())
	}

	// Completions упорядочены по участникам
	got := state.Completions()
	if len(got) != 2 || got[0].UserID != "u1" || got[1].UserID != "u2" {
		t.Errorf("unexpected completions %+v", got)
	}

	// Повторный итог не закрывает done повторно
	finished, err = state.Record(completion("u1", domain.InvocationFailed))
	if err != nil || finished {
		t.Errorf("repeated record: finished=%v err=%v", finished, err)
	}
	if state.Status() != domain.InvocationFailed {
		t.Errorf("expected FAILED after overwrite, got %s", state.Status())
	}
}

func TestTaskState_Status(t *testing.T) {
	tests := []struct {
		name string
		u1   domain.InvocationStatus
		u2   domain.InvocationStatus
		want domain.InvocationStatus
	}{
		{name: "all succeeded", u1: domain.InvocationSucceeded, u2: domain.InvocationSucceeded, want: domain.InvocationSucceeded},
		{name: "second failed", u1: domain.InvocationSucceeded, u2: domain.InvocationFailed, want: domain.InvocationFailed},
		{name: "first rejected wins", u1: domain.InvocationRejected, u2: domain.InvocationFailed, want: domain.InvocationRejected},
		{name: "cancelled", u1: domain.InvocationCancelled, u2: domain.InvocationSucceeded, want: domain.InvocationCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewTaskState(assignment())
			state.Record(completion("u1", tt.u1))
			state.Record(completion("u2", tt.u2))
			if got := state.Status(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTaskState_UnexpectedUser(t *testing.T) {
	state := NewTaskState(assignment())
	if _, err := state.Record(completion("u9", domain.InvocationSucceeded)); !errors.Is(err, ErrUnexpectedUser) {
		t.Errorf("expected ErrUnexpectedUser, got %v", err)
	}
}

// --- Tracker ---

func TestTracker_TrackAndWait(t *testing.T) {
	tr := New(Config{})

	if _, err := tr.Track(assignment()); err != nil {
		t.Fatalf("track: %v", err)
	}
	if _, err := tr.Track(assignment()); !errors.Is(err, ErrTaskAlreadyTracked) {
		t.Errorf("expected ErrTaskAlreadyTracked, got %v", err)
	}

	go func() {
		for _, u := range []string{"u1", "u2"} {
			delivery := &mq.Delivery{Message: mq.Message{
				Type:    mq.MessageTypeTaskCompleted,
				Payload: completion(u, domain.InvocationSucceeded),
			}}
			if err := tr.handleTaskCompleted(context.Background(), delivery); err != nil {
				t.Errorf("handle: %v", err)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	state, err := tr.Wait(ctx, "T1")
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if state.Status() != domain.InvocationSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", state.Status())
	}

	// После Wait task больше не отслеживается
	if _, err := tr.Wait(ctx, "T1"); !errors.Is(err, ErrTaskNotTracked) {
		t.Errorf("expected ErrTaskNotTracked, got %v", err)
	}
}

func TestTracker_WaitCancelled(t *testing.T) {
	tr := New(Config{})
	if _, err := tr.Track(assignment()); err != nil {
		t.Fatalf("track: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	state, err := tr.Wait(ctx, "T1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(state.Pending()) != 2 {
		t.Errorf("expected 2 pending users, got %v", state.Pending())
	}
}

func TestTracker_SkipsForeignCompletions(t *testing.T) {
	tr := New(Config{})

	tests := []struct {
		name    string
		payload any
		wantErr bool
	}{
		{name: "untracked task", payload: completion("u1", domain.InvocationSucceeded)},
		{name: "malformed payload", payload: "not an object", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tr.handleTaskCompleted(context.Background(), &mq.Delivery{Message: mq.Message{Payload: tt.payload}})
			if (err != nil) != tt.wantErr {
				t.Errorf("wantErr=%v, got %v", tt.wantErr, err)
			}
		})
	}
}

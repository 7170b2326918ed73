package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/engine"
	"github.com/shaiso/playbook/internal/host"
	"github.com/shaiso/playbook/internal/mq"
	"github.com/shaiso/playbook/internal/repo"
)

const doc = `
[ping]
name = "ping"
workdir = "/tmp/ping"

[ping.roles.caller]
max_num = 1
min_num = 1
[ping.roles.caller.playbook]
steps = [{ process = "true", step_name = "s" }]

[ping.roles.callee]
[ping.roles.callee.playbook]
steps = []
`

// --- fakes ---

type fakeReader struct {
	records []domain.InvocationRecord
	err     error
}

func (f *fakeReader) GetByID(_ context.Context, id uuid.UUID) (*domain.InvocationRecord, error) {
	for i := range f.records {
		if f.records[i].ID == id {
			return &f.records[i], nil
		}
	}
	return nil, repo.ErrInvocationNotFound
}

func (f *fakeReader) ListByTaskID(_ context.Context, taskID string) ([]domain.InvocationRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.InvocationRecord
	for _, rec := range f.records {
		if rec.TaskID == taskID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakePublisher struct {
	assigned []mq.TaskAssignedPayload
}

func (f *fakePublisher) PublishTaskAssigned(_ context.Context, a mq.TaskAssignedPayload) error {
	f.assigned = append(f.assigned, a)
	return nil
}

func newTestServer(t *testing.T, reader InvocationReader, publisher host.AssignmentPublisher) *httptest.Server {
	t.Helper()
	protocols, err := engine.Parse([]byte(doc), engine.FormatTOML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	h := NewHandler(Config{
		Registry:    host.NewRegistry(protocols),
		Invocations: reader,
		Publisher:   publisher,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// --- Entries ---

func TestListEntries(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	resp, err := http.Get(srv.URL + "/api/v1/entries")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get(HeaderRequestID) == "" {
		t.Error("expected generated request id")
	}

	var body struct {
		Data  []EntryResponse `json:"data"`
		Total int             `json:"total"`
	}
	decode(t, resp, &body)

	if body.Total != 2 || len(body.Data) != 2 {
		t.Fatalf("expected 2 entries, got %+v", body)
	}
	if body.Data[0].Entry != "ping:callee" || body.Data[0].MaxNum != nil {
		t.Errorf("unexpected callee entry %+v", body.Data[0])
	}
	if body.Data[1].Entry != "ping:caller" || body.Data[1].MaxNum == nil || *body.Data[1].MaxNum != 1 {
		t.Errorf("unexpected caller entry %+v", body.Data[1])
	}
	if body.Data[1].Steps != 1 {
		t.Errorf("expected 1 step, got %d", body.Data[1].Steps)
	}
}

// --- Invocations ---

func TestInvocations(t *testing.T) {
	rec := domain.NewInvocationRecord("T1", "ping", "caller", "u1")
	rec.MarkRunning("/tmp/ping")
	time.Sleep(time.Millisecond)
	rec.MarkFinished(domain.InvocationSucceeded, nil)
	other := domain.NewInvocationRecord("T2", "ping", "callee", "u2")

	srv := newTestServer(t, &fakeReader{records: []domain.InvocationRecord{*rec, *other}}, nil)

	t.Run("list by task", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/tasks/T1/invocations")
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		var body struct {
			Data []InvocationResponse `json:"data"`
		}
		decode(t, resp, &body)

		if len(body.Data) != 1 {
			t.Fatalf("expected 1 invocation, got %d", len(body.Data))
		}
		got := body.Data[0]
		if got.Entry != "ping:caller" || got.Status != "SUCCEEDED" || got.Workdir != "/tmp/ping" {
			t.Errorf("unexpected invocation %+v", got)
		}
	})

	t.Run("get by id", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/api/v1/invocations/" + other.ID.String())
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		var body struct {
			Data InvocationResponse `json:"data"`
		}
		decode(t, resp, &body)

		if body.Data.ID != other.ID || body.Data.Status != "PENDING" {
			t.Errorf("unexpected invocation %+v", body.Data)
		}
	})

	tests := []struct {
		name   string
		path   string
		status int
		code   ErrorCode
	}{
		{name: "not found", path: "/api/v1/invocations/" + uuid.New().String(), status: http.StatusNotFound, code: ErrCodeNotFound},
		{name: "invalid id", path: "/api/v1/invocations/nope", status: http.StatusBadRequest, code: ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
			var body ErrorResponse
			decode(t, resp, &body)
			if body.Error.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, body.Error.Code)
			}
		})
	}
}

func TestInvocations_Errors(t *testing.T) {
	tests := []struct {
		name   string
		reader InvocationReader
		status int
	}{
		{name: "no history", reader: nil, status: http.StatusServiceUnavailable},
		{name: "store failure", reader: &fakeReader{err: errors.New("db down")}, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.reader, nil)
			resp, err := http.Get(srv.URL + "/api/v1/tasks/T1/invocations")
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

// --- Tasks ---

func TestStartTask(t *testing.T) {
	publisher := &fakePublisher{}
	srv := newTestServer(t, nil, publisher)

	body, _ := json.Marshal(StartTaskRequest{
		Protocol: "ping",
		Param:    []byte("p"),
		Participants: []domain.Participant{
			{UserID: "u1", Role: "caller"},
			{UserID: "u2", Role: "callee"},
		},
	})
	resp, err := http.Post(srv.URL+"/api/v1/tasks", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	var out struct {
		Data StartTaskResponse `json:"data"`
	}
	decode(t, resp, &out)

	if out.Data.TaskID == "" || len(out.Data.Users) != 2 {
		t.Errorf("unexpected response %+v", out.Data)
	}
	if len(publisher.assigned) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(publisher.assigned))
	}
	if string(publisher.assigned[1].Param) != "p" || publisher.assigned[1].UserID != "u2" {
		t.Errorf("unexpected assignment %+v", publisher.assigned[1])
	}
}

func TestStartTask_Errors(t *testing.T) {
	tests := []struct {
		name      string
		publisher host.AssignmentPublisher
		body      string
		status    int
	}{
		{name: "no publisher", publisher: nil, body: `{"protocol":"ping"}`, status: http.StatusServiceUnavailable},
		{name: "invalid body", publisher: &fakePublisher{}, body: `{`, status: http.StatusBadRequest},
		{name: "no protocol", publisher: &fakePublisher{}, body: `{}`, status: http.StatusBadRequest},
		{name: "unknown protocol", publisher: &fakePublisher{}, body: `{"protocol":"pong"}`, status: http.StatusNotFound},
		{name: "no participants", publisher: &fakePublisher{}, body: `{"protocol":"ping"}`, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, nil, tt.publisher)
			resp, err := http.Post(srv.URL+"/api/v1/tasks", "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

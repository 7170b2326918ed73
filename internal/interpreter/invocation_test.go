package interpreter

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/playbook/internal/coord"
	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/engine"
	"github.com/shaiso/playbook/internal/process"
)

// parseProtocol разбирает документ с одним протоколом.
func parseProtocol(t *testing.T, doc string) *domain.ProtocolSpec {
	t.Helper()
	protocols, err := engine.Parse([]byte(doc), engine.FormatTOML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(protocols) != 1 {
		t.Fatalf("expected 1 protocol, got %d", len(protocols))
	}
	return &protocols[0]
}

// singleRole — протокол p с одной ролью r и заданными шагами.
func singleRole(workdir string, steps ...string) string {
	doc := fmt.Sprintf("[p]\nname = \"p\"\nworkdir = %q\n[p.roles.r]\nmax_num = 1\nmin_num = 1\n[p.roles.r.playbook]\nsteps = [\n", workdir)
	for _, s := range steps {
		doc += "  " + s + ",\n"
	}
	return doc + "]\n"
}

func newInvocation(t *testing.T, protocol *domain.ProtocolSpec, role string, client coord.Client, participants []domain.Participant) *Invocation {
	t.Helper()
	inv, err := New(Config{
		Protocol:     protocol,
		Role:         role,
		Param:        []byte("param"),
		Participants: participants,
		Client:       client,
	})
	if err != nil {
		t.Fatalf("new invocation: %v", err)
	}
	return inv
}

func runSingle(t *testing.T, steps ...string) (*Invocation, error) {
	t.Helper()
	protocol := parseProtocol(t, singleRole(t.TempDir(), steps...))
	client := coord.NewMemoryHub().Session("u1", "T1")
	inv := newInvocation(t, protocol, "r", client, []domain.Participant{{UserID: "u1", Role: "r"}})
	return inv, inv.Run(context.Background())
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew_ParticipantCount(t *testing.T) {
	base := t.TempDir()
	workdir := filepath.Join(base, "wd")
	protocol := parseProtocol(t, singleRole(workdir, `{ process = "touch ran", step_name = "s" }`))

	tests := []struct {
		name         string
		participants []domain.Participant
	}{
		{name: "none", participants: nil},
		{name: "too many", participants: []domain.Participant{{UserID: "a", Role: "r"}, {UserID: "b", Role: "r"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Config{
				Protocol:     protocol,
				Role:         "r",
				Participants: tt.participants,
				Client:       coord.NewMemoryHub().Session("a", "t"),
			})

			var countErr *ParticipantCountError
			if !errors.As(err, &countErr) {
				t.Fatalf("expected ParticipantCountError, got %v", err)
			}
			if !errors.Is(err, ErrParticipantCount) {
				t.Errorf("expected ErrParticipantCount, got %v", err)
			}
			if countErr.Count != len(tt.participants) || countErr.Min != 1 || countErr.Max != 1 {
				t.Errorf("unexpected error fields: %+v", countErr)
			}
			if exists(workdir) {
				t.Error("bootstrap must stop before creating the workdir")
			}
		})
	}
}

func TestNew_UnknownRole(t *testing.T) {
	protocol := parseProtocol(t, singleRole(t.TempDir()))
	_, err := New(Config{Protocol: protocol, Role: "nope", Client: coord.NewMemoryHub().Session("u", "t")})
	if !errors.Is(err, ErrUnknownRole) {
		t.Errorf("expected ErrUnknownRole, got %v", err)
	}
}

func TestNew_WorkdirAndParam(t *testing.T) {
	base := t.TempDir()
	protocol := parseProtocol(t, singleRole(base+"/{{task_id}}/{{user_id[0..2]}}"))
	participants := []domain.Participant{{UserID: "u1", Role: "r"}, {UserID: "u2", Role: "other"}}

	inv := newInvocation(t, protocol, "r", coord.NewMemoryHub().Session("u1", "T1"), participants)

	want := filepath.Join(base, "T1", "u1")
	if inv.Workdir() != want {
		t.Fatalf("workdir = %q, want %q", inv.Workdir(), want)
	}
	if inv.Status() != domain.InvocationPending {
		t.Errorf("expected PENDING before Run, got %s", inv.Status())
	}

	data, err := os.ReadFile(filepath.Join(want, ParamFile))
	if err != nil {
		t.Fatalf("read param: %v", err)
	}

	var doc struct {
		Param        string      `json:"param"`
		Participants [][2]string `json:"participants"`
		UserID       string      `json:"user_id"`
		TaskID       string      `json:"task_id"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Param != base64.StdEncoding.EncodeToString([]byte("param")) {
		t.Errorf("param should be base64, got %q", doc.Param)
	}
	if len(doc.Participants) != 2 || doc.Participants[1] != [2]string{"u2", "other"} {
		t.Errorf("unexpected participants: %v", doc.Participants)
	}
	if doc.UserID != "u1" || doc.TaskID != "T1" {
		t.Errorf("unexpected ids: %s %s", doc.UserID, doc.TaskID)
	}
}

func TestRun_LaunchAndWait(t *testing.T) {
	inv, err := runSingle(t,
		`{ process = "echo hello $PLAYBOOK_USER_ID", step_name = "s1" }`,
		`{ process_wait = "s1", check_exit_code = 0, stdout_file = "out/s1.txt", exit_code = "s1.code" }`,
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if inv.Status() != domain.InvocationSucceeded {
		t.Errorf("expected SUCCEEDED, got %s", inv.Status())
	}

	out, err := os.ReadFile(filepath.Join(inv.Workdir(), "out", "s1.txt"))
	if err != nil {
		t.Fatalf("read stdout: %v", err)
	}
	if string(out) != "hello u1\n" {
		t.Errorf("stdout = %q", out)
	}
	code, _ := os.ReadFile(filepath.Join(inv.Workdir(), "s1.code"))
	if string(code) != "0" {
		t.Errorf("exit code file = %q", code)
	}
}

func TestRun_BackgroundChildrenDoNotBlock(t *testing.T) {
	start := time.Now()
	inv, err := runSingle(t,
		`{ process = "sleep 3 & echo hi", step_name = "s1" }`,
		`{ process_wait = "s1", check_exit_code = 0, stdout_file = "s1.out" }`,
		`{ if = "sleep 3 & true", process = "touch guarded", step_name = "s2", process_wait = "s2" }`,
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("invocation waited on background children for %s", elapsed)
	}

	out, _ := os.ReadFile(filepath.Join(inv.Workdir(), "s1.out"))
	if string(out) != "hi\n" {
		t.Errorf("stdout = %q", out)
	}
	if !exists(filepath.Join(inv.Workdir(), "guarded")) {
		t.Error("guard should pass once its shell exits")
	}
}

func TestRun_SecondWaitFails(t *testing.T) {
	_, err := runSingle(t,
		`{ process = "sleep 0.1", step_name = "s1" }`,
		`{ process_wait = "s1" }`,
		`{ process_wait = "s1" }`,
	)

	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected StepError, got %v", err)
	}
	if stepErr.Index != 2 || stepErr.Kind != domain.ActionWait {
		t.Errorf("unexpected failing step: %+v", stepErr)
	}
	if !errors.Is(err, process.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestRun_GuardSkipsStep(t *testing.T) {
	inv, err := runSingle(t,
		`{ if = "false", process = "touch skipped", step_name = "s", process_wait = "s" }`,
		`{ if = "test -f param.json", process = "touch taken", step_name = "t", process_wait = "t" }`,
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if exists(filepath.Join(inv.Workdir(), "skipped")) {
		t.Error("step with failing guard must not run")
	}
	if !exists(filepath.Join(inv.Workdir(), "taken")) {
		t.Error("step with passing guard must run")
	}
}

func TestRun_CheckExitCodeHalts(t *testing.T) {
	inv, err := runSingle(t,
		`{ process = "exit 1", step_name = "s1" }`,
		`{ process_wait = "s1", check_exit_code = 0 }`,
		`{ process = "touch after", step_name = "s2", process_wait = "s2" }`,
	)
	if !errors.Is(err, process.ErrExitCodeMismatch) {
		t.Fatalf("expected ErrExitCodeMismatch, got %v", err)
	}
	if !errors.Is(err, process.ErrProcess) {
		t.Errorf("expected ProcessError, got %v", err)
	}
	if inv.Status() != domain.InvocationFailed {
		t.Errorf("expected FAILED, got %s", inv.Status())
	}
	if exists(filepath.Join(inv.Workdir(), "after")) {
		t.Error("steps after a failure must not run")
	}
}

func TestRun_KillWritesSignalCode(t *testing.T) {
	inv, err := runSingle(t,
		`{ process = "sleep 30", step_name = "long" }`,
		`{ process_kill = "long", exit_code = "long.code" }`,
	)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	code, _ := os.ReadFile(filepath.Join(inv.Workdir(), "long.code"))
	if string(code) != "137" {
		t.Errorf("exit code file = %q, want 137", code)
	}
}

func TestRun_TemplateError(t *testing.T) {
	_, err := runSingle(t, `{ process = "echo {{missing}}", step_name = "s" }`)
	if !errors.Is(err, engine.ErrTemplate) {
		t.Errorf("expected template error, got %v", err)
	}
}

func TestRun_LeftoverProcessesKilled(t *testing.T) {
	inv, err := runSingle(t, `{ process = "sleep 30; touch late", step_name = "bg" }`)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if inv.procs.Registered("bg") {
		t.Error("leftover process should be reaped at teardown")
	}
}

const exchangeDoc = `
[x]
name = "x"
workdir = %q

[x.roles.sender]
max_num = 1
[x.roles.sender.playbook]
steps = [
  { process = "printf payload > v.txt", step_name = "w", process_wait = "w" },
  { send_variable = "v", file = "v.txt", to_role = "receiver" },
  { process = "printf done > done.txt", step_name = "d", process_wait = "d" },
  { create_entry = "K", file = "done.txt" },
]

[x.roles.receiver]
min_num = 1
[x.roles.receiver.playbook]
steps = [
  { recv_variable = "v", from_role = "sender", index = 0, file = "got.txt" },
  { read_or_wait_entry = "K", file = "entry.txt" },
]
`

func TestRun_ConcurrentInvocations(t *testing.T) {
	base := t.TempDir()
	protocol := parseProtocol(t, fmt.Sprintf(exchangeDoc, base+"/{{user_id}}"))
	hub := coord.NewMemoryHub()

	// Один пользователь в двух ролях: entries общие, переменная адресована себе
	participants := []domain.Participant{
		{UserID: "u1", Role: "sender"},
		{UserID: "u1", Role: "receiver"},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Receiver стартует первым и блокируется
	var wg sync.WaitGroup
	errs := make(map[string]error)
	var mu sync.Mutex
	for _, role := range []string{"receiver", "sender"} {
		inv, err := New(Config{
			Protocol:     protocol,
			Role:         role,
			Participants: participants,
			Client:       hub.Session("u1", "T1"),
		})
		if err != nil {
			t.Fatalf("new %s: %v", role, err)
		}
		wg.Add(1)
		go func(role string, inv *Invocation) {
			defer wg.Done()
			err := inv.Run(ctx)
			mu.Lock()
			errs[role] = err
			mu.Unlock()
		}(role, inv)
		if role == "receiver" {
			time.Sleep(50 * time.Millisecond)
		}
	}
	wg.Wait()

	for role, err := range errs {
		if err != nil {
			t.Fatalf("%s: %v", role, err)
		}
	}

	workdir := filepath.Join(base, "u1")
	tests := []struct {
		file string
		want string
	}{
		{file: "got.txt", want: "payload"},
		{file: "entry.txt", want: "done"},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(workdir, tt.file))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("got %q, want %q", data, tt.want)
			}
		})
	}
}

func TestRun_ParticipantIndexOutOfRange(t *testing.T) {
	doc := fmt.Sprintf(`
[x]
name = "x"
workdir = %q
[x.roles.receiver.playbook]
steps = [
  { recv_variable = "v", from_role = "sender", index = 3, file = "got.txt" },
]
`, t.TempDir())
	protocol := parseProtocol(t, doc)

	inv := newInvocation(t, protocol, "receiver", coord.NewMemoryHub().Session("u", "t"),
		[]domain.Participant{{UserID: "u", Role: "receiver"}, {UserID: "s", Role: "sender"}})

	err := inv.Run(context.Background())
	var idxErr *ParticipantIndexError
	if !errors.As(err, &idxErr) {
		t.Fatalf("expected ParticipantIndexError, got %v", err)
	}
	if idxErr.Index != 3 || idxErr.Count != 1 {
		t.Errorf("unexpected error fields: %+v", idxErr)
	}
}

func TestRun_Cancelled(t *testing.T) {
	protocol := parseProtocol(t, singleRole(t.TempDir(), `{ read_or_wait_entry = "never", file = "x" }`))
	inv := newInvocation(t, protocol, "r", coord.NewMemoryHub().Session("u", "t"),
		[]domain.Participant{{UserID: "u", Role: "r"}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := inv.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if inv.Status() != domain.InvocationCancelled {
		t.Errorf("expected CANCELLED, got %s", inv.Status())
	}
}

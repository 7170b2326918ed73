package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/shaiso/playbook/internal/config"
	"github.com/shaiso/playbook/internal/domain"
)

const pingDoc = `
[package]
use_playbook = true

[ping]
name = "ping"
workdir = %q

[ping.roles.caller]
max_num = 1
min_num = 1
[ping.roles.caller.playbook]
steps = [
  { process = "printf hi > msg.txt", step_name = "w", process_wait = "w" },
  { send_variable = "msg", file = "msg.txt", to_role = "callee" },
]

[ping.roles.callee]
[ping.roles.callee.playbook]
steps = [
  { recv_variable = "msg", from_role = "caller", index = 0, file = "got.txt" },
]
`

// newTestRoot собирает корневую команду так же, как cmd/playbook.
func newTestRoot(t *testing.T) (*cobra.Command, *bytes.Buffer, string) {
	t.Helper()
	base := t.TempDir()
	doc := filepath.Join(base, "ping.toml")
	content := strings.Replace(pingDoc, "%q", `"`+filepath.Join(base, "{{user_id}}")+`"`, 1)
	if err := os.WriteFile(doc, []byte(content), 0644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	stdout := &bytes.Buffer{}
	app := &App{Stdout: stdout, Stderr: &bytes.Buffer{}}
	root := &cobra.Command{Use: "playbook", SilenceUsage: true, SilenceErrors: true}
	app.RegisterFlags(root)
	root.AddCommand(NewValidateCmd(app), NewRunCmd(app), NewLocalCmd(app), NewTaskCmd(app), NewServeCmd(app))
	root.SetOut(&bytes.Buffer{})

	return root, stdout, doc
}

func TestValidateCmd(t *testing.T) {
	root, stdout, doc := newTestRoot(t)
	root.SetArgs([]string{"validate", "--config", doc, "--json"})

	if err := root.Execute(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	var views []entryView
	if err := json.Unmarshal(stdout.Bytes(), &views); err != nil {
		t.Fatalf("unmarshal output: %v\n%s", err, stdout.String())
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(views))
	}
	// Роли упорядочены по имени
	if views[0].Entry != "ping:callee" || views[1].Entry != "ping:caller" {
		t.Errorf("unexpected entries %+v", views)
	}
	if views[0].Max != nil {
		t.Errorf("callee max_num should be unbounded, got %d", *views[0].Max)
	}
	if views[1].Max == nil || *views[1].Max != 1 {
		t.Errorf("caller max_num should be 1")
	}
}

func TestValidateCmd_MissingDocument(t *testing.T) {
	root, _, _ := newTestRoot(t)
	root.SetArgs([]string{"validate", "--config", filepath.Join(t.TempDir(), "missing.toml")})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestLocalCmd(t *testing.T) {
	root, stdout, doc := newTestRoot(t)
	root.SetArgs([]string{
		"local", "ping",
		"--config", doc,
		"--memory",
		"--json",
		"--task-id", "T1",
		"--participant", "alice:caller",
		"--participant", "bob:callee",
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("local: %v", err)
	}

	var completions []domain.Completion
	if err := json.Unmarshal(stdout.Bytes(), &completions); err != nil {
		t.Fatalf("unmarshal output: %v\n%s", err, stdout.String())
	}
	if len(completions) != 2 {
		t.Fatalf("expected 2 completions, got %d", len(completions))
	}
	for _, c := range completions {
		if c.Status != domain.InvocationSucceeded {
			t.Errorf("%s: expected SUCCEEDED, got %s (%s)", c.UserID, c.Status, c.Error)
		}
	}

	got, err := os.ReadFile(filepath.Join(filepath.Dir(doc), "bob", "got.txt"))
	if err != nil {
		t.Fatalf("read got.txt: %v", err)
	}
	if string(got) != "hi" {
		t.Errorf("expected hi, got %q", got)
	}
}

func TestRunCmd_LocalBackend(t *testing.T) {
	root, stdout, doc := newTestRoot(t)
	t.Setenv("PLAYBOOK_SQLITE_PATH", filepath.Join(t.TempDir(), "entries.db"))
	root.SetArgs([]string{
		"run", "ping:caller",
		"--config", doc,
		"--backend", "local",
		"--user-id", "alice",
		"--json",
	})

	// Callee нет: отправка переменной пропускается
	if err := root.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	var c domain.Completion
	if err := json.Unmarshal(stdout.Bytes(), &c); err != nil {
		t.Fatalf("unmarshal output: %v\n%s", err, stdout.String())
	}
	if c.UserID != "alice" || c.Status != domain.InvocationSucceeded || c.TaskID == "" {
		t.Errorf("unexpected completion %+v", c)
	}
}

func TestRunCmd_UnknownEntry(t *testing.T) {
	root, _, doc := newTestRoot(t)
	t.Setenv("PLAYBOOK_SQLITE_PATH", filepath.Join(t.TempDir(), "entries.db"))
	root.SetArgs([]string{"run", "ping:nobody", "--config", doc, "--backend", "local", "--user-id", "alice"})

	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unknown entry")
	}
}

func TestServeCmd_RequiresService(t *testing.T) {
	root, _, doc := newTestRoot(t)
	root.SetArgs([]string{"serve", "--config", doc, "--backend", "local"})

	if err := root.Execute(); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestParseParticipants(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    []domain.Participant
		wantErr bool
	}{
		{
			name:   "ordered",
			values: []string{"u2:b", "u1:a", "u1:b"},
			want:   []domain.Participant{{UserID: "u2", Role: "b"}, {UserID: "u1", Role: "a"}, {UserID: "u1", Role: "b"}},
		},
		{name: "empty", values: nil, want: []domain.Participant{}},
		{name: "no colon", values: []string{"u1"}, wantErr: true},
		{name: "empty role", values: []string{"u1:"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParticipants(tt.values)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("participant %d: expected %v, got %v", i, tt.want[i], got[i])
				}
			}
		})
	}
}

func TestReadParam(t *testing.T) {
	path := filepath.Join(t.TempDir(), "param.bin")
	if err := os.WriteFile(path, []byte{0x00, 0xff}, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadParam("", path)
	if err != nil {
		t.Fatalf("read param: %v", err)
	}
	if !bytes.Equal(got, []byte{0x00, 0xff}) {
		t.Errorf("unexpected param %v", got)
	}

	if got, _ := ReadParam("abc", ""); string(got) != "abc" {
		t.Errorf("expected abc, got %q", got)
	}
	if _, err := ReadParam("abc", path); err == nil {
		t.Error("expected error for both --param and --param-file")
	}
}

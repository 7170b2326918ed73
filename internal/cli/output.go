package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shaiso/playbook/internal/domain"
)

// Output — вывод команд: данные в stdout (таблица или JSON), сообщения в stderr.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput создаёт Output. nil writer заменяется на os.Stdout / os.Stderr.
func NewOutput(jsonMode bool, stdout, stderr io.Writer) *Output {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Output{jsonMode: jsonMode, w: stdout, errW: stderr}
}

// entryView — точка входа документа.
type entryView struct {
	Entry   string `json:"entry"`
	Min     int    `json:"min_num"`
	Max     *int   `json:"max_num,omitempty"`
	Steps   int    `json:"steps"`
	Workdir string `json:"workdir"`
}

// startedView — task, назначения которой опубликованы.
type startedView struct {
	TaskID   string   `json:"task_id"`
	Protocol string   `json:"protocol"`
	Users    []string `json:"users"`
}

// Entries выводит точки входа. Неограниченный max_num показывается как "-".
func (o *Output) Entries(views []entryView) {
	rows := make([][]string, len(views))
	for i, v := range views {
		upper := "-"
		if v.Max != nil {
			upper = strconv.Itoa(*v.Max)
		}
		rows[i] = []string{v.Entry, strconv.Itoa(v.Min), upper, strconv.Itoa(v.Steps), v.Workdir}
	}
	o.print([]string{"ENTRY", "MIN", "MAX", "STEPS", "WORKDIR"}, rows, views)
}

// Completions выводит итоги участников task.
func (o *Output) Completions(completions []domain.Completion) {
	rows := make([][]string, len(completions))
	for i, c := range completions {
		rows[i] = []string{c.TaskID, c.UserID, c.Status.String(), c.Error}
	}
	o.print([]string{"TASK_ID", "USER", "STATUS", "ERROR"}, rows, completions)
}

// Completion выводит итог одной invocation (JSON — объект, не массив).
func (o *Output) Completion(c domain.Completion) {
	if o.jsonMode {
		o.json(c)
		return
	}
	o.Completions([]domain.Completion{c})
}

// Started выводит пользователей, которым отправлено назначение.
func (o *Output) Started(v startedView) {
	rows := make([][]string, len(v.Users))
	for i, u := range v.Users {
		rows[i] = []string{v.TaskID, v.Protocol, u}
	}
	o.print([]string{"TASK_ID", "PROTOCOL", "USER"}, rows, v)
}

// Notice пишет сообщение в stderr, чтобы не смешивать его с данными.
func (o *Output) Notice(format string, args ...any) {
	fmt.Fprintf(o.errW, format+"\n", args...)
}

func (o *Output) print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.json(jsonData)
		return
	}
	o.table(headers, rows)
}

func (o *Output) table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

func (o *Output) json(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

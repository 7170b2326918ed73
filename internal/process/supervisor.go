package process

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/shaiso/playbook/internal/telemetry"
)

// OutputDelay — сколько Wait дочитывает вывод после выхода процесса.
// Потомки, оставшиеся в фоне, после этого не задерживают Wait.
const OutputDelay = 200 * time.Millisecond

// Sinks — файлы, куда Wait пишет вывод и результат процесса.
// Пустой путь означает "не писать". Пути должны быть уже разрешены.
type Sinks struct {
	Stdout   string
	Stderr   string
	ExitCode string
}

// Result — результат ожидания процесса.
type Result struct {
	Outcome Outcome
	Stdout  []byte
	Stderr  []byte
}

// Supervisor управляет фоновыми процессами одной invocation.
//
// Процессы регистрируются по имени шага. Wait снимает регистрацию,
// Kill её сохраняет. Блокировка таблицы держится только на время
// операций с map, ожидание процесса идёт без неё.
type Supervisor struct {
	shell  string
	env    []string
	logger *slog.Logger

	mu    sync.Mutex
	procs map[string]*proc
}

// Config — конфигурация Supervisor.
type Config struct {
	// Env — дополнительные переменные окружения (KEY=VALUE),
	// добавляются к окружению хоста.
	Env []string

	// Shell — интерпретатор команд (default: bash, если найден, иначе sh).
	Shell string

	// Logger
	Logger *slog.Logger
}

// proc — запущенный процесс и его захваченный вывод.
type proc struct {
	name   string
	cmd    *exec.Cmd
	stdout bytes.Buffer
	stderr bytes.Buffer

	// done закрывается после cmd.Wait; err — результат cmd.Wait.
	done chan struct{}
	err  error
}

// New создаёт Supervisor.
func New(cfg Config) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shell := cfg.Shell
	if shell == "" {
		shell = "sh"
		if path, err := exec.LookPath("bash"); err == nil {
			shell = path
		}
	}

	return &Supervisor{
		shell:  shell,
		env:    append(os.Environ(), cfg.Env...),
		logger: logger,
		procs:  make(map[string]*proc),
	}
}

// Launch запускает command в директории dir и регистрирует процесс под name.
//
// Процесс получает собственную группу, чтобы Kill достал и его потомков.
// stdout и stderr захватываются в память до Wait. Таблица блокируется
// только на проверку и вставку, запуск идёт без блокировки.
func (s *Supervisor) Launch(name, command, dir string) error {
	if s.Registered(name) {
		return &ProcessError{Name: name, Op: "launch", Err: ErrAlreadyRegistered}
	}

	cmd := exec.Command(s.shell, "-c", command)
	cmd.Dir = dir
	cmd.Env = s.env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Фоновые потомки держат pipe открытым; Wait не ждёт их дольше OutputDelay
	cmd.WaitDelay = OutputDelay

	p := &proc{
		name: name,
		cmd:  cmd,
		done: make(chan struct{}),
	}
	cmd.Stdout = &p.stdout
	cmd.Stderr = &p.stderr

	if err := cmd.Start(); err != nil {
		return &ProcessError{Name: name, Op: "launch", Detail: err.Error(), Err: ErrSpawn}
	}

	telemetry.ProcessesRunning.Inc()
	go func() {
		p.err = cmd.Wait()
		telemetry.ProcessesRunning.Dec()
		close(p.done)
	}()

	s.mu.Lock()
	_, exists := s.procs[name]
	if !exists {
		s.procs[name] = p
	}
	s.mu.Unlock()

	// Имя заняли, пока процесс запускался
	if exists {
		s.reap(p)
		return &ProcessError{Name: name, Op: "launch", Err: ErrAlreadyRegistered}
	}

	s.logger.Debug("process launched", "process", name, "pid", cmd.Process.Pid, "dir", dir)
	return nil
}

// Wait ожидает процесс name, снимая его регистрацию.
//
// Захваченный вывод и результат пишутся в sinks. Повторный Wait
// того же имени возвращает ErrNotRegistered. При отмене ctx
// группа процесса убивается и дожидается, возвращается ошибка контекста.
func (s *Supervisor) Wait(ctx context.Context, name string, sinks Sinks) (*Result, error) {
	s.mu.Lock()
	p, ok := s.procs[name]
	delete(s.procs, name)
	s.mu.Unlock()

	if !ok {
		return nil, &ProcessError{Name: name, Op: "wait", Err: ErrNotRegistered}
	}

	select {
	case <-p.done:
	case <-ctx.Done():
		s.reap(p)
		return nil, ctx.Err()
	}

	// ErrWaitDelay: процесс вышел сам, pipe держал фоновый потомок
	var exitErr *exec.ExitError
	if p.err != nil && !errors.As(p.err, &exitErr) && !errors.Is(p.err, exec.ErrWaitDelay) {
		s.reap(p)
		return nil, &ProcessError{Name: name, Op: "wait", Detail: p.err.Error(), Err: ErrWait}
	}

	result := &Result{
		Outcome: outcomeOf(p.cmd.ProcessState),
		Stdout:  p.stdout.Bytes(),
		Stderr:  p.stderr.Bytes(),
	}

	s.logger.Debug("process finished", "process", name, "outcome", result.Outcome.String())

	if err := writeSinks(sinks, result); err != nil {
		return result, &ProcessError{Name: name, Op: "wait", Detail: err.Error(), Err: ErrSink}
	}
	return result, nil
}

// Kill посылает SIGKILL группе процесса name. Регистрация сохраняется:
// результат забирается последующим Wait.
func (s *Supervisor) Kill(name string) error {
	s.mu.Lock()
	p, ok := s.procs[name]
	s.mu.Unlock()

	if !ok {
		return &ProcessError{Name: name, Op: "kill", Err: ErrNotRegistered}
	}

	if err := killGroup(p); err != nil {
		return &ProcessError{Name: name, Op: "kill", Detail: err.Error(), Err: ErrProcess}
	}
	s.logger.Debug("process killed", "process", name)
	return nil
}

// Run запускает команду и дожидается её, не сохраняя вывод.
// Используется для guard-условий.
func (s *Supervisor) Run(ctx context.Context, name, command, dir string) (Outcome, error) {
	if err := s.Launch(name, command, dir); err != nil {
		return Outcome{}, err
	}
	result, err := s.Wait(ctx, name, Sinks{})
	if err != nil {
		return Outcome{}, err
	}
	return result.Outcome, nil
}

// Registered сообщает, зарегистрирован ли процесс name.
func (s *Supervisor) Registered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.procs[name]
	return ok
}

// Shutdown убивает и дожидается все ещё зарегистрированные процессы.
// Вызывается при завершении invocation.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	procs := s.procs
	s.procs = make(map[string]*proc)
	s.mu.Unlock()

	for name, p := range procs {
		s.logger.Debug("killing leftover process", "process", name)
		s.reap(p)
	}
}

// reap убивает группу процесса и ждёт завершения.
func (s *Supervisor) reap(p *proc) {
	if err := killGroup(p); err != nil {
		s.logger.Warn("failed to kill process group", "process", p.name, "error", err)
	}
	<-p.done
}

// killGroup посылает SIGKILL всей группе процесса.
// Уже завершившаяся группа ошибкой не считается.
func killGroup(p *proc) error {
	err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	if err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

// writeSinks пишет вывод и результат процесса в файлы, создавая директории.
func writeSinks(sinks Sinks, result *Result) error {
	if sinks.Stdout != "" {
		if err := writeFile(sinks.Stdout, result.Stdout); err != nil {
			return err
		}
	}
	if sinks.Stderr != "" {
		if err := writeFile(sinks.Stderr, result.Stderr); err != nil {
			return err
		}
	}
	if sinks.ExitCode != "" {
		code := strconv.Itoa(result.Outcome.ShellCode())
		if err := writeFile(sinks.ExitCode, []byte(code)); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

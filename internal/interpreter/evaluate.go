package interpreter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shaiso/playbook/internal/domain"
	"github.com/shaiso/playbook/internal/engine"
	"github.com/shaiso/playbook/internal/process"
	"github.com/shaiso/playbook/internal/telemetry"
)

// guardPrefix — префикс имени процесса guard-условия.
const guardPrefix = "__if_"

// runStep выполняет шаг: guard, затем действие.
func (inv *Invocation) runStep(ctx context.Context, step *domain.Step) error {
	logger := telemetry.WithStep(inv.logger, step.Index, step.Name)
	kind := string(step.Action.Kind())
	start := time.Now()

	if step.If != "" {
		passed, err := inv.guard(ctx, step)
		if err != nil {
			telemetry.StepsTotal.WithLabelValues(kind, telemetry.ResultFailure).Inc()
			return fmt.Errorf("guard: %w", err)
		}
		if !passed {
			telemetry.StepsTotal.WithLabelValues(kind, telemetry.ResultSkipped).Inc()
			logger.Debug("step skipped by guard")
			return nil
		}
	}

	logger.Debug("step started", "kind", kind)
	err := inv.evaluate(ctx, step)
	telemetry.StepDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.StepsTotal.WithLabelValues(kind, telemetry.ResultFailure).Inc()
		logger.Warn("step failed", "kind", kind, "error", err)
		return err
	}

	telemetry.StepsTotal.WithLabelValues(kind, telemetry.ResultSuccess).Inc()
	logger.Debug("step finished", "kind", kind, "duration", time.Since(start))
	return nil
}

// guard выполняет условие шага до конца. Шаг выполняется,
// только если процесс завершился сам с кодом 0.
func (inv *Invocation) guard(ctx context.Context, step *domain.Step) (bool, error) {
	command, err := inv.resolver.Resolve(step.If)
	if err != nil {
		return false, err
	}

	outcome, err := inv.procs.Run(ctx, guardPrefix+step.Label(), command, inv.workdir)
	if err != nil {
		return false, err
	}
	return outcome.Success(), nil
}

// evaluate выполняет действие шага.
func (inv *Invocation) evaluate(ctx context.Context, step *domain.Step) error {
	switch a := step.Action.(type) {
	case *domain.LaunchAction:
		command, err := inv.resolver.Resolve(a.Command)
		if err != nil {
			return err
		}
		if err := inv.procs.Launch(step.Name, command, inv.workdir); err != nil {
			return err
		}
		if a.Reap == nil {
			return nil
		}
		return inv.reap(ctx, a.Reap)

	case *domain.ReapAction:
		return inv.reap(ctx, a)

	case *domain.SendVariableAction:
		return inv.sendVariable(ctx, a)

	case *domain.RecvVariableAction:
		return inv.recvVariable(ctx, a)

	case *domain.EntryAction:
		return inv.entry(ctx, a)

	default:
		return fmt.Errorf("%w: %T", engine.ErrUnrecognizedStep, step.Action)
	}
}

// reap ждёт (или убивает и ждёт) процесс и проверяет код выхода.
func (inv *Invocation) reap(ctx context.Context, a *domain.ReapAction) error {
	sinks, err := inv.sinks(a)
	if err != nil {
		return err
	}

	if a.Kill {
		if err := inv.procs.Kill(a.Target); err != nil {
			return err
		}
	}

	result, err := inv.procs.Wait(ctx, a.Target, sinks)
	if err != nil {
		return err
	}

	if a.CheckExitCode != nil {
		return process.CheckExitCode(a.Target, result.Outcome, *a.CheckExitCode)
	}
	return nil
}

func (inv *Invocation) sinks(a *domain.ReapAction) (process.Sinks, error) {
	var sinks process.Sinks
	for _, f := range []struct {
		tmpl string
		dst  *string
	}{
		{a.StdoutFile, &sinks.Stdout},
		{a.StderrFile, &sinks.Stderr},
		{a.ExitCodeFile, &sinks.ExitCode},
	} {
		if f.tmpl == "" {
			continue
		}
		path, err := inv.path(f.tmpl)
		if err != nil {
			return process.Sinks{}, err
		}
		*f.dst = path
	}
	return sinks, nil
}

// sendVariable отправляет содержимое файла всем участникам роли
// или одному участнику по индексу.
func (inv *Invocation) sendVariable(ctx context.Context, a *domain.SendVariableAction) error {
	name, err := inv.resolver.Resolve(a.Name)
	if err != nil {
		return err
	}
	payload, err := inv.readFile(a.File)
	if err != nil {
		return err
	}

	targets := domain.WithRole(inv.participants, a.ToRole)
	if a.Index != nil {
		p, err := inv.participant(a.ToRole, *a.Index)
		if err != nil {
			return err
		}
		targets = []domain.Participant{p}
	}
	if len(targets) == 0 {
		inv.logger.Warn("no participants to send variable to", "variable", name, "to_role", a.ToRole)
		return nil
	}

	return inv.client.SendVariable(ctx, name, payload, targets)
}

// recvVariable ждёт переменную от участника роли и, если задан file, сохраняет её.
func (inv *Invocation) recvVariable(ctx context.Context, a *domain.RecvVariableAction) error {
	name, err := inv.resolver.Resolve(a.Name)
	if err != nil {
		return err
	}
	from, err := inv.participant(a.FromRole, a.Index)
	if err != nil {
		return err
	}

	payload, err := inv.client.RecvVariable(ctx, name, from)
	if err != nil {
		return err
	}

	if a.File == "" {
		return nil
	}
	return inv.writeFile(a.File, payload)
}

// entry выполняет операцию над entry.
func (inv *Invocation) entry(ctx context.Context, a *domain.EntryAction) error {
	key, err := inv.resolver.Resolve(a.Key)
	if err != nil {
		return err
	}

	switch a.Op {
	case domain.EntryCreate, domain.EntryUpdate:
		payload, err := inv.readFile(a.File)
		if err != nil {
			return err
		}
		if a.Op == domain.EntryCreate {
			return inv.client.CreateEntry(ctx, key, payload)
		}
		return inv.client.UpdateEntry(ctx, key, payload)

	case domain.EntryRead, domain.EntryReadOrWait:
		read := inv.client.ReadEntry
		if a.Op == domain.EntryReadOrWait {
			read = inv.client.ReadOrWait
		}
		payload, err := read(ctx, key)
		if err != nil {
			return err
		}
		return inv.writeFile(a.File, payload)

	case domain.EntryDelete:
		return inv.client.DeleteEntry(ctx, key)

	default:
		return fmt.Errorf("%w: entry op %q", engine.ErrUnrecognizedStep, a.Op)
	}
}

// participant возвращает участника роли по индексу.
func (inv *Invocation) participant(role string, index int) (domain.Participant, error) {
	members := domain.WithRole(inv.participants, role)
	if index < 0 || index >= len(members) {
		return domain.Participant{}, &ParticipantIndexError{Role: role, Index: index, Count: len(members)}
	}
	return members[index], nil
}

// path разрешает шаблон пути; относительные пути берутся от рабочей директории.
func (inv *Invocation) path(tmpl string) (string, error) {
	p, err := inv.resolver.Resolve(tmpl)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(inv.workdir, p)
	}
	return p, nil
}

func (inv *Invocation) readFile(tmpl string) ([]byte, error) {
	path, err := inv.path(tmpl)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	return data, nil
}

func (inv *Invocation) writeFile(tmpl string, data []byte) error {
	path, err := inv.path(tmpl)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

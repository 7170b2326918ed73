package process

import (
	"fmt"
	"os"
	"syscall"
)

// OutcomeKind — способ завершения процесса.
type OutcomeKind int

const (
	// Exited — процесс завершился сам, Code — код выхода.
	Exited OutcomeKind = iota

	// Signaled — процесс убит сигналом, Code — номер сигнала.
	Signaled
)

// Outcome — результат завершения процесса.
type Outcome struct {
	Kind OutcomeKind
	Code int
}

// ExitedWith создаёт Outcome нормального завершения.
func ExitedWith(code int) Outcome {
	return Outcome{Kind: Exited, Code: code}
}

// SignaledBy создаёт Outcome завершения сигналом.
func SignaledBy(signal int) Outcome {
	return Outcome{Kind: Signaled, Code: signal}
}

// Matches — true только для Exited с тем же кодом.
func (o Outcome) Matches(code int) bool {
	return o.Kind == Exited && o.Code == code
}

// Success — завершился с кодом 0.
func (o Outcome) Success() bool {
	return o.Matches(0)
}

// ShellCode возвращает код в shell-конвенции: код выхода
// либо 128+сигнал. Это значение пишется в файл exit_code.
func (o Outcome) ShellCode() int {
	if o.Kind == Signaled {
		return 128 + o.Code
	}
	return o.Code
}

// String реализует fmt.Stringer.
func (o Outcome) String() string {
	if o.Kind == Signaled {
		return fmt.Sprintf("signal %d", o.Code)
	}
	return fmt.Sprintf("exit %d", o.Code)
}

// outcomeOf извлекает Outcome из состояния завершённого процесса.
func outcomeOf(state *os.ProcessState) Outcome {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return SignaledBy(int(ws.Signal()))
	}
	return ExitedWith(state.ExitCode())
}

package domain

// InvocationStatus — статус выполнения invocation одной роли.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	        ↘         ↘ FAILED
//	          REJECTED (число участников вне [min_num, max_num])
//	          (или) → CANCELLED (хост остановлен)
type InvocationStatus string

const (
	// InvocationPending — invocation создана, bootstrap ещё не выполнен.
	InvocationPending InvocationStatus = "PENDING"

	// InvocationRunning — шаги выполняются.
	InvocationRunning InvocationStatus = "RUNNING"

	// InvocationSucceeded — все шаги выполнены.
	InvocationSucceeded InvocationStatus = "SUCCEEDED"

	// InvocationFailed — шаг завершился ошибкой, остальные не выполнялись.
	InvocationFailed InvocationStatus = "FAILED"

	// InvocationRejected — проверка числа участников не пройдена, ни один шаг не выполнен.
	InvocationRejected InvocationStatus = "REJECTED"

	// InvocationCancelled — контекст хоста отменён.
	InvocationCancelled InvocationStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный.
func (s InvocationStatus) IsTerminal() bool {
	switch s {
	case InvocationSucceeded, InvocationFailed, InvocationRejected, InvocationCancelled:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление InvocationStatus.
func (s InvocationStatus) String() string {
	return string(s)
}

// ParseInvocationStatus парсит строку в InvocationStatus.
func ParseInvocationStatus(s string) InvocationStatus {
	switch s {
	case "RUNNING":
		return InvocationRunning
	case "SUCCEEDED":
		return InvocationSucceeded
	case "FAILED":
		return InvocationFailed
	case "REJECTED":
		return InvocationRejected
	case "CANCELLED":
		return InvocationCancelled
	default:
		return InvocationPending
	}
}

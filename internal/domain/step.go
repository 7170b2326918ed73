package domain

import "strconv"

// ActionKind — семейство действия шага.
type ActionKind string

const (
	ActionLaunch       ActionKind = "launch"
	ActionWait         ActionKind = "wait"
	ActionKill         ActionKind = "kill"
	ActionSendVariable ActionKind = "send_variable"
	ActionRecvVariable ActionKind = "recv_variable"
	ActionEntry        ActionKind = "entry"
)

// Step — один шаг playbook.
//
// Шаг состоит из необязательного guard-условия (If) и ровно одного действия.
// Набор допустимых действий закрыт и проверяется при парсинге,
// поэтому во время выполнения "неопознанных" шагов не бывает.
type Step struct {
	// Index — позиция шага в playbook роли (с 0).
	Index int `json:"index"`

	// Name — step_name. Обязателен для запуска процесса,
	// по нему процесс регистрируется в таблице процессов.
	Name string `json:"name,omitempty"`

	// If — guard-команда. Ненулевой код выхода пропускает весь шаг.
	If string `json:"if,omitempty"`

	// Action — действие шага.
	Action Action `json:"-"`
}

// Label возвращает имя шага для логов и ошибок: step_name или индекс.
func (s *Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.Itoa(s.Index)
}

// Action — действие шага. Реализации перечислены ниже, других нет.
type Action interface {
	Kind() ActionKind
	isAction()
}

// LaunchAction запускает фоновый процесс под именем шага.
// Reap — необязательное ожидание/завершение процесса в том же шаге.
type LaunchAction struct {
	Command string
	Reap    *ReapAction
}

// ReapAction ожидает процесс Target (process_wait) либо
// сначала убивает его (process_kill), а затем ожидает.
type ReapAction struct {
	Target string
	Kill   bool

	// Файлы для stdout, stderr и результата процесса (шаблоны, необязательны).
	StdoutFile   string
	StderrFile   string
	ExitCodeFile string

	// CheckExitCode — ожидаемый код выхода; nil — не проверять.
	CheckExitCode *int
}

// SendVariableAction отправляет содержимое файла как переменную
// всем участникам роли ToRole или одному участнику по Index.
type SendVariableAction struct {
	Name   string
	File   string
	ToRole string
	Index  *int
}

// RecvVariableAction получает переменную от участника роли FromRole с индексом Index.
// File — куда сохранить payload (необязательно).
type RecvVariableAction struct {
	Name     string
	FromRole string
	Index    int
	File     string
}

// EntryOp — операция над entry.
type EntryOp string

const (
	EntryCreate     EntryOp = "create"
	EntryRead       EntryOp = "read"
	EntryReadOrWait EntryOp = "read_or_wait"
	EntryUpdate     EntryOp = "update"
	EntryDelete     EntryOp = "delete"
)

// EntryAction — операция над entry сервиса координации.
// Для create/update File — источник payload, для read/read_or_wait — приёмник.
type EntryAction struct {
	Op   EntryOp
	Key  string
	File string
}

func (a *LaunchAction) Kind() ActionKind { return ActionLaunch }

func (a *ReapAction) Kind() ActionKind {
	if a.Kill {
		return ActionKill
	}
	return ActionWait
}

func (a *SendVariableAction) Kind() ActionKind { return ActionSendVariable }
func (a *RecvVariableAction) Kind() ActionKind { return ActionRecvVariable }
func (a *EntryAction) Kind() ActionKind        { return ActionEntry }

func (*LaunchAction) isAction()       {}
func (*ReapAction) isAction()         {}
func (*SendVariableAction) isAction() {}
func (*RecvVariableAction) isAction() {}
func (*EntryAction) isAction()        {}

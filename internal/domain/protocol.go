package domain

import "math"

// Unbounded — значение MaxParticipants по умолчанию (ограничение не задано).
const Unbounded = math.MaxInt

// ProtocolSpec — описание протокола из playbook-документа.
//
// Протокол — это набор ролей, каждая со своей последовательностью шагов.
// Создаётся один раз при парсинге документа и дальше не меняется.
type ProtocolSpec struct {
	// Name — имя протокола (используется в ключе "<protocol>:<role>").
	Name string `json:"name"`

	// Workdir — рабочая директория по умолчанию для всех ролей.
	// Хранится как шаблон, рендерится в момент запуска.
	Workdir string `json:"workdir"`

	// Roles — роли протокола, упорядочены по имени.
	Roles []RoleSpec `json:"roles"`
}

// Role возвращает роль по имени.
func (p *ProtocolSpec) Role(name string) (*RoleSpec, bool) {
	for i := range p.Roles {
		if p.Roles[i].Name == name {
			return &p.Roles[i], true
		}
	}
	return nil, false
}

// EntryName возвращает имя точки входа для роли: "<protocol>:<role>".
func (p *ProtocolSpec) EntryName(role string) string {
	return EntryName(p.Name, role)
}

// EntryName формирует имя точки входа "<protocol>:<role>".
func EntryName(protocol, role string) string {
	return protocol + ":" + role
}

// RoleSpec — описание одной роли протокола.
type RoleSpec struct {
	// Name — имя роли.
	Name string `json:"name"`

	// MaxParticipants — максимальное число участников с этой ролью.
	// Unbounded, если в документе не задано max_num.
	MaxParticipants int `json:"max_participants"`

	// MinParticipants — минимальное число участников с этой ролью (по умолчанию 0).
	MinParticipants int `json:"min_participants"`

	// Workdir — рабочая директория роли (шаблон).
	// Если в playbook не задана, наследуется от ProtocolSpec.Workdir.
	Workdir string `json:"workdir"`

	// Steps — шаги роли в порядке выполнения.
	Steps []Step `json:"steps"`
}

// AcceptsCount проверяет, что число участников роли лежит в [Min, Max].
func (r *RoleSpec) AcceptsCount(n int) bool {
	return n >= r.MinParticipants && n <= r.MaxParticipants
}

package domain

// Participant — конкретное назначение (user_id, role) внутри task.
type Participant struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Assignment — task, доставленный одному пользователю.
//
// Содержит всё, что нужно для запуска invocation каждой роли,
// которую пользователь занимает в task.
type Assignment struct {
	// TaskID — идентификатор task (общий для всех участников).
	TaskID string `json:"task_id"`

	// Protocol — имя протокола.
	Protocol string `json:"protocol"`

	// UserID — пользователь, которому доставлен task.
	UserID string `json:"user_id"`

	// Param — сырые параметры task.
	Param []byte `json:"param"`

	// Participants — участники в порядке, заданном инициатором task.
	Participants []Participant `json:"participants"`
}

// RolesOf возвращает роли пользователя в порядке первого появления.
func (a *Assignment) RolesOf(userID string) []string {
	seen := make(map[string]bool)
	var roles []string
	for _, p := range a.Participants {
		if p.UserID == userID && !seen[p.Role] {
			seen[p.Role] = true
			roles = append(roles, p.Role)
		}
	}
	return roles
}

// WithRole возвращает участников с заданной ролью в исходном порядке.
func WithRole(participants []Participant, role string) []Participant {
	var out []Participant
	for _, p := range participants {
		if p.Role == role {
			out = append(out, p)
		}
	}
	return out
}

// CountRole возвращает число участников с заданной ролью.
func CountRole(participants []Participant, role string) int {
	n := 0
	for _, p := range participants {
		if p.Role == role {
			n++
		}
	}
	return n
}

// Completion — итог task на стороне одного пользователя.
// Публикуется хостом после завершения всех его invocation.
type Completion struct {
	TaskID   string           `json:"task_id"`
	Protocol string           `json:"protocol"`
	UserID   string           `json:"user_id"`
	Status   InvocationStatus `json:"status"`
	Error    string           `json:"error,omitempty"`
}

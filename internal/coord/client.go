package coord

import (
	"context"
	"log/slog"

	"github.com/shaiso/playbook/internal/domain"
)

// Client — операции координационного сервиса, доступные invocation.
//
// Вызовы RecvVariable и ReadOrWait блокируются до появления данных
// или отмены ctx; собственных таймаутов у них нет.
type Client interface {
	// UserID — пользователь, от имени которого работает invocation.
	UserID() string

	// TaskID — идентификатор task.
	TaskID() string

	// CoreAddr — адрес сервиса, передаётся процессам в окружении.
	CoreAddr() string

	// Token — учётные данные, передаются процессам в окружении.
	Token() string

	SendVariable(ctx context.Context, name string, payload []byte, to []domain.Participant) error
	RecvVariable(ctx context.Context, name string, from domain.Participant) ([]byte, error)

	CreateEntry(ctx context.Context, key string, payload []byte) error
	UpdateEntry(ctx context.Context, key string, payload []byte) error
	DeleteEntry(ctx context.Context, key string) error
	ReadEntry(ctx context.Context, key string) ([]byte, error)
	ReadOrWait(ctx context.Context, key string) ([]byte, error)
}

// EntryStore — хранилище entries. Ключи изолированы по пользователю.
type EntryStore interface {
	Create(ctx context.Context, userID, key string, payload []byte) error
	Update(ctx context.Context, userID, key string, payload []byte) error
	Delete(ctx context.Context, userID, key string) error
	Read(ctx context.Context, userID, key string) ([]byte, error)

	// ReadOrWait блокируется, пока entry не появится.
	ReadOrWait(ctx context.Context, userID, key string) ([]byte, error)
}

// VariableAddr — адрес переменной: task, имя, отправитель и получатель.
type VariableAddr struct {
	TaskID   string `json:"task_id"`
	Name     string `json:"name"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
}

// VariableBus — доставка переменных между участниками task.
type VariableBus interface {
	Send(ctx context.Context, addr VariableAddr, payload []byte) error

	// Recv блокируется, пока переменная по addr не будет отправлена.
	Recv(ctx context.Context, addr VariableAddr) ([]byte, error)
}

// Session — Client одного пользователя в одном task.
type Session struct {
	userID   string
	taskID   string
	coreAddr string
	token    string

	entries EntryStore
	bus     VariableBus
	logger  *slog.Logger
}

// SessionConfig — конфигурация Session.
type SessionConfig struct {
	UserID   string
	TaskID   string
	CoreAddr string
	Token    string

	// Backends
	Entries EntryStore
	Bus     VariableBus

	// Logger
	Logger *slog.Logger
}

// NewSession создаёт Session.
func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		userID:   cfg.UserID,
		taskID:   cfg.TaskID,
		coreAddr: cfg.CoreAddr,
		token:    cfg.Token,
		entries:  cfg.Entries,
		bus:      cfg.Bus,
		logger:   logger,
	}
}

func (s *Session) UserID() string   { return s.userID }
func (s *Session) TaskID() string   { return s.taskID }
func (s *Session) CoreAddr() string { return s.coreAddr }
func (s *Session) Token() string    { return s.token }

// SendVariable отправляет payload каждому участнику из to.
func (s *Session) SendVariable(ctx context.Context, name string, payload []byte, to []domain.Participant) error {
	if len(to) == 0 {
		return wrap("send_variable", name, ErrNoRecipients)
	}

	for _, p := range to {
		addr := VariableAddr{TaskID: s.taskID, Name: name, Sender: s.userID, Receiver: p.UserID}
		if err := s.bus.Send(ctx, addr, payload); err != nil {
			return wrap("send_variable", name, err)
		}
		s.logger.Debug("variable sent", "variable", name, "receiver", p.UserID, "size", len(payload))
	}
	return nil
}

// RecvVariable ждёт переменную name от участника from.
func (s *Session) RecvVariable(ctx context.Context, name string, from domain.Participant) ([]byte, error) {
	addr := VariableAddr{TaskID: s.taskID, Name: name, Sender: from.UserID, Receiver: s.userID}
	payload, err := s.bus.Recv(ctx, addr)
	if err != nil {
		return nil, wrap("recv_variable", name, err)
	}
	s.logger.Debug("variable received", "variable", name, "sender", from.UserID, "size", len(payload))
	return payload, nil
}

func (s *Session) CreateEntry(ctx context.Context, key string, payload []byte) error {
	return wrap("create_entry", key, s.entries.Create(ctx, s.userID, key, payload))
}

func (s *Session) UpdateEntry(ctx context.Context, key string, payload []byte) error {
	return wrap("update_entry", key, s.entries.Update(ctx, s.userID, key, payload))
}

func (s *Session) DeleteEntry(ctx context.Context, key string) error {
	return wrap("delete_entry", key, s.entries.Delete(ctx, s.userID, key))
}

func (s *Session) ReadEntry(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.entries.Read(ctx, s.userID, key)
	if err != nil {
		return nil, wrap("read_entry", key, err)
	}
	return payload, nil
}

func (s *Session) ReadOrWait(ctx context.Context, key string) ([]byte, error) {
	payload, err := s.entries.ReadOrWait(ctx, s.userID, key)
	if err != nil {
		return nil, wrap("read_or_wait_entry", key, err)
	}
	return payload, nil
}

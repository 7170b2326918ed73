package coord

import (
	"context"
	"sync"
)

type entryKey struct {
	userID string
	key    string
}

// MemoryEntries — EntryStore в памяти процесса.
type MemoryEntries struct {
	mu       sync.Mutex
	data     map[entryKey][]byte
	notifier *Notifier
}

// NewMemoryEntries создаёт пустое хранилище.
func NewMemoryEntries() *MemoryEntries {
	return &MemoryEntries{
		data:     make(map[entryKey][]byte),
		notifier: NewNotifier(),
	}
}

func (m *MemoryEntries) Create(_ context.Context, userID, key string, payload []byte) error {
	m.mu.Lock()
	k := entryKey{userID, key}
	if _, exists := m.data[k]; exists {
		m.mu.Unlock()
		return ErrEntryExists
	}
	m.data[k] = clone(payload)
	m.mu.Unlock()

	m.notifier.Broadcast()
	return nil
}

func (m *MemoryEntries) Update(_ context.Context, userID, key string, payload []byte) error {
	m.mu.Lock()
	k := entryKey{userID, key}
	if _, exists := m.data[k]; !exists {
		m.mu.Unlock()
		return ErrEntryNotFound
	}
	m.data[k] = clone(payload)
	m.mu.Unlock()

	m.notifier.Broadcast()
	return nil
}

func (m *MemoryEntries) Delete(_ context.Context, userID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := entryKey{userID, key}
	if _, exists := m.data[k]; !exists {
		return ErrEntryNotFound
	}
	delete(m.data, k)
	return nil
}

func (m *MemoryEntries) Read(_ context.Context, userID, key string) ([]byte, error) {
	payload, ok := m.lookup(userID, key)
	if !ok {
		return nil, ErrEntryNotFound
	}
	return payload, nil
}

func (m *MemoryEntries) ReadOrWait(ctx context.Context, userID, key string) ([]byte, error) {
	return WaitFor(ctx, m.notifier, func() ([]byte, bool, error) {
		payload, ok := m.lookup(userID, key)
		return payload, ok, nil
	})
}

func (m *MemoryEntries) lookup(userID, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.data[entryKey{userID, key}]
	return clone(payload), ok
}

// MemoryBus — VariableBus в памяти процесса.
//
// Отправленное значение хранится по адресу и доступно получателю
// сколько угодно раз; повторная отправка перезаписывает его.
type MemoryBus struct {
	mu       sync.Mutex
	vars     map[VariableAddr][]byte
	notifier *Notifier
}

// NewMemoryBus создаёт пустую шину.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		vars:     make(map[VariableAddr][]byte),
		notifier: NewNotifier(),
	}
}

func (b *MemoryBus) Send(_ context.Context, addr VariableAddr, payload []byte) error {
	b.mu.Lock()
	b.vars[addr] = clone(payload)
	b.mu.Unlock()

	b.notifier.Broadcast()
	return nil
}

func (b *MemoryBus) Recv(ctx context.Context, addr VariableAddr) ([]byte, error) {
	return WaitFor(ctx, b.notifier, func() ([]byte, bool, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		payload, ok := b.vars[addr]
		return clone(payload), ok, nil
	})
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Hub связывает MemoryEntries и MemoryBus и выдаёт Session
// для каждого участника task. Используется тестами и локальным запуском.
type Hub struct {
	Entries EntryStore
	Bus     VariableBus
}

// NewMemoryHub создаёт Hub целиком в памяти.
func NewMemoryHub() *Hub {
	return &Hub{
		Entries: NewMemoryEntries(),
		Bus:     NewMemoryBus(),
	}
}

// Session возвращает Client пользователя userID в task taskID.
func (h *Hub) Session(userID, taskID string) *Session {
	return NewSession(SessionConfig{
		UserID:  userID,
		TaskID:  taskID,
		Entries: h.Entries,
		Bus:     h.Bus,
	})
}

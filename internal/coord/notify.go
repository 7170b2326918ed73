package coord

import (
	"context"
	"sync"
)

// Notifier будит всех ожидающих при каждом изменении.
//
// Ожидающий берёт канал через Changed до проверки условия,
// а после неудачной проверки ждёт его закрытия. Так изменение
// между проверкой и ожиданием не теряется.
type Notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewNotifier создаёт Notifier.
func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{})}
}

// Changed возвращает канал, который закроется при следующем Broadcast.
func (n *Notifier) Changed() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

// Broadcast будит всех, кто ждёт текущий канал.
func (n *Notifier) Broadcast() {
	n.mu.Lock()
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}

// WaitFor проверяет cond и ждёт изменений, пока cond не вернёт true.
func WaitFor[T any](ctx context.Context, n *Notifier, cond func() (T, bool, error)) (T, error) {
	for {
		changed := n.Changed()

		v, ok, err := cond()
		if err != nil || ok {
			return v, err
		}

		select {
		case <-changed:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

package host

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/playbook/internal/coord"
	"github.com/shaiso/playbook/internal/domain"
)

// RunLocal выполняет task целиком в одном процессе: все участники
// работают параллельно через общие entries и шину переменных в памяти.
//
// cfg.Sessions игнорируется. entries == nil — entries в памяти.
// Возвращает итог каждого пользователя в порядке первого появления.
func RunLocal(ctx context.Context, cfg Config, entries coord.EntryStore, a domain.Assignment) ([]domain.Completion, error) {
	if len(a.Participants) == 0 {
		return nil, ErrNoParticipants
	}
	if a.TaskID == "" {
		a.TaskID = uuid.New().String()
	}

	hub := coord.NewMemoryHub()
	if entries != nil {
		hub.Entries = entries
	}
	cfg.Sessions = func(userID, taskID string) coord.Client {
		return hub.Session(userID, taskID)
	}
	h := New(cfg)

	users := Users(a.Participants)
	completions := make([]domain.Completion, len(users))

	var wg sync.WaitGroup
	for i, userID := range users {
		wg.Add(1)
		go func(i int, userID string) {
			defer wg.Done()
			assigned := a
			assigned.UserID = userID
			completions[i] = h.Complete(ctx, assigned)
		}(i, userID)
	}
	wg.Wait()

	var errs []error
	for _, c := range completions {
		if c.Error != "" {
			errs = append(errs, errors.New(c.UserID+": "+c.Error))
		}
	}
	return completions, errors.Join(errs...)
}

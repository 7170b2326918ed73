package host

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shaiso/playbook/internal/domain"
)

// Registry хранит протоколы документа и точки входа <protocol>:<role>.
type Registry struct {
	protocols map[string]*domain.ProtocolSpec
	entries   map[string]*domain.ProtocolSpec
}

// NewRegistry регистрирует все роли всех протоколов.
func NewRegistry(protocols []domain.ProtocolSpec) *Registry {
	r := &Registry{
		protocols: make(map[string]*domain.ProtocolSpec, len(protocols)),
		entries:   make(map[string]*domain.ProtocolSpec),
	}
	for i := range protocols {
		p := &protocols[i]
		r.protocols[p.Name] = p
		for _, role := range p.Roles {
			r.entries[domain.EntryName(p.Name, role.Name)] = p
		}
	}
	return r
}

// Protocol возвращает протокол по имени.
func (r *Registry) Protocol(name string) (*domain.ProtocolSpec, error) {
	p, ok := r.protocols[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProtocol, name)
	}
	return p, nil
}

// Lookup разбирает имя точки входа и возвращает протокол и роль.
func (r *Registry) Lookup(entry string) (*domain.ProtocolSpec, string, error) {
	p, ok := r.entries[entry]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownEntry, entry)
	}
	return p, strings.TrimPrefix(entry, p.Name+":"), nil
}

// Entries возвращает имена точек входа по алфавиту.
func (r *Registry) Entries() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

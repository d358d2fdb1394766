package store

import (
	"sync"

	"murojaat/pkg/domain"
)

// MemoryStore keeps users and tickets in-process. Contents are lost on exit.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]domain.User
	userOrder   []string
	tickets     map[string]domain.Ticket
	ticketOrder []string // newest first
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		tickets: make(map[string]domain.Ticket),
	}
}

// SaveUser registers or replaces a user and tracks registration order.
func (m *MemoryStore) SaveUser(u domain.User) error {
	if err := validateUser(u); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[u.ID]; !exists {
		m.userOrder = append(m.userOrder, u.ID)
	}
	m.users[u.ID] = u
	return nil
}

// HasUserID checks if a user id is taken.
func (m *MemoryStore) HasUserID(id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[id]
	return ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) FindUsersByIdentifier(identifier string) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var res []domain.User
	for _, id := range m.userOrder {
		u := m.users[id]
		if u.ID == identifier || u.Name == identifier {
			res = append(res, u)
		}
	}
	return res, nil
}

// UserCount returns number of users.
func (m *MemoryStore) UserCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// SaveTicket stores or replaces a ticket. New tickets go to the front.
func (m *MemoryStore) SaveTicket(t domain.Ticket) error {
	if err := validateTicket(t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tickets[t.ID]; !exists {
		m.ticketOrder = append([]string{t.ID}, m.ticketOrder...)
	}
	m.tickets[t.ID] = t.Clone()
	return nil
}

func (m *MemoryStore) HasTicketID(id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tickets[id]
	return ok, nil
}

// GetTicket returns a copy of the ticket.
func (m *MemoryStore) GetTicket(id string) (domain.Ticket, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tickets[id]
	if !ok {
		return domain.Ticket{}, false, nil
	}
	return t.Clone(), true, nil
}

func (m *MemoryStore) ListTickets() ([]domain.Ticket, error) {
	return m.listTickets(func(domain.Ticket) bool { return true }), nil
}

func (m *MemoryStore) ListTicketsByStudent(studentID string) ([]domain.Ticket, error) {
	return m.listTickets(func(t domain.Ticket) bool { return t.StudentID == studentID }), nil
}

func (m *MemoryStore) ListTicketsByFaculty(faculty string) ([]domain.Ticket, error) {
	return m.listTickets(func(t domain.Ticket) bool { return t.Faculty == faculty }), nil
}

func (m *MemoryStore) listTickets(keep func(domain.Ticket) bool) []domain.Ticket {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Ticket, 0, len(m.ticketOrder))
	for _, id := range m.ticketOrder {
		if t, ok := m.tickets[id]; ok && keep(t) {
			res = append(res, t.Clone())
		}
	}
	return res
}

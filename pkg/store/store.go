package store

import (
	"errors"
	"strings"

	"murojaat/pkg/domain"
)

var (
	ErrInvalidUser   = errors.New("invalid user record")
	ErrInvalidTicket = errors.New("invalid ticket record")
)

// Store defines persistence operations for users and tickets.
type Store interface {
	// users
	SaveUser(domain.User) error
	HasUserID(id string) (bool, error)
	GetUserByID(id string) (domain.User, bool, error)
	// FindUsersByIdentifier returns users whose ID or Name equals identifier,
	// in registration order.
	FindUsersByIdentifier(identifier string) ([]domain.User, error)
	UserCount() (int, error)

	// tickets
	SaveTicket(domain.Ticket) error
	HasTicketID(id string) (bool, error)
	GetTicket(id string) (domain.Ticket, bool, error)
	// List* return tickets newest first.
	ListTickets() ([]domain.Ticket, error)
	ListTicketsByStudent(studentID string) ([]domain.Ticket, error)
	ListTicketsByFaculty(faculty string) ([]domain.Ticket, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}

func validateUser(u domain.User) error {
	if strings.TrimSpace(u.ID) == "" || u.Profile == nil || u.Credential == "" {
		return ErrInvalidUser
	}
	return nil
}

func validateTicket(t domain.Ticket) error {
	if strings.TrimSpace(t.ID) == "" || strings.TrimSpace(t.Title) == "" || len(t.Messages) == 0 {
		return ErrInvalidTicket
	}
	for _, m := range t.Messages {
		if strings.TrimSpace(m.Text) == "" {
			return ErrInvalidTicket
		}
	}
	return nil
}

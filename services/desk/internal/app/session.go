package app

import (
	"errors"

	"murojaat/pkg/domain"
)

// Session is one client's view of the desk: it holds the current login and
// runs every operation as that user. It is not safe for concurrent use; the
// App underneath is.
type Session struct {
	app   *App
	token string
}

// NewSession returns a logged-out session.
func (a *App) NewSession() *Session {
	return &Session{app: a}
}

// Token returns the current session token, empty when logged out.
func (s *Session) Token() string { return s.token }

// Login switches the session to the matching user. On failure the previous
// login, if any, stays in place.
func (s *Session) Login(identifier, credential string) bool {
	_, token, err := s.app.Login(identifier, credential)
	if err != nil {
		return false
	}
	s.replace(token)
	return true
}

// Register creates a student and makes it the current user.
func (s *Session) Register(reg domain.Registration) (domain.User, error) {
	user, token, err := s.app.Register(reg)
	if err != nil {
		return domain.User{}, err
	}
	s.replace(token)
	return user, nil
}

// Logout clears the current user.
func (s *Session) Logout() error {
	token := s.token
	s.token = ""
	return s.app.Logout(token)
}

// CurrentUser returns the logged-in user, if any.
func (s *Session) CurrentUser() (domain.User, bool) {
	u, err := s.app.UserFromToken(s.token)
	if err != nil {
		return domain.User{}, false
	}
	return u, true
}

func (s *Session) CreateTicket(title, message string) (domain.Ticket, error) {
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.app.CreateTicket(actor, title, message)
}

func (s *Session) SendMessage(ticketID, text string) (domain.Ticket, error) {
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.app.SendMessage(actor, ticketID, text)
}

func (s *Session) ResolveTicket(ticketID string) (domain.Ticket, error) {
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.app.ResolveTicket(actor, ticketID)
}

func (s *Session) ConfirmResolution(ticketID string) (domain.Ticket, error) {
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.app.ConfirmResolution(actor, ticketID)
}

func (s *Session) UpdateTicketStatus(ticketID string, status domain.TicketStatus) (domain.Ticket, error) {
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.app.UpdateTicketStatus(actor, ticketID, status)
}

func (s *Session) GetTicket(ticketID string) (domain.Ticket, error) {
	actor, err := s.actor()
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.app.GetTicket(actor, ticketID)
}

// Tickets returns the dashboard list for the current user.
func (s *Session) Tickets(filter domain.TicketFilter) ([]domain.Ticket, error) {
	actor, err := s.actor()
	if err != nil {
		return nil, err
	}
	return s.app.ListTickets(actor, filter)
}

func (s *Session) actor() (domain.User, error) {
	u, err := s.app.UserFromToken(s.token)
	if errors.Is(err, ErrNoSession) {
		s.token = ""
	}
	return u, err
}

// replace drops the previous token so switching users does not leak sessions.
func (s *Session) replace(token string) {
	if s.token != "" && s.token != token {
		_ = s.app.Logout(s.token)
	}
	s.token = token
}

package app

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"murojaat/internal/util"
	"murojaat/pkg/auth"
	"murojaat/pkg/domain"
	"murojaat/pkg/store"
)

const systemMessagePrefix = "sys-"

// Config holds runtime configuration for the desk.
type Config struct {
	Store     store.Store
	Sessions  store.SessionStore
	Hasher    auth.Hasher
	Faculties []string
	// Now is the clock; tests pin it.
	Now func() time.Time
}

// App owns users and tickets and is the only writer of either. Every
// mutation runs under mu, so operations are atomic with respect to each
// other even when served concurrently over HTTP.
type App struct {
	mu         sync.Mutex
	store      store.Store
	sessions   store.SessionStore
	hasher     auth.Hasher
	faculties  []string
	facultySet map[string]bool
	now        func() time.Time
}

// New constructs the desk. Missing store, sessions and hasher fall back to
// in-memory stores and bcrypt.
func New(cfg Config) (*App, error) {
	if len(cfg.Faculties) == 0 {
		return nil, errors.New("at least one faculty is required")
	}
	dataStore := cfg.Store
	if dataStore == nil {
		dataStore = store.NewMemoryStore()
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = store.NewMemorySessionStore(0)
	}
	hasher := cfg.Hasher
	if hasher == nil {
		var err error
		if hasher, err = auth.NewHasher(string(auth.ModeBcrypt)); err != nil {
			return nil, err
		}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	set := make(map[string]bool, len(cfg.Faculties))
	for _, f := range cfg.Faculties {
		set[f] = true
	}
	return &App{
		store:      dataStore,
		sessions:   sessions,
		hasher:     hasher,
		faculties:  append([]string(nil), cfg.Faculties...),
		facultySet: set,
		now:        now,
	}, nil
}

// Faculties returns the faculties a student may register under.
func (a *App) Faculties() []string {
	return append([]string(nil), a.faculties...)
}

// Login finds the first user, in registration order, whose ID or Name equals
// identifier and whose credential checks out, and opens a session for them.
// Any number of attempts is allowed.
func (a *App) Login(identifier, credential string) (domain.User, string, error) {
	if identifier == "" || credential == "" {
		return domain.User{}, "", ErrInvalidCredentials
	}
	candidates, err := a.store.FindUsersByIdentifier(identifier)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("find users: %w", err)
	}
	for _, u := range candidates {
		if !a.hasher.Check(credential, u.Credential) {
			continue
		}
		token, err := a.sessions.NewSession(u.ID)
		if err != nil {
			return domain.User{}, "", fmt.Errorf("create session: %w", err)
		}
		return u, token, nil
	}
	return domain.User{}, "", ErrInvalidCredentials
}

// Register creates a student and logs them in. Self-registration never
// creates staff.
func (a *App) Register(reg domain.Registration) (domain.User, string, error) {
	profile := domain.StudentProfile{
		Faculty:   strings.TrimSpace(reg.Faculty),
		Direction: strings.TrimSpace(reg.Direction),
		Group:     strings.TrimSpace(reg.Group),
	}
	name := strings.TrimSpace(reg.Name)
	surname := strings.TrimSpace(reg.Surname)
	if name == "" || surname == "" || reg.Credential == "" || profile.Validate() != nil {
		return domain.User{}, "", ErrRegistrationIncomplete
	}
	if !a.facultySet[profile.Faculty] {
		return domain.User{}, "", ErrUnknownFaculty
	}
	if err := auth.ValidateCredential(reg.Credential); err != nil {
		return domain.User{}, "", err
	}
	stored, err := a.hasher.Hash(reg.Credential)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash credential: %w", err)
	}

	a.mu.Lock()
	id, err := util.NewUniqueID(a.store.HasUserID)
	if err != nil {
		a.mu.Unlock()
		return domain.User{}, "", fmt.Errorf("user id: %w", err)
	}
	user := domain.User{
		ID:         id,
		Name:       name,
		Surname:    surname,
		Profile:    profile,
		Credential: stored,
		CreatedAt:  a.now().UTC(),
	}
	err = a.store.SaveUser(user)
	a.mu.Unlock()
	if err != nil {
		return domain.User{}, "", fmt.Errorf("save user: %w", err)
	}

	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("create session: %w", err)
	}
	slog.Info("student registered", "user_id", user.ID, "faculty", profile.Faculty)
	return user, token, nil
}

// Logout ends a session. Tickets are untouched.
func (a *App) Logout(token string) error {
	if token == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// UserFromToken resolves the user behind a session token.
func (a *App) UserFromToken(token string) (domain.User, error) {
	if token == "" {
		return domain.User{}, ErrNoSession
	}
	userID, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("lookup session: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNoSession
	}
	user, ok, err := a.store.GetUserByID(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrNoSession
	}
	return user, nil
}

// CreateTicket opens a ticket for the student with its first message.
func (a *App) CreateTicket(actor domain.User, title, message string) (domain.Ticket, error) {
	if err := requireRole(actor, domain.RoleStudent); err != nil {
		return domain.Ticket{}, err
	}
	title = strings.TrimSpace(title)
	message = strings.TrimSpace(message)
	if title == "" {
		return domain.Ticket{}, ErrTitleRequired
	}
	if message == "" {
		return domain.Ticket{}, ErrMessageRequired
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	ticketID, err := util.NewUniqueID(a.store.HasTicketID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("ticket id: %w", err)
	}
	now := a.now().UTC()
	first := domain.NewUserMessage(util.NewID(), actor, message, now)
	ticket, err := domain.NewTicket(ticketID, actor, title, first, now)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := a.store.SaveTicket(ticket); err != nil {
		return domain.Ticket{}, fmt.Errorf("save ticket: %w", err)
	}
	slog.Info("ticket created", "ticket_id", ticket.ID, "user_id", actor.ID, "faculty", ticket.Faculty)
	return ticket, nil
}

// SendMessage appends to the thread. A staff reply moves an open ticket to
// in_progress. Resolved tickets still accept messages.
func (a *App) SendMessage(actor domain.User, ticketID, text string) (domain.Ticket, error) {
	if actor.ID == "" {
		return domain.Ticket{}, ErrNoSession
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Ticket{}, ErrMessageRequired
	}
	return a.mutate(actor, ticketID, func(t *domain.Ticket, now time.Time) error {
		msgID, err := newMessageID(*t, "")
		if err != nil {
			return err
		}
		before := t.Status
		if err := t.AppendMessage(domain.NewUserMessage(msgID, actor, text, now), actor.Role()); err != nil {
			return err
		}
		if before != t.Status {
			slog.Info("ticket status changed", "ticket_id", t.ID, "from", before, "to", t.Status, "user_id", actor.ID)
		}
		return nil
	})
}

// ResolveTicket is the staff side of the handshake: it proposes resolution
// and waits for the student. Proposing twice is a no-op.
func (a *App) ResolveTicket(actor domain.User, ticketID string) (domain.Ticket, error) {
	if err := requireRole(actor, domain.RoleStaff); err != nil {
		return domain.Ticket{}, err
	}
	return a.mutate(actor, ticketID, func(t *domain.Ticket, now time.Time) error {
		if t.PendingConfirmation {
			return errUnchanged
		}
		if err := t.ProposeResolution(now); err != nil {
			return err
		}
		slog.Info("ticket resolution proposed", "ticket_id", t.ID, "user_id", actor.ID)
		return nil
	})
}

// ConfirmResolution is the student side of the handshake and the only way a
// ticket becomes resolved.
func (a *App) ConfirmResolution(actor domain.User, ticketID string) (domain.Ticket, error) {
	if err := requireRole(actor, domain.RoleStudent); err != nil {
		return domain.Ticket{}, err
	}
	return a.mutate(actor, ticketID, func(t *domain.Ticket, now time.Time) error {
		msgID, err := newMessageID(*t, systemMessagePrefix)
		if err != nil {
			return err
		}
		if err := t.ConfirmResolution(domain.NewClosureMessage(msgID, now)); err != nil {
			return err
		}
		slog.Info("ticket resolved", "ticket_id", t.ID, "user_id", actor.ID)
		return nil
	})
}

// UpdateTicketStatus lets same-faculty staff move an unresolved ticket
// between open and in_progress. It cannot resolve or close a ticket.
func (a *App) UpdateTicketStatus(actor domain.User, ticketID string, status domain.TicketStatus) (domain.Ticket, error) {
	if err := requireRole(actor, domain.RoleStaff); err != nil {
		return domain.Ticket{}, err
	}
	return a.mutate(actor, ticketID, func(t *domain.Ticket, now time.Time) error {
		before := t.Status
		if err := t.SetStatus(status, now); err != nil {
			return err
		}
		slog.Info("ticket status overridden", "ticket_id", t.ID, "from", before, "to", status, "user_id", actor.ID)
		return nil
	})
}

// GetTicket returns a ticket the actor may see.
func (a *App) GetTicket(actor domain.User, ticketID string) (domain.Ticket, error) {
	if actor.ID == "" {
		return domain.Ticket{}, ErrNoSession
	}
	return a.loadVisible(actor, ticketID)
}

// StudentTickets lists the student's own tickets, newest first.
func (a *App) StudentTickets(actor domain.User) ([]domain.Ticket, error) {
	if err := requireRole(actor, domain.RoleStudent); err != nil {
		return nil, err
	}
	tickets, err := a.store.ListTicketsByStudent(actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	domain.SortNewestFirst(tickets)
	return tickets, nil
}

// StaffTickets lists tickets of the staff member's faculty that pass filter,
// newest first.
func (a *App) StaffTickets(actor domain.User, filter domain.TicketFilter) ([]domain.Ticket, error) {
	if err := requireRole(actor, domain.RoleStaff); err != nil {
		return nil, err
	}
	tickets, err := a.store.ListTicketsByFaculty(actor.Faculty())
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	domain.SortNewestFirst(tickets)
	return applyFilter(tickets, filter), nil
}

// ListTickets picks the dashboard list for the actor's role.
func (a *App) ListTickets(actor domain.User, filter domain.TicketFilter) ([]domain.Ticket, error) {
	switch actor.Role() {
	case domain.RoleStudent:
		tickets, err := a.StudentTickets(actor)
		if err != nil {
			return nil, err
		}
		return applyFilter(tickets, filter), nil
	case domain.RoleStaff:
		return a.StaffTickets(actor, filter)
	default:
		return nil, ErrNoSession
	}
}

// Summaries projects tickets into dashboard rows, keeping order.
func Summaries(tickets []domain.Ticket) []domain.TicketSummary {
	out := make([]domain.TicketSummary, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, t.Summary())
	}
	return out
}

// errUnchanged lets a mutation succeed without writing.
var errUnchanged = errors.New("unchanged")

// mutate loads a visible ticket under the lock, applies fn and saves.
func (a *App) mutate(actor domain.User, ticketID string, fn func(*domain.Ticket, time.Time) error) (domain.Ticket, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ticket, err := a.loadVisible(actor, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := fn(&ticket, a.now().UTC()); err != nil {
		if errors.Is(err, errUnchanged) {
			return ticket, nil
		}
		return domain.Ticket{}, err
	}
	if err := a.store.SaveTicket(ticket); err != nil {
		return domain.Ticket{}, fmt.Errorf("save ticket: %w", err)
	}
	return ticket, nil
}

// loadVisible hides tickets the actor may not see behind ErrTicketNotFound.
func (a *App) loadVisible(actor domain.User, ticketID string) (domain.Ticket, error) {
	ticket, ok, err := a.store.GetTicket(ticketID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("fetch ticket: %w", err)
	}
	if !ok || !ticket.VisibleTo(actor) {
		return domain.Ticket{}, ErrTicketNotFound
	}
	return ticket, nil
}

func requireRole(actor domain.User, role domain.Role) error {
	if actor.ID == "" {
		return ErrNoSession
	}
	if actor.Role() != role {
		return ErrForbidden
	}
	return nil
}

func applyFilter(tickets []domain.Ticket, filter domain.TicketFilter) []domain.Ticket {
	out := tickets[:0]
	for _, t := range tickets {
		if filter.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

func newMessageID(t domain.Ticket, prefix string) (string, error) {
	id, err := util.NewUniqueID(func(id string) (bool, error) {
		return t.HasMessage(prefix + id), nil
	})
	if err != nil {
		return "", fmt.Errorf("message id: %w", err)
	}
	return prefix + id, nil
}

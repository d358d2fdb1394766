package domain

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

type TicketStatus string

const (
	StatusOpen       TicketStatus = "open"
	StatusInProgress TicketStatus = "in_progress"
	StatusResolved   TicketStatus = "resolved"
	// StatusClosed is reserved. No transition produces it.
	StatusClosed TicketStatus = "closed"
)

// ParseTicketStatus accepts the four declared status values.
func ParseTicketStatus(raw string) (TicketStatus, bool) {
	switch TicketStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusOpen:
		return StatusOpen, true
	case StatusInProgress:
		return StatusInProgress, true
	case StatusResolved:
		return StatusResolved, true
	case StatusClosed:
		return StatusClosed, true
	default:
		return "", false
	}
}

// Active reports whether the status belongs to the "active" list group.
func (s TicketStatus) Active() bool {
	return s == StatusOpen || s == StatusInProgress
}

// SystemSenderID marks messages synthesized by the desk itself.
const SystemSenderID = "system"

var ErrProfileIncomplete = errors.New("profile incomplete")

// Profile is the role-specific part of a user. It is implemented only by
// StudentProfile and StaffProfile.
type Profile interface {
	Role() Role
	FacultyName() string
	isProfile()
}

// StudentProfile carries the routing and grouping data every student has.
type StudentProfile struct {
	Faculty   string
	Direction string
	Group     string
}

func (StudentProfile) Role() Role            { return RoleStudent }
func (p StudentProfile) FacultyName() string { return p.Faculty }
func (StudentProfile) isProfile()            {}

// StaffProfile binds a staff member to exactly one faculty.
type StaffProfile struct {
	Faculty string
}

func (StaffProfile) Role() Role            { return RoleStaff }
func (p StaffProfile) FacultyName() string { return p.Faculty }
func (StaffProfile) isProfile()            {}

// Validate rejects profiles with missing required fields.
func (p StudentProfile) Validate() error {
	if strings.TrimSpace(p.Faculty) == "" || strings.TrimSpace(p.Direction) == "" || strings.TrimSpace(p.Group) == "" {
		return ErrProfileIncomplete
	}
	return nil
}

// Validate rejects a staff profile without a faculty.
func (p StaffProfile) Validate() error {
	if strings.TrimSpace(p.Faculty) == "" {
		return ErrProfileIncomplete
	}
	return nil
}

type User struct {
	ID         string
	Name       string
	Surname    string
	Profile    Profile
	Credential string
	CreatedAt  time.Time
}

// Role is derived from the profile variant and cannot drift from it.
func (u User) Role() Role {
	if u.Profile == nil {
		return ""
	}
	return u.Profile.Role()
}

func (u User) Faculty() string {
	if u.Profile == nil {
		return ""
	}
	return u.Profile.FacultyName()
}

func (u User) IsStudent() bool { return u.Role() == RoleStudent }
func (u User) IsStaff() bool   { return u.Role() == RoleStaff }

func (u User) DisplayName() string {
	return strings.TrimSpace(u.Name + " " + u.Surname)
}

type userJSON struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Surname   string    `json:"surname"`
	Role      Role      `json:"role"`
	Faculty   string    `json:"faculty"`
	Direction string    `json:"direction,omitempty"`
	Group     string    `json:"group,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// MarshalJSON flattens the profile and never emits the credential.
func (u User) MarshalJSON() ([]byte, error) {
	out := userJSON{
		ID:        u.ID,
		Name:      u.Name,
		Surname:   u.Surname,
		Role:      u.Role(),
		Faculty:   u.Faculty(),
		CreatedAt: u.CreatedAt,
	}
	if sp, ok := u.Profile.(StudentProfile); ok {
		out.Direction = sp.Direction
		out.Group = sp.Group
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds the profile variant from the flat form.
func (u *User) UnmarshalJSON(data []byte) error {
	var in userJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	u.ID = in.ID
	u.Name = in.Name
	u.Surname = in.Surname
	u.CreatedAt = in.CreatedAt
	switch in.Role {
	case RoleStudent:
		u.Profile = StudentProfile{Faculty: in.Faculty, Direction: in.Direction, Group: in.Group}
	case RoleStaff:
		u.Profile = StaffProfile{Faculty: in.Faculty}
	default:
		return errors.New("unknown role")
	}
	return nil
}

// Registration is the self-service signup form. It always yields a student.
type Registration struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Faculty    string `json:"faculty"`
	Direction  string `json:"direction"`
	Group      string `json:"group"`
	Credential string `json:"credential"`
}

type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
	IsSystem   bool      `json:"isSystem,omitempty"`
}

type Ticket struct {
	ID                  string       `json:"id"`
	StudentID           string       `json:"studentId"`
	StudentName         string       `json:"studentName"`
	Faculty             string       `json:"faculty"`
	Title               string       `json:"title"`
	Status              TicketStatus `json:"status"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
	Messages            []Message    `json:"messages"`
	PendingConfirmation bool         `json:"pendingConfirmation"`
}

// TicketSummary is the row a dashboard list shows for one ticket.
type TicketSummary struct {
	ID                  string       `json:"id"`
	Title               string       `json:"title"`
	StudentName         string       `json:"studentName"`
	Status              TicketStatus `json:"status"`
	PendingConfirmation bool         `json:"pendingConfirmation"`
	LastMessage         string       `json:"lastMessage"`
	CreatedAt           time.Time    `json:"createdAt"`
}

type TicketFilter string

const (
	FilterAll      TicketFilter = "all"
	FilterActive   TicketFilter = "active"
	FilterResolved TicketFilter = "resolved"
)

// ParseTicketFilter maps query values to a filter. "open" is accepted as an
// alias for active; empty means all.
func ParseTicketFilter(raw string) (TicketFilter, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(FilterAll):
		return FilterAll, true
	case string(FilterActive), "open":
		return FilterActive, true
	case string(FilterResolved):
		return FilterResolved, true
	default:
		return "", false
	}
}

// Match reports whether a ticket passes the filter.
func (f TicketFilter) Match(t Ticket) bool {
	switch f {
	case FilterActive:
		return t.Status.Active()
	case FilterResolved:
		return t.Status == StatusResolved
	default:
		return true
	}
}

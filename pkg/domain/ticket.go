package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

var (
	ErrTitleRequired          = errors.New("title required")
	ErrMessageRequired        = errors.New("message text required")
	ErrTicketResolved         = errors.New("ticket already resolved")
	ErrNotPendingConfirmation = errors.New("ticket has no pending resolution")
	ErrStatusTransition       = errors.New("status transition not allowed")
)

const (
	systemSenderName   = "Tizim"
	closureMessageText = "Murojaat talaba tomonidan yopildi."
)

// NewTicket opens a ticket for the student with its initiating message. The
// student's name and faculty are snapshotted.
func NewTicket(id string, student User, title string, first Message, now time.Time) (Ticket, error) {
	if strings.TrimSpace(title) == "" {
		return Ticket{}, ErrTitleRequired
	}
	if strings.TrimSpace(first.Text) == "" {
		return Ticket{}, ErrMessageRequired
	}
	return Ticket{
		ID:          id,
		StudentID:   student.ID,
		StudentName: student.DisplayName(),
		Faculty:     student.Faculty(),
		Title:       title,
		Status:      StatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
		Messages:    []Message{first},
	}, nil
}

// NewUserMessage builds a message typed by a user.
func NewUserMessage(id string, sender User, text string, now time.Time) Message {
	return Message{
		ID:         id,
		SenderID:   sender.ID,
		SenderName: sender.DisplayName(),
		Text:       text,
		Timestamp:  now,
	}
}

// NewClosureMessage builds the system notice appended on confirmed resolution.
func NewClosureMessage(id string, now time.Time) Message {
	return Message{
		ID:         id,
		SenderID:   SystemSenderID,
		SenderName: systemSenderName,
		Text:       closureMessageText,
		Timestamp:  now,
		IsSystem:   true,
	}
}

// AppendMessage adds msg to the thread. A staff reply moves an open ticket to
// in_progress; student messages never touch the status.
func (t *Ticket) AppendMessage(msg Message, senderRole Role) error {
	if strings.TrimSpace(msg.Text) == "" {
		return ErrMessageRequired
	}
	t.Messages = append(t.Messages, msg)
	if senderRole == RoleStaff && t.Status == StatusOpen {
		t.Status = StatusInProgress
	}
	t.UpdatedAt = msg.Timestamp
	return nil
}

// ProposeResolution marks the ticket as awaiting the student's confirmation.
// Status and messages are left alone.
func (t *Ticket) ProposeResolution(now time.Time) error {
	if t.Status == StatusResolved {
		return ErrTicketResolved
	}
	t.PendingConfirmation = true
	t.UpdatedAt = now
	return nil
}

// ConfirmResolution is the only transition into resolved.
func (t *Ticket) ConfirmResolution(notice Message) error {
	if !t.PendingConfirmation {
		return ErrNotPendingConfirmation
	}
	t.Status = StatusResolved
	t.PendingConfirmation = false
	t.Messages = append(t.Messages, notice)
	t.UpdatedAt = notice.Timestamp
	return nil
}

// SetStatus is the manual override. It may only move an unresolved ticket
// between open and in_progress; resolved is reachable through confirmation
// alone and closed is never produced.
func (t *Ticket) SetStatus(status TicketStatus, now time.Time) error {
	if t.Status == StatusResolved {
		return ErrTicketResolved
	}
	if !status.Active() {
		return ErrStatusTransition
	}
	t.Status = status
	t.UpdatedAt = now
	return nil
}

// HasMessage reports whether a message id is already used in this ticket.
func (t Ticket) HasMessage(id string) bool {
	for _, m := range t.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (t Ticket) LastMessage() Message {
	if len(t.Messages) == 0 {
		return Message{}
	}
	return t.Messages[len(t.Messages)-1]
}

// Clone returns a copy that shares no message storage with t.
func (t Ticket) Clone() Ticket {
	out := t
	out.Messages = append([]Message(nil), t.Messages...)
	return out
}

func (t Ticket) Summary() TicketSummary {
	return TicketSummary{
		ID:                  t.ID,
		Title:               t.Title,
		StudentName:         t.StudentName,
		Status:              t.Status,
		PendingConfirmation: t.PendingConfirmation,
		LastMessage:         t.LastMessage().Text,
		CreatedAt:           t.CreatedAt,
	}
}

// VisibleTo reports whether the user may see the ticket: students their own,
// staff their faculty's.
func (t Ticket) VisibleTo(u User) bool {
	switch u.Role() {
	case RoleStudent:
		return t.StudentID == u.ID
	case RoleStaff:
		return t.Faculty == u.Faculty()
	default:
		return false
	}
}

// SortNewestFirst orders tickets by CreatedAt descending, keeping the input
// order for equal timestamps.
func SortNewestFirst(tickets []Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
}

package app

import (
	"fmt"
	"log/slog"
	"time"

	"murojaat/pkg/domain"
)

const (
	demoFaculty    = "Axborot texnologiyalari"
	demoCredential = "123"
	demoTicketAge  = 100 * time.Second
)

// SeedDemoData loads the demo student, staff member and one open ticket. It
// does nothing when the store already holds users, and fails when the demo
// faculty is not among the configured ones.
func (a *App) SeedDemoData() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	count, err := a.store.UserCount()
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		slog.Info("demo seed skipped", "users", count)
		return nil
	}
	if !a.facultySet[demoFaculty] {
		return fmt.Errorf("demo faculty %q is not configured: %w", demoFaculty, ErrUnknownFaculty)
	}
	stored, err := a.hasher.Hash(demoCredential)
	if err != nil {
		return fmt.Errorf("hash demo credential: %w", err)
	}

	now := a.now().UTC()
	student := domain.User{
		ID:      "s1",
		Name:    "Aziz",
		Surname: "Rahimov",
		Profile: domain.StudentProfile{
			Faculty:   demoFaculty,
			Direction: "Dasturiy injiniring",
			Group:     "912-21",
		},
		Credential: stored,
		CreatedAt:  now,
	}
	staff := domain.User{
		ID:         "x1",
		Name:       "Botir",
		Surname:    "Aliyev",
		Profile:    domain.StaffProfile{Faculty: demoFaculty},
		Credential: stored,
		CreatedAt:  now,
	}
	for _, u := range []domain.User{student, staff} {
		if err := a.store.SaveUser(u); err != nil {
			return fmt.Errorf("seed user %s: %w", u.ID, err)
		}
	}

	openedAt := now.Add(-demoTicketAge)
	first := domain.NewUserMessage("m1", student, "Assalomu alaykum, yakuniy imtihonlar qachon boshlanadi?", openedAt)
	ticket, err := domain.NewTicket("t1", student, "Imtihon jadvali bo‘yicha savol", first, openedAt)
	if err != nil {
		return err
	}
	if err := a.store.SaveTicket(ticket); err != nil {
		return fmt.Errorf("seed ticket: %w", err)
	}
	slog.Info("demo data seeded", "users", 2, "tickets", 1)
	return nil
}

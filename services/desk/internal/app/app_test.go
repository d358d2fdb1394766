package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"murojaat/pkg/auth"
	"murojaat/pkg/domain"
	"murojaat/pkg/store"
)

var testFaculties = []string{"Axborot texnologiyalari", "Iqtisodiyot", "Tibbiyot"}

// tickingClock advances one second per reading so creation order is visible
// in timestamps.
func tickingClock() func() time.Time {
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	a, err := New(Config{
		Hasher:    auth.PlainHasher{},
		Faculties: testFaculties,
		Now:       tickingClock(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.SeedDemoData(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func mustLogin(t *testing.T, a *App, identifier string) domain.User {
	t.Helper()
	u, _, err := a.Login(identifier, "123")
	if err != nil {
		t.Fatalf("login %s: %v", identifier, err)
	}
	return u
}

func mustRegister(t *testing.T, a *App, name, faculty string) domain.User {
	t.Helper()
	u, _, err := a.Register(domain.Registration{
		Name: name, Surname: "Karimov", Faculty: faculty,
		Direction: "Iqtisodiyot", Group: "101-22", Credential: "pw",
	})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return u
}

func TestStudentStaffWalkthrough(t *testing.T) {
	a := newTestApp(t)
	s := a.NewSession()

	if !s.Login("Aziz", "123") {
		t.Fatalf("login Aziz should succeed")
	}
	tk, err := s.SendMessage("t1", "qachon?")
	if err != nil {
		t.Fatalf("student message: %v", err)
	}
	if tk.Status != domain.StatusOpen || len(tk.Messages) != 2 {
		t.Fatalf("after student message: status=%s messages=%d", tk.Status, len(tk.Messages))
	}

	if !s.Login("Botir", "123") {
		t.Fatalf("login Botir should succeed")
	}
	tk, err = s.SendMessage("t1", "tez orada")
	if err != nil {
		t.Fatalf("staff message: %v", err)
	}
	if tk.Status != domain.StatusInProgress || len(tk.Messages) != 3 {
		t.Fatalf("after staff message: status=%s messages=%d", tk.Status, len(tk.Messages))
	}

	tk, err = s.ResolveTicket("t1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !tk.PendingConfirmation || tk.Status != domain.StatusInProgress {
		t.Fatalf("after resolve: status=%s pending=%v", tk.Status, tk.PendingConfirmation)
	}

	if !s.Login("Aziz", "123") {
		t.Fatalf("login Aziz again should succeed")
	}
	tk, err = s.ConfirmResolution("t1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if tk.Status != domain.StatusResolved || tk.PendingConfirmation || len(tk.Messages) != 4 {
		t.Fatalf("after confirm: status=%s pending=%v messages=%d", tk.Status, tk.PendingConfirmation, len(tk.Messages))
	}
	last := tk.LastMessage()
	if !last.IsSystem || last.SenderID != domain.SystemSenderID || last.SenderName != "Tizim" {
		t.Fatalf("unexpected closure message: %+v", last)
	}
	if !strings.HasPrefix(last.ID, "sys-") {
		t.Fatalf("system message id should carry sys- prefix, got %q", last.ID)
	}

	stored, err := s.GetTicket("t1")
	if err != nil || stored.Status != domain.StatusResolved || len(stored.Messages) != 4 {
		t.Fatalf("stored ticket mismatch: %+v err=%v", stored, err)
	}
}

func TestSeedDemoData(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "s1")
	if student.DisplayName() != "Aziz Rahimov" || !student.IsStudent() || student.Faculty() != "Axborot texnologiyalari" {
		t.Fatalf("unexpected seed student: %+v", student)
	}
	staff := mustLogin(t, a, "x1")
	if staff.DisplayName() != "Botir Aliyev" || !staff.IsStaff() {
		t.Fatalf("unexpected seed staff: %+v", staff)
	}
	tk, err := a.GetTicket(student, "t1")
	if err != nil {
		t.Fatalf("get t1: %v", err)
	}
	if tk.Status != domain.StatusOpen || len(tk.Messages) != 1 || tk.Messages[0].ID != "m1" {
		t.Fatalf("unexpected seed ticket: %+v", tk)
	}
	if !tk.CreatedAt.Before(student.CreatedAt) {
		t.Fatalf("seed ticket should be stamped in the past")
	}

	if err := a.SeedDemoData(); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	count, _ := a.store.UserCount()
	if count != 2 {
		t.Fatalf("reseeding must not duplicate users, got %d", count)
	}
}

func TestSeedDemoDataRequiresDemoFaculty(t *testing.T) {
	a, err := New(Config{
		Hasher:    auth.PlainHasher{},
		Faculties: []string{"Tibbiyot", "Filologiya"},
		Now:       tickingClock(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.SeedDemoData(); !errors.Is(err, ErrUnknownFaculty) {
		t.Fatalf("expected ErrUnknownFaculty, got %v", err)
	}
	if count, _ := a.store.UserCount(); count != 0 {
		t.Fatalf("nothing should be seeded, got %d users", count)
	}

	// a store that already holds users is left alone whatever the faculties
	mustRegister(t, a, "Dilnoza", "Tibbiyot")
	if err := a.SeedDemoData(); err != nil {
		t.Fatalf("seed over existing users: %v", err)
	}
}

func TestLogin(t *testing.T) {
	a := newTestApp(t)
	tests := []struct {
		name       string
		identifier string
		credential string
		wantID     string
	}{
		{name: "by name", identifier: "Aziz", credential: "123", wantID: "s1"},
		{name: "by id", identifier: "x1", credential: "123", wantID: "x1"},
		{name: "wrong credential", identifier: "Aziz", credential: "124"},
		{name: "case sensitive", identifier: "aziz", credential: "123"},
		{name: "surname is not an identifier", identifier: "Rahimov", credential: "123"},
		{name: "empty", identifier: "", credential: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			u, token, err := a.Login(tc.identifier, tc.credential)
			if tc.wantID == "" {
				if !errors.Is(err, ErrInvalidCredentials) || token != "" {
					t.Fatalf("expected ErrInvalidCredentials, got token=%q err=%v", token, err)
				}
				return
			}
			if err != nil || u.ID != tc.wantID || token == "" {
				t.Fatalf("expected %s, got %q token=%q err=%v", tc.wantID, u.ID, token, err)
			}
		})
	}
}

func TestLoginPicksFirstMatchingUserInRegistrationOrder(t *testing.T) {
	a := newTestApp(t)
	first, _, err := a.Register(domain.Registration{Name: "Dilshod", Surname: "A", Faculty: "Tibbiyot", Direction: "d", Group: "g", Credential: "same"})
	if err != nil {
		t.Fatalf("register first: %v", err)
	}
	second, _, err := a.Register(domain.Registration{Name: "Dilshod", Surname: "B", Faculty: "Tibbiyot", Direction: "d", Group: "g", Credential: "other"})
	if err != nil {
		t.Fatalf("register second: %v", err)
	}
	u, _, err := a.Login("Dilshod", "same")
	if err != nil || u.ID != first.ID {
		t.Fatalf("expected first Dilshod, got %q err=%v", u.ID, err)
	}
	u, _, err = a.Login("Dilshod", "other")
	if err != nil || u.ID != second.ID {
		t.Fatalf("expected second Dilshod by credential, got %q err=%v", u.ID, err)
	}
}

func TestSessionLoginFailureKeepsSession(t *testing.T) {
	a := newTestApp(t)
	s := a.NewSession()
	if s.Login("Aziz", "wrong") {
		t.Fatalf("login with wrong credential should fail")
	}
	if _, ok := s.CurrentUser(); ok {
		t.Fatalf("failed login must not create a session")
	}
	if !s.Login("Aziz", "123") {
		t.Fatalf("login should succeed")
	}
	if s.Login("Botir", "nope") {
		t.Fatalf("login with wrong credential should fail")
	}
	u, ok := s.CurrentUser()
	if !ok || u.ID != "s1" {
		t.Fatalf("session should still be Aziz, got %+v ok=%v", u, ok)
	}
}

func TestSessionSwitchRevokesPreviousToken(t *testing.T) {
	a := newTestApp(t)
	s := a.NewSession()
	if !s.Login("Aziz", "123") {
		t.Fatalf("login Aziz")
	}
	old := s.Token()
	if !s.Login("Botir", "123") {
		t.Fatalf("login Botir")
	}
	if _, err := a.UserFromToken(old); !errors.Is(err, ErrNoSession) {
		t.Fatalf("previous token should be gone, got %v", err)
	}
}

func TestRegister(t *testing.T) {
	a := newTestApp(t)
	s := a.NewSession()
	u, err := s.Register(domain.Registration{
		Name: " Laylo ", Surname: "Saidova", Faculty: "Iqtisodiyot",
		Direction: "Moliya", Group: "301-23", Credential: "pw",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !u.IsStudent() || u.Name != "Laylo" || u.ID == "" {
		t.Fatalf("unexpected user: %+v", u)
	}
	current, ok := s.CurrentUser()
	if !ok || current.ID != u.ID {
		t.Fatalf("register should log the user in, got %+v ok=%v", current, ok)
	}
	if !s.Login("Laylo", "pw") {
		t.Fatalf("registered user should be able to log in")
	}
}

func TestRegisterValidation(t *testing.T) {
	a := newTestApp(t)
	valid := domain.Registration{Name: "A", Surname: "B", Faculty: "Tibbiyot", Direction: "D", Group: "G", Credential: "pw"}
	tests := []struct {
		name    string
		mutate  func(*domain.Registration)
		wantErr error
	}{
		{name: "missing name", mutate: func(r *domain.Registration) { r.Name = " " }, wantErr: ErrRegistrationIncomplete},
		{name: "missing surname", mutate: func(r *domain.Registration) { r.Surname = "" }, wantErr: ErrRegistrationIncomplete},
		{name: "missing direction", mutate: func(r *domain.Registration) { r.Direction = "" }, wantErr: ErrRegistrationIncomplete},
		{name: "missing group", mutate: func(r *domain.Registration) { r.Group = "" }, wantErr: ErrRegistrationIncomplete},
		{name: "missing credential", mutate: func(r *domain.Registration) { r.Credential = "" }, wantErr: ErrRegistrationIncomplete},
		{name: "unknown faculty", mutate: func(r *domain.Registration) { r.Faculty = "Astrologiya" }, wantErr: ErrUnknownFaculty},
		{name: "credential over 72 bytes", mutate: func(r *domain.Registration) { r.Credential = strings.Repeat("x", 73) }, wantErr: ErrCredentialTooLong},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reg := valid
			tc.mutate(&reg)
			if _, _, err := a.Register(reg); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestRegisterGeneratesDistinctIDs(t *testing.T) {
	a := newTestApp(t)
	seen := map[string]bool{"s1": true, "x1": true}
	for i := 0; i < 20; i++ {
		u := mustRegister(t, a, "Student", "Tibbiyot")
		if seen[u.ID] {
			t.Fatalf("duplicate user id %q", u.ID)
		}
		seen[u.ID] = true
	}
}

func TestLogoutKeepsTickets(t *testing.T) {
	a := newTestApp(t)
	s := a.NewSession()
	if !s.Login("Aziz", "123") {
		t.Fatalf("login")
	}
	if err := s.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, ok := s.CurrentUser(); ok {
		t.Fatalf("expected no current user after logout")
	}
	if _, err := s.CreateTicket("x", "y"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after logout, got %v", err)
	}
	student := mustLogin(t, a, "Aziz")
	tickets, err := a.StudentTickets(student)
	if err != nil || len(tickets) != 1 {
		t.Fatalf("tickets should survive logout, got %d err=%v", len(tickets), err)
	}
}

func TestCreateTicket(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	tk, err := a.CreateTicket(student, "  Stipendiya  ", "  Qachon to‘lanadi?  ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tk.Status != domain.StatusOpen || tk.PendingConfirmation || len(tk.Messages) != 1 {
		t.Fatalf("unexpected new ticket: %+v", tk)
	}
	if tk.Title != "Stipendiya" || tk.Messages[0].Text != "Qachon to‘lanadi?" {
		t.Fatalf("title and message should be trimmed: %q %q", tk.Title, tk.Messages[0].Text)
	}
	if tk.StudentName != "Aziz Rahimov" || tk.Faculty != "Axborot texnologiyalari" || tk.StudentID != "s1" {
		t.Fatalf("student snapshot mismatch: %+v", tk)
	}

	tickets, err := a.StudentTickets(student)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tickets) != 2 || tickets[0].ID != tk.ID || tickets[1].ID != "t1" {
		t.Fatalf("new ticket should come first, got %v", ticketIDs(tickets))
	}
}

func TestCreateTicketGuards(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")
	tests := []struct {
		name    string
		actor   domain.User
		title   string
		message string
		wantErr error
	}{
		{name: "no session", actor: domain.User{}, title: "t", message: "m", wantErr: ErrNoSession},
		{name: "staff cannot open", actor: staff, title: "t", message: "m", wantErr: ErrForbidden},
		{name: "blank title", actor: student, title: "  ", message: "m", wantErr: ErrTitleRequired},
		{name: "blank message", actor: student, title: "t", message: "\n\t", wantErr: ErrMessageRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := a.CreateTicket(tc.actor, tc.title, tc.message); !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
	tickets, _ := a.StudentTickets(student)
	if len(tickets) != 1 {
		t.Fatalf("rejected creates must not store tickets, got %d", len(tickets))
	}
}

func TestSendMessageStatusEffects(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")

	tk, err := a.SendMessage(student, "t1", "yana savol")
	if err != nil || tk.Status != domain.StatusOpen {
		t.Fatalf("student message must not change status: %s err=%v", tk.Status, err)
	}
	tk, err = a.SendMessage(staff, "t1", "javob")
	if err != nil || tk.Status != domain.StatusInProgress {
		t.Fatalf("staff reply on open should move to in_progress: %s err=%v", tk.Status, err)
	}
	tk, err = a.SendMessage(staff, "t1", "yana javob")
	if err != nil || tk.Status != domain.StatusInProgress {
		t.Fatalf("staff reply on in_progress keeps status: %s err=%v", tk.Status, err)
	}
	last := tk.LastMessage()
	if last.SenderID != "x1" || last.SenderName != "Botir Aliyev" || last.IsSystem {
		t.Fatalf("unexpected sender snapshot: %+v", last)
	}
	if len(tk.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(tk.Messages))
	}
	ids := map[string]bool{}
	for _, m := range tk.Messages {
		if ids[m.ID] {
			t.Fatalf("duplicate message id %q", m.ID)
		}
		ids[m.ID] = true
	}
}

func TestSendMessageGuards(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	other := mustRegister(t, a, "Other", "Axborot texnologiyalari")
	if _, err := a.SendMessage(student, "t1", "   "); !errors.Is(err, ErrMessageRequired) {
		t.Fatalf("expected ErrMessageRequired, got %v", err)
	}
	if _, err := a.SendMessage(student, "missing", "hi"); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
	if _, err := a.SendMessage(other, "t1", "hi"); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("another student's ticket must look missing, got %v", err)
	}
	if _, err := a.SendMessage(domain.User{}, "t1", "hi"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	tk, _ := a.GetTicket(student, "t1")
	if len(tk.Messages) != 1 {
		t.Fatalf("rejected messages must not be stored, got %d", len(tk.Messages))
	}
}

func TestSendMessageOnResolvedTicketStillAppends(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")
	resolveT1(t, a, student, staff)

	tk, err := a.SendMessage(staff, "t1", "rahmat")
	if err != nil {
		t.Fatalf("message on resolved: %v", err)
	}
	if tk.Status != domain.StatusResolved || len(tk.Messages) != 3 {
		t.Fatalf("expected resolved with 3 messages, got %s %d", tk.Status, len(tk.Messages))
	}
}

func TestResolveTicket(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")

	if _, err := a.ResolveTicket(student, "t1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("students cannot propose resolution, got %v", err)
	}
	tk, err := a.ResolveTicket(staff, "t1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !tk.PendingConfirmation || tk.Status != domain.StatusOpen || len(tk.Messages) != 1 {
		t.Fatalf("resolve must only set pending: %+v", tk)
	}
	again, err := a.ResolveTicket(staff, "t1")
	if err != nil || !again.PendingConfirmation || !again.UpdatedAt.Equal(tk.UpdatedAt) {
		t.Fatalf("second resolve should be a no-op: %+v err=%v", again, err)
	}

	if _, err := a.ConfirmResolution(student, "t1"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := a.ResolveTicket(staff, "t1"); !errors.Is(err, ErrTicketResolved) {
		t.Fatalf("resolving a resolved ticket should fail, got %v", err)
	}
}

func TestResolveTicketOtherFacultyLooksMissing(t *testing.T) {
	a := newTestApp(t)
	if err := a.store.SaveUser(domain.User{
		ID: "x2", Name: "Nodira", Surname: "T", Credential: "123",
		Profile: domain.StaffProfile{Faculty: "Tibbiyot"},
	}); err != nil {
		t.Fatalf("save staff: %v", err)
	}
	outsider := mustLogin(t, a, "x2")
	if _, err := a.ResolveTicket(outsider, "t1"); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("expected ErrTicketNotFound, got %v", err)
	}
}

func TestConfirmResolution(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")

	if _, err := a.ConfirmResolution(student, "t1"); !errors.Is(err, ErrNotPendingConfirmation) {
		t.Fatalf("confirm without proposal should fail, got %v", err)
	}
	tk, _ := a.GetTicket(student, "t1")
	if tk.Status != domain.StatusOpen || len(tk.Messages) != 1 {
		t.Fatalf("failed confirm must not change the ticket: %+v", tk)
	}
	if _, err := a.ResolveTicket(staff, "t1"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := a.ConfirmResolution(staff, "t1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("staff cannot confirm, got %v", err)
	}
	tk, err := a.ConfirmResolution(student, "t1")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	system := 0
	for _, m := range tk.Messages {
		if m.IsSystem {
			system++
		}
	}
	if tk.Status != domain.StatusResolved || system != 1 {
		t.Fatalf("expected resolved with one system message, got %s and %d", tk.Status, system)
	}
	if _, err := a.ConfirmResolution(student, "t1"); !errors.Is(err, ErrNotPendingConfirmation) {
		t.Fatalf("second confirm should fail, got %v", err)
	}
}

func TestUpdateTicketStatus(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")

	tests := []struct {
		name    string
		actor   domain.User
		status  domain.TicketStatus
		wantErr error
		want    domain.TicketStatus
	}{
		{name: "student forbidden", actor: student, status: domain.StatusInProgress, wantErr: ErrForbidden},
		{name: "to in_progress", actor: staff, status: domain.StatusInProgress, want: domain.StatusInProgress},
		{name: "back to open", actor: staff, status: domain.StatusOpen, want: domain.StatusOpen},
		{name: "cannot resolve directly", actor: staff, status: domain.StatusResolved, wantErr: ErrStatusTransition},
		{name: "cannot close", actor: staff, status: domain.StatusClosed, wantErr: ErrStatusTransition},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tk, err := a.UpdateTicketStatus(tc.actor, "t1", tc.status)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil || tk.Status != tc.want {
				t.Fatalf("expected %s, got %s err=%v", tc.want, tk.Status, err)
			}
		})
	}

	resolveT1(t, a, student, staff)
	if _, err := a.UpdateTicketStatus(staff, "t1", domain.StatusOpen); !errors.Is(err, ErrTicketResolved) {
		t.Fatalf("resolved tickets cannot be reopened, got %v", err)
	}
}

func TestStaffTicketsFilterAndFaculty(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")
	outsider := mustRegister(t, a, "Jasur", "Tibbiyot")

	t2, err := a.CreateTicket(student, "Ikkinchi", "matn")
	if err != nil {
		t.Fatalf("create t2: %v", err)
	}
	t3, err := a.CreateTicket(student, "Uchinchi", "matn")
	if err != nil {
		t.Fatalf("create t3: %v", err)
	}
	foreign, err := a.CreateTicket(outsider, "Boshqa fakultet", "matn")
	if err != nil {
		t.Fatalf("create foreign: %v", err)
	}
	if _, err := a.SendMessage(staff, t2.ID, "ko‘ryapmiz"); err != nil {
		t.Fatalf("reply t2: %v", err)
	}
	resolveT1(t, a, student, staff)

	tests := []struct {
		filter domain.TicketFilter
		want   []string
	}{
		{domain.FilterAll, []string{t3.ID, t2.ID, "t1"}},
		{domain.FilterActive, []string{t3.ID, t2.ID}},
		{domain.FilterResolved, []string{"t1"}},
	}
	for _, tc := range tests {
		t.Run(string(tc.filter), func(t *testing.T) {
			got, err := a.StaffTickets(staff, tc.filter)
			if err != nil {
				t.Fatalf("staff tickets: %v", err)
			}
			if strings.Join(ticketIDs(got), ",") != strings.Join(tc.want, ",") {
				t.Fatalf("got %v, want %v", ticketIDs(got), tc.want)
			}
			for _, tk := range got {
				if tk.ID == foreign.ID || tk.Faculty != staff.Faculty() {
					t.Fatalf("staff saw a ticket from another faculty: %+v", tk)
				}
			}
		})
	}

	if _, err := a.GetTicket(staff, foreign.ID); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("foreign faculty ticket must look missing, got %v", err)
	}
	if _, err := a.StaffTickets(student, domain.FilterAll); !errors.Is(err, ErrForbidden) {
		t.Fatalf("students cannot use the staff list, got %v", err)
	}
}

func TestListTicketsDispatchesByRole(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")
	other := mustRegister(t, a, "Kamola", "Axborot texnologiyalari")
	if _, err := a.CreateTicket(other, "Kamola savoli", "matn"); err != nil {
		t.Fatalf("create: %v", err)
	}

	mine, err := a.ListTickets(student, domain.FilterAll)
	if err != nil || len(mine) != 1 || mine[0].ID != "t1" {
		t.Fatalf("student should see only own tickets, got %v err=%v", ticketIDs(mine), err)
	}
	all, err := a.ListTickets(staff, domain.FilterAll)
	if err != nil || len(all) != 2 {
		t.Fatalf("staff should see both faculty tickets, got %v err=%v", ticketIDs(all), err)
	}
	rows := Summaries(all)
	if rows[0].Title != "Kamola savoli" || rows[0].LastMessage != "matn" || rows[0].StudentName != "Kamola Karimov" {
		t.Fatalf("unexpected summary row: %+v", rows[0])
	}
	if _, err := a.ListTickets(domain.User{}, domain.FilterAll); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestMessagesNeverEmpty(t *testing.T) {
	a := newTestApp(t)
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")
	tk, err := a.CreateTicket(student, "Savol", "matn")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	steps := []func() (domain.Ticket, error){
		func() (domain.Ticket, error) { return a.GetTicket(student, tk.ID) },
		func() (domain.Ticket, error) { return a.SendMessage(staff, tk.ID, "javob") },
		func() (domain.Ticket, error) { return a.ResolveTicket(staff, tk.ID) },
		func() (domain.Ticket, error) { return a.ConfirmResolution(student, tk.ID) },
	}
	for i, step := range steps {
		got, err := step()
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if len(got.Messages) == 0 {
			t.Fatalf("step %d: ticket has no messages", i)
		}
	}
}

func TestAppWithSQLiteStore(t *testing.T) {
	sqliteStore, err := store.NewSQLiteMemoryStore()
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Close() })
	a, err := New(Config{Store: sqliteStore, Hasher: auth.PlainHasher{}, Faculties: testFaculties, Now: tickingClock()})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	if err := a.SeedDemoData(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	student := mustLogin(t, a, "Aziz")
	staff := mustLogin(t, a, "Botir")
	resolveT1(t, a, student, staff)
	tk, err := a.GetTicket(staff, "t1")
	if err != nil || tk.Status != domain.StatusResolved || len(tk.Messages) != 2 || !tk.LastMessage().IsSystem {
		t.Fatalf("unexpected persisted ticket: %+v err=%v", tk, err)
	}
}

func TestNewRequiresFaculties(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error without faculties")
	}
	a, err := New(Config{Faculties: []string{"Tibbiyot"}})
	if err != nil {
		t.Fatalf("new with defaults: %v", err)
	}
	got := a.Faculties()
	got[0] = "changed"
	if a.Faculties()[0] != "Tibbiyot" {
		t.Fatalf("Faculties must return a copy")
	}
}

func resolveT1(t *testing.T, a *App, student, staff domain.User) {
	t.Helper()
	if _, err := a.ResolveTicket(staff, "t1"); err != nil {
		t.Fatalf("resolve t1: %v", err)
	}
	if _, err := a.ConfirmResolution(student, "t1"); err != nil {
		t.Fatalf("confirm t1: %v", err)
	}
}

func ticketIDs(tickets []domain.Ticket) []string {
	out := make([]string, 0, len(tickets))
	for _, tk := range tickets {
		out = append(out, tk.ID)
	}
	return out
}

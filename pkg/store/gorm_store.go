package store

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"murojaat/internal/util"
	"murojaat/pkg/domain"
)

// GormStore implements Store on top of GORM.
type GormStore struct {
	db *gorm.DB
}

// NewPostgresStore opens a Postgres database and runs auto-migrations.
func NewPostgresStore(dsn string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres dsn required")
	}
	return NewGormStore(postgres.Open(dsn))
}

// NewSQLiteMemoryStore opens a private in-memory SQLite database. The data
// lives as long as the returned store.
func NewSQLiteMemoryStore() (*GormStore, error) {
	dsn := fmt.Sprintf("file:desk-%s?mode=memory&cache=shared", util.NewID())
	s, err := NewGormStore(sqlite.Open(dsn))
	if err != nil {
		return nil, err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return s, nil
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dialector gorm.Dialector) (*GormStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &TicketModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	if err := validateUser(u); err != nil {
		return err
	}
	model := userToModel(u)
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing UserModel
		err := tx.First(&existing, "id = ?", u.ID).Error
		switch {
		case err == nil:
			model.Seq = existing.Seq
			return tx.Save(&model).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			seq, err := nextSeq(tx, &UserModel{})
			if err != nil {
				return err
			}
			model.Seq = seq
			return tx.Create(&model).Error
		default:
			return err
		}
	})
}

// HasUserID checks if a user id is taken.
func (s *GormStore) HasUserID(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) FindUsersByIdentifier(identifier string) ([]domain.User, error) {
	var models []UserModel
	err := s.db.Where("id = ? OR name = ?", identifier, identifier).Order("seq ASC").Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// UserCount returns number of users.
func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// SaveTicket upserts the ticket row and inserts messages not stored yet.
// Messages are append-only, so existing rows are left untouched.
func (s *GormStore) SaveTicket(t domain.Ticket) error {
	if err := validateTicket(t); err != nil {
		return err
	}
	model := ticketToModel(t)
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing TicketModel
		err := tx.First(&existing, "id = ?", t.ID).Error
		switch {
		case err == nil:
			if err := tx.Model(&TicketModel{}).Where("id = ?", t.ID).Updates(map[string]any{
				"status":               model.Status,
				"pending_confirmation": model.PendingConfirmation,
				"updated_at":           model.UpdatedAt,
			}).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			seq, err := nextSeq(tx, &TicketModel{})
			if err != nil {
				return err
			}
			model.Seq = seq
			if err := tx.Create(&model).Error; err != nil {
				return err
			}
		default:
			return err
		}
		msgs := make([]MessageModel, 0, len(t.Messages))
		for i, msg := range t.Messages {
			msgs = append(msgs, messageToModel(t.ID, i, msg))
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&msgs).Error
	})
}

func (s *GormStore) HasTicketID(id string) (bool, error) {
	var count int64
	if err := s.db.Model(&TicketModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetTicket retrieves a ticket with its thread.
func (s *GormStore) GetTicket(id string) (domain.Ticket, bool, error) {
	tickets, err := s.listTickets("id = ?", id)
	if err != nil {
		return domain.Ticket{}, false, err
	}
	if len(tickets) == 0 {
		return domain.Ticket{}, false, nil
	}
	return tickets[0], true, nil
}

func (s *GormStore) ListTickets() ([]domain.Ticket, error) {
	return s.listTickets()
}

func (s *GormStore) ListTicketsByStudent(studentID string) ([]domain.Ticket, error) {
	return s.listTickets("student_id = ?", studentID)
}

func (s *GormStore) ListTicketsByFaculty(faculty string) ([]domain.Ticket, error) {
	return s.listTickets("faculty = ?", faculty)
}

func (s *GormStore) listTickets(conds ...any) ([]domain.Ticket, error) {
	var models []TicketModel
	tx := s.db.Order("seq DESC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	var msgModels []MessageModel
	if err := s.db.Where("ticket_id IN ?", ids).Order("ticket_id ASC, position ASC").Find(&msgModels).Error; err != nil {
		return nil, err
	}
	threads := make(map[string][]domain.Message, len(models))
	for _, m := range msgModels {
		threads[m.TicketID] = append(threads[m.TicketID], messageFromModel(m))
	}
	res := make([]domain.Ticket, 0, len(models))
	for _, m := range models {
		res = append(res, ticketFromModel(m, threads[m.ID]))
	}
	return res, nil
}

func nextSeq(tx *gorm.DB, model any) (int64, error) {
	var maxSeq int64
	if err := tx.Model(model).Select("COALESCE(MAX(seq), 0)").Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq + 1, nil
}

func userToModel(u domain.User) UserModel {
	m := UserModel{
		ID:         u.ID,
		Name:       u.Name,
		Surname:    u.Surname,
		Role:       string(u.Role()),
		Faculty:    u.Faculty(),
		Credential: u.Credential,
		CreatedAt:  u.CreatedAt,
	}
	if sp, ok := u.Profile.(domain.StudentProfile); ok {
		m.Direction = sp.Direction
		m.GroupName = sp.Group
	}
	return m
}

func userFromModel(m UserModel) domain.User {
	u := domain.User{
		ID:         m.ID,
		Name:       m.Name,
		Surname:    m.Surname,
		Credential: m.Credential,
		CreatedAt:  m.CreatedAt,
	}
	if domain.Role(m.Role) == domain.RoleStaff {
		u.Profile = domain.StaffProfile{Faculty: m.Faculty}
	} else {
		u.Profile = domain.StudentProfile{Faculty: m.Faculty, Direction: m.Direction, Group: m.GroupName}
	}
	return u
}

func ticketToModel(t domain.Ticket) TicketModel {
	return TicketModel{
		ID:                  t.ID,
		StudentID:           t.StudentID,
		StudentName:         t.StudentName,
		Faculty:             t.Faculty,
		Title:               t.Title,
		Status:              string(t.Status),
		PendingConfirmation: t.PendingConfirmation,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

func ticketFromModel(m TicketModel, msgs []domain.Message) domain.Ticket {
	return domain.Ticket{
		ID:                  m.ID,
		StudentID:           m.StudentID,
		StudentName:         m.StudentName,
		Faculty:             m.Faculty,
		Title:               m.Title,
		Status:              domain.TicketStatus(m.Status),
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
		Messages:            msgs,
		PendingConfirmation: m.PendingConfirmation,
	}
}

func messageToModel(ticketID string, pos int, msg domain.Message) MessageModel {
	return MessageModel{
		TicketID:   ticketID,
		ID:         msg.ID,
		Position:   pos,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		Text:       msg.Text,
		IsSystem:   msg.IsSystem,
		Timestamp:  msg.Timestamp,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:         m.ID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Text:       m.Text,
		Timestamp:  m.Timestamp,
		IsSystem:   m.IsSystem,
	}
}

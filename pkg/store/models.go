package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID         string    `gorm:"primaryKey"`
	Seq        int64     `gorm:"not null;index"`
	Name       string    `gorm:"not null;index"`
	Surname    string    `gorm:"not null"`
	Role       string    `gorm:"not null"`
	Faculty    string    `gorm:"not null"`
	Direction  string
	GroupName  string
	Credential string    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

type TicketModel struct {
	ID                  string    `gorm:"primaryKey"`
	Seq                 int64     `gorm:"not null;index"`
	StudentID           string    `gorm:"not null;index"`
	StudentName         string    `gorm:"not null"`
	Faculty             string    `gorm:"not null;index"`
	Title               string    `gorm:"not null"`
	Status              string    `gorm:"not null"`
	PendingConfirmation bool      `gorm:"not null"`
	CreatedAt           time.Time `gorm:"not null;index"`
	UpdatedAt           time.Time `gorm:"not null"`
}

type MessageModel struct {
	TicketID   string    `gorm:"primaryKey"`
	ID         string    `gorm:"primaryKey"`
	Position   int       `gorm:"not null"`
	SenderID   string    `gorm:"not null"`
	SenderName string    `gorm:"not null"`
	Text       string    `gorm:"type:text;not null"`
	IsSystem   bool      `gorm:"not null"`
	Timestamp  time.Time `gorm:"not null"`
}

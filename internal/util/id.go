package util

import (
	"errors"

	"github.com/google/uuid"
)

// maxIDAttempts bounds re-draws when a generated id is already taken.
const maxIDAttempts = 8

var ErrIDExhausted = errors.New("could not draw an unused id")

// NewID returns a random UUIDv4 string.
func NewID() string {
	return uuid.NewString()
}

// NewUniqueID draws ids until taken reports the candidate as free.
func NewUniqueID(taken func(id string) (bool, error)) (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := NewID()
		used, err := taken(id)
		if err != nil {
			return "", err
		}
		if !used {
			return id, nil
		}
	}
	return "", ErrIDExhausted
}

package models

import (
	"errors"
	"strings"
	"time"

	goval "github.com/go-passwd/validator"
	"github.com/leebenson/conform"
	"golang.org/x/crypto/bcrypt"
)

const (
	NicknameMinLength = 3
	NicknameMaxLength = 32
	PasswordMinLength = 8
	// bcrypt ignores everything past 72 bytes
	PasswordMaxLength = 72
)

// Model is the base for tables keyed by an autoincrement id.
type Model struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents a registered chat participant. Nickname never changes
// after registration.
type User struct {
	Model
	Nickname       string `json:"nickname" gorm:"uniqueIndex;not null;size:32"`
	HashedPassword string `json:"-" gorm:"not null"`
	Online         bool   `json:"online" gorm:"default:false"`
}

type RegisterRequest struct {
	Nickname string `json:"nickname" binding:"required" conform:"trim"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Nickname string `json:"nickname" binding:"required" conform:"trim"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserID   uint   `json:"userId"`
	Nickname string `json:"nickname"`
}

type UserResponse struct {
	ID       uint   `json:"id"`
	Nickname string `json:"nickname"`
	Online   bool   `json:"online"`
}

func (u *User) Response() UserResponse {
	return UserResponse{
		ID:       u.ID,
		Nickname: u.Nickname,
		Online:   u.Online,
	}
}

// TrimWhiteSpaces strips surrounding blanks from fields tagged conform:"trim".
func TrimWhiteSpaces(data interface{}) error {
	return conform.Strings(data)
}

func ValidateNickname(nickname string) error {
	n := len([]rune(strings.TrimSpace(nickname)))
	switch {
	case n == 0:
		return errors.New("nickname is required")
	case n < NicknameMinLength:
		return errors.New("nickname must be at least 3 characters")
	case n > NicknameMaxLength:
		return errors.New("nickname cant be more than 32 characters")
	}
	return nil
}

func ValidatePassword(password string) error {
	passwordValidator := goval.New(
		goval.MinLength(PasswordMinLength, errors.New("password cant be less than 8 characters")),
		goval.MaxLength(PasswordMaxLength, errors.New("password cant be more than 72 characters")),
		goval.ContainsAtLeast("ABCDEFGHIJKLMNOPQRSTUVWXYZ", 1, errors.New("password must contain an upper case letter")),
		goval.ContainsAtLeast("abcdefghijklmnopqrstuvwxyz", 1, errors.New("password must contain a lower case letter")),
		goval.ContainsAtLeast("0123456789", 1, errors.New("password must contain a digit")),
	)
	return passwordValidator.Validate(password)
}

// VerifyPassword verifies the collected password with the user's hashed password
func (u *User) VerifyPassword(password string) error {
	return bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password))
}

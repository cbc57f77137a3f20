package auth

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserExists         = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidToken       = errors.New("invalid or revoked token")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrPasswordTooLong    = errors.New("password must be at most 72 bytes")
	ErrInvalidRole        = errors.New("role must be STUDENT or TEACHER")
	ErrUsernameRequired   = errors.New("username is required")
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
)

// Role is a user's permission level.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTeacher Role = "TEACHER"
)

// ParseRole maps an optional role string to a Role; empty means STUDENT.
func ParseRole(v string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(v))); r {
	case "":
		return RoleStudent, nil
	case RoleStudent, RoleTeacher:
		return r, nil
	}
	return "", ErrInvalidRole
}

// User is an account that can sign in.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// DisplayName falls back to the username when no name was given.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// SetPassword hashes pwd with bcrypt.
func (u *User) SetPassword(pwd string) error {
	if len(pwd) < minPasswordLen {
		return ErrWeakPassword
	}
	if len(pwd) > maxPasswordLen {
		return ErrPasswordTooLong
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword reports whether pwd matches the stored hash.
func (u User) CheckPassword(pwd string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(pwd)) == nil
}

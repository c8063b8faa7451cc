// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Role names stored on User.Role.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents an account in the library. Accounts are created either by
// the seed bootstrap or by an approved registration request; there is no
// self-service signup.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Password  string         `gorm:"not null" json:"-"`
	FirstName string         `gorm:"size:120" json:"firstName"`
	LastName  string         `gorm:"size:120" json:"lastName"`
	Role      string         `gorm:"type:varchar(20);not null;default:'user'" json:"role"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

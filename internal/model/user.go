package model

import (
	"strconv"
	"time"
)

type UserRole string

const (
	RolePatient  UserRole = "patient"
	RoleProvider UserRole = "provider"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	Role         UserRole  `gorm:"size:16;not null;index" json:"role"`
	DisplayName  string    `gorm:"size:128;not null" json:"display_name"`
	License      *string   `gorm:"size:64" json:"license,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// UID is the patient identifier records are filed under.
func (u *User) UID() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

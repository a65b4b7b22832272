package models

import (
	"time"
)

type UserStatus string

const (
	UserStatusActive      UserStatus = "active"
	UserStatusBlacklisted UserStatus = "blacklisted"
)

type User struct {
	ID        int64      `json:"id" db:"user_id"`
	Username  *string    `json:"username" db:"username"`
	FirstName *string    `json:"first_name" db:"first_name"`
	Status    UserStatus `json:"status" db:"status"`
	IsAdmin   bool       `json:"is_admin" db:"is_admin"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

func (u *User) Blacklisted() bool {
	return u.Status == UserStatusBlacklisted
}

type ChatType string

const (
	ChatTypePrivate ChatType = "private"
	ChatTypeGroup   ChatType = "group"
	ChatTypeChannel ChatType = "channel"
)

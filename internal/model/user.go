package model

import "time"

// User is a reporter who submits orders. Many orders per user.
type User struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

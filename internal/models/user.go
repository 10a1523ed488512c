package models

import "time"

// User captures application-facing fields for an authenticated identity.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Profile is the public projection of a User returned to clients.
type Profile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Profile strips everything a client must not see.
func (u User) Profile() Profile {
	return Profile{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName}
}

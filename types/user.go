package types

import "time"

// User represents an account in the system.
// It contains identity, credential, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Email is the user's email address. Uniqueness is enforced
	// case-insensitively at the storage layer.
	Email string `json:"email" db:"email"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// APIKey is the user's stored key for the upstream inference service.
	// Opaque to the server and never exposed in API responses.
	APIKey string `json:"-" db:"api_key"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// HasAPIKey reports whether the user has stored an upstream API key.
func (u User) HasAPIKey() bool {
	return u.APIKey != ""
}

// UserProfile is the client-facing view of a User. The stored key is reduced
// to a presence flag.
type UserProfile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	HasAPIKey bool      `json:"has_api_key"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile returns the client-facing view of the user.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		HasAPIKey: u.HasAPIKey(),
		CreatedAt: u.CreatedAt,
	}
}

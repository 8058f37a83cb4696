// Package models contains data structures shared by repositories and services.
package models

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// User is an account that can sign in to the certificate system.
// PasswordHash is a bcrypt digest; Roles is a free set of role strings
// ("admin", "rh", ...) checked by the access guard.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Status       string
	Roles        []string
}

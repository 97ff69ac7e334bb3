// Package model defines the data structures used throughout the application.
// The same types travel through the repository, service and HTTP layers and
// are decoded by the client, so the JSON tags are the wire format.
package model

import "time"

// User represents a registered account.
//
// Email is the login key. It is compared case-sensitively; only surrounding
// whitespace is trimmed before storage.
//
// PasswordHash carries the `json:"-"` tag so that no response body can ever
// include it, no matter which handler encodes the struct.
type User struct {
	ID           string    `json:"id"        db:"id"`
	Email        string    `json:"email"     db:"email"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

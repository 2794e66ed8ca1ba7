package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole is the role carried by an access token.
type UserRole string

const (
	// RoleTeacher may open and edit the sheets of their own assignments.
	RoleTeacher UserRole = "TEACHER"
	// RoleAdmin may act on any session.
	RoleAdmin UserRole = "ADMIN"
)

// JWTClaims represents the JWT payload for access tokens issued by the school portal.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor identifies the caller of a session operation.
type Actor struct {
	UserID string
	Role   UserRole
}

// IsAdmin reports whether the actor may act on sessions it does not own.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

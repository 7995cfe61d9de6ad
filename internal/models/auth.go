package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the JWT payload for access tokens. Tokens are issued by
// the identity service; LeadID is the student record the caller maps to and is
// empty for staff accounts without a lead.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	LeadID   string   `json:"lead_id,omitempty"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

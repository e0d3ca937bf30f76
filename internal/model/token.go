package model

import "github.com/golang-jwt/jwt/v5"

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
)

// SessionClaims is the signed token payload. SessionID correlates the
// access/refresh pair so both die on a single revocation entry;
// DeviceID and FingerprintHash bind the token to the requesting device.
type SessionClaims struct {
	SessionID       string    `json:"sid"`
	DeviceID        string    `json:"did"`
	FingerprintHash string    `json:"dfp,omitempty"`
	Kind            TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

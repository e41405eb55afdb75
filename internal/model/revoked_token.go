package model

import "time"

// RevokedToken is the revocation record for a refresh token. The jti is the
// primary key so that concurrent revocations of the same token resolve to a
// single row. ExpiresAt mirrors the token's own expiry so stale records can
// be purged once they no longer affect any decision.
type RevokedToken struct {
	JTI       string    `json:"jti" gorm:"primaryKey;type:varchar(64)"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
	RevokedAt time.Time `json:"revoked_at" gorm:"not null"`
}

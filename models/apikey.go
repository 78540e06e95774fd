package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Refresh rules: last_used is only written when stale (avoids write
// amplification), and an expiry close to running out is silently extended.
const (
	LastUsedStaleAfter    = 30 * time.Minute
	ExpiryRefreshWindow   = 20 * time.Minute
	ExpiryExtension       = 30 * time.Minute
	RememberMeExtension   = 3 * 24 * time.Hour
	DefaultKeyLifetime    = 30 * time.Minute
	RememberMeKeyLifetime = 3 * 24 * time.Hour
)

// ApiKey is a secret bound to exactly one tenant, optionally to a specific
// user. Only the SHA-256 fingerprint is stored; the plaintext secret is shown
// once at creation. An expired key resolves to "not found" at lookup time.
type ApiKey struct {
	Id          string     `json:"id" gorm:"primaryKey"`
	Fingerprint string     `json:"-" gorm:"size:64;uniqueIndex;not null"`
	TenantId    string     `json:"tenant_id" gorm:"index;not null"`
	UserId      *string    `json:"user_id" gorm:"index"`
	Protected   bool       `json:"protected"` // first-party (internal) caller
	RememberMe  bool       `json:"remember_me"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastUsedAt  *time.Time `json:"last_used_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (key *ApiKey) BeforeCreate(tx *gorm.DB) (err error) {
	// UUID version 4
	key.Id = uuid.NewString()
	return
}

// FingerprintSecret derives the stored lookup hash for a plaintext secret.
// Secrets are never compared in plaintext against stored values.
func FingerprintSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// Expired reports whether the key is past its expiry at now.
func (key *ApiKey) Expired(now time.Time) bool {
	return !key.ExpiresAt.IsZero() && !key.ExpiresAt.After(now)
}

// LastUsedStale reports whether last_used needs a refresh write.
func (key *ApiKey) LastUsedStale(now time.Time) bool {
	return key.LastUsedAt == nil || now.Sub(*key.LastUsedAt) > LastUsedStaleAfter
}

// ExpiringSoon reports whether the expiry sits inside the refresh window.
func (key *ApiKey) ExpiringSoon(now time.Time) bool {
	return key.ExpiresAt.Before(now.Add(ExpiryRefreshWindow))
}

// ExtensionDuration is how far a refresh pushes the expiry forward.
func (key *ApiKey) ExtensionDuration() time.Duration {
	if key.RememberMe {
		return RememberMeExtension
	}
	return ExpiryExtension
}

func jsonUnmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

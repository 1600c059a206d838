package registration

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivatedSentinel replaces the activation key once a profile is activated
const ActivatedSentinel = "ALREADY_ACTIVATED"

// ProfileState is derived from the activation key and registration time, it is never stored
type ProfileState string

const (
	// ProfileStatePending key is a hash and the window is still open
	ProfileStatePending ProfileState = "pending"
	// ProfileStateExpired key is a hash and the window closed
	ProfileStateExpired ProfileState = "expired"
	// ProfileStateActivated key was consumed
	ProfileStateActivated ProfileState = "activated"
)

// RegistrationProfile tracks a pending or activated registration
type RegistrationProfile struct {
	bun.BaseModel `bun:"table:registration_profiles,alias:rgp"`
	ID            uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string    `bun:"email,notnull" json:"email,omitempty"`
	ActivationKey string    `bun:"activation_key,notnull" json:"activation_key,omitempty"`
	RegisteredAt  time.Time `bun:"registered_at,notnull" json:"registered_at"`
}

// IsAlreadyActivated reports if the key has been consumed
func (p *RegistrationProfile) IsAlreadyActivated() bool {
	if p == nil {
		return false
	}
	return p.ActivationKey == ActivatedSentinel
}

// IsExpired reports if the activation window closed at now. A consumed key
// also counts as expired so the profile can never be activated twice.
func (p *RegistrationProfile) IsExpired(window time.Duration, now time.Time) bool {
	if p == nil {
		return true
	}
	if p.IsAlreadyActivated() {
		return true
	}
	return !IsWithinActivationWindow(p.RegisteredAt, window, now)
}

// IsInvalid is the single gate checked before an activation attempt
func (p *RegistrationProfile) IsInvalid(window time.Duration, now time.Time) bool {
	return p.IsAlreadyActivated() || p.IsExpired(window, now)
}

// State derives the lifecycle state of the profile
func (p *RegistrationProfile) State(window time.Duration, now time.Time) ProfileState {
	switch {
	case p.IsAlreadyActivated():
		return ProfileStateActivated
	case p.IsExpired(window, now):
		return ProfileStateExpired
	default:
		return ProfileStatePending
	}
}

// ExpiresAt is the instant the key stops being usable
func (p *RegistrationProfile) ExpiresAt(window time.Duration) time.Time {
	return p.RegisteredAt.Add(window)
}

// UserAccount is the account materialized by the bundled activation method
type UserAccount struct {
	bun.BaseModel `bun:"table:user_accounts,alias:uac"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username      string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash" json:"-"`
	IsActive      bool       `bun:"is_active" json:"is_active"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// GetID implements Account
func (u *UserAccount) GetID() string {
	if u == nil || u.ID == uuid.Nil {
		return ""
	}
	return u.ID.String()
}

// GetEmail implements Account
func (u *UserAccount) GetEmail() string {
	if u == nil {
		return ""
	}
	return u.Email
}

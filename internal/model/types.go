package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier is the service class of an account; it determines the default pool size.
type Tier string

const (
	TierPrivate Tier = "private"
	TierSharing Tier = "sharing"
	TierVIP     Tier = "vip"
)

// Tiers lists every supported tier in display order.
var Tiers = []Tier{TierPrivate, TierSharing, TierVIP}

// ParseTier validates a tier name (case-insensitive)
func ParseTier(s string) (Tier, bool) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t, true
		}
	}
	return "", false
}

// DefaultProfileCount returns the pool size used when provisioning has no override.
func (t Tier) DefaultProfileCount() int {
	switch t {
	case TierPrivate:
		return 8
	case TierSharing:
		return 20
	case TierVIP:
		return 6
	}
	return 0
}

// Platform is the streaming service an account belongs to.
type Platform string

const (
	PlatformNetflix   Platform = "netflix"
	PlatformDisney    Platform = "disney"
	PlatformPrime     Platform = "prime"
	PlatformHBO       Platform = "hbo"
	PlatformSpotify   Platform = "spotify"
	PlatformYouTube   Platform = "youtube"
	PlatformApple     Platform = "apple"
	PlatformParamount Platform = "paramount"
)

// Platforms is the fixed set of supported services.
var Platforms = []Platform{
	PlatformNetflix,
	PlatformDisney,
	PlatformPrime,
	PlatformHBO,
	PlatformSpotify,
	PlatformYouTube,
	PlatformApple,
	PlatformParamount,
}

// ParsePlatform validates a platform name (case-insensitive)
func ParsePlatform(s string) (Platform, bool) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, true
		}
	}
	return "", false
}

// Account is a shared credential record with its own pool of profiles
type Account struct {
	ID               uuid.UUID `json:"id"`
	Platform         Platform  `json:"platform"`
	Tier             Tier      `json:"tier"`
	CredentialEmail  string    `json:"credential_email"`
	CredentialSecret string    `json:"credential_secret,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	Reported         bool      `json:"reported"`
	Profiles         []Profile `json:"profiles"`
	CreatedAt        time.Time `json:"created_at"`
}

// Available returns the number of unused profiles in the pool.
func (a Account) Available() int {
	n := 0
	for _, p := range a.Profiles {
		if !p.Used {
			n++
		}
	}
	return n
}

// UnusedProfiles returns the unused profiles in pool order.
func (a Account) UnusedProfiles() []Profile {
	out := make([]Profile, 0, len(a.Profiles))
	for _, p := range a.Profiles {
		if !p.Used {
			out = append(out, p)
		}
	}
	return out
}

// Profile is one claimable access slot inside an account.
// Used only ever moves from false to true.
type Profile struct {
	Name     string `json:"name"`
	Pin      string `json:"pin"`
	Used     bool   `json:"used"`
	Position int    `json:"position"`
}

// Assignment binds one profile to one customer identity
type Assignment struct {
	ID                 uuid.UUID `json:"id"`
	AccountID          uuid.UUID `json:"account_id"`
	ProfileName        string    `json:"profile_name"`
	CustomerIdentifier string    `json:"customer"`
	AssignedAt         time.Time `json:"assigned_at"`
	OperatorName       string    `json:"operator"`
	ChannelRef         *string   `json:"channel_ref,omitempty"`
}

// Report marks an account as having a problem until it is resolved
type Report struct {
	ID             uuid.UUID  `json:"id"`
	AccountID      uuid.UUID  `json:"account_id"`
	Reason         string     `json:"reason"`
	ReportedAt     time.Time  `json:"reported_at"`
	OperatorName   string     `json:"operator"`
	Resolved       bool       `json:"resolved"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	SecretRotated  bool       `json:"secret_rotated"`
}

// Channel is an external contact channel that may be attached to an assignment
type Channel struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	Number string `json:"number" yaml:"number"`
}

// StockLine is the number of unused profiles for one platform and tier
type StockLine struct {
	Platform  Platform `json:"platform"`
	Tier      Tier     `json:"tier"`
	Available int      `json:"available"`
	Accounts  int      `json:"accounts"`
}

// NormalizeCustomer trims the identifier for display and returns the key used
// for case-insensitive comparison.
func NormalizeCustomer(s string) (display, key string) {
	display = strings.TrimSpace(s)
	return display, strings.ToLower(display)
}

// NormalizeEmail returns the comparison key for a credential email.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

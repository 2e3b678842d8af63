package identity

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
)

// Theme is the profile's theme preference
type Theme = string

const (
	// ThemeAuto follows the system preference
	ThemeAuto Theme = "auto"
	// ThemeLight forces the light theme
	ThemeLight Theme = "light"
	// ThemeDark forces the dark theme
	ThemeDark Theme = "dark"
)

// Profile holds user-editable settings and display metadata,
// independent of session validity. It is persisted remotely keyed by
// user id; the state machine caches a single mutable record.
type Profile struct {
	ID              uuid.UUID      `json:"id,omitempty"`
	DisplayName     string         `json:"display_name,omitempty"`
	AvatarID        string         `json:"avatar_id,omitempty"`
	ThemePreference Theme          `json:"theme_preference,omitempty"`
	Locale          string         `json:"locale,omitempty"`
	Timezone        string         `json:"timezone,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       *time.Time     `json:"created_at,omitempty"`
	UpdatedAt       *time.Time     `json:"updated_at,omitempty"`

	// fallback marks locally synthesized profiles. They are exposed
	// identically to consumers and never auto-written back.
	fallback bool
}

// IsFallback reports whether the profile was synthesized locally
// because the remote record was missing or unreachable.
func (p *Profile) IsFallback() bool {
	return p != nil && p.fallback
}

// Clone returns a defensive copy suitable for handing to consumers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}

	out := *p
	if len(p.Metadata) > 0 {
		out.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// AddMetadata will append information to a metadata attribute
func (p *Profile) AddMetadata(key string, val any) *Profile {
	if p.Metadata == nil {
		p.Metadata = make(map[string]any)
	}
	p.Metadata[key] = val
	return p
}

// NewFallbackProfile synthesizes a minimal usable profile from session
// data: display name from the email local part, defaults from config.
func NewFallbackProfile(session *Session, cfg Config) *Profile {
	cfg = normalizeConfig(cfg)

	profile := &Profile{
		ThemePreference: cfg.GetDefaultTheme(),
		AvatarID:        cfg.GetDefaultAvatarID(),
		Locale:          cfg.GetDefaultLocale(),
		fallback:        true,
	}

	if session != nil {
		profile.ID = session.UserID
		profile.DisplayName = localPart(session.Email)
	}

	return profile
}

// ProfilePatch is a partial profile update; nil fields are left
// untouched by Apply.
type ProfilePatch struct {
	DisplayName     *string `json:"display_name,omitempty"`
	AvatarID        *string `json:"avatar_id,omitempty"`
	ThemePreference *Theme  `json:"theme_preference,omitempty"`
	Locale          *string `json:"locale,omitempty"`
	Timezone        *string `json:"timezone,omitempty"`
}

// IsZero reports whether the patch carries no changes.
func (p ProfilePatch) IsZero() bool {
	return p.DisplayName == nil &&
		p.AvatarID == nil &&
		p.ThemePreference == nil &&
		p.Locale == nil &&
		p.Timezone == nil
}

// Validate checks patch fields against profile constraints.
func (p ProfilePatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.DisplayName, validation.NilOrNotEmpty, validation.Length(1, 120)),
		validation.Field(&p.AvatarID, validation.NilOrNotEmpty, validation.Length(1, 64)),
		validation.Field(&p.ThemePreference, validation.In(ThemeAuto, ThemeLight, ThemeDark)),
		validation.Field(&p.Locale, validation.NilOrNotEmpty, validation.Length(2, 35)),
		validation.Field(&p.Timezone, validation.NilOrNotEmpty, validation.Length(1, 64)),
	)
}

// Apply copies the non-nil patch fields onto the profile and bumps the
// update timestamp.
func (p ProfilePatch) Apply(profile *Profile) {
	if profile == nil {
		return
	}

	if p.DisplayName != nil {
		profile.DisplayName = *p.DisplayName
	}
	if p.AvatarID != nil {
		profile.AvatarID = *p.AvatarID
	}
	if p.ThemePreference != nil {
		profile.ThemePreference = *p.ThemePreference
	}
	if p.Locale != nil {
		profile.Locale = *p.Locale
	}
	if p.Timezone != nil {
		profile.Timezone = *p.Timezone
	}

	now := time.Now()
	profile.UpdatedAt = &now
}

// Package policy holds per-user planning profiles: consent flags and granted
// permissions the planner consults while assessing risks. Profiles are pure
// reference data; this package performs no authentication of submitters.
package policy

import (
	"context"
	"strings"

	xerrors "Karana-Planner/internal/errors"
)

// CodeProfileNotFound marks a lookup for a user without a stored profile.
const CodeProfileNotFound xerrors.Code = "POLICY_PROFILE_NOT_FOUND"

// ErrProfileNotFound is returned by stores when no profile exists for the
// requested user.
var ErrProfileNotFound = xerrors.New(CodeProfileNotFound, "policy profile not found")

func init() {
	xerrors.Register(CodeProfileNotFound, xerrors.Attributes{
		Message:  "policy profile not found",
		Severity: xerrors.SeverityInfo,
	})
}

// Profile captures the per-user inputs the planner needs: whether the user
// consented to vision analysis leaving the device, and which device
// permissions they granted.
type Profile struct {
	UserID         string   `json:"user_id"`
	DisplayName    string   `json:"display_name,omitempty"`
	VisionConsent  bool     `json:"vision_consent"`
	PreferredChain string   `json:"preferred_chain,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	Disabled       bool     `json:"disabled,omitempty"`

	permissionsSet map[string]struct{}
}

// normalise prepares the lookup set for permission checks.
func (p *Profile) normalise() {
	if p == nil {
		return
	}
	if p.permissionsSet == nil {
		p.permissionsSet = make(map[string]struct{}, len(p.Permissions))
		for _, perm := range p.Permissions {
			p.permissionsSet[strings.ToLower(strings.TrimSpace(perm))] = struct{}{}
		}
	}
}

// HasPermission reports whether the profile grants the named permission.
func (p *Profile) HasPermission(permission string) bool {
	if p == nil {
		return false
	}
	p.normalise()
	_, ok := p.permissionsSet[strings.ToLower(strings.TrimSpace(permission))]
	return ok
}

// Clone creates an independent copy of the profile.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	clone := &Profile{
		UserID:         p.UserID,
		DisplayName:    p.DisplayName,
		VisionConsent:  p.VisionConsent,
		PreferredChain: p.PreferredChain,
		Permissions:    append([]string(nil), p.Permissions...),
		Disabled:       p.Disabled,
	}
	clone.normalise()
	return clone
}

// Anonymous returns the zero-consent profile used when a user has no stored
// entry. Nothing is granted, so plans degrade toward the cautious side.
func Anonymous(userID string) *Profile {
	return &Profile{UserID: strings.TrimSpace(userID)}
}

// Provider supplies profiles for planning.
type Provider interface {
	Profile(ctx context.Context, userID string) (*Profile, error)
}

// Store extends Provider with write access for seeding and admin edits.
type Store interface {
	Provider
	SaveProfile(ctx context.Context, profile *Profile) error
}

// Seed defines an initial profile loaded at startup.
type Seed struct {
	UserID         string   `json:"user_id"`
	DisplayName    string   `json:"display_name,omitempty"`
	VisionConsent  bool     `json:"vision_consent"`
	PreferredChain string   `json:"preferred_chain,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	Disabled       bool     `json:"disabled,omitempty"`
}

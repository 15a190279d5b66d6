// Package identity defines the authenticated actor model and the provider
// boundary that yields the current actor for a request. Actors are produced
// by an external identity system and are read-only inputs to the core;
// nothing in this module persists or mutates them.
package identity

import (
	"context"
	"errors"
)

// ErrNoActor is returned when no authenticated actor is available.
var ErrNoActor = errors.New("no authenticated actor")

// Role classifies an actor's clinical function.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleProvider          Role = "provider"
	RoleClinician         Role = "clinician"
	RoleResident          Role = "resident"
	RoleNurse             Role = "nurse"
	RoleEmergencyProvider Role = "emergency_provider"
)

// Actor is the identity invoking an action. Immutable for the duration
// of a request.
type Actor struct {
	ID            string `json:"id"`
	Role          Role   `json:"role"`
	Email         string `json:"email"`
	Name          string `json:"name,omitempty"`
	Active        bool   `json:"active"`
	LicenseNumber string `json:"license_number,omitempty"`
	Specialty     string `json:"specialty,omitempty"`
	Department    string `json:"department,omitempty"`
}

// Licensed reports whether the actor carries a license attribute.
// Admins are treated as licensed for tool-use purposes.
func (a *Actor) Licensed() bool {
	return a.LicenseNumber != "" || a.Role == RoleAdmin
}

// Provider resolves actor identities. Implementations wrap the external
// identity system (session lookup, token validation, or the demo account).
type Provider interface {
	// CurrentActor returns the actor for the request context.
	CurrentActor(ctx context.Context) (*Actor, error)

	// Lookup resolves an actor by id, for requests that carry an explicit
	// user_id in the envelope. Returns ErrNoActor if unknown.
	Lookup(ctx context.Context, id string) (*Actor, error)
}

package model

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Identity is an opaque actor identity. The engine only relies on equality
// for staleness comparison; the shape conventions below are validated for
// reporting, never enforced.
type Identity string

type IdentityShape string

const (
	ShapeToolSession  IdentityShape = "tool_session"
	ShapeTeamRole     IdentityShape = "team_role"
	ShapeHuman        IdentityShape = "human"
	ShapeUnrecognized IdentityShape = "unrecognized"
)

var (
	// e.g. agent-7f3c02d1-..., claude-session-01HQ...
	toolSessionRe = regexp.MustCompile(`^[a-z][a-z0-9]*-(session-)?[0-9a-fA-F][0-9a-zA-Z-]{7,}$`)
	// e.g. platform/reviewer
	teamRoleRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*/[a-z][a-z0-9_-]*$`)
	// e.g. ajmeyer
	humanRe = regexp.MustCompile(`^[a-z][a-z0-9._-]{1,31}$`)
)

// Shape classifies the identity against the known format conventions.
func (id Identity) Shape() IdentityShape {
	s := string(id)
	switch {
	case toolSessionRe.MatchString(s):
		return ShapeToolSession
	case teamRoleRe.MatchString(s):
		return ShapeTeamRole
	case humanRe.MatchString(s):
		return ShapeHuman
	default:
		return ShapeUnrecognized
	}
}

// Validate returns a warning for unrecognized shapes and an error only for
// the empty identity, which cannot hold a claim.
func (id Identity) Validate() (*Warning, error) {
	if id == "" {
		return nil, fmt.Errorf("empty actor identity")
	}
	if id.Shape() == ShapeUnrecognized {
		return &Warning{
			Code:    WarnIdentityShape,
			Subject: string(id),
			Message: fmt.Sprintf("identity %q matches no known shape, proceeding", string(id)),
		}, nil
	}
	return nil, nil
}

// NewSessionIdentity mints a fresh tool-session identity.
func NewSessionIdentity() Identity {
	return Identity("agent-" + uuid.NewString())
}

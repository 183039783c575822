package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type Role int

const (
	RoleParticipant Role = iota
	RoleVerifier
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleVerifier:
		return "verifier"
	default:
		return "participant"
	}
}

// RoleSnapshot is the privilege set of the connected account. A snapshot that
// is not Resolved must not be used to authorize anything.
type RoleSnapshot struct {
	Account    common.Address
	IsOwner    bool
	IsVerifier bool
	Resolved   bool
	ResolvedAt time.Time
}

func (r RoleSnapshot) Label() string {
	switch {
	case !r.Resolved:
		return "Unknown"
	case r.IsOwner && r.IsVerifier:
		return "Owner & verifier"
	case r.IsOwner:
		return "Owner"
	case r.IsVerifier:
		return "Verifier"
	default:
		return "Participant"
	}
}

func (r RoleSnapshot) Roles() []Role {
	roles := []Role{RoleParticipant}
	if r.IsVerifier {
		roles = append(roles, RoleVerifier)
	}
	if r.IsOwner {
		roles = append(roles, RoleOwner)
	}
	return roles
}

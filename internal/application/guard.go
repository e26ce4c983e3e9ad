package application

import (
	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// requiredRole names who may act on a listing.
type requiredRole int

const (
	roleOwner requiredRole = iota
	roleAdmin
	roleOwnerOrAdmin
)

func (r requiredRole) String() string {
	switch r {
	case roleOwner:
		return "owner"
	case roleAdmin:
		return "admin"
	case roleOwnerOrAdmin:
		return "owner_or_admin"
	default:
		return "unknown"
	}
}

// canAct reports whether actor holds role with respect to listing. Admins are not
// implicitly owners.
func canAct(actor model.Actor, listing *model.Listing, role requiredRole) bool {
	if actor.ID == "" {
		return false
	}

	isOwner := listing != nil && listing.OwnerID == actor.ID

	switch role {
	case roleOwner:
		return isOwner
	case roleAdmin:
		return actor.IsAdmin()
	case roleOwnerOrAdmin:
		return isOwner || actor.IsAdmin()
	default:
		return false
	}
}

// authorize returns an authorization error when canAct fails.
func authorize(actor model.Actor, listing *model.Listing, role requiredRole) error {
	if canAct(actor, listing, role) {
		return nil
	}

	meta := map[string]any{"actor_id": actor.ID, "required_role": role.String()}
	if listing != nil {
		meta["listing_id"] = listing.ID
	}
	return authorizationError("actor may not perform this operation", CodeForbidden, meta)
}

// requireActor rejects calls that carry no authenticated identity.
func requireActor(actor model.Actor) error {
	if actor.ID == "" {
		return NewUnauthenticatedError(nil)
	}
	return nil
}

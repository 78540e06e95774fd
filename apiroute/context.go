package apiroute

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"invoicehub-backend/models"
)

// RequesterKind distinguishes the resolved principal types.
type RequesterKind int

const (
	// RequesterMember is a human user acting within a tenant.
	RequesterMember RequesterKind = iota
	// RequesterTenant is the tenant itself acting as principal (credential
	// not bound to a user).
	RequesterTenant
)

// Requester is the resolved principal for the current call, used for
// permission checks. Exactly one kind is active per request.
type Requester struct {
	Kind       RequesterKind
	Membership *models.Membership // set when Kind == RequesterMember
}

func (r Requester) IsMember() bool {
	return r.Kind == RequesterMember
}

// Can reports whether the requester holds a permission. The tenant acting as
// its own principal holds every permission on its account; members are
// checked against their membership grants.
func (r Requester) Can(permission string) bool {
	if r.Kind == RequesterTenant {
		return true
	}
	return r.Membership != nil && r.Membership.Can(permission)
}

// RequestContext carries all request-scoped state: no process-wide mutable
// "current tenant" exists anywhere in this codebase. Built by the
// authentication resolver, completed by the route runner, threaded through
// every call.
type RequestContext struct {
	Tenant         *models.Tenant
	Requester      Requester
	SignedInUserId string // member user id or a models sentinel id
	ApiKey         *models.ApiKey
	Location       *time.Location
	RequestId      string
	CorrelationId  string
}

// Ctx is what a route handler receives: the resolved request context plus
// the validated (or raw, in warn mode) parameter maps and the underlying
// HTTP context for response construction.
type Ctx struct {
	*RequestContext
	Query map[string]any
	Body  map[string]any
	HTTP  *fiber.Ctx
}

// Context returns the request's cancellation context.
func (c *Ctx) Context() context.Context {
	return c.HTTP.UserContext()
}

// Authenticator resolves HTTP Basic-Auth fields into a request context.
// Implemented by auth.Resolver.
type Authenticator interface {
	Resolve(ctx context.Context, username, password string) (*RequestContext, error)
	RefreshUsage(ctx context.Context, key *models.ApiKey)
}

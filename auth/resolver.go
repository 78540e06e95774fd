package auth

import (
	"context"
	"log"
	"time"

	"invoicehub-backend/apierr"
	"invoicehub-backend/apiroute"
	"invoicehub-backend/models"
)

// Directory is the lookup surface the resolver needs. Implementations
// return (nil, nil) when a record does not exist. The GORM implementation
// lives in database/directory.go; tests use an in-memory fake.
type Directory interface {
	TenantByUsername(ctx context.Context, username string) (*models.Tenant, error)
	TenantById(ctx context.Context, id string) (*models.Tenant, error)
	ApiKeyByFingerprint(ctx context.Context, fingerprint string) (*models.ApiKey, error)
	UserById(ctx context.Context, id string) (*models.User, error)
	MembershipFor(ctx context.Context, tenantId, userId string) (*models.Membership, error)
	SaveApiKey(ctx context.Context, key *models.ApiKey) error
}

// Resolver turns HTTP Basic-Auth fields into a fully resolved request
// context: tenant, requester identity and signed-in user.
type Resolver struct {
	dir Directory
	now func() time.Time
}

func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir, now: time.Now}
}

// SetClock replaces the time source; tests use it for expiry scenarios.
func (r *Resolver) SetClock(now func() time.Time) {
	r.now = now
}

// Resolve implements the credential resolution sequence. When both fields
// are set, username selects a tenant by subdomain and password carries the
// secret; a lone username is treated as the secret itself (the common
// "API key as username" convention).
func (r *Resolver) Resolve(ctx context.Context, username, password string) (*apiroute.RequestContext, error) {
	var selected *models.Tenant
	secret := password

	if username != "" && password != "" {
		tenant, err := r.dir.TenantByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if tenant == nil {
			return nil, apierr.Authentication("no account found for username %q", username)
		}
		selected = tenant
	} else if password == "" {
		secret = username
	}

	if secret == "" {
		return nil, apierr.Authentication("missing API key")
	}

	key, err := r.dir.ApiKeyByFingerprint(ctx, models.FingerprintSecret(secret))
	if err != nil {
		return nil, err
	}
	if key == nil || key.Expired(r.now()) {
		return nil, apierr.Authentication("invalid API key %s", Redact(secret))
	}

	tenant := selected
	if tenant != nil {
		if key.TenantId != tenant.Id {
			return nil, apierr.Authentication("invalid API key %s", Redact(secret))
		}
	} else {
		tenant, err = r.dir.TenantById(ctx, key.TenantId)
		if err != nil {
			return nil, err
		}
		if tenant == nil {
			return nil, apierr.Authentication("invalid API key %s", Redact(secret))
		}
	}

	// The billing gate applies before any requester identity is resolved.
	switch tenant.SubscriptionStatus {
	case models.SubscriptionCanceled:
		return nil, apierr.Billing("account canceled")
	case models.SubscriptionUnpaid:
		return nil, apierr.Billing("trial ended")
	}

	rctx := &apiroute.RequestContext{
		Tenant:   tenant,
		ApiKey:   key,
		Location: tenant.Location(),
	}

	if key.UserId != nil {
		user, err := r.dir.UserById(ctx, *key.UserId)
		if err != nil {
			return nil, err
		}
		var membership *models.Membership
		if user != nil {
			membership, err = r.dir.MembershipFor(ctx, tenant.Id, user.Id)
			if err != nil {
				return nil, err
			}
		}
		if membership == nil {
			return nil, apierr.Authentication("user is no longer a member of this account")
		}
		rctx.Requester = apiroute.Requester{Kind: apiroute.RequesterMember, Membership: membership}
		rctx.SignedInUserId = user.Id
		return rctx, nil
	}

	rctx.Requester = apiroute.Requester{Kind: apiroute.RequesterTenant}
	if key.Protected {
		rctx.SignedInUserId = models.InvoicedInternalUserId
	} else {
		rctx.SignedInUserId = models.GenericApiUserId
	}
	return rctx, nil
}

// RefreshUsage applies the post-auth usage side effects: last_used is only
// written when more than 30 minutes stale, and an expiry inside its refresh
// window is pushed forward (30m, or 3 days with remember-me). Best-effort;
// a failed write never affects the request.
func (r *Resolver) RefreshUsage(ctx context.Context, key *models.ApiKey) {
	now := r.now()
	changed := false

	if key.LastUsedStale(now) {
		used := now
		key.LastUsedAt = &used
		changed = true
	}
	if key.ExpiringSoon(now) {
		key.ExpiresAt = now.Add(key.ExtensionDuration())
		changed = true
	}
	if !changed {
		return
	}
	if err := r.dir.SaveApiKey(ctx, key); err != nil {
		log.Printf("api key usage refresh failed: %v", err)
	}
}

package apiroute

import (
	"encoding/base64"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"invoicehub-backend/apierr"
	"invoicehub-backend/audit"
	"invoicehub-backend/idempotency"
	"invoicehub-backend/middlewares"
	"invoicehub-backend/ratelimit"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderRequestId      = "X-Request-Id"
	HeaderCorrelationId  = "X-Correlation-Id"
)

// Runner orchestrates a request through the core pipeline: authenticate,
// admit, deduplicate, gate by feature and permission, validate parameters,
// execute the route's callback exactly once, serialize, cache and audit.
// It is purely a coordinator and carries no business logic.
type Runner struct {
	Auth        Authenticator
	Limiter     *ratelimit.Limiter
	Idempotency *idempotency.Store
	Auditor     *audit.Auditor
}

// Handle wraps a route definition into a Fiber handler running the full
// pipeline. Failures short-circuit to an error response; nothing is retried
// at this layer.
func (r *Runner) Handle(def *Definition) fiber.Handler {
	if def.SuccessStatus == 0 {
		def.SuccessStatus = fiber.StatusOK
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestId := headerOr(c, HeaderRequestId, uuid.NewString())
		correlationId := headerOr(c, HeaderCorrelationId, requestId)
		c.Set(HeaderRequestId, requestId)

		username, password := basicAuth(c)
		rctx, err := r.Auth.Resolve(c.UserContext(), username, password)
		if err != nil {
			return r.fail(c, def, nil, start, err)
		}
		rctx.RequestId = requestId
		rctx.CorrelationId = correlationId
		r.Auth.RefreshUsage(c.UserContext(), rctx.ApiKey)

		release, admitted := r.Limiter.Admit(c.UserContext(), rctx.ApiKey.Id)
		if !admitted {
			return r.fail(c, def, rctx, start,
				fiber.NewError(fiber.StatusTooManyRequests, "too many concurrent requests"))
		}
		// Exactly one release per admitted request, on every exit path.
		defer release()

		idemKey := strings.TrimSpace(c.Get(HeaderIdempotencyKey))
		if err := idempotency.Validate(c.Method(), idemKey); err != nil {
			return r.fail(c, def, rctx, start, err)
		}
		if idemKey != "" {
			cached, err := r.Idempotency.Lookup(c.UserContext(), rctx.ApiKey.Id, idemKey)
			if err != nil {
				log.Printf("idempotency lookup failed, executing: %v", err)
			}
			if cached != nil {
				c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
				if err := c.Status(cached.StatusCode).Send(cached.Body); err != nil {
					return err
				}
				r.record(c, def, rctx, start)
				return nil
			}
		}

		if err := checkFeatures(def, rctx); err != nil {
			return r.fail(c, def, rctx, start, err)
		}
		if err := checkPermissions(def, rctx); err != nil {
			return r.fail(c, def, rctx, start, err)
		}

		query, body, err := r.buildParams(c, def, rctx)
		if err != nil {
			return r.fail(c, def, rctx, start, err)
		}

		result, err := def.Handler(&Ctx{RequestContext: rctx, Query: query, Body: body, HTTP: c})
		if err != nil {
			return r.fail(c, def, rctx, start, err)
		}

		if err := serialize(c, def, result); err != nil {
			return r.fail(c, def, rctx, start, err)
		}

		if idemKey != "" {
			body := append([]byte(nil), c.Response().Body()...)
			if err := r.Idempotency.Save(c.UserContext(), rctx.ApiKey.Id, idemKey,
				c.Response().StatusCode(), body); err != nil {
				log.Printf("idempotency save failed: %v", err)
			}
		}

		r.record(c, def, rctx, start)
		return nil
	}
}

// checkFeatures fails when the tenant lacks any required feature flag.
func checkFeatures(def *Definition, rctx *RequestContext) error {
	for _, flag := range def.Features {
		if !rctx.Tenant.HasFeature(flag) {
			return apierr.Permission("account does not have access to %s", flag)
		}
	}
	return nil
}

// checkPermissions enforces the member requirement and the permission set.
func checkPermissions(def *Definition, rctx *RequestContext) error {
	if def.RequireMember && !rctx.Requester.IsMember() {
		return apierr.Permission("this endpoint requires a user-scoped API key")
	}
	for _, perm := range def.Permissions {
		if !rctx.Requester.Can(perm) {
			return apierr.Permission("missing permission %s", perm)
		}
	}
	return nil
}

// buildParams validates query and body input against the declared schemas.
// In warn mode violations are logged and counted and the raw input proceeds
// unchanged.
func (r *Runner) buildParams(c *fiber.Ctx, def *Definition, rctx *RequestContext) (map[string]any, map[string]any, error) {
	rawQuery := make(map[string]any)
	for k, v := range c.Queries() {
		rawQuery[k] = v
	}

	rawBody := make(map[string]any)
	if len(c.Body()) > 0 {
		if err := json.Unmarshal(c.Body(), &rawBody); err != nil {
			if !def.Warn {
				return nil, nil, apierr.Validation("request body must be a JSON object")
			}
			// Warn mode: a nil body map marks the input as unparsed; the
			// raw bytes stay available on the HTTP context.
			r.warnValidation(def, rctx, []Violation{{"body", "not a JSON object"}})
			query, qv := def.QueryParams.Resolve(rawQuery)
			if len(qv) > 0 {
				r.warnValidation(def, rctx, qv)
				query = rawQuery
			}
			return query, nil, nil
		}
	}

	query, qv := def.QueryParams.Resolve(rawQuery)
	body, bv := def.BodyParams.Resolve(rawBody)
	violations := append(qv, bv...)
	if len(violations) == 0 {
		return query, body, nil
	}

	if def.Warn {
		r.warnValidation(def, rctx, violations)
		return rawQuery, rawBody, nil
	}

	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.String()
	}
	return nil, nil, apierr.Validation("%s", strings.Join(msgs, "; "))
}

func (r *Runner) warnValidation(def *Definition, rctx *RequestContext, violations []Violation) {
	audit.ObserveValidationWarning(def.Name)
	log.Printf("validation warning route=%s tenant=%s request_id=%s correlation_id=%s violations=%v",
		def.Name, rctx.Tenant.Id, rctx.RequestId, rctx.CorrelationId, violations)
}

// serialize writes the handler result: a pre-built RawResponse passes
// through unchanged, anything else is JSON-encoded with the declared
// success status.
func serialize(c *fiber.Ctx, def *Definition, result any) error {
	if raw, ok := result.(*RawResponse); ok {
		if raw.ContentType != "" {
			c.Set(fiber.HeaderContentType, raw.ContentType)
		}
		return c.Status(raw.StatusCode).Send(raw.Body)
	}
	return c.Status(def.SuccessStatus).JSON(result)
}

// fail renders the error through the central handler, then audits the
// exchange as written.
func (r *Runner) fail(c *fiber.Ctx, def *Definition, rctx *RequestContext, start time.Time, err error) error {
	if renderErr := middlewares.ErrorHandler(c, err); renderErr != nil {
		return renderErr
	}
	r.record(c, def, rctx, start)
	return nil
}

// record enqueues the audit entry for the response as it stands and hands
// the queue to a background flush; persistence never delays the caller.
func (r *Runner) record(c *fiber.Ctx, def *Definition, rctx *RequestContext, start time.Time) {
	rec := &audit.Record{
		Method:       c.Method(),
		Endpoint:     c.Path(),
		RouteName:    def.Name,
		StatusCode:   c.Response().StatusCode(),
		Ip:           c.IP(),
		UserAgent:    c.Get(fiber.HeaderUserAgent),
		RequestBody:  append([]byte(nil), c.Body()...),
		ResponseBody: append([]byte(nil), c.Response().Body()...),
		QueryParams:  c.Queries(),
		ReqHeaders:   flattenHeaders(c.GetReqHeaders()),
		RespHeaders:  flattenHeaders(c.GetRespHeaders()),
		Duration:     time.Since(start),
		Skip:         def.SkipAudit,
		At:           start.UTC(),
	}
	if rctx != nil {
		rec.RequestId = rctx.RequestId
		rec.CorrelationId = rctx.CorrelationId
		rec.TenantId = rctx.Tenant.Id
		rec.ApiKeyId = rctx.ApiKey.Id
		rec.UserId = rctx.SignedInUserId
		rec.Internal = rctx.ApiKey.Protected
	}
	r.Auditor.Enqueue(rec)
	r.Auditor.FlushAsync()
}

// basicAuth extracts the Basic-Auth username and password fields; both come
// back empty when the header is absent or malformed.
func basicAuth(c *fiber.Ctx) (string, string) {
	h := c.Get(fiber.HeaderAuthorization)
	const prefix = "Basic "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return "", ""
	}
	decoded, err := base64.StdEncoding.DecodeString(h[len(prefix):])
	if err != nil {
		return "", ""
	}
	username, password, _ := strings.Cut(string(decoded), ":")
	return username, password
}

func headerOr(c *fiber.Ctx, name, fallback string) string {
	if v := strings.TrimSpace(c.Get(name)); v != "" {
		return v
	}
	return fallback
}

func flattenHeaders(headers map[string][]string) map[string]string {
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		flat[name] = strings.Join(values, ", ")
	}
	return flat
}

package apiroute

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"invoicehub-backend/apierr"
	"invoicehub-backend/audit"
	"invoicehub-backend/idempotency"
	"invoicehub-backend/middlewares"
	"invoicehub-backend/models"
	"invoicehub-backend/ratelimit"
	"invoicehub-backend/store"
)

type fakeAuth struct {
	rctx *RequestContext
	err  error
}

func (f *fakeAuth) Resolve(context.Context, string, string) (*RequestContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rctx, nil
}

func (f *fakeAuth) RefreshUsage(context.Context, *models.ApiKey) {}

func memberContext(permissions ...string) *RequestContext {
	perms, _ := json.Marshal(permissions)
	return &RequestContext{
		Tenant: &models.Tenant{
			Id:                 "t1",
			Username:           "acme",
			SubscriptionStatus: models.SubscriptionActive,
			Features:           datatypes.JSON(`["invoicing"]`),
			TimeZone:           "UTC",
		},
		Requester: Requester{
			Kind:       RequesterMember,
			Membership: &models.Membership{Id: 1, TenantId: "t1", UserId: "u1", Permissions: perms},
		},
		SignedInUserId: "u1",
		ApiKey:         &models.ApiKey{Id: "k1", TenantId: "t1", ExpiresAt: time.Now().Add(time.Hour)},
		Location:       time.UTC,
	}
}

func tenantContext() *RequestContext {
	rctx := memberContext()
	rctx.Requester = Requester{Kind: RequesterTenant}
	rctx.SignedInUserId = models.GenericApiUserId
	return rctx
}

type harness struct {
	app  *fiber.App
	mu   sync.Mutex
	logs []*models.AuditLog
}

// auditLogs snapshots the captured entries; the sink runs on a background
// flush goroutine.
func (h *harness) auditLogs() []*models.AuditLog {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*models.AuditLog(nil), h.logs...)
}

func newHarness(auth Authenticator, defs ...*Definition) *harness {
	return newHarnessWithSinkDelay(auth, 0, defs...)
}

func newHarnessWithSinkDelay(auth Authenticator, sinkDelay time.Duration, defs ...*Definition) *harness {
	h := &harness{}
	shared := store.NewMemory()
	runner := &Runner{
		Auth:        auth,
		Limiter:     ratelimit.New(shared, 10),
		Idempotency: idempotency.New(shared),
		Auditor: audit.New(func(entry *models.AuditLog) error {
			if sinkDelay > 0 {
				time.Sleep(sinkDelay)
			}
			h.mu.Lock()
			h.logs = append(h.logs, entry)
			h.mu.Unlock()
			return nil
		}),
	}
	h.app = fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	for _, def := range defs {
		h.app.Add(def.Method, def.Path, runner.Handle(def))
	}
	return h
}

func body(t *testing.T, resp io.Reader) string {
	t.Helper()
	raw, err := io.ReadAll(resp)
	require.NoError(t, err)
	return string(raw)
}

func TestRunnerHappyPath(t *testing.T) {
	calls := 0
	def := &Definition{
		Name:   "ping",
		Method: fiber.MethodGet,
		Path:   "/ping",
		Handler: func(ctx *Ctx) (any, error) {
			calls++
			assert.Equal(t, "t1", ctx.Tenant.Id)
			return fiber.Map{"pong": true}, nil
		},
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Contains(t, body(t, resp.Body), "pong")
	assert.Equal(t, 1, calls)

	require.Eventually(t, func() bool { return len(h.auditLogs()) == 1 },
		time.Second, 10*time.Millisecond)
	entry := h.auditLogs()[0]
	assert.Equal(t, "ping", entry.RouteName)
	assert.Equal(t, 200, entry.StatusCode)
	assert.Equal(t, "t1", entry.TenantId)
}

func TestRunnerSlowAuditSinkDoesNotDelayResponse(t *testing.T) {
	def := &Definition{
		Name: "ping", Method: fiber.MethodGet, Path: "/ping",
		Handler: func(*Ctx) (any, error) { return fiber.Map{"pong": true}, nil },
	}
	h := newHarnessWithSinkDelay(&fakeAuth{rctx: memberContext()}, 300*time.Millisecond, def)

	start := time.Now()
	resp, err := h.app.Test(httptest.NewRequest("GET", "/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Less(t, time.Since(start), 250*time.Millisecond,
		"audit persistence must stay off the response path")

	require.Eventually(t, func() bool { return len(h.auditLogs()) == 1 },
		time.Second, 10*time.Millisecond)
}

func TestRunnerAuthFailure(t *testing.T) {
	def := &Definition{
		Name: "ping", Method: fiber.MethodGet, Path: "/ping",
		Handler: func(*Ctx) (any, error) { t.Fatal("handler must not run"); return nil, nil },
	}
	h := newHarness(&fakeAuth{err: apierr.Authentication("missing API key")}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/ping", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
	assert.Contains(t, body(t, resp.Body), "authentication")
}

func TestRunnerFeatureGate(t *testing.T) {
	def := &Definition{
		Name: "exports", Method: fiber.MethodGet, Path: "/exports",
		Features: []string{"exports"},
		Handler:  func(*Ctx) (any, error) { t.Fatal("handler must not run"); return nil, nil },
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/exports", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Contains(t, body(t, resp.Body), "does not have access")
}

func TestRunnerPermissionGate(t *testing.T) {
	def := &Definition{
		Name: "invoices.list", Method: fiber.MethodGet, Path: "/invoices",
		Permissions: []string{"invoices.read"},
		Handler:     func(*Ctx) (any, error) { t.Fatal("handler must not run"); return nil, nil },
	}
	// Member without the permission.
	h := newHarness(&fakeAuth{rctx: memberContext("customers.read")}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/invoices", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Contains(t, body(t, resp.Body), "invoices.read")
}

func TestRunnerTenantPrincipalHoldsAllPermissions(t *testing.T) {
	def := &Definition{
		Name: "invoices.list", Method: fiber.MethodGet, Path: "/invoices",
		Permissions: []string{"invoices.read"},
		Handler:     func(*Ctx) (any, error) { return fiber.Map{"ok": true}, nil },
	}
	h := newHarness(&fakeAuth{rctx: tenantContext()}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/invoices", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestRunnerRequireMember(t *testing.T) {
	def := &Definition{
		Name: "customers.create", Method: fiber.MethodGet, Path: "/customers",
		RequireMember: true,
		Handler:       func(*Ctx) (any, error) { t.Fatal("handler must not run"); return nil, nil },
	}
	h := newHarness(&fakeAuth{rctx: tenantContext()}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/customers", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
}

func TestRunnerIdempotentReplay(t *testing.T) {
	calls := 0
	def := &Definition{
		Name: "things.create", Method: fiber.MethodPost, Path: "/things",
		SuccessStatus: fiber.StatusCreated,
		Handler: func(*Ctx) (any, error) {
			calls++
			return fiber.Map{"call": calls}, nil
		},
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	req := httptest.NewRequest("POST", "/things", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-123456")
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	first := body(t, resp.Body)

	req = httptest.NewRequest("POST", "/things", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-123456")
	resp, err = h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)
	assert.Equal(t, first, body(t, resp.Body), "replay returns the original response")
	assert.Equal(t, 1, calls, "business callback executes exactly once")

	// A different key executes again.
	req = httptest.NewRequest("POST", "/things", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-654321")
	resp, err = h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunnerIdempotencyKeyValidation(t *testing.T) {
	def := &Definition{
		Name: "things.list", Method: fiber.MethodGet, Path: "/things",
		Handler: func(*Ctx) (any, error) { return fiber.Map{}, nil },
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	req := httptest.NewRequest("GET", "/things", nil)
	req.Header.Set(HeaderIdempotencyKey, "retry-123456")
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestRunnerRawResponsePassthrough(t *testing.T) {
	def := &Definition{
		Name: "export", Method: fiber.MethodGet, Path: "/export",
		Handler: func(*Ctx) (any, error) {
			return &RawResponse{StatusCode: 418, ContentType: "text/plain", Body: []byte("teapot")}, nil
		},
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/export", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 418, resp.StatusCode)
	assert.Equal(t, "teapot", body(t, resp.Body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestRunnerValidationFailure(t *testing.T) {
	def := &Definition{
		Name: "invoices.list", Method: fiber.MethodGet, Path: "/invoices",
		QueryParams: Schema{"page": {Types: []string{TypeInt}, Default: 1}},
		Handler:     func(*Ctx) (any, error) { t.Fatal("handler must not run"); return nil, nil },
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/invoices?page=abc", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
	assert.Contains(t, body(t, resp.Body), "page")
}

func TestRunnerWarnModeProceedsWithRawInput(t *testing.T) {
	var got any
	def := &Definition{
		Name: "invoices.list", Method: fiber.MethodGet, Path: "/invoices",
		QueryParams: Schema{"page": {Types: []string{TypeInt}, Default: 1}},
		Warn:        true,
		Handler: func(ctx *Ctx) (any, error) {
			got = ctx.Query["page"]
			return fiber.Map{"ok": true}, nil
		},
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	resp, err := h.app.Test(httptest.NewRequest("GET", "/invoices?page=abc", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "abc", got, "warn mode hands the handler the raw input")
}

func TestRunnerWarnModeNonJSONBody(t *testing.T) {
	var gotBody map[string]any
	var raw []byte
	def := &Definition{
		Name: "invoices.create", Method: fiber.MethodPost, Path: "/invoices",
		BodyParams: Schema{"invoice_number": {Required: true, Types: []string{TypeString}}},
		Warn:       true,
		Handler: func(ctx *Ctx) (any, error) {
			gotBody = ctx.Body
			raw = append([]byte(nil), ctx.HTTP.Body()...)
			return fiber.Map{"ok": true}, nil
		},
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	req := httptest.NewRequest("POST", "/invoices", strings.NewReader("plain text, not json"))
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Nil(t, gotBody, "unparsable input must not read as an empty object")
	assert.Equal(t, "plain text, not json", string(raw))
}

func TestRunnerSkipAudit(t *testing.T) {
	def := &Definition{
		Name: "noisy", Method: fiber.MethodGet, Path: "/noisy",
		SkipAudit: true,
		Handler:   func(*Ctx) (any, error) { return fiber.Map{}, nil },
	}
	h := newHarness(&fakeAuth{rctx: memberContext()}, def)

	_, err := h.app.Test(httptest.NewRequest("GET", "/noisy", nil), -1)
	require.NoError(t, err)
	assert.Never(t, func() bool { return len(h.auditLogs()) > 0 },
		100*time.Millisecond, 10*time.Millisecond)
}

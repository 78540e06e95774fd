package audit

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"
	"gorm.io/datatypes"

	"invoicehub-backend/models"
)

// MaxBodyBytes caps request/response bodies before compression.
const MaxBodyBytes = 100 * 1024

// Record is one captured HTTP exchange, queued in memory by Enqueue and
// turned into a persisted models.AuditLog by Flush.
type Record struct {
	RequestId     string
	CorrelationId string
	Method        string
	Endpoint      string
	RouteName     string
	StatusCode    int
	Ip            string
	UserAgent     string
	RequestBody   []byte
	ResponseBody  []byte
	QueryParams   map[string]string
	ReqHeaders    map[string]string
	RespHeaders   map[string]string
	Duration      time.Duration
	ApiKeyId      string
	UserId        string
	TenantId      string
	Internal      bool
	Skip          bool // set for 404s on genuinely nonexistent routes
	At            time.Time
}

// Sink persists one audit record. Wired to a GORM create in production and
// to a capture function in tests.
type Sink func(*models.AuditLog) error

// Auditor queues redacted request records and persists them off the response
// critical path. Persistence is best-effort: failures are logged, never
// propagated.
type Auditor struct {
	sink       Sink
	mu         sync.Mutex
	queue      []*Record
	suppressed map[string]struct{}
}

// New builds an Auditor. suppressedRoutes lists high-volume/low-value route
// names that are never persisted (their metrics still count).
func New(sink Sink, suppressedRoutes ...string) *Auditor {
	sup := make(map[string]struct{}, len(suppressedRoutes))
	for _, r := range suppressedRoutes {
		sup[r] = struct{}{}
	}
	return &Auditor{sink: sink, suppressed: sup}
}

// Enqueue emits the metrics triplet and appends the record to the in-memory
// queue. It never touches persistent storage. Skipped records are dropped
// entirely, metrics included.
func (a *Auditor) Enqueue(rec *Record) {
	if rec.Skip {
		return
	}
	internal := "false"
	if rec.Internal {
		internal = "true"
	}
	ObserveRequest(rec.Method, rec.RouteName, strconv.Itoa(rec.StatusCode), internal, rec.Duration)

	a.mu.Lock()
	a.queue = append(a.queue, rec)
	a.mu.Unlock()
}

// Flush drains the queue and persists each non-suppressed record. Called
// once after the response has been sent.
func (a *Auditor) Flush() {
	a.mu.Lock()
	pending := a.queue
	a.queue = nil
	a.mu.Unlock()

	for _, rec := range pending {
		if _, ok := a.suppressed[rec.RouteName]; ok {
			continue
		}
		if err := a.sink(a.build(rec)); err != nil {
			log.Printf("audit log persist failed: %v", err)
		}
	}
}

// FlushAsync drains the queue on a background goroutine so persistence
// latency never sits on the response path.
func (a *Auditor) FlushAsync() {
	go a.Flush()
}

// Pending reports the current queue depth; test helper.
func (a *Auditor) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *Auditor) build(rec *Record) *models.AuditLog {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &models.AuditLog{
		RequestId:     rec.RequestId,
		CorrelationId: rec.CorrelationId,
		Timestamp:     at,
		Method:        rec.Method,
		Endpoint:      rec.Endpoint,
		RouteName:     rec.RouteName,
		StatusCode:    rec.StatusCode,
		Ip:            rec.Ip,
		UserAgent:     rec.UserAgent,
		RequestBody:   CompressBody(rec.RequestBody),
		ResponseBody:  CompressBody(rec.ResponseBody),
		ResponseTime:  rec.Duration.Milliseconds(),
		QueryParams:   toJSON(rec.QueryParams),
		ReqHeaders:    toJSON(FilterHeaders(rec.ReqHeaders)),
		RespHeaders:   toJSON(FilterHeaders(rec.RespHeaders)),
		ApiKeyId:      rec.ApiKeyId,
		UserId:        rec.UserId,
		TenantId:      rec.TenantId,
		ExpiresAt:     at.Add(models.AuditLogRetention),
	}
}

// deniedHeaders are always stripped: credentials plus CORS/security headers
// that carry no debugging value.
var deniedHeaders = map[string]struct{}{
	"authorization":             {},
	"proxy-authorization":       {},
	"cookie":                    {},
	"set-cookie":                {},
	"x-api-key":                 {},
	"strict-transport-security": {},
	"content-security-policy":   {},
	"x-frame-options":           {},
	"x-content-type-options":    {},
	"x-xss-protection":          {},
	"referrer-policy":           {},
}

var deniedHeaderPrefixes = []string{"access-control-", "sec-"}

// FilterHeaders drops credential and CORS/security headers, retaining the
// standard negotiation and tracing headers.
func FilterHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	kept := make(map[string]string, len(headers))
outer:
	for name, value := range headers {
		lower := strings.ToLower(name)
		if _, denied := deniedHeaders[lower]; denied {
			continue
		}
		for _, prefix := range deniedHeaderPrefixes {
			if strings.HasPrefix(lower, prefix) {
				continue outer
			}
		}
		kept[name] = value
	}
	return kept
}

// TruncateUTF8 cuts b to at most max bytes without splitting a multi-byte
// rune at the boundary.
func TruncateUTF8(b []byte, max int) []byte {
	if len(b) <= max {
		return b
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return b[:cut]
}

// CompressBody truncates, deflates and base64-encodes a body. Bodies are
// always compressed regardless of size.
func CompressBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	body = TruncateUTF8(body, MaxBodyBytes)

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return ""
	}
	if _, err := w.Write(body); err != nil {
		return ""
	}
	if err := w.Close(); err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecompressBody reverses CompressBody; used by debugging tooling and tests.
func DecompressBody(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func toJSON(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	if m, ok := v.(map[string]string); ok && len(m) == 0 {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}

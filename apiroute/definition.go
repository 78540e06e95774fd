package apiroute

// Definition is the declarative contract a route supplies to the runner.
// The runner only ever sees this structure and the handler callback; it
// never knows concrete domain types.
type Definition struct {
	// Name identifies the route in metrics, audit records and the
	// suppression list.
	Name   string
	Method string
	Path   string

	// QueryParams and BodyParams are independently declared schemas.
	QueryParams Schema
	BodyParams  Schema

	// Permissions the requester must hold; Features the tenant must have.
	Permissions []string
	Features    []string

	// RequireMember rejects tenant-principal credentials with 403.
	RequireMember bool

	// Warn demotes validation failures to a logged metric and lets the
	// request proceed with the raw input. Exists to observe the blast
	// radius of a tightened contract before enforcing it.
	Warn bool

	// SuccessStatus is used when the handler returns a plain value to be
	// serialized; defaults to 200.
	SuccessStatus int

	// SkipAudit drops the request from the auditor entirely, metrics
	// included.
	SkipAudit bool

	Handler func(*Ctx) (any, error)
}

// RawResponse is a pre-built HTTP response a handler may return; the runner
// passes it through unchanged instead of serializing.
type RawResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

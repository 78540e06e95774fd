package apiroute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAppliesDefaults(t *testing.T) {
	schema := Schema{
		"page":     {Types: []string{TypeInt}, Default: 1},
		"per_page": {Types: []string{TypeInt}, Default: 25},
	}

	resolved, violations := schema.Resolve(map[string]any{})
	require.Empty(t, violations)
	assert.Equal(t, 1, resolved["page"])
	assert.Equal(t, 25, resolved["per_page"])
}

func TestResolveRequiredMissing(t *testing.T) {
	schema := Schema{
		"invoice_number": {Required: true, Types: []string{TypeString}},
	}

	_, violations := schema.Resolve(map[string]any{})
	require.Len(t, violations, 1)
	assert.Equal(t, "invoice_number", violations[0].Param)
	assert.Contains(t, violations[0].Constraint, "required")
}

func TestResolveCoercesQueryStrings(t *testing.T) {
	schema := Schema{
		"page":      {Types: []string{TypeInt}},
		"published": {Types: []string{TypeBool}},
		"amount":    {Types: []string{TypeFloat}},
	}

	resolved, violations := schema.Resolve(map[string]any{
		"page":      "3",
		"published": "true",
		"amount":    "19.99",
	})
	require.Empty(t, violations)
	assert.Equal(t, 3, resolved["page"])
	assert.Equal(t, true, resolved["published"])
	assert.Equal(t, 19.99, resolved["amount"])
}

func TestResolveJSONNumbers(t *testing.T) {
	schema := Schema{
		"customer_id": {Types: []string{TypeInt}},
		"subtotal":    {Types: []string{TypeFloat}},
	}

	// json.Unmarshal decodes every number as float64.
	resolved, violations := schema.Resolve(map[string]any{
		"customer_id": float64(7),
		"subtotal":    float64(12.5),
	})
	require.Empty(t, violations)
	assert.Equal(t, 7, resolved["customer_id"])
	assert.Equal(t, 12.5, resolved["subtotal"])
}

func TestResolveTypeMismatch(t *testing.T) {
	schema := Schema{
		"page": {Types: []string{TypeInt}},
	}

	_, violations := schema.Resolve(map[string]any{"page": "not-a-number"})
	require.Len(t, violations, 1)
	assert.Equal(t, "page", violations[0].Param)
	assert.Contains(t, violations[0].Constraint, "type int")
}

func TestResolveEnum(t *testing.T) {
	schema := Schema{
		"status": {Types: []string{TypeString}, Enum: []any{"draft", "open", "paid"}},
	}

	resolved, violations := schema.Resolve(map[string]any{"status": "open"})
	require.Empty(t, violations)
	assert.Equal(t, "open", resolved["status"])

	_, violations = schema.Resolve(map[string]any{"status": "void"})
	require.Len(t, violations, 1)
	assert.Equal(t, "status", violations[0].Param)
}

func TestResolveEnumUncomparableValues(t *testing.T) {
	schema := Schema{
		"tags": {Types: []string{TypeArray}, Enum: []any{[]any{"net30"}, []any{"net60"}}},
	}

	// Slice-valued enum entries must match by representation, not panic on
	// interface equality.
	resolved, violations := schema.Resolve(map[string]any{"tags": []any{"net30"}})
	require.Empty(t, violations)
	assert.Equal(t, []any{"net30"}, resolved["tags"])

	_, violations = schema.Resolve(map[string]any{"tags": []any{"net90"}})
	require.Len(t, violations, 1)
	assert.Equal(t, "tags", violations[0].Param)
}

func TestResolveMultipleTypes(t *testing.T) {
	schema := Schema{
		"filter": {Types: []string{TypeString, TypeArray}},
	}

	resolved, violations := schema.Resolve(map[string]any{"filter": "overdue"})
	require.Empty(t, violations)
	assert.Equal(t, "overdue", resolved["filter"])

	resolved, violations = schema.Resolve(map[string]any{"filter": []any{"overdue", "open"}})
	require.Empty(t, violations)
	assert.Equal(t, []any{"overdue", "open"}, resolved["filter"])
}

func TestResolvePassesUndeclaredThrough(t *testing.T) {
	schema := Schema{"page": {Types: []string{TypeInt}, Default: 1}}

	resolved, violations := schema.Resolve(map[string]any{"extra": "kept"})
	require.Empty(t, violations)
	assert.Equal(t, "kept", resolved["extra"])
}

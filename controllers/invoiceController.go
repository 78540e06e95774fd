package controllers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"invoicehub-backend/apiroute"
	"invoicehub-backend/database"
	"invoicehub-backend/models"
	"invoicehub-backend/querycache"
	"invoicehub-backend/utils"
)

// InvoiceRoutes declares the invoice endpoints as runner-managed
// definitions. The runner never sees the invoice model; it only knows the
// declared schemas and the callback.
func InvoiceRoutes(qc *querycache.Cache) []*apiroute.Definition {
	return []*apiroute.Definition{
		listInvoices(qc),
		createInvoice(),
	}
}

func listInvoices(qc *querycache.Cache) *apiroute.Definition {
	return &apiroute.Definition{
		Name:   "invoices.list",
		Method: fiber.MethodGet,
		Path:   "/invoices",
		QueryParams: apiroute.Schema{
			"page":        {Types: []string{apiroute.TypeInt}, Default: 1},
			"per_page":    {Types: []string{apiroute.TypeInt}, Default: 25},
			"published":   {Types: []string{apiroute.TypeBool}},
			"force_count": {Types: []string{apiroute.TypeBool}, Default: false},
		},
		Permissions: []string{"invoices.read"},
		Handler: func(ctx *apiroute.Ctx) (any, error) {
			page := intParam(ctx.Query, "page", 1)
			perPage := intParam(ctx.Query, "per_page", 25)
			force := boolParam(ctx.Query, "force_count", false)

			q := database.DB.Where("tenant_id = ?", ctx.Tenant.Id)
			shape := querycache.Shape{
				Model: "invoices",
				Where: []querycache.Predicate{{Column: "tenant_id", Value: ctx.Tenant.Id}},
			}
			if published, ok := ctx.Query["published"].(bool); ok {
				q = q.Where("published = ?", published)
				shape.Where = append(shape.Where, querycache.Predicate{Column: "published", Value: published})
			}

			total, err := qc.Count(ctx.Context(), shape, force, func() (int64, error) {
				var n int64
				err := q.Session(&gorm.Session{}).Model(&models.Invoice{}).Count(&n).Error
				return n, err
			})
			if err != nil {
				return nil, err
			}

			var invoices []models.Invoice
			if err := q.Order("id desc").
				Limit(perPage).Offset((page - 1) * perPage).
				Find(&invoices).Error; err != nil {
				return nil, err
			}

			return fiber.Map{
				"invoices": invoices,
				"total":    total,
				"page":     page,
				"per_page": perPage,
			}, nil
		},
	}
}

func createInvoice() *apiroute.Definition {
	return &apiroute.Definition{
		Name:   "invoices.create",
		Method: fiber.MethodPost,
		Path:   "/invoices",
		BodyParams: apiroute.Schema{
			"invoice_number": {Required: true, Types: []string{apiroute.TypeString}},
			"customer_id":    {Required: true, Types: []string{apiroute.TypeInt}},
			"subtotal":       {Types: []string{apiroute.TypeFloat}, Default: 0.0},
			"tax_total":      {Types: []string{apiroute.TypeFloat}, Default: 0.0},
			"draft":          {Types: []string{apiroute.TypeBool}, Default: true},
		},
		Permissions:   []string{"invoices.write"},
		Features:      []string{"invoicing"},
		SuccessStatus: fiber.StatusCreated,
		Handler: func(ctx *apiroute.Ctx) (any, error) {
			subtotal := utils.Round2(floatParam(ctx.Body, "subtotal", 0))
			taxTotal := utils.Round2(floatParam(ctx.Body, "tax_total", 0))

			invoice := models.Invoice{
				InvoiceNumber: stringParam(ctx.Body, "invoice_number"),
				TenantId:      ctx.Tenant.Id,
				CId:           uint(intParam(ctx.Body, "customer_id", 0)),
				Subtotal:      subtotal,
				TaxTotal:      taxTotal,
				Total:         subtotal + taxTotal,
				Draft:         boolParam(ctx.Body, "draft", true),
			}
			if err := database.DB.Create(&invoice).Error; err != nil {
				return nil, err
			}
			return invoice, nil
		},
	}
}

// Param accessors tolerate warn-mode raw input by falling back to defaults.

func intParam(params map[string]any, name string, def int) int {
	if v, ok := params[name].(int); ok {
		return v
	}
	return def
}

func floatParam(params map[string]any, name string, def float64) float64 {
	switch v := params[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func boolParam(params map[string]any, name string, def bool) bool {
	if v, ok := params[name].(bool); ok {
		return v
	}
	return def
}

func stringParam(params map[string]any, name string) string {
	if v, ok := params[name].(string); ok {
		return v
	}
	return ""
}

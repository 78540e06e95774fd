package controllers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"invoicehub-backend/apiroute"
	"invoicehub-backend/database"
	"invoicehub-backend/models"
	"invoicehub-backend/querycache"
)

// CustomerRoutes declares the customer endpoints. The list route runs in
// warn mode while its tightened query contract is soft-launched.
func CustomerRoutes(qc *querycache.Cache) []*apiroute.Definition {
	return []*apiroute.Definition{
		listCustomers(qc),
		createCustomer(),
	}
}

func listCustomers(qc *querycache.Cache) *apiroute.Definition {
	return &apiroute.Definition{
		Name:   "customers.list",
		Method: fiber.MethodGet,
		Path:   "/customers",
		QueryParams: apiroute.Schema{
			"page":   {Types: []string{apiroute.TypeInt}, Default: 1},
			"active": {Types: []string{apiroute.TypeBool}, Default: true},
		},
		Permissions: []string{"customers.read"},
		Warn:        true,
		Handler: func(ctx *apiroute.Ctx) (any, error) {
			page := intParam(ctx.Query, "page", 1)
			active := boolParam(ctx.Query, "active", true)

			q := database.DB.Where("tenant_id = ? AND active = ?", ctx.Tenant.Id, active)
			shape := querycache.Shape{
				Model: "customers",
				Where: []querycache.Predicate{
					{Column: "tenant_id", Value: ctx.Tenant.Id},
					{Column: "active", Value: active},
				},
			}
			total, err := qc.Count(ctx.Context(), shape, false, func() (int64, error) {
				var n int64
				err := q.Session(&gorm.Session{}).Model(&models.Customer{}).Count(&n).Error
				return n, err
			})
			if err != nil {
				return nil, err
			}

			var customers []models.Customer
			if err := q.Order("id").Limit(25).Offset((page - 1) * 25).
				Find(&customers).Error; err != nil {
				return nil, err
			}
			return fiber.Map{"customers": customers, "total": total, "page": page}, nil
		},
	}
}

func createCustomer() *apiroute.Definition {
	return &apiroute.Definition{
		Name:   "customers.create",
		Method: fiber.MethodPost,
		Path:   "/customers",
		BodyParams: apiroute.Schema{
			"company_name": {Required: true, Types: []string{apiroute.TypeString}},
			"email":        {Required: true, Types: []string{apiroute.TypeString}},
			"first_name":   {Types: []string{apiroute.TypeString}, Default: ""},
			"last_name":    {Types: []string{apiroute.TypeString}, Default: ""},
		},
		Permissions:   []string{"customers.write"},
		RequireMember: true,
		SuccessStatus: fiber.StatusCreated,
		Handler: func(ctx *apiroute.Ctx) (any, error) {
			customer := models.Customer{
				TenantId:    ctx.Tenant.Id,
				CompanyName: stringParam(ctx.Body, "company_name"),
				Email:       stringParam(ctx.Body, "email"),
				FirstName:   stringParam(ctx.Body, "first_name"),
				LastName:    stringParam(ctx.Body, "last_name"),
				Active:      true,
			}
			if err := database.DB.Create(&customer).Error; err != nil {
				return nil, err
			}
			return customer, nil
		},
	}
}

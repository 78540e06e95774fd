package controllers

import (
	"encoding/json"
	"net/mail"
	"time"

	"github.com/gofiber/fiber/v2"

	"invoicehub-backend/database"
	"invoicehub-backend/middlewares"
	"invoicehub-backend/models"
)

// AdminPermissions is granted to the founding member of a tenant.
var AdminPermissions = []string{
	"invoices.read", "invoices.write",
	"customers.read", "customers.write",
	"api_keys.manage",
}

func Register(c *fiber.Ctx) error {
	var data map[string]string
	if err := c.BodyParser(&data); err != nil {
		return err
	}

	if _, err := mail.ParseAddress(data["email"]); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid email format"})
	}
	var mailExist models.User
	database.DB.Where("email = ?", data["email"]).First(&mailExist)
	if mailExist.Email != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "email already exists"})
	}
	if data["password"] != data["password_confirm"] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "passwords do not match"})
	}
	if data["username"] == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "username is required"})
	}

	tx := database.DB.Begin()

	user := models.User{
		FirstName: data["first_name"],
		LastName:  data["last_name"],
		Email:     data["email"],
	}
	user.SetPassword(data["password"])
	if err := tx.Create(&user).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "could not create user", "error": err.Error(),
		})
	}

	features, _ := json.Marshal([]string{"invoicing"})
	tenant := models.Tenant{
		Username:           data["username"],
		CompanyName:        data["company_name"],
		SubscriptionStatus: models.SubscriptionActive,
		Features:           features,
		TimeZone:           orDefault(data["time_zone"], "UTC"),
	}
	if err := tx.Create(&tenant).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "could not create account", "error": err.Error(),
		})
	}

	perms, _ := json.Marshal(AdminPermissions)
	membership := models.Membership{
		TenantId:    tenant.Id,
		UserId:      user.Id,
		Permissions: perms,
	}
	if err := tx.Create(&membership).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "could not create membership", "error": err.Error(),
		})
	}

	tx.Commit()

	return c.JSON(fiber.Map{
		"tenant": tenant,
		"user": fiber.Map{
			"id":    user.Id,
			"name":  user.FirstName + " " + user.LastName,
			"email": user.Email,
		},
	})
}

func Login(c *fiber.Ctx) error {
	var data map[string]string
	if err := c.BodyParser(&data); err != nil {
		return err
	}

	if _, err := mail.ParseAddress(data["email"]); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid email format"})
	}

	var user models.User
	database.DB.Where("email = ?", data["email"]).First(&user)
	if user.Id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid credentials"})
	}
	if err := user.ComparePassword(data["password"]); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid credentials"})
	}

	var membership models.Membership
	database.DB.Where("user_id = ?", user.Id).First(&membership)
	if membership.Id == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "no account membership"})
	}

	token, err := middlewares.GenerateJWT(user.Id, membership.TenantId)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"message": "could not issue token"})
	}

	return c.JSON(fiber.Map{
		"token":     token,
		"tenant_id": membership.TenantId,
		"user": fiber.Map{
			"id":    user.Id,
			"name":  user.FirstName + " " + user.LastName,
			"email": user.Email,
		},
	})
}

func Logout(c *fiber.Ctx) error {
	cookie := fiber.Cookie{
		Name:     "jwt",
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	}
	c.Cookie(&cookie)
	return c.JSON(fiber.Map{"message": "success"})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"invoicehub-backend/database"
	"invoicehub-backend/middlewares"
	"invoicehub-backend/models"
)

// CreateApiKeyRequest is the portal payload for minting a credential.
type CreateApiKeyRequest struct {
	UserScoped bool `json:"user_scoped"`
	Protected  bool `json:"protected"`
	RememberMe bool `json:"remember_me"`
}

// CreateApiKey mints a new credential for the signed-in portal user's
// tenant. The plaintext secret is returned exactly once; only its
// fingerprint is stored.
func CreateApiKey(c *fiber.Ctx) error {
	var req CreateApiKeyRequest
	if err := middlewares.BindAndValidate(c, &req); err != nil {
		return err
	}

	tenantID, _ := c.Locals("tenantID").(string)
	userID, _ := c.Locals("userID").(string)

	secret := "ivh_" + uuid.NewString()
	lifetime := models.DefaultKeyLifetime
	if req.RememberMe {
		lifetime = models.RememberMeKeyLifetime
	}

	key := models.ApiKey{
		Fingerprint: models.FingerprintSecret(secret),
		TenantId:    tenantID,
		Protected:   req.Protected,
		RememberMe:  req.RememberMe,
		ExpiresAt:   time.Now().Add(lifetime),
	}
	if req.UserScoped {
		key.UserId = &userID
	}

	if err := database.DB.Create(&key).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "could not create API key",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key": key,
		"secret":  secret, // shown once
	})
}

// ListApiKeys returns the tenant's credentials (fingerprints omitted).
func ListApiKeys(c *fiber.Ctx) error {
	tenantID, _ := c.Locals("tenantID").(string)

	var keys []models.ApiKey
	if err := database.DB.Where("tenant_id = ?", tenantID).Find(&keys).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "could not list API keys",
		})
	}
	return c.JSON(fiber.Map{"api_keys": keys})
}

// RevokeApiKey deletes a credential belonging to the signed-in tenant.
func RevokeApiKey(c *fiber.Ctx) error {
	tenantID, _ := c.Locals("tenantID").(string)

	res := database.DB.Where("id = ? AND tenant_id = ?", c.Params("id"), tenantID).
		Delete(&models.ApiKey{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "could not revoke API key",
		})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "API key not found"})
	}
	return c.JSON(fiber.Map{"message": "revoked"})
}

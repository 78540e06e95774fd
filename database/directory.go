package database

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"invoicehub-backend/models"
)

// Directory is the GORM-backed lookup surface for the authentication
// resolver. Missing records come back as (nil, nil).
type Directory struct {
	db *gorm.DB
}

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) TenantByUsername(ctx context.Context, username string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).Where("username = ?", username).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (d *Directory) TenantById(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (d *Directory) ApiKeyByFingerprint(ctx context.Context, fingerprint string) (*models.ApiKey, error) {
	var key models.ApiKey
	err := d.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (d *Directory) UserById(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Directory) MembershipFor(ctx context.Context, tenantId, userId string) (*models.Membership, error) {
	var membership models.Membership
	err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantId, userId).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (d *Directory) SaveApiKey(ctx context.Context, key *models.ApiKey) error {
	return d.db.WithContext(ctx).Save(key).Error
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Subscription states gate API access per request (402 on canceled/unpaid).
const (
	SubscriptionActive   = "active"
	SubscriptionCanceled = "canceled"
	SubscriptionUnpaid   = "unpaid"
)

// Tenant is one billing account. Read on every request to gate by feature
// and billing status; mutated rarely (billing transitions, feature grants).
type Tenant struct {
	Id                 string         `json:"id" gorm:"primaryKey"`
	Username           string         `json:"username" gorm:"unique;not null"` // subdomain selector
	CompanyName        string         `json:"company_name" gorm:"not null"`
	SubscriptionStatus string         `json:"subscription_status" gorm:"type:VARCHAR(20);default:active"`
	Features           datatypes.JSON `json:"features" gorm:"type:jsonb"` // JSON array of flag names
	TimeZone           string         `json:"time_zone" gorm:"default:UTC"`
	CreatedAt          time.Time      `json:"created_at"`
}

func (tenant *Tenant) BeforeCreate(tx *gorm.DB) (err error) {
	// UUID version 4
	tenant.Id = uuid.NewString()
	return
}

// HasFeature reports whether the tenant's feature set contains flag.
func (tenant *Tenant) HasFeature(flag string) bool {
	for _, f := range tenant.FeatureList() {
		if f == flag {
			return true
		}
	}
	return false
}

// FeatureList decodes the JSON feature column; a broken column reads as empty.
func (tenant *Tenant) FeatureList() []string {
	var flags []string
	if len(tenant.Features) == 0 {
		return nil
	}
	if err := jsonUnmarshal(tenant.Features, &flags); err != nil {
		return nil
	}
	return flags
}

// Location resolves the tenant's configured time zone, falling back to UTC.
func (tenant *Tenant) Location() *time.Location {
	if loc, err := time.LoadLocation(tenant.TimeZone); err == nil {
		return loc
	}
	return time.UTC
}

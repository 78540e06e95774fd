package models

import (
	"time"
)

// Invoice is the thin domain surface the API core's demo routes operate on.
// Business rules (versioning, conversion, payment rollups) live outside the
// core and are not modeled here.
type Invoice struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	InvoiceNumber string    `json:"invoice_number" gorm:"unique"`
	TenantId      string    `json:"-" gorm:"index;not null"`
	CId           uint      `json:"-"`
	Customer      Customer  `json:"customer" gorm:"foreignKey:CId;references:Id"`
	Subtotal      float64   `json:"subtotal" gorm:"type:numeric(12,2)"`
	TaxTotal      float64   `json:"tax_total" gorm:"type:numeric(12,2)"`
	Total         float64   `json:"total" gorm:"type:numeric(12,2)"`
	Draft         bool      `json:"draft"`
	Published     bool      `json:"published"`
	CreatedAt     time.Time `json:"created_at"`
}

// CacheRef lets query-cache predicates reference an invoice by id.
func (inv *Invoice) CacheRef() string {
	return "invoice:" + itoa(inv.ID)
}

package models

import "strconv"

type Customer struct {
	Id          uint   `json:"id" gorm:"primaryKey"`
	TenantId    string `json:"-" gorm:"index;not null"`
	CompanyName string `json:"company_name" gorm:"not null"`
	Email       string `json:"email" gorm:"not null"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Active      bool   `json:"-"`
}

// CacheRef lets query-cache predicates reference a customer by id.
func (c *Customer) CacheRef() string {
	return "customer:" + itoa(c.Id)
}

func itoa(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}

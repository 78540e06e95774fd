package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sentinel user ids for non-human requesters. Negative so they can never
// collide with a stored user row.
const (
	InvoicedInternalUserId = "-2" // first-party ("protected") API credential
	GenericApiUserId       = "-3" // third-party API credential
)

type User struct {
	Id        string `json:"id" gorm:"primaryKey"`
	FirstName string `json:"first_name" gorm:"not null"`
	LastName  string `json:"last_name" gorm:"not null"`
	Password  []byte `json:"-" gorm:"not null"`
	Email     string `json:"email" gorm:"unique;not null"`
}

func (user *User) BeforeCreate(tx *gorm.DB) (err error) {
	// UUID version 4
	user.Id = uuid.NewString()
	return
}

func (user *User) SetPassword(password string) {
	hashedPassword, _ := bcrypt.GenerateFromPassword([]byte(password), 12)
	user.Password = hashedPassword
}

func (user *User) ComparePassword(password string) error {
	return bcrypt.CompareHashAndPassword(user.Password, []byte(password))
}

// Membership ties a user to a tenant with a permission list. A credential
// bound to a user only resolves while a membership row exists.
type Membership struct {
	Id          uint           `json:"id" gorm:"primaryKey"`
	TenantId    string         `json:"tenant_id" gorm:"index:idx_memberships_tenant_user,unique,priority:1;not null"`
	UserId      string         `json:"user_id" gorm:"index:idx_memberships_tenant_user,unique,priority:2;not null"`
	Permissions datatypes.JSON `json:"permissions" gorm:"type:jsonb"` // JSON array of permission strings
	CreatedAt   time.Time      `json:"created_at"`
}

// Can reports whether the membership grants the given permission.
func (m *Membership) Can(permission string) bool {
	for _, p := range m.PermissionList() {
		if p == permission {
			return true
		}
	}
	return false
}

func (m *Membership) PermissionList() []string {
	var perms []string
	if len(m.Permissions) == 0 {
		return nil
	}
	if err := jsonUnmarshal(m.Permissions, &perms); err != nil {
		return nil
	}
	return perms
}

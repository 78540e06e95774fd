package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLogRetention bounds how long request records are kept.
const AuditLogRetention = 30 * 24 * time.Hour

// AuditLog is an immutable record of one completed HTTP exchange. Bodies are
// stored deflate-compressed and base64-encoded, truncated to 100KB before
// compression. Created once per request, never mutated.
type AuditLog struct {
	Id            string         `json:"id" gorm:"primaryKey"`
	RequestId     string         `json:"request_id" gorm:"size:64;index"`
	CorrelationId string         `json:"correlation_id" gorm:"size:64;index"`
	Timestamp     time.Time      `json:"timestamp" gorm:"index"`
	Method        string         `json:"method" gorm:"size:10"`
	Endpoint      string         `json:"endpoint" gorm:"size:255"`
	RouteName     string         `json:"route_name" gorm:"size:128;index"`
	StatusCode    int            `json:"status_code"`
	Ip            string         `json:"ip" gorm:"size:45"`
	UserAgent     string         `json:"user_agent" gorm:"size:255"`
	ResponseBody  string         `json:"-" gorm:"type:text"` // deflate+base64
	ResponseTime  int64          `json:"response_time"`      // milliseconds
	RequestBody   string         `json:"-" gorm:"type:text"` // deflate+base64
	QueryParams   datatypes.JSON `json:"query_params" gorm:"type:jsonb"`
	ReqHeaders    datatypes.JSON `json:"request_headers" gorm:"type:jsonb"`
	RespHeaders   datatypes.JSON `json:"response_headers" gorm:"type:jsonb"`
	ApiKeyId      string         `json:"api_key_id" gorm:"size:64;index"`
	UserId        string         `json:"user_id" gorm:"size:64"`
	TenantId      string         `json:"tenant_id" gorm:"size:64;index"`
	ExpiresAt     time.Time      `json:"expires_at" gorm:"index"`
}

func (entry *AuditLog) BeforeCreate(tx *gorm.DB) (err error) {
	if entry.Id == "" {
		entry.Id = uuid.NewString()
	}
	return
}

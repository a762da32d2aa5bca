// Package model holds the persisted event models shared between the data
// layer and its consumers.
package model

import "time"

// Event type constants for the history tables consumed by the dashboard.
const (
	EventBreakerOpened   = "BREAKER_OPENED"
	EventBreakerHalfOpen = "BREAKER_HALF_OPEN"
	EventBreakerClosed   = "BREAKER_CLOSED"

	EventServiceOnline               = "SERVICE_ONLINE"
	EventServiceOffline              = "SERVICE_OFFLINE"
	EventServiceDegraded             = "SERVICE_DEGRADED"
	EventServiceIntentionallyOffline = "SERVICE_INTENTIONALLY_OFFLINE"
	EventServiceUnknown              = "SERVICE_UNKNOWN"
)

// BreakerEvent is the GORM model for the breaker_events table, one row per
// circuit breaker state transition.
type BreakerEvent struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	Service   string    `gorm:"column:service;type:varchar(100);not null;index"`
	FromState string    `gorm:"column:from_state;type:varchar(20);not null"`
	ToState   string    `gorm:"column:to_state;type:varchar(20);not null"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName specifies the table name for GORM.
func (BreakerEvent) TableName() string {
	return "breaker_events"
}

// ServiceEvent is the GORM model for the service_events table, one row per
// registry status transition.
type ServiceEvent struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Service    string    `gorm:"column:service;type:varchar(100);not null;index"`
	FromStatus string    `gorm:"column:from_status;type:varchar(30);not null"`
	ToStatus   string    `gorm:"column:to_status;type:varchar(30);not null"`
	EventType  string    `gorm:"column:event_type;type:varchar(50);not null"`
	Reason     string    `gorm:"column:reason;type:varchar(500)"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

// TableName specifies the table name for GORM.
func (ServiceEvent) TableName() string {
	return "service_events"
}

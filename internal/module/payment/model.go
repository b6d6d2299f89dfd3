package payment

import "time"

// WebhookEvent is one received Stripe event. Storing the event ID
// before processing makes redelivered events no-ops.
type WebhookEvent struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	Type        string     `json:"type" gorm:"not null;index"`
	Payload     string     `json:"payload" gorm:"type:text"`
	Processed   bool       `json:"processed" gorm:"not null;default:false"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// TableName returns the database table name.
func (WebhookEvent) TableName() string {
	return "payment_webhook_events"
}

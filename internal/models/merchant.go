package models

// Merchant is a provisioned API client that owns transactions.
type Merchant struct {
	BaseModel
	APIKey     string `gorm:"column:api_key;uniqueIndex;not null" json:"-"`
	Name       string `gorm:"not null" json:"name"`
	WebhookURL string `gorm:"column:webhook_url" json:"webhookUrl"`
}

package models

import (
	"time"

	"gorm.io/gorm"

	"whatsapp-suite/internal/phone"
)

// Provider states
const (
	ProviderDraft    = "draft"
	ProviderVerified = "verified"
	ProviderError    = "error"
)

// DefaultAPIURL is the Graph API base used when a provider does not set one.
const DefaultAPIURL = "https://graph.facebook.com/v20.0"

// ProviderConfig holds the credentials of one connected WhatsApp number.
type ProviderConfig struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Name              string     `gorm:"type:varchar(255);not null" json:"name"`
	APIURL            string     `gorm:"type:varchar(255);not null" json:"api_url"`
	PhoneNumberID     string     `gorm:"type:varchar(100);not null" json:"phone_number_id"`
	BusinessAccountID string     `gorm:"type:varchar(100);not null" json:"business_account_id"`
	AccessToken       string     `gorm:"type:text;not null" json:"-"`
	AppID             string     `gorm:"type:varchar(100)" json:"app_id"`
	WebhookToken      string     `gorm:"type:varchar(64)" json:"webhook_token"`
	State             string     `gorm:"type:varchar(20);default:'draft'" json:"state"`
	Operators         []Operator `gorm:"many2many:provider_operators;" json:"operators,omitempty"`

	// Phone number details, refreshed from the Graph API.
	VerifiedName           string `gorm:"type:varchar(255)" json:"verified_name"`
	CodeVerificationStatus string `gorm:"type:varchar(50)" json:"code_verification_status"`
	DisplayPhoneNumber     string `gorm:"type:varchar(50)" json:"display_phone_number"`
	QualityRating          string `gorm:"type:varchar(50)" json:"quality_rating"`
	PlatformType           string `gorm:"type:varchar(50)" json:"platform_type"`
	ThroughputLevel        string `gorm:"type:varchar(50)" json:"throughput_level"`

	// Business profile.
	BusinessAddress     string `gorm:"type:text" json:"business_address"`
	BusinessDescription string `gorm:"type:text" json:"business_description"`
	BusinessVertical    string `gorm:"type:varchar(100)" json:"business_vertical"`
	BusinessAbout       string `gorm:"type:varchar(255)" json:"business_about"`
	BusinessEmail       string `gorm:"type:varchar(255)" json:"business_email"`
	BusinessWebsites    string `gorm:"type:text" json:"business_websites"` // JSON array

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ProviderConfig) TableName() string {
	return "provider_configs"
}

// Operator is a staff member who may send and read WhatsApp conversations.
type Operator struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	Name              string           `gorm:"type:varchar(255);not null" json:"name"`
	Email             string           `gorm:"type:varchar(255)" json:"email"`
	DefaultProviderID *uint            `json:"default_provider_id"`
	AllowedProviders  []ProviderConfig `gorm:"many2many:provider_operators;" json:"-"`
	CreatedAt         time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (Operator) TableName() string {
	return "operators"
}

// Contact is a person reachable over WhatsApp.
type Contact struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(255)" json:"name"`
	Phone            string    `gorm:"type:varchar(50)" json:"phone"`
	Mobile           string    `gorm:"type:varchar(50)" json:"mobile"`
	Email            string    `gorm:"type:varchar(255)" json:"email"`
	Tags             string    `gorm:"type:text" json:"tags"` // Comma separated tags
	NormalizedPhone  *string   `gorm:"type:varchar(50);uniqueIndex" json:"normalized_phone"`
	NormalizedMobile *string   `gorm:"type:varchar(50);index" json:"normalized_mobile"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// BeforeSave keeps the normalized lookup columns in step with Phone and Mobile.
func (c *Contact) BeforeSave(tx *gorm.DB) error {
	c.NormalizedPhone = normalizedOrNil(c.Phone)
	c.NormalizedMobile = normalizedOrNil(c.Mobile)
	return nil
}

// Number returns the phone or the mobile number, phone first.
func (c *Contact) Number() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.Mobile
}

func normalizedOrNil(raw string) *string {
	if raw == "" {
		return nil
	}
	n := phone.Normalize(raw)
	if n == "" {
		return nil
	}
	return &n
}

// Message history statuses
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusReceived  = "received"
	StatusFailed    = "failed"
)

// MessageHistory is the audit log of every WhatsApp message sent or received.
// MessageID stays NULL until the provider returns a wamid, so the
// (message_id, provider_id) unique index only binds known remote ids.
type MessageHistory struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Number           string     `gorm:"type:varchar(50)" json:"number"`
	ContactID        *uint      `gorm:"index" json:"contact_id"`
	ProviderID       uint       `gorm:"not null;uniqueIndex:idx_history_remote" json:"provider_id"`
	OperatorID       *uint      `json:"operator_id"`
	TemplateID       *uint      `json:"template_id"`
	CampaignID       *uint      `gorm:"index" json:"campaign_id"`
	ChatbotID        *uint      `json:"chatbot_id"`
	ScriptID         *uint      `json:"script_id"`
	Message          string     `gorm:"type:text" json:"message"`
	AttachmentName   string     `gorm:"type:varchar(255)" json:"attachment_name"`
	MessageID        *string    `gorm:"type:varchar(255);uniqueIndex:idx_history_remote" json:"message_id"`
	ConversationID   string     `gorm:"type:varchar(255)" json:"conversation_id"`
	ReplyToMessageID string     `gorm:"type:varchar(255)" json:"reply_to_message_id"`
	Status           string     `gorm:"type:varchar(20);default:'sent'" json:"status"`
	Error            string     `gorm:"type:text" json:"error"`
	SendDate         time.Time  `json:"send_date"`
	ReceivedDate     *time.Time `json:"received_date"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MessageHistory) TableName() string {
	return "message_history"
}

// RemoteID turns an optional provider id into the nullable column value.
func RemoteID(id string) *string {
	if id == "" {
		return nil
	}
	return &id
}

// SystemSetting is a key/value pair persisted for runtime settings.
type SystemSetting struct {
	Key       string    `gorm:"primaryKey;type:varchar(100)" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (SystemSetting) TableName() string {
	return "system_settings"
}

// SettingActiveChatbot selects the chatbot that intercepts inbound messages.
const SettingActiveChatbot = "active_chatbot_id"

// All lists every model for auto-migration.
func All() []interface{} {
	return []interface{}{
		&ProviderConfig{},
		&Operator{},
		&Contact{},
		&Template{},
		&TemplateComponent{},
		&TemplateButton{},
		&TemplateButtonApp{},
		&TemplateParameter{},
		&ParameterMapping{},
		&MessageHistory{},
		&MessagingList{},
		&ListContact{},
		&Campaign{},
		&CampaignNote{},
		&Chatbot{},
		&ChatbotScript{},
		&LinkedRecord{},
		&ChatThread{},
		&ThreadMessage{},
		&Reaction{},
		&SystemSetting{},
	}
}

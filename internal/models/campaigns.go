package models

import "time"

// Campaign states. Scheduled means the sweep has picked it up and is sending.
const (
	CampaignDraft     = "draft"
	CampaignQueued    = "queued"
	CampaignScheduled = "scheduled"
	CampaignSent      = "sent"
)

// Recipient sources
const (
	SourceContacts = "contacts"
	SourceList     = "list"
	SourceFilter   = "filter"
)

// Messaging list kinds
const (
	ListKindListContacts = "list_contacts"
	ListKindContacts     = "contacts"
)

type Campaign struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	Name            string          `gorm:"type:varchar(255);not null" json:"name"`
	RecipientSource string          `gorm:"type:varchar(20);default:'contacts'" json:"recipient_source"`
	Contacts        []Contact       `gorm:"many2many:campaign_contacts;" json:"contacts,omitempty"`
	MessagingListID *uint           `json:"messaging_list_id"`
	MessagingList   *MessagingList  `json:"messaging_list,omitempty"`
	Filter          string          `gorm:"type:text" json:"filter"` // JSON array of conditions
	TemplateID      *uint           `json:"template_id"`
	Template        *Template       `json:"template,omitempty"`
	ProviderID      *uint           `json:"provider_id"`
	Provider        *ProviderConfig `json:"provider,omitempty"`
	State           string          `gorm:"type:varchar(20);default:'draft';index" json:"state"`
	ScheduledAt     *time.Time      `json:"scheduled_at"`
	Notes           []CampaignNote  `gorm:"constraint:OnDelete:CASCADE;" json:"notes,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// CampaignNote is one audit entry on a campaign.
type CampaignNote struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CampaignID uint      `gorm:"not null;index" json:"campaign_id"`
	Body       string    `gorm:"type:text" json:"body"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (CampaignNote) TableName() string {
	return "campaign_notes"
}

type MessagingList struct {
	ID           uint          `gorm:"primaryKey" json:"id"`
	Name         string        `gorm:"type:varchar(255);not null" json:"name"`
	Kind         string        `gorm:"type:varchar(20);default:'list_contacts'" json:"kind"`
	ListContacts []ListContact `gorm:"constraint:OnDelete:CASCADE;" json:"list_contacts,omitempty"`
	Contacts     []Contact     `gorm:"many2many:messaging_list_contacts;" json:"contacts,omitempty"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
}

func (MessagingList) TableName() string {
	return "messaging_lists"
}

// ListContact is a bare name and number kept on a list without a Contact.
type ListContact struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	MessagingListID uint   `gorm:"not null;index" json:"messaging_list_id"`
	Name            string `gorm:"type:varchar(255)" json:"name"`
	WhatsAppNumber  string `gorm:"type:varchar(50)" json:"whatsapp_number"`
}

func (ListContact) TableName() string {
	return "list_contacts"
}

package models

import "time"

// Chatbot step types
const (
	StepMessage     = "message"
	StepTemplate    = "template"
	StepInteractive = "interactive"
	StepAction      = "action"
)

// ActionOperators hands the conversation over to the chatbot's operators.
const ActionOperators = "operators"

type Chatbot struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Name       string          `gorm:"type:varchar(255);not null" json:"name"`
	ProviderID uint            `gorm:"not null;index" json:"provider_id"`
	Operators  []Operator      `gorm:"many2many:chatbot_operators;" json:"operators,omitempty"`
	Scripts    []ChatbotScript `gorm:"constraint:OnDelete:CASCADE;" json:"scripts,omitempty"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Chatbot) TableName() string {
	return "chatbots"
}

// ChatbotScript is one trigger/step pair of a chatbot.
type ChatbotScript struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ChatbotID   uint   `gorm:"not null;index" json:"chatbot_id"`
	Sequence    int    `json:"sequence"`
	Trigger     string `gorm:"type:varchar(255)" json:"trigger"`
	StepType    string `gorm:"type:varchar(20);default:'message'" json:"step_type"`
	Response    string `gorm:"type:text" json:"response"`
	TemplateID  *uint  `json:"template_id"`
	ActionModel string `gorm:"type:varchar(100)" json:"action_model"`
}

func (ChatbotScript) TableName() string {
	return "chatbot_scripts"
}

// LinkedRecord is a business record created on behalf of a contact.
type LinkedRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Model     string    `gorm:"type:varchar(100);index" json:"model"`
	ContactID uint      `gorm:"index" json:"contact_id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (LinkedRecord) TableName() string {
	return "linked_records"
}

// Thread kinds
const (
	ThreadChat  = "chat"
	ThreadGroup = "group"
)

// Author kinds of a thread message
const (
	AuthorContact  = "contact"
	AuthorOperator = "operator"
	AuthorBot      = "bot"
	AuthorSystem   = "system"
)

// ChatThread mirrors a WhatsApp conversation for operators.
type ChatThread struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ProviderID uint       `gorm:"not null;index:idx_thread_lookup" json:"provider_id"`
	ContactID  uint       `gorm:"not null;index:idx_thread_lookup" json:"contact_id"`
	Kind       string     `gorm:"type:varchar(10);index:idx_thread_lookup" json:"kind"`
	Name       string     `gorm:"type:varchar(255)" json:"name"`
	Members    []Operator `gorm:"many2many:chat_thread_members;" json:"members,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (ChatThread) TableName() string {
	return "chat_threads"
}

type ThreadMessage struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ThreadID          uint       `gorm:"not null;index" json:"thread_id"`
	AuthorKind        string     `gorm:"type:varchar(10)" json:"author_kind"`
	AuthorID          *uint      `json:"author_id"`
	Body              string     `gorm:"type:text" json:"body"`
	WhatsAppMessageID string     `gorm:"column:whatsapp_message_id;type:varchar(255);index" json:"whatsapp_message_id"`
	ParentID          *uint      `json:"parent_id"`
	AttachmentName    string     `gorm:"type:varchar(255)" json:"attachment_name"`
	Reactions         []Reaction `gorm:"constraint:OnDelete:CASCADE;" json:"reactions,omitempty"`
	Date              time.Time  `json:"date"`
}

func (ThreadMessage) TableName() string {
	return "thread_messages"
}

// Reaction is one contact's emoji on a mirrored message.
type Reaction struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	ThreadMessageID uint      `gorm:"not null;uniqueIndex:idx_reaction_author" json:"thread_message_id"`
	ContactID       uint      `gorm:"not null;uniqueIndex:idx_reaction_author" json:"contact_id"`
	Emoji           string    `gorm:"type:varchar(32)" json:"emoji"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Reaction) TableName() string {
	return "reactions"
}

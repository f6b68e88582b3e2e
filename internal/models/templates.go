package models

import "time"

// Template categories
const (
	CategoryAuthentication = "AUTHENTICATION"
	CategoryMarketing      = "MARKETING"
	CategoryUtility        = "UTILITY"
)

// Template review statuses as reported by Meta
const (
	TemplatePending  = "PENDING"
	TemplateApproved = "APPROVED"
	TemplateRejected = "REJECTED"
	TemplatePaused   = "PAUSED"
)

// Parameter formats
const (
	ParamsPositional = "POSITIONAL"
	ParamsNamed      = "NAMED"
)

// Local submission state
const (
	AddStatusNew   = "new"
	AddStatusAdded = "added"
)

// Component types
const (
	ComponentHeader  = "HEADER"
	ComponentBody    = "BODY"
	ComponentFooter  = "FOOTER"
	ComponentButtons = "BUTTONS"
)

// Header formats
const (
	FormatText     = "TEXT"
	FormatImage    = "IMAGE"
	FormatVideo    = "VIDEO"
	FormatDocument = "DOCUMENT"
	FormatLocation = "LOCATION"
)

// Button types
const (
	ButtonPhoneNumber = "PHONE_NUMBER"
	ButtonURL         = "URL"
	ButtonQuickReply  = "QUICK_REPLY"
	ButtonCopyCode    = "COPY_CODE"
	ButtonMPM         = "MPM"
	ButtonOTP         = "OTP"
	ButtonSPM         = "SPM"
	ButtonCatalog     = "CATALOG"
)

// Template is a message template approved (or pending approval) by Meta.
type Template struct {
	ID              uint                `gorm:"primaryKey" json:"id"`
	Name            string              `gorm:"type:varchar(512);not null" json:"name"`
	RemoteID        string              `gorm:"type:varchar(100);index" json:"remote_id"`
	Language        string              `gorm:"type:varchar(20);default:'en_US'" json:"language"`
	Category        string              `gorm:"type:varchar(20);default:'MARKETING'" json:"category"`
	Status          string              `gorm:"type:varchar(20);default:'PENDING'" json:"status"`
	ParameterFormat string              `gorm:"type:varchar(20);default:'POSITIONAL'" json:"parameter_format"`
	AddStatus       string              `gorm:"type:varchar(10);default:'new'" json:"add_status"`
	ProviderID      uint                `gorm:"not null;index" json:"provider_id"`
	AvailableIn     string              `gorm:"type:varchar(100)" json:"available_in"`
	Components      []TemplateComponent `gorm:"constraint:OnDelete:CASCADE;" json:"components"`
	Mappings        []ParameterMapping  `gorm:"constraint:OnDelete:CASCADE;" json:"mappings"`
	CreatedAt       time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

// Message is the BODY component text.
func (t *Template) Message() string {
	for _, c := range t.Components {
		if c.Type == ComponentBody {
			return c.Text
		}
	}
	return ""
}

// Header returns the HEADER component, if any.
func (t *Template) Header() *TemplateComponent {
	for i := range t.Components {
		if t.Components[i].Type == ComponentHeader {
			return &t.Components[i]
		}
	}
	return nil
}

type TemplateComponent struct {
	ID                        uint                `gorm:"primaryKey" json:"id"`
	TemplateID                uint                `gorm:"not null;index" json:"template_id"`
	Sequence                  int                 `json:"sequence"`
	Type                      string              `gorm:"type:varchar(20)" json:"type"`
	Format                    string              `gorm:"type:varchar(20)" json:"format"`
	Text                      string              `gorm:"type:text" json:"text"`
	Media                     []byte              `json:"-"`
	MediaFilename             string              `gorm:"type:varchar(255)" json:"media_filename"`
	LocationName              string              `gorm:"type:varchar(255)" json:"location_name"`
	LocationAddress           string              `gorm:"type:varchar(255)" json:"location_address"`
	Latitude                  string              `gorm:"type:varchar(50)" json:"latitude"`
	Longitude                 string              `gorm:"type:varchar(50)" json:"longitude"`
	AddSecurityRecommendation bool                `json:"add_security_recommendation"`
	CodeExpirationMinutes     int                 `json:"code_expiration_minutes"`
	Buttons                   []TemplateButton    `gorm:"foreignKey:ComponentID;constraint:OnDelete:CASCADE;" json:"buttons"`
	Parameters                []TemplateParameter `gorm:"foreignKey:ComponentID;constraint:OnDelete:CASCADE;" json:"parameters"`
}

func (TemplateComponent) TableName() string {
	return "template_components"
}

type TemplateButton struct {
	ID           uint                `gorm:"primaryKey" json:"id"`
	ComponentID  uint                `gorm:"not null;index" json:"component_id"`
	Sequence     int                 `json:"sequence"`
	Type         string              `gorm:"type:varchar(20)" json:"type"`
	Text         string              `gorm:"type:varchar(255)" json:"text"`
	PhoneNumber  string              `gorm:"type:varchar(50)" json:"phone_number"`
	URL          string              `gorm:"type:varchar(2000)" json:"url"`
	Example      string              `gorm:"type:text" json:"example"`
	OTPType      string              `gorm:"type:varchar(20)" json:"otp_type"`
	AutofillText string              `gorm:"type:varchar(255)" json:"autofill_text"`
	Apps         []TemplateButtonApp `gorm:"foreignKey:ButtonID;constraint:OnDelete:CASCADE;" json:"apps"`
}

func (TemplateButton) TableName() string {
	return "template_buttons"
}

// TemplateButtonApp identifies a mobile app allowed to autofill an OTP.
type TemplateButtonApp struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	ButtonID      uint   `gorm:"not null;index" json:"button_id"`
	Platform      string `gorm:"type:varchar(10)" json:"platform"` // android or ios
	PackageName   string `gorm:"type:varchar(255)" json:"package_name"`
	SignatureHash string `gorm:"type:varchar(255)" json:"signature_hash"`
	BundleID      string `gorm:"type:varchar(255)" json:"bundle_id"`
}

func (TemplateButtonApp) TableName() string {
	return "template_button_apps"
}

type TemplateParameter struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	ComponentID uint   `gorm:"not null;index" json:"component_id"`
	Name        string `gorm:"type:varchar(100)" json:"name"`
	Example     string `gorm:"type:text" json:"example"`
}

func (TemplateParameter) TableName() string {
	return "template_parameters"
}

// ParameterMapping binds a body placeholder to a record field path.
type ParameterMapping struct {
	ID            uint   `gorm:"primaryKey" json:"id"`
	TemplateID    uint   `gorm:"not null;uniqueIndex:idx_mapping_name" json:"template_id"`
	ParameterName string `gorm:"type:varchar(100);uniqueIndex:idx_mapping_name" json:"parameter_name"`
	Field         string `gorm:"type:varchar(255)" json:"field"`
	Sequence      int    `json:"sequence"`
}

func (ParameterMapping) TableName() string {
	return "parameter_mappings"
}

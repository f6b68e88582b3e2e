package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"whatsapp-suite/internal/apperr"
)

// --- Template Management Methods ---

// RemoteTemplate is a message template as stored by Meta. The same shape,
// minus ID and Status, is posted when creating or editing a template.
type RemoteTemplate struct {
	ID              string            `json:"id,omitempty"`
	Name            string            `json:"name"`
	Language        string            `json:"language"`
	Category        string            `json:"category,omitempty"`
	Status          string            `json:"status,omitempty"`
	ParameterFormat string            `json:"parameter_format,omitempty"`
	Components      []RemoteComponent `json:"components"`
}

type RemoteComponent struct {
	Type                      string            `json:"type"`
	Format                    string            `json:"format,omitempty"`
	Text                      string            `json:"text,omitempty"`
	AddSecurityRecommendation bool              `json:"add_security_recommendation,omitempty"`
	CodeExpirationMinutes     int               `json:"code_expiration_minutes,omitempty"`
	Latitude                  string            `json:"latitude,omitempty"`
	Longitude                 string            `json:"longitude,omitempty"`
	Name                      string            `json:"name,omitempty"`
	Address                   string            `json:"address,omitempty"`
	Buttons                   []RemoteButton    `json:"buttons,omitempty"`
	Example                   *ComponentExample `json:"example,omitempty"`
}

type ComponentExample struct {
	HeaderHandle         []string     `json:"header_handle,omitempty"`
	HeaderText           []string     `json:"header_text,omitempty"`
	BodyText             [][]string   `json:"body_text,omitempty"`
	HeaderTextNamedParam []NamedParam `json:"header_text_named_params,omitempty"`
	BodyTextNamedParams  []NamedParam `json:"body_text_named_params,omitempty"`
}

type NamedParam struct {
	ParamName string `json:"param_name"`
	Example   string `json:"example"`
}

type RemoteButton struct {
	Type          string         `json:"type"`
	Text          string         `json:"text,omitempty"`
	PhoneNumber   string         `json:"phone_number,omitempty"`
	URL           string         `json:"url,omitempty"`
	Example       []string       `json:"example,omitempty"`
	OTPType       string         `json:"otp_type,omitempty"`
	AutofillText  string         `json:"autofill_text,omitempty"`
	SupportedApps []SupportedApp `json:"supported_apps,omitempty"`
}

type SupportedApp struct {
	ID            string `json:"id,omitempty"` // android or ios
	PackageName   string `json:"package_name,omitempty"`
	SignatureHash string `json:"signature_hash,omitempty"`
	BundleID      string `json:"bundle_id,omitempty"`
}

type templatePage struct {
	Data   []RemoteTemplate `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

// GetTemplates lists every template of the business account, following
// the Graph API pagination links.
func (c *Client) GetTemplates(ctx context.Context) ([]RemoteTemplate, error) {
	var all []RemoteTemplate
	next := c.url(c.creds.BusinessAccountID, "message_templates")
	for next != "" {
		resp, err := c.sendRequest(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var page templatePage
		if err := json.Unmarshal(resp, &page); err != nil {
			return nil, apperr.Wrap(apperr.KindRemote, err, "decode templates")
		}
		all = append(all, page.Data...)
		next = page.Paging.Next
	}
	return all, nil
}

// GetTemplate returns the remote template with the given id, or nil when
// Meta does not know it.
func (c *Client) GetTemplate(ctx context.Context, remoteID string) (*RemoteTemplate, error) {
	endpoint := c.url(c.creds.BusinessAccountID, "message_templates") + "?template_id=" + url.QueryEscape(remoteID)
	resp, err := c.sendRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var page templatePage
	if err := json.Unmarshal(resp, &page); err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "decode template")
	}
	if len(page.Data) == 0 {
		return nil, nil
	}
	return &page.Data[0], nil
}

type CreateTemplateResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Category string `json:"category"`
}

func (c *Client) CreateTemplate(ctx context.Context, tpl RemoteTemplate) (*CreateTemplateResponse, error) {
	resp, err := c.sendRequest(ctx, http.MethodPost, c.url(c.creds.BusinessAccountID, "message_templates"), tpl)
	if err != nil {
		return nil, err
	}
	var out CreateTemplateResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "decode create template")
	}
	return &out, nil
}

// UpdateTemplate edits an existing template in place.
func (c *Client) UpdateTemplate(ctx context.Context, remoteID string, tpl RemoteTemplate) error {
	_, err := c.sendRequest(ctx, http.MethodPost, c.url(remoteID), tpl)
	return err
}

func (c *Client) DeleteTemplate(ctx context.Context, name string) error {
	endpoint := c.url(c.creds.BusinessAccountID, "message_templates") + "?name=" + url.QueryEscape(name)
	_, err := c.sendRequest(ctx, http.MethodDelete, endpoint, nil)
	return err
}

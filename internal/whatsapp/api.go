package whatsapp

import (
	"context"
	"net/http"
	"time"

	"whatsapp-suite/internal/models"
)

//go:generate mockgen -destination=mocks/mock_api.go -package=mocks whatsapp-suite/internal/whatsapp API

// API is the subset of the Cloud API the suite relies on. *Client
// implements it; tests use the generated mock.
type API interface {
	SendMessage(ctx context.Context, msg GenericMessage) (*SendResponse, error)
	UploadMedia(ctx context.Context, data []byte, mimeType, filename string) (*MediaResponse, error)
	DeleteMedia(ctx context.Context, mediaID string) error

	GetTemplates(ctx context.Context) ([]RemoteTemplate, error)
	GetTemplate(ctx context.Context, remoteID string) (*RemoteTemplate, error)
	CreateTemplate(ctx context.Context, tpl RemoteTemplate) (*CreateTemplateResponse, error)
	UpdateTemplate(ctx context.Context, remoteID string, tpl RemoteTemplate) error
	DeleteTemplate(ctx context.Context, name string) error

	GetPhoneNumber(ctx context.Context) (*PhoneNumberInfo, error)
	GetBusinessProfile(ctx context.Context) (*BusinessProfile, error)
}

var _ API = (*Client)(nil)

// Factory hands out an API bound to a provider's credentials.
type Factory interface {
	For(provider *models.ProviderConfig) API
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(provider *models.ProviderConfig) API

func (f FactoryFunc) For(provider *models.ProviderConfig) API { return f(provider) }

type httpFactory struct {
	http *http.Client
}

// NewFactory returns a Factory whose clients share one http.Client.
func NewFactory(timeout time.Duration) Factory {
	return &httpFactory{http: &http.Client{Timeout: timeout}}
}

func (f *httpFactory) For(p *models.ProviderConfig) API {
	apiURL := p.APIURL
	if apiURL == "" {
		apiURL = models.DefaultAPIURL
	}
	return NewClient(Credentials{
		APIURL:            apiURL,
		PhoneNumberID:     p.PhoneNumberID,
		BusinessAccountID: p.BusinessAccountID,
		AccessToken:       p.AccessToken,
	}, f.http)
}

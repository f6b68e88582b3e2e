// Package providers manages WhatsApp Business phone number configurations
// and the operators allowed to use them.
package providers

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/whatsapp"
)

type Service struct {
	db      *gorm.DB
	clients whatsapp.Factory
	baseURL string
	log     *zap.Logger
}

func NewService(db *gorm.DB, clients whatsapp.Factory, baseURL string, log *zap.Logger) *Service {
	return &Service{db: db, clients: clients, baseURL: baseURL, log: log.Named("providers")}
}

// Create stores a new provider in draft state with a fresh webhook token.
func (s *Service) Create(ctx context.Context, p *models.ProviderConfig) error {
	if p.Name == "" || p.PhoneNumberID == "" || p.BusinessAccountID == "" || p.AccessToken == "" {
		return apperr.Validation("name, phone number id, business account id and access token are required")
	}
	if p.APIURL == "" {
		p.APIURL = models.DefaultAPIURL
	}
	if p.WebhookToken == "" {
		token, err := generateToken(32)
		if err != nil {
			return err
		}
		p.WebhookToken = token
	}
	p.State = models.ProviderDraft
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Service) Get(ctx context.Context, id uint) (*models.ProviderConfig, error) {
	var p models.ProviderConfig
	err := s.db.WithContext(ctx).Preload("Operators").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("WhatsApp configuration %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) List(ctx context.Context) ([]models.ProviderConfig, error) {
	var out []models.ProviderConfig
	err := s.db.WithContext(ctx).Preload("Operators").Order("id").Find(&out).Error
	return out, err
}

// WebhookURL is the callback address to register in the Meta app dashboard.
func (s *Service) WebhookURL(p *models.ProviderConfig) string {
	return fmt.Sprintf("%s/whatsapp/webhook/%d", s.baseURL, p.ID)
}

// Verify checks the credentials against the Graph API and records the
// outcome in the provider state.
func (s *Service) Verify(ctx context.Context, id uint) (*models.ProviderConfig, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	_, callErr := s.clients.For(p).GetPhoneNumber(ctx)
	state := models.ProviderVerified
	if callErr != nil {
		state = models.ProviderError
	}
	p.State = state
	if err := s.db.WithContext(ctx).Model(p).Update("state", state).Error; err != nil {
		return nil, err
	}
	if callErr != nil {
		s.log.Warn("Provider verification failed", zap.Uint("provider_id", id), zap.Error(callErr))
		return p, apperr.Wrap(apperr.KindRemote, callErr, "Failed to verify configuration")
	}
	s.log.Info("Provider verified", zap.Uint("provider_id", id))
	return p, nil
}

// FetchPhoneDetails refreshes the cached phone number attributes.
func (s *Service) FetchPhoneDetails(ctx context.Context, id uint) (*models.ProviderConfig, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	info, err := s.clients.For(p).GetPhoneNumber(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "Failed to fetch phone number details")
	}

	p.VerifiedName = info.VerifiedName
	p.CodeVerificationStatus = info.CodeVerificationStatus
	p.DisplayPhoneNumber = info.DisplayPhoneNumber
	p.QualityRating = info.QualityRating
	p.PlatformType = info.PlatformType
	p.ThroughputLevel = info.Throughput.Level
	err = s.db.WithContext(ctx).Model(p).Select(
		"VerifiedName", "CodeVerificationStatus", "DisplayPhoneNumber",
		"QualityRating", "PlatformType", "ThroughputLevel",
	).Updates(p).Error
	return p, err
}

func (s *Service) FetchBusinessProfile(ctx context.Context, id uint) (*models.ProviderConfig, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	profile, err := s.clients.For(p).GetBusinessProfile(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "Failed to fetch business profile")
	}

	websites := profile.Websites
	if websites == nil {
		websites = []string{}
	}
	encoded, err := json.Marshal(websites)
	if err != nil {
		return nil, err
	}
	p.BusinessAddress = profile.Address
	p.BusinessDescription = profile.Description
	p.BusinessVertical = profile.Vertical
	p.BusinessAbout = profile.About
	p.BusinessEmail = profile.Email
	p.BusinessWebsites = string(encoded)
	err = s.db.WithContext(ctx).Model(p).Select(
		"BusinessAddress", "BusinessDescription", "BusinessVertical",
		"BusinessAbout", "BusinessEmail", "BusinessWebsites",
	).Updates(p).Error
	return p, err
}

// RegenerateWebhookToken replaces the verify token. The new value must be
// copied into the Meta app dashboard before the next verification.
func (s *Service) RegenerateWebhookToken(ctx context.Context, id uint) (*models.ProviderConfig, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	token, err := generateToken(32)
	if err != nil {
		return nil, err
	}
	p.WebhookToken = token
	if err := s.db.WithContext(ctx).Model(p).Update("webhook_token", token).Error; err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) ResetToDraft(ctx context.Context, id uint) (*models.ProviderConfig, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.State = models.ProviderDraft
	err = s.db.WithContext(ctx).Model(p).Update("state", p.State).Error
	return p, err
}

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func generateToken(n int) (string, error) {
	max := big.NewInt(int64(len(tokenAlphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate webhook token: %w", err)
		}
		buf[i] = tokenAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

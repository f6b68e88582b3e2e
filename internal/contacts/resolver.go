// Package contacts maps WhatsApp numbers onto Contact records.
package contacts

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/phone"
)

type Resolver struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewResolver(db *gorm.DB, log *zap.Logger) *Resolver {
	return &Resolver{db: db, log: log.Named("contacts")}
}

// Find returns the contact whose phone or mobile normalizes to the same
// number as raw, or nil when there is none.
func (r *Resolver) Find(ctx context.Context, raw string) (*models.Contact, error) {
	normalized := phone.Normalize(raw)
	if normalized == "" {
		return nil, nil
	}

	var contact models.Contact
	err := r.db.WithContext(ctx).
		Where("LOWER(normalized_mobile) = LOWER(?) OR LOWER(normalized_phone) = LOWER(?)", normalized, normalized).
		Order("id").
		First(&contact).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// Resolve finds the contact for raw or creates one named after the
// WhatsApp profile. Concurrent first messages from the same number end up
// on a single contact thanks to the unique normalized phone index.
func (r *Resolver) Resolve(ctx context.Context, raw, profileName string) (*models.Contact, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	contact, err := r.Find(ctx, raw)
	if err != nil || contact != nil {
		return contact, err
	}

	name := strings.TrimSpace(profileName)
	if name == "" {
		name = raw
	}
	contact = &models.Contact{Name: name, Phone: raw, Mobile: raw}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "normalized_phone"}}, DoNothing: true}).
		Create(contact)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the race to another request creating the same number.
		return r.Find(ctx, raw)
	}
	r.log.Info("Created contact from WhatsApp", zap.Uint("contact_id", contact.ID), zap.String("number", raw))
	return contact, nil
}

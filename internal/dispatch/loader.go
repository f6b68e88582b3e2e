package dispatch

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/templates"
)

// ContactLoader is the built-in RecordLoader. It knows contacts only; host
// applications plug in their own loader for other models.
type ContactLoader struct {
	db *gorm.DB
}

func NewContactLoader(db *gorm.DB) *ContactLoader {
	return &ContactLoader{db: db}
}

func (l *ContactLoader) Load(ctx context.Context, model string, id uint) (interface{}, error) {
	if model != templates.ModelContacts {
		return nil, apperr.Config("No loader for model %s.", model)
	}
	var c models.Contact
	err := l.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Config("No record found in model %s with ID %d.", model, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

package contacts

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
)

func (r *Resolver) Get(ctx context.Context, id uint) (*models.Contact, error) {
	var c models.Contact
	err := r.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("contact %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// List returns contacts whose name or numbers contain search.
func (r *Resolver) List(ctx context.Context, search string, limit int) ([]models.Contact, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := r.db.WithContext(ctx).Model(&models.Contact{})
	if s := strings.TrimSpace(search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(name) LIKE ? OR phone LIKE ? OR mobile LIKE ?", like, like, like)
	}
	var out []models.Contact
	err := q.Order("name, id").Limit(limit).Find(&out).Error
	return out, err
}

// Save creates or updates a contact. Two contacts may not share a phone.
func (r *Resolver) Save(ctx context.Context, c *models.Contact) error {
	if strings.TrimSpace(c.Name) == "" {
		return apperr.Validation("name is required")
	}
	if c.Phone != "" {
		existing, err := r.Find(ctx, c.Phone)
		if err != nil {
			return err
		}
		if existing != nil && existing.ID != c.ID {
			return apperr.Validation("number %s already belongs to contact %d", c.Phone, existing.ID)
		}
	}
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *Resolver) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&models.Contact{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("contact %d not found", id)
	}
	return nil
}

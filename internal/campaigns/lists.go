package campaigns

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
)

// Lists manages messaging lists used as campaign recipients.
type Lists struct {
	db *gorm.DB
}

func NewLists(db *gorm.DB) *Lists {
	return &Lists{db: db}
}

func (l *Lists) Create(ctx context.Context, list *models.MessagingList) error {
	if list.Name == "" {
		return apperr.Validation("name is required")
	}
	if list.Kind == "" {
		list.Kind = models.ListKindListContacts
	}
	if list.Kind != models.ListKindListContacts && list.Kind != models.ListKindContacts {
		return apperr.Validation("unknown list kind %q", list.Kind)
	}
	return l.db.WithContext(ctx).Create(list).Error
}

func (l *Lists) Get(ctx context.Context, id uint) (*models.MessagingList, error) {
	var list models.MessagingList
	err := l.db.WithContext(ctx).Preload("ListContacts").Preload("Contacts").First(&list, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("messaging list %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &list, nil
}

func (l *Lists) List(ctx context.Context) ([]models.MessagingList, error) {
	var out []models.MessagingList
	err := l.db.WithContext(ctx).Order("name, id").Find(&out).Error
	return out, err
}

// AddEntries appends bare name/number entries to a list.
func (l *Lists) AddEntries(ctx context.Context, id uint, entries []models.ListContact) error {
	if _, err := l.Get(ctx, id); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		entries[i].ID = 0
		entries[i].MessagingListID = id
	}
	return l.db.WithContext(ctx).Create(&entries).Error
}

// SetContacts replaces the contacts of a contacts-kind list.
func (l *Lists) SetContacts(ctx context.Context, id uint, contactIDs []uint) error {
	list, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	var contacts []models.Contact
	if len(contactIDs) > 0 {
		if err := l.db.WithContext(ctx).Find(&contacts, contactIDs).Error; err != nil {
			return err
		}
	}
	return l.db.WithContext(ctx).Model(list).Association("Contacts").Replace(contacts)
}

func (l *Lists) Delete(ctx context.Context, id uint) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("messaging_list_id = ?", id).Delete(&models.ListContact{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.MessagingList{ID: id}).Association("Contacts").Clear(); err != nil {
			return err
		}
		res := tx.Delete(&models.MessagingList{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("messaging list %d not found", id)
		}
		return nil
	})
}

package chatbot

import (
	"context"
	"errors"
	"strconv"

	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/database"
	"whatsapp-suite/internal/models"
)

// Store persists chatbots, their scripts and the active chatbot setting.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Operators").
		Preload("Scripts", func(db *gorm.DB) *gorm.DB { return db.Order("sequence, id") })
}

func (s *Store) Get(ctx context.Context, id uint) (*models.Chatbot, error) {
	var bot models.Chatbot
	err := s.preloaded(ctx).First(&bot, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("chatbot %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &bot, nil
}

func (s *Store) List(ctx context.Context) ([]models.Chatbot, error) {
	var bots []models.Chatbot
	if err := s.preloaded(ctx).Order("name, id").Find(&bots).Error; err != nil {
		return nil, err
	}
	return bots, nil
}

// Create stores bot with its scripts and operators.
func (s *Store) Create(ctx context.Context, bot *models.Chatbot) error {
	if bot.Name == "" {
		return apperr.Validation("name is required")
	}
	if bot.ProviderID == 0 {
		return apperr.Validation("provider_id is required")
	}
	for _, sc := range bot.Scripts {
		if err := validateScript(&sc); err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).Create(bot).Error
}

// Update replaces the name, provider and operators of a chatbot. Scripts are
// managed on their own.
func (s *Store) Update(ctx context.Context, bot *models.Chatbot) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(bot).Updates(map[string]interface{}{
			"name":        bot.Name,
			"provider_id": bot.ProviderID,
		}).Error; err != nil {
			return err
		}
		return tx.Model(bot).Association("Operators").Replace(bot.Operators)
	})
}

// Delete removes the chatbot and clears the active setting when it pointed
// at it.
func (s *Store) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chatbot_id = ?", id).Delete(&models.ChatbotScript{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Chatbot{ID: id}).Association("Operators").Clear(); err != nil {
			return err
		}
		res := tx.Delete(&models.Chatbot{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("chatbot %d not found", id)
		}
		active, err := database.GetSetting(tx, models.SettingActiveChatbot)
		if err != nil {
			return err
		}
		if active == strconv.FormatUint(uint64(id), 10) {
			return database.SetSetting(tx, models.SettingActiveChatbot, "")
		}
		return nil
	})
}

func validateScript(sc *models.ChatbotScript) error {
	switch sc.StepType {
	case "", models.StepMessage, models.StepTemplate, models.StepInteractive, models.StepAction:
	default:
		return apperr.Validation("unknown step type %q", sc.StepType)
	}
	if sc.StepType == models.StepTemplate && sc.TemplateID == nil {
		return apperr.Validation("template step %q needs a template", sc.Trigger)
	}
	return nil
}

func (s *Store) AddScript(ctx context.Context, sc *models.ChatbotScript) error {
	if err := validateScript(sc); err != nil {
		return err
	}
	if _, err := s.Get(ctx, sc.ChatbotID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(sc).Error
}

func (s *Store) UpdateScript(ctx context.Context, sc *models.ChatbotScript) error {
	if err := validateScript(sc); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.ChatbotScript{}).Where("id = ?", sc.ID).Updates(map[string]interface{}{
		"sequence":     sc.Sequence,
		"trigger":      sc.Trigger,
		"step_type":    sc.StepType,
		"response":     sc.Response,
		"template_id":  sc.TemplateID,
		"action_model": sc.ActionModel,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("script %d not found", sc.ID)
	}
	return nil
}

func (s *Store) DeleteScript(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.ChatbotScript{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("script %d not found", id)
	}
	return nil
}

// Active returns the chatbot that intercepts inbound messages, or nil when
// none is selected.
func (s *Store) Active(ctx context.Context) (*models.Chatbot, error) {
	raw, err := database.GetSetting(s.db.WithContext(ctx), models.SettingActiveChatbot)
	if err != nil || raw == "" {
		return nil, err
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, apperr.Config("invalid active chatbot setting %q", raw)
	}
	bot, err := s.Get(ctx, uint(id))
	if apperr.Is(err, apperr.KindNotFound) {
		return nil, nil
	}
	return bot, err
}

// SetActive selects the active chatbot. Zero clears the selection.
func (s *Store) SetActive(ctx context.Context, id uint) error {
	if id == 0 {
		return database.SetSetting(s.db.WithContext(ctx), models.SettingActiveChatbot, "")
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return database.SetSetting(s.db.WithContext(ctx), models.SettingActiveChatbot, strconv.FormatUint(uint64(id), 10))
}

// DBRecordCreator stores action records as LinkedRecord rows.
type DBRecordCreator struct {
	db *gorm.DB
}

func NewDBRecordCreator(db *gorm.DB) *DBRecordCreator {
	return &DBRecordCreator{db: db}
}

func (c *DBRecordCreator) Create(ctx context.Context, model string, contact *models.Contact, name string) (*models.LinkedRecord, error) {
	rec := &models.LinkedRecord{Model: model, ContactID: contact.ID, Name: name}
	if err := c.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

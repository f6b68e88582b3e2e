package providers

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
)

// operatorsOf selects operators allowed on the provider or defaulting to it.
func (s *Service) operatorsOf(ctx context.Context, providerID uint) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.Operator{}).
		Where("id IN (?) OR default_provider_id = ?",
			s.db.Table("provider_operators").Select("operator_id").Where("provider_config_id = ?", providerID),
			providerID)
}

// Operators lists everyone who may work on the provider's conversations.
func (s *Service) Operators(ctx context.Context, providerID uint) ([]models.Operator, error) {
	var ops []models.Operator
	err := s.operatorsOf(ctx, providerID).Order("id").Find(&ops).Error
	return ops, err
}

// AuthorizedOperator is the operator inbound messages are attributed to:
// the lowest-id operator linked to the provider. Returns nil when none is.
func (s *Service) AuthorizedOperator(ctx context.Context, providerID uint) (*models.Operator, error) {
	var op models.Operator
	err := s.operatorsOf(ctx, providerID).Order("id").First(&op).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &op, nil
}

// CheckOperator fails when the operator may not send through the provider.
func (s *Service) CheckOperator(ctx context.Context, providerID, operatorID uint) error {
	var count int64
	err := s.operatorsOf(ctx, providerID).Where("id = ?", operatorID).Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return apperr.Config("Selected configuration is not allowed for this user.")
	}
	return nil
}

// AssignOperators replaces the operator list of a provider.
func (s *Service) AssignOperators(ctx context.Context, providerID uint, operatorIDs []uint) error {
	p, err := s.Get(ctx, providerID)
	if err != nil {
		return err
	}
	var ops []models.Operator
	if len(operatorIDs) > 0 {
		if err := s.db.WithContext(ctx).Find(&ops, operatorIDs).Error; err != nil {
			return err
		}
	}
	return s.db.WithContext(ctx).Model(p).Association("Operators").Replace(ops)
}

func (s *Service) CreateOperator(ctx context.Context, op *models.Operator) error {
	if op.Name == "" {
		return apperr.Validation("operator name is required")
	}
	return s.db.WithContext(ctx).Create(op).Error
}

func (s *Service) ListOperators(ctx context.Context) ([]models.Operator, error) {
	var ops []models.Operator
	err := s.db.WithContext(ctx).Order("id").Find(&ops).Error
	return ops, err
}

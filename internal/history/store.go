// Package history keeps the message audit log.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-suite/internal/models"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

var remoteKey = []clause.Column{{Name: "message_id"}, {Name: "provider_id"}}

// Append inserts row as a new history entry.
func (s *Store) Append(ctx context.Context, row *models.MessageHistory) error {
	if row.SendDate.IsZero() {
		row.SendDate = time.Now()
	}
	return s.db.WithContext(ctx).Create(row).Error
}

// outboundMerge fills the columns a status callback cannot know while
// keeping the status, date and any values the callback already stored.
var outboundMerge = func() clause.Set {
	set := clause.Set{}
	for _, col := range []string{"contact_id", "operator_id", "template_id", "campaign_id", "chatbot_id", "script_id"} {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr("COALESCE(excluded." + col + ", message_history." + col + ")"),
		})
	}
	for _, col := range []string{"number", "message", "attachment_name", "conversation_id", "reply_to_message_id", "error"} {
		set = append(set, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr("CASE WHEN excluded." + col + " <> '' THEN excluded." + col + " ELSE message_history." + col + " END"),
		})
	}
	return set
}()

// RecordOutbound stores the row of a sent message. A status callback may
// have created the (message id, provider) row first; the send details are
// then merged into it and the callback's status is kept. row is reloaded
// with the stored values.
func (s *Store) RecordOutbound(ctx context.Context, row *models.MessageHistory) error {
	if row.MessageID == nil {
		return s.Append(ctx, row)
	}
	if row.SendDate.IsZero() {
		row.SendDate = time.Now()
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: remoteKey, DoUpdates: outboundMerge}).
		Create(row).Error
	if err != nil {
		return err
	}
	stored, err := s.FindByRemoteID(ctx, row.ProviderID, *row.MessageID)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("message %s was recorded but not found", *row.MessageID)
	}
	*row = *stored
	return nil
}

// RecordInbound stores an inbound message once per (message id, provider).
// A replayed webhook leaves the first row untouched and loads it into row.
// The returned bool reports whether row is new.
func (s *Store) RecordInbound(ctx context.Context, row *models.MessageHistory) (bool, error) {
	if row.SendDate.IsZero() {
		row.SendDate = time.Now()
	}
	if row.MessageID == nil {
		return true, s.db.WithContext(ctx).Create(row).Error
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: remoteKey, DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	existing, err := s.FindByRemoteID(ctx, row.ProviderID, *row.MessageID)
	if err != nil {
		return false, err
	}
	if existing == nil {
		return false, fmt.Errorf("message %s conflicted but was not found", *row.MessageID)
	}
	*row = *existing
	return false, nil
}

// StatusUpdate is a delivery report for an outbound message.
type StatusUpdate struct {
	ProviderID     uint
	MessageID      string
	Status         string
	ConversationID string
	Error          string
	At             time.Time
	// Used only when no row exists yet for MessageID.
	Number     string
	ContactID  *uint
	OperatorID *uint
}

// ApplyStatus moves the row identified by (MessageID, ProviderID) to the
// reported status, creating it when the message was sent from elsewhere.
func (s *Store) ApplyStatus(ctx context.Context, u StatusUpdate) (*models.MessageHistory, error) {
	if u.At.IsZero() {
		u.At = time.Now()
	}
	var out *models.MessageHistory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.MessageHistory
		err := tx.Where("message_id = ? AND provider_id = ?", u.MessageID, u.ProviderID).First(&row).Error
		switch {
		case err == nil:
			updates := map[string]interface{}{
				"status":    u.Status,
				"send_date": u.At,
			}
			if u.Status == models.StatusDelivered && u.ConversationID != "" {
				updates["conversation_id"] = u.ConversationID
			}
			if u.Error != "" {
				updates["error"] = u.Error
			}
			if err := tx.Model(&row).Updates(updates).Error; err != nil {
				return err
			}
			out = &row
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			row = models.MessageHistory{
				Number:     u.Number,
				ContactID:  u.ContactID,
				ProviderID: u.ProviderID,
				OperatorID: u.OperatorID,
				MessageID:  models.RemoteID(u.MessageID),
				Status:     u.Status,
				Error:      u.Error,
				SendDate:   u.At,
			}
			if u.Status == models.StatusDelivered {
				row.ConversationID = u.ConversationID
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   remoteKey,
				DoUpdates: clause.AssignmentColumns([]string{"status", "send_date", "updated_at"}),
			}).Create(&row).Error; err != nil {
				return err
			}
			out = &row
			return nil

		default:
			return err
		}
	})
	return out, err
}

// Stamp links an inbound row to the chatbot script that answered it.
func (s *Store) Stamp(ctx context.Context, rowID, chatbotID, scriptID uint) error {
	return s.db.WithContext(ctx).Model(&models.MessageHistory{}).
		Where("id = ?", rowID).
		Updates(map[string]interface{}{"chatbot_id": chatbotID, "script_id": scriptID}).Error
}

// FindByRemoteID returns the row of a provider message, or nil when the
// wamid is unknown.
func (s *Store) FindByRemoteID(ctx context.Context, providerID uint, messageID string) (*models.MessageHistory, error) {
	var row models.MessageHistory
	err := s.db.WithContext(ctx).
		Where("message_id = ? AND provider_id = ?", messageID, providerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Filter narrows List. Zero values are ignored.
type Filter struct {
	ProviderID uint
	ContactID  uint
	CampaignID uint
	Status     string
	Limit      int
	Offset     int
}

func (s *Store) List(ctx context.Context, f Filter) ([]models.MessageHistory, error) {
	q := s.db.WithContext(ctx).Model(&models.MessageHistory{})
	if f.ProviderID != 0 {
		q = q.Where("provider_id = ?", f.ProviderID)
	}
	if f.ContactID != 0 {
		q = q.Where("contact_id = ?", f.ContactID)
	}
	if f.CampaignID != 0 {
		q = q.Where("campaign_id = ?", f.CampaignID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var rows []models.MessageHistory
	err := q.Order("send_date DESC, id DESC").Limit(limit).Offset(f.Offset).Find(&rows).Error
	return rows, err
}

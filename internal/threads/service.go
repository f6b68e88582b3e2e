// Package threads mirrors WhatsApp conversations into operator chat threads.
package threads

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/ws"
)

type Service struct {
	db  *gorm.DB
	pub ws.Publisher
	log *zap.Logger
}

func NewService(db *gorm.DB, pub ws.Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = ws.Discard{}
	}
	return &Service{db: db, pub: pub, log: log.Named("threads")}
}

// ChatThread returns the 1:1 thread between the operator and the contact on
// the provider, creating it on first contact.
func (s *Service) ChatThread(ctx context.Context, providerID uint, contact *models.Contact, operator *models.Operator) (*models.ChatThread, error) {
	var thread models.ChatThread
	q := s.db.WithContext(ctx).Preload("Members").
		Where("provider_id = ? AND contact_id = ? AND kind = ?", providerID, contact.ID, models.ThreadChat)
	if operator != nil {
		q = q.Where("id IN (?)", s.db.Table("chat_thread_members").Select("chat_thread_id").Where("operator_id = ?", operator.ID))
	}
	err := q.Order("id").First(&thread).Error
	if err == nil {
		return &thread, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	thread = models.ChatThread{
		ProviderID: providerID,
		ContactID:  contact.ID,
		Kind:       models.ThreadChat,
		Name:       contact.Name,
	}
	if operator != nil {
		thread.Name = fmt.Sprintf("%s - %s", operator.Name, contact.Name)
		thread.Members = []models.Operator{*operator}
	}
	if err := s.db.WithContext(ctx).Create(&thread).Error; err != nil {
		return nil, err
	}
	s.log.Info("Chat thread created", zap.Uint("thread_id", thread.ID), zap.Uint("contact_id", contact.ID))
	return &thread, nil
}

// GroupThread returns the shared thread of the contact on the provider with
// every given operator as a member. Operators missing from a reused thread
// are added.
func (s *Service) GroupThread(ctx context.Context, providerID uint, contact *models.Contact, operators []models.Operator) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := s.db.WithContext(ctx).Preload("Members").
		Where("provider_id = ? AND contact_id = ? AND kind = ?", providerID, contact.ID, models.ThreadGroup).
		Order("id").First(&thread).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		thread = models.ChatThread{
			ProviderID: providerID,
			ContactID:  contact.ID,
			Kind:       models.ThreadGroup,
			Name:       "WhatsApp Group - " + contact.Name,
			Members:    operators,
		}
		if err := s.db.WithContext(ctx).Create(&thread).Error; err != nil {
			return nil, err
		}
		return &thread, nil
	case err != nil:
		return nil, err
	}

	if err := s.AddMembers(ctx, &thread, operators); err != nil {
		return nil, err
	}
	return &thread, nil
}

// AddMembers adds the operators not yet in the thread.
func (s *Service) AddMembers(ctx context.Context, thread *models.ChatThread, operators []models.Operator) error {
	present := make(map[uint]bool, len(thread.Members))
	for _, m := range thread.Members {
		present[m.ID] = true
	}
	var missing []models.Operator
	for _, op := range operators {
		if !present[op.ID] {
			missing = append(missing, op)
			present[op.ID] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Model(thread).Association("Members").Append(missing); err != nil {
		return err
	}
	s.log.Debug("Thread members added", zap.Uint("thread_id", thread.ID), zap.Int("count", len(missing)))
	return nil
}

// Post is a message to mirror into a thread.
type Post struct {
	AuthorKind        string
	AuthorID          *uint
	Body              string
	WhatsAppMessageID string
	// ReplyTo is the wamid the message answers; resolved to ParentID when
	// that message is mirrored in the same thread.
	ReplyTo        string
	AttachmentName string
	Date           time.Time
}

// Post appends a message to the thread and pushes it to live consoles.
func (s *Service) Post(ctx context.Context, thread *models.ChatThread, p Post) (*models.ThreadMessage, error) {
	msg := models.ThreadMessage{
		ThreadID:          thread.ID,
		AuthorKind:        p.AuthorKind,
		AuthorID:          p.AuthorID,
		Body:              p.Body,
		WhatsAppMessageID: p.WhatsAppMessageID,
		AttachmentName:    p.AttachmentName,
		Date:              p.Date,
	}
	if msg.Date.IsZero() {
		msg.Date = time.Now()
	}
	if p.ReplyTo != "" {
		var parent models.ThreadMessage
		err := s.db.WithContext(ctx).
			Where("thread_id = ? AND whatsapp_message_id = ?", thread.ID, p.ReplyTo).
			Order("id").First(&parent).Error
		if err == nil {
			msg.ParentID = &parent.ID
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	s.pub.Publish(ws.EventThreadMessage, msg)
	return &msg, nil
}

// React sets or clears the contact's reaction on the mirrored message with
// the given wamid. An empty emoji removes the reaction. Returns nil when no
// message of the provider carries that wamid.
func (s *Service) React(ctx context.Context, providerID uint, wamid string, contactID uint, emoji string) (*models.ThreadMessage, error) {
	var msg models.ThreadMessage
	err := s.db.WithContext(ctx).
		Joins("JOIN chat_threads ON chat_threads.id = thread_messages.thread_id").
		Where("chat_threads.provider_id = ? AND thread_messages.whatsapp_message_id = ?", providerID, wamid).
		Order("thread_messages.id").First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if emoji == "" {
		err = s.db.WithContext(ctx).
			Where("thread_message_id = ? AND contact_id = ?", msg.ID, contactID).
			Delete(&models.Reaction{}).Error
	} else {
		err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "thread_message_id"}, {Name: "contact_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"emoji"}),
		}).Create(&models.Reaction{ThreadMessageID: msg.ID, ContactID: contactID, Emoji: emoji}).Error
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Preload("Reactions").First(&msg, msg.ID).Error; err != nil {
		return nil, err
	}
	s.pub.Publish(ws.EventReaction, msg)
	return &msg, nil
}

func (s *Service) Get(ctx context.Context, id uint) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := s.db.WithContext(ctx).Preload("Members").First(&thread, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("thread %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

// List returns the threads of a provider, newest first. Zero lists all.
func (s *Service) List(ctx context.Context, providerID uint) ([]models.ChatThread, error) {
	q := s.db.WithContext(ctx).Preload("Members")
	if providerID != 0 {
		q = q.Where("provider_id = ?", providerID)
	}
	var out []models.ChatThread
	err := q.Order("id DESC").Find(&out).Error
	return out, err
}

func (s *Service) Messages(ctx context.Context, threadID uint) ([]models.ThreadMessage, error) {
	var out []models.ThreadMessage
	err := s.db.WithContext(ctx).Preload("Reactions").
		Where("thread_id = ?", threadID).
		Order("date, id").Find(&out).Error
	return out, err
}

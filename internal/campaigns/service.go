// Package campaigns batch-sends templates to recipient sets on a schedule.
package campaigns

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/contacts"
	"whatsapp-suite/internal/dispatch"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/templates"
)

// Sender delivers one template message and logs its history row.
type Sender interface {
	Send(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

type Service struct {
	db       *gorm.DB
	sender   Sender
	registry *templates.Registry
	contacts *contacts.Resolver
	log      *zap.Logger
}

func NewService(db *gorm.DB, sender Sender, registry *templates.Registry, resolver *contacts.Resolver, log *zap.Logger) *Service {
	return &Service{
		db:       db,
		sender:   sender,
		registry: registry,
		contacts: resolver,
		log:      log.Named("campaigns"),
	}
}

func (s *Service) Create(ctx context.Context, c *models.Campaign) error {
	if c.Name == "" {
		return apperr.Validation("name is required")
	}
	if c.RecipientSource == "" {
		c.RecipientSource = models.SourceContacts
	}
	switch c.RecipientSource {
	case models.SourceContacts, models.SourceList, models.SourceFilter:
	default:
		return apperr.Validation("unknown recipient source %q", c.RecipientSource)
	}
	if c.RecipientSource == models.SourceFilter {
		if _, err := parseFilter(c.Filter, s.registry); err != nil {
			return err
		}
	}
	c.State = models.CampaignDraft
	c.ScheduledAt = nil
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Campaign, error) {
	var c models.Campaign
	err := s.db.WithContext(ctx).
		Preload("Contacts").
		Preload("Notes", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("campaign %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) List(ctx context.Context) ([]models.Campaign, error) {
	var out []models.Campaign
	err := s.db.WithContext(ctx).Order("id DESC").Find(&out).Error
	return out, err
}

func (s *Service) Delete(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&models.CampaignNote{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Campaign{ID: id}).Association("Contacts").Clear(); err != nil {
			return err
		}
		res := tx.Delete(&models.Campaign{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("campaign %d not found", id)
		}
		return nil
	})
}

// checkReady rejects campaigns that cannot be sent.
func (s *Service) checkReady(c *models.Campaign) error {
	if c.ProviderID == nil || c.TemplateID == nil {
		return apperr.Config("Please set a provider, template, and recipients before sending.")
	}
	switch c.RecipientSource {
	case models.SourceList:
		if c.MessagingListID == nil {
			return apperr.Config("Please select a messaging list.")
		}
	case models.SourceFilter:
		if _, err := parseFilter(c.Filter, s.registry); err != nil {
			return err
		}
	default:
		if len(c.Contacts) == 0 {
			return apperr.Config("Please select recipients.")
		}
	}
	return nil
}

func (s *Service) setState(ctx context.Context, c *models.Campaign, state string, at *time.Time) error {
	c.State = state
	c.ScheduledAt = at
	return s.db.WithContext(ctx).Model(c).Updates(map[string]interface{}{
		"state":        state,
		"scheduled_at": at,
	}).Error
}

// Queue hands the campaign to the next sweep.
func (s *Service) Queue(ctx context.Context, id uint) (*models.Campaign, error) {
	return s.enqueue(ctx, id, nil)
}

// Schedule queues the campaign for the first sweep at or after at.
func (s *Service) Schedule(ctx context.Context, id uint, at time.Time) (*models.Campaign, error) {
	if at.IsZero() {
		return nil, apperr.Validation("scheduled time is required")
	}
	return s.enqueue(ctx, id, &at)
}

func (s *Service) enqueue(ctx context.Context, id uint, at *time.Time) (*models.Campaign, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.State == models.CampaignScheduled || c.State == models.CampaignSent {
		return nil, apperr.Config("Campaign %s is already %s.", c.Name, c.State)
	}
	if err := s.checkReady(c); err != nil {
		return nil, err
	}
	if err := s.setState(ctx, c, models.CampaignQueued, at); err != nil {
		return nil, err
	}
	s.log.Info("Campaign queued", zap.Uint("campaign_id", c.ID), zap.Timep("scheduled_at", at))
	return c, nil
}

// Cancel moves the campaign back to draft.
func (s *Service) Cancel(ctx context.Context, id uint) (*models.Campaign, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.setState(ctx, c, models.CampaignDraft, nil); err != nil {
		return nil, err
	}
	s.log.Info("Campaign cancelled", zap.Uint("campaign_id", c.ID))
	return c, nil
}

func (s *Service) AddNote(ctx context.Context, campaignID uint, body string) error {
	return s.db.WithContext(ctx).Create(&models.CampaignNote{CampaignID: campaignID, Body: body}).Error
}

// staleClaim is how long a scheduled campaign may go without progress before
// a sweep assumes its sender died and queues it again.
const staleClaim = time.Hour

// recoverStale puts campaigns whose sweep stopped mid-send back in the queue.
// Recipients reached before the interruption are sent to again.
func (s *Service) recoverStale(ctx context.Context) error {
	cutoff := time.Now().Add(-staleClaim)
	var stale []models.Campaign
	err := s.db.WithContext(ctx).
		Where("state = ? AND updated_at < ?", models.CampaignScheduled, cutoff).
		Find(&stale).Error
	if err != nil {
		return err
	}
	for i := range stale {
		c := &stale[i]
		res := s.db.WithContext(ctx).Model(&models.Campaign{}).
			Where("id = ? AND state = ? AND updated_at < ?", c.ID, models.CampaignScheduled, cutoff).
			Update("state", models.CampaignQueued)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		s.log.Warn("Requeued interrupted campaign", zap.Uint("campaign_id", c.ID), zap.Time("last_progress", c.UpdatedAt))
		if err := s.AddNote(ctx, c.ID, "Campaign requeued after an interrupted send."); err != nil {
			return err
		}
	}
	return nil
}

// Sweep sends every due queued campaign and returns how many it processed.
// A campaign is claimed by flipping it to scheduled, so concurrent sweeps
// never send the same campaign twice. Claims that made no progress for
// staleClaim are released first.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	if err := s.recoverStale(ctx); err != nil {
		return 0, err
	}
	var due []models.Campaign
	err := s.db.WithContext(ctx).
		Where("state = ? AND (scheduled_at IS NULL OR scheduled_at <= ?)", models.CampaignQueued, time.Now()).
		Order("id").Find(&due).Error
	if err != nil {
		return 0, err
	}

	processed := 0
	for i := range due {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		c := &due[i]
		res := s.db.WithContext(ctx).Model(&models.Campaign{}).
			Where("id = ? AND state = ?", c.ID, models.CampaignQueued).
			Update("state", models.CampaignScheduled)
		if res.Error != nil {
			return processed, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		processed++

		log := s.log.With(zap.Uint("campaign_id", c.ID), zap.String("campaign", c.Name))
		sent, err := s.send(ctx, c.ID)
		if err != nil {
			log.Error("Failed to send campaign", zap.Error(err))
			if err := s.setState(ctx, c, models.CampaignDraft, nil); err != nil {
				return processed, err
			}
			if err := s.AddNote(ctx, c.ID, fmt.Sprintf("Failed to send campaign: %s", err)); err != nil {
				return processed, err
			}
			continue
		}
		if err := s.setState(ctx, c, models.CampaignSent, nil); err != nil {
			return processed, err
		}
		log.Info("Campaign sent", zap.Int("recipients", sent))
	}
	return processed, nil
}

// send delivers the campaign template to every recipient. Recipient
// failures are recorded in history and do not fail the campaign.
func (s *Service) send(ctx context.Context, id uint) (int, error) {
	var c models.Campaign
	err := s.db.WithContext(ctx).Preload("Contacts").Preload("Template").Preload("Provider").First(&c, id).Error
	if err != nil {
		return 0, err
	}
	if c.Provider == nil || c.Template == nil {
		return 0, apperr.Config("Missing provider or template.")
	}

	recipients, err := s.Recipients(ctx, &c)
	if err != nil {
		return 0, err
	}
	if len(recipients) == 0 {
		return 0, apperr.Config("No recipients selected.")
	}

	attempted := 0
	for _, r := range recipients {
		if r.Number == "" {
			s.log.Warn("Recipient has no phone number", zap.Uint("campaign_id", c.ID), zap.String("recipient", r.Name))
			continue
		}
		if err := ctx.Err(); err != nil {
			return attempted, err
		}
		req := dispatch.Request{
			ProviderID: c.Provider.ID,
			TemplateID: c.Template.ID,
			CampaignID: c.ID,
			Number:     r.Number,
		}
		if r.Contact != nil {
			req.ContactID = r.Contact.ID
			req.Record = &dispatch.Record{Model: templates.ModelContacts, ID: r.Contact.ID, Value: r.Contact}
		}
		attempted++
		if _, err := s.sender.Send(ctx, req); err != nil {
			s.log.Warn("Campaign message failed", zap.Uint("campaign_id", c.ID), zap.String("number", r.Number), zap.Error(err))
		}
		// Keeps the claim fresh so long runs are not taken for stale ones.
		err := s.db.WithContext(ctx).Model(&models.Campaign{}).Where("id = ?", c.ID).
			Update("updated_at", time.Now()).Error
		if err != nil {
			return attempted, err
		}
	}
	return attempted, nil
}

// Recipient is one resolved campaign target.
type Recipient struct {
	Name    string
	Number  string
	Contact *models.Contact
}

// Recipients resolves the recipient set of c from its source.
func (s *Service) Recipients(ctx context.Context, c *models.Campaign) ([]Recipient, error) {
	switch c.RecipientSource {
	case models.SourceList:
		if c.MessagingListID == nil {
			return nil, apperr.Config("Please select a messaging list.")
		}
		return s.listRecipients(ctx, *c.MessagingListID)
	case models.SourceFilter:
		return s.filterRecipients(ctx, c.Filter)
	}
	out := make([]Recipient, 0, len(c.Contacts))
	for i := range c.Contacts {
		out = append(out, contactRecipient(&c.Contacts[i]))
	}
	return out, nil
}

func contactRecipient(c *models.Contact) Recipient {
	return Recipient{Name: c.Name, Number: c.Number(), Contact: c}
}

func (s *Service) listRecipients(ctx context.Context, listID uint) ([]Recipient, error) {
	var list models.MessagingList
	err := s.db.WithContext(ctx).Preload("ListContacts").Preload("Contacts").First(&list, listID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Config("Messaging list %d not found.", listID)
	}
	if err != nil {
		return nil, err
	}

	if list.Kind == models.ListKindContacts {
		out := make([]Recipient, 0, len(list.Contacts))
		for i := range list.Contacts {
			out = append(out, contactRecipient(&list.Contacts[i]))
		}
		return out, nil
	}

	out := make([]Recipient, 0, len(list.ListContacts))
	for _, lc := range list.ListContacts {
		r := Recipient{Name: lc.Name, Number: lc.WhatsAppNumber}
		if lc.WhatsAppNumber != "" {
			contact, err := s.contacts.Find(ctx, lc.WhatsAppNumber)
			if err != nil {
				return nil, err
			}
			r.Contact = contact
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Service) filterRecipients(ctx context.Context, raw string) ([]Recipient, error) {
	f, err := parseFilter(raw, s.registry)
	if err != nil {
		return nil, err
	}
	var all []models.Contact
	if err := s.db.WithContext(ctx).Order("id").Find(&all).Error; err != nil {
		return nil, err
	}
	var out []Recipient
	for i := range all {
		ok, err := f.match(&all[i])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, contactRecipient(&all[i]))
		}
	}
	return out, nil
}

// Stats is the delivery breakdown of a campaign in percent of its history
// rows.
type Stats struct {
	Total     int64   `json:"total"`
	InQueue   float64 `json:"in_queue_percentage"`
	Sent      float64 `json:"sent_percentage"`
	Delivered float64 `json:"delivered_percentage"`
	Received  float64 `json:"received_percentage"`
	Read      float64 `json:"read_percentage"`
	Failed    float64 `json:"fail_percentage"`
}

func (s *Service) Stats(ctx context.Context, id uint) (*Stats, error) {
	var counts []struct {
		Status string
		Count  int64
	}
	err := s.db.WithContext(ctx).Model(&models.MessageHistory{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", id).
		Group("status").Scan(&counts).Error
	if err != nil {
		return nil, err
	}

	st := &Stats{}
	var other int64
	byStatus := map[string]int64{}
	for _, c := range counts {
		st.Total += c.Count
		switch c.Status {
		case models.StatusSent, models.StatusDelivered, models.StatusReceived, models.StatusRead, models.StatusFailed:
			byStatus[c.Status] += c.Count
		default:
			other += c.Count
		}
	}
	if st.Total == 0 {
		return st, nil
	}
	pct := func(n int64) float64 {
		return math.Round(float64(n)*10000/float64(st.Total)) / 100
	}
	st.InQueue = pct(other)
	st.Sent = pct(byStatus[models.StatusSent])
	st.Delivered = pct(byStatus[models.StatusDelivered])
	st.Received = pct(byStatus[models.StatusReceived])
	st.Read = pct(byStatus[models.StatusRead])
	st.Failed = pct(byStatus[models.StatusFailed])
	return st, nil
}

// ContactSummary counts a campaign's messages per recipient.
type ContactSummary struct {
	ContactID    *uint  `json:"contact_id"`
	Number       string `json:"whatsapp_number"`
	MessageCount int64  `json:"message_count"`
}

func (s *Service) ContactSummary(ctx context.Context, id uint) ([]ContactSummary, error) {
	var out []ContactSummary
	err := s.db.WithContext(ctx).Model(&models.MessageHistory{}).
		Select("contact_id, number, COUNT(*) AS message_count").
		Where("campaign_id = ?", id).
		Group("contact_id, number").
		Order("number").
		Scan(&out).Error
	return out, err
}

// Package dispatch sends composed WhatsApp messages (text, template and
// media) to one recipient and records the outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/phone"
	"whatsapp-suite/internal/templates"
	"whatsapp-suite/internal/threads"
	"whatsapp-suite/internal/whatsapp"
)

// Number fields of a contact
const (
	FieldPhone  = "phone"
	FieldMobile = "mobile"
)

// Templates loads and fills message templates.
type Templates interface {
	Get(ctx context.Context, id uint) (*models.Template, error)
	Render(t *models.Template, model string, record interface{}) (*templates.Rendered, error)
}

// Operators answers who may use a provider.
type Operators interface {
	CheckOperator(ctx context.Context, providerID, operatorID uint) error
	Operators(ctx context.Context, providerID uint) ([]models.Operator, error)
}

// Mirror copies sent messages into the contact's group thread.
type Mirror interface {
	GroupThread(ctx context.Context, providerID uint, contact *models.Contact, operators []models.Operator) (*models.ChatThread, error)
	Post(ctx context.Context, thread *models.ChatThread, p threads.Post) (*models.ThreadMessage, error)
}

// History persists send outcomes. RecordOutbound must merge into a row a
// status callback created for the same wamid.
type History interface {
	Append(ctx context.Context, row *models.MessageHistory) error
	RecordOutbound(ctx context.Context, row *models.MessageHistory) error
}

// Renderer turns a named report for a record into a PDF.
type Renderer interface {
	Render(ctx context.Context, report, model string, recordID uint) (data []byte, filename string, err error)
}

// RecordLoader fetches the business record a template is filled from.
type RecordLoader interface {
	Load(ctx context.Context, model string, id uint) (interface{}, error)
}

// Record points at the business record behind a send. Value may carry an
// already loaded record.
type Record struct {
	Model string
	ID    uint
	Value interface{}
}

type Request struct {
	ProviderID uint
	OperatorID uint
	// Recipient: a contact, a raw number, or both when the number to use
	// is not one stored on the contact.
	ContactID   uint
	Number      string
	NumberField string

	Text        string
	TemplateID  uint
	Record      *Record
	Attachments []whatsapp.Attachment
	// Report names a PDF rendered for Record and sent as a document.
	Report string

	CampaignID uint
	// Set for chatbot replies.
	ChatbotID uint
	ScriptID  uint
	ReplyTo   string
}

// Result is the aggregate outcome of a send.
type Result struct {
	History *models.MessageHistory
	// Sent counts successful channels.
	Sent   int
	Errors []string
}

type Dispatcher struct {
	db        *gorm.DB
	clients   whatsapp.Factory
	templates Templates
	operators Operators
	mirror    Mirror
	history   History
	renderer  Renderer
	loader    RecordLoader
	log       *zap.Logger
}

func New(db *gorm.DB, clients whatsapp.Factory, tpl Templates, ops Operators, mirror Mirror, hist History, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		db:        db,
		clients:   clients,
		templates: tpl,
		operators: ops,
		mirror:    mirror,
		history:   hist,
		loader:    NewContactLoader(db),
		log:       log.Named("dispatch"),
	}
}

func (d *Dispatcher) WithRenderer(r Renderer) *Dispatcher {
	d.renderer = r
	return d
}

func (d *Dispatcher) WithRecordLoader(l RecordLoader) *Dispatcher {
	d.loader = l
	return d
}

// Send tries every populated channel independently. Configuration problems
// are returned before anything is sent. Channel failures are collected;
// the returned error is non-nil only when no channel succeeded.
func (d *Dispatcher) Send(ctx context.Context, req Request) (*Result, error) {
	row := &models.MessageHistory{
		ProviderID:       req.ProviderID,
		Message:          req.Text,
		ReplyToMessageID: req.ReplyTo,
		Status:           models.StatusFailed,
	}
	if req.OperatorID != 0 {
		row.OperatorID = &req.OperatorID
	}
	if req.TemplateID != 0 {
		row.TemplateID = &req.TemplateID
	}
	if req.CampaignID != 0 {
		row.CampaignID = &req.CampaignID
	}
	if req.ChatbotID != 0 {
		row.ChatbotID = &req.ChatbotID
		row.ScriptID = &req.ScriptID
	}

	contact, err := d.contact(ctx, req.ContactID)
	if err != nil {
		return nil, err
	}
	number := req.Number
	if contact != nil {
		row.ContactID = &contact.ID
		if number == "" {
			number = contactNumber(contact, req.NumberField)
		}
		if number == "" {
			return nil, apperr.Config("Recipient phone number is missing.")
		}
	}
	row.Number = phone.Digits(number)

	var provider models.ProviderConfig
	if req.ProviderID != 0 {
		err = d.db.WithContext(ctx).First(&provider, req.ProviderID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	if provider.ID == 0 || row.Number == "" {
		row.Error = "Configuration or recipient is missing."
		if err := d.history.Append(ctx, row); err != nil {
			d.log.Error("Failed to log history", zap.Error(err))
		}
		return &Result{History: row, Errors: []string{row.Error}}, apperr.Config("Configuration or recipient is missing.")
	}
	if req.OperatorID != 0 {
		if err := d.operators.CheckOperator(ctx, provider.ID, req.OperatorID); err != nil {
			return nil, err
		}
	}

	s := &send{
		d:        d,
		api:      d.clients.For(&provider),
		provider: &provider,
		contact:  contact,
		number:   row.Number,
		req:      req,
		row:      row,
		result:   &Result{History: row},
	}
	attempted := false

	if req.TemplateID != 0 {
		attempted = true
		s.collect("template", s.sendTemplate(ctx))
	}
	if req.Text != "" && req.TemplateID == 0 {
		attempted = true
		s.collect("text", s.sendText(ctx))
	}

	attachments := req.Attachments
	if req.Report != "" {
		att, err := d.report(ctx, req)
		if err != nil {
			attempted = true
			s.collect("report", err)
		} else {
			attachments = append(attachments, att)
		}
	}
	for _, att := range attachments {
		attempted = true
		s.collect(att.Name, s.sendMedia(ctx, att))
	}

	if !attempted {
		row.Error = "No message, template, or media provided to send."
		if err := d.history.Append(ctx, row); err != nil {
			return nil, err
		}
		return &Result{History: row, Errors: []string{row.Error}}, apperr.Config("No message, template, or media provided to send.")
	}

	if s.result.Sent > 0 {
		row.Status = models.StatusSent
	}
	row.Error = strings.Join(s.result.Errors, "; ")
	if err := d.history.RecordOutbound(ctx, row); err != nil {
		return nil, err
	}

	d.log.Info("Message dispatched",
		zap.Uint("provider_id", provider.ID),
		zap.String("number", row.Number),
		zap.Int("sent", s.result.Sent),
		zap.Int("failed", len(s.result.Errors)),
	)
	if s.result.Sent == 0 {
		return s.result, apperr.Wrap(apperr.KindRemote, errors.New(row.Error), "Failed to send message")
	}
	return s.result, nil
}

func (d *Dispatcher) contact(ctx context.Context, id uint) (*models.Contact, error) {
	if id == 0 {
		return nil, nil
	}
	var c models.Contact
	err := d.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Config("Recipient %d not found.", id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func contactNumber(c *models.Contact, field string) string {
	switch field {
	case FieldPhone:
		return c.Phone
	case FieldMobile:
		return c.Mobile
	}
	return c.Number()
}

func (d *Dispatcher) report(ctx context.Context, req Request) (whatsapp.Attachment, error) {
	if d.renderer == nil {
		return whatsapp.Attachment{}, apperr.Config("No report renderer is configured.")
	}
	if req.Record == nil {
		return whatsapp.Attachment{}, apperr.Config("Report %s needs a record to render.", req.Report)
	}
	data, filename, err := d.renderer.Render(ctx, req.Report, req.Record.Model, req.Record.ID)
	if err != nil {
		return whatsapp.Attachment{}, fmt.Errorf("render report %s: %w", req.Report, err)
	}
	if filename == "" {
		filename = req.Report + ".pdf"
	}
	return whatsapp.Attachment{Name: filename, MimeType: "application/pdf", Data: data}, nil
}

// send carries the state of one Dispatcher.Send call.
type send struct {
	d        *Dispatcher
	api      whatsapp.API
	provider *models.ProviderConfig
	contact  *models.Contact
	number   string
	req      Request
	row      *models.MessageHistory
	result   *Result

	thread       *models.ChatThread
	threadLoaded bool
}

func (s *send) collect(channel string, err error) {
	if err == nil {
		s.result.Sent++
		return
	}
	s.d.log.Warn("Channel failed", zap.String("channel", channel), zap.String("number", s.number), zap.Error(err))
	s.result.Errors = append(s.result.Errors, fmt.Sprintf("%s: %s", channel, err.Error()))
}

func (s *send) deliver(ctx context.Context, kind whatsapp.Kind, content whatsapp.Content) (string, error) {
	content.ReplyTo = s.req.ReplyTo
	msg, err := whatsapp.Build(kind, s.number, content)
	if err != nil {
		return "", err
	}
	resp, err := s.api.SendMessage(ctx, msg)
	if err != nil {
		return "", err
	}
	s.row.MessageID = models.RemoteID(resp.MessageID())
	s.row.ConversationID = resp.ConversationID()
	return resp.MessageID(), nil
}

func (s *send) sendTemplate(ctx context.Context) error {
	t, err := s.d.templates.Get(ctx, s.req.TemplateID)
	if err != nil {
		return err
	}
	if t.ProviderID != s.provider.ID {
		return apperr.Config("Template %s belongs to another configuration.", t.Name)
	}

	var model string
	var record interface{}
	if s.req.Record != nil {
		model = s.req.Record.Model
		record = s.req.Record.Value
		if record == nil && s.d.loader != nil {
			record, err = s.d.loader.Load(ctx, model, s.req.Record.ID)
			if err != nil {
				return err
			}
		}
	}
	rendered, err := s.d.templates.Render(t, model, record)
	if err != nil {
		return err
	}
	if s.row.Message == "" {
		s.row.Message = rendered.Message
	}

	_, err = s.deliver(ctx, whatsapp.KindTemplate, whatsapp.Content{
		TemplateName: t.Name,
		Language:     t.Language,
		Parameters:   rendered.Parameters,
	})
	return err
}

func (s *send) sendText(ctx context.Context) error {
	wamid, err := s.deliver(ctx, whatsapp.KindText, whatsapp.Content{Text: s.req.Text})
	if err != nil {
		return err
	}
	s.mirrorPost(ctx, threads.Post{Body: s.req.Text, WhatsAppMessageID: wamid})
	return nil
}

func (s *send) sendMedia(ctx context.Context, att whatsapp.Attachment) error {
	class, mime, err := whatsapp.ValidateMedia(att)
	if err != nil {
		return err
	}
	uploaded, err := s.api.UploadMedia(ctx, att.Data, mime, att.Name)
	if err != nil {
		return err
	}
	wamid, err := s.deliver(ctx, whatsapp.KindMedia, whatsapp.Content{
		MediaClass: class,
		MediaID:    uploaded.ID,
		Caption:    s.req.Text,
		Filename:   att.Name,
	})
	if err != nil {
		return err
	}
	if s.row.AttachmentName == "" {
		s.row.AttachmentName = att.Name
	}
	s.mirrorPost(ctx, threads.Post{Body: s.req.Text, WhatsAppMessageID: wamid, AttachmentName: att.Name})

	if err := s.api.DeleteMedia(ctx, uploaded.ID); err != nil {
		s.d.log.Warn("Failed to delete uploaded media", zap.String("media_id", uploaded.ID), zap.Error(err))
	}
	return nil
}

// mirrorPost copies a sent message into the group thread. The thread is
// only built when the acting operator works on the provider.
func (s *send) mirrorPost(ctx context.Context, p threads.Post) {
	if s.d.mirror == nil || s.contact == nil || s.req.OperatorID == 0 {
		return
	}
	if !s.threadLoaded {
		s.threadLoaded = true
		ops, err := s.d.operators.Operators(ctx, s.provider.ID)
		if err != nil {
			s.d.log.Warn("Failed to load operators", zap.Error(err))
			return
		}
		member := false
		for _, op := range ops {
			if op.ID == s.req.OperatorID {
				member = true
				break
			}
		}
		if !member {
			return
		}
		thread, err := s.d.mirror.GroupThread(ctx, s.provider.ID, s.contact, ops)
		if err != nil {
			s.d.log.Warn("Failed to open group thread", zap.Error(err))
			return
		}
		s.thread = thread
	}
	if s.thread == nil {
		return
	}

	p.AuthorKind = models.AuthorOperator
	p.AuthorID = &s.req.OperatorID
	if _, err := s.d.mirror.Post(ctx, s.thread, p); err != nil {
		s.d.log.Warn("Failed to mirror message", zap.Uint("thread_id", s.thread.ID), zap.Error(err))
	}
}

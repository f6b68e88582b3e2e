// Package chatbot answers inbound WhatsApp messages from scripted replies
// before operators see them.
package chatbot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"whatsapp-suite/internal/dispatch"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/templates"
	"whatsapp-suite/internal/threads"
)

// Sender sends the bot's replies.
type Sender interface {
	Send(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Mirror writes into the contact's chat thread.
type Mirror interface {
	Post(ctx context.Context, thread *models.ChatThread, p threads.Post) (*models.ThreadMessage, error)
	AddMembers(ctx context.Context, thread *models.ChatThread, operators []models.Operator) error
}

// Stamper links the inbound history row to the script that answered it.
type Stamper interface {
	Stamp(ctx context.Context, rowID, chatbotID, scriptID uint) error
}

// RecordCreator creates the business record behind an action step.
type RecordCreator interface {
	Create(ctx context.Context, model string, contact *models.Contact, name string) (*models.LinkedRecord, error)
}

// Inbound is a received message the overlay may answer.
type Inbound struct {
	ProviderID uint
	Contact    *models.Contact
	Thread     *models.ChatThread
	// HistoryID is the inbound history row.
	HistoryID uint
	// Text is matched against triggers. Empty for message types the bot
	// does not understand.
	Text string
	// Post mirrors the inbound message once the bot is done.
	Post threads.Post
}

type Engine struct {
	sender  Sender
	mirror  Mirror
	stamper Stamper
	records RecordCreator
	company string
	log     *zap.Logger
}

func NewEngine(sender Sender, mirror Mirror, stamper Stamper, records RecordCreator, company string, log *zap.Logger) *Engine {
	return &Engine{
		sender:  sender,
		mirror:  mirror,
		stamper: stamper,
		records: records,
		company: company,
		log:     log.Named("chatbot"),
	}
}

// Match returns the first script, by sequence then id, whose trigger occurs
// in text ignoring case. Empty text and empty triggers never match.
func Match(scripts []models.ChatbotScript, text string) *models.ChatbotScript {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil
	}
	ordered := append([]models.ChatbotScript(nil), scripts...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Sequence != ordered[j].Sequence {
			return ordered[i].Sequence < ordered[j].Sequence
		}
		return ordered[i].ID < ordered[j].ID
	})
	for i := range ordered {
		trigger := strings.ToLower(strings.TrimSpace(ordered[i].Trigger))
		if trigger != "" && strings.Contains(text, trigger) {
			return &ordered[i]
		}
	}
	return nil
}

// HandoffNotice is posted after operators join a bot conversation.
func (e *Engine) HandoffNotice() string {
	return fmt.Sprintf("Now you are talking with the user of %s.", e.company)
}

// Handle runs the matching script of bot for the inbound message. It
// returns false when no script matched; the caller then mirrors the message
// itself.
func (e *Engine) Handle(ctx context.Context, bot *models.Chatbot, in Inbound) (bool, error) {
	script := Match(bot.Scripts, in.Text)
	if script == nil {
		return false, nil
	}
	log := e.log.With(zap.Uint("chatbot_id", bot.ID), zap.Uint("script_id", script.ID), zap.String("step", script.StepType))
	log.Info("Chatbot script triggered")

	run := &step{e: e, bot: bot, script: script, in: in, log: log}
	run.execute(ctx)

	if _, err := e.mirror.Post(ctx, in.Thread, in.Post); err != nil {
		return true, err
	}
	if run.reply != "" {
		_, err := e.mirror.Post(ctx, in.Thread, threads.Post{
			AuthorKind:        models.AuthorBot,
			Body:              run.reply,
			WhatsAppMessageID: run.wamid,
		})
		if err != nil {
			return true, err
		}
	}
	if run.handoff {
		_, err := e.mirror.Post(ctx, in.Thread, threads.Post{AuthorKind: models.AuthorSystem, Body: e.HandoffNotice()})
		if err != nil {
			return true, err
		}
	}

	if in.HistoryID != 0 {
		if err := e.stamper.Stamp(ctx, in.HistoryID, bot.ID, script.ID); err != nil {
			return true, err
		}
	}
	return true, nil
}

// step is one script execution. Send failures are logged and leave reply
// empty so only the inbound message is mirrored.
type step struct {
	e      *Engine
	bot    *models.Chatbot
	script *models.ChatbotScript
	in     Inbound
	log    *zap.Logger

	reply   string
	wamid   string
	handoff bool
}

func (s *step) execute(ctx context.Context) {
	switch s.script.StepType {
	case models.StepMessage:
		s.sendText(ctx, s.script.Response)
	case models.StepTemplate:
		if s.script.TemplateID == nil {
			s.log.Warn("Template step without template")
			return
		}
		s.sendTemplate(ctx)
	case models.StepInteractive:
		switch {
		case s.script.TemplateID != nil:
			s.sendTemplate(ctx)
		case s.script.Response != "":
			s.sendText(ctx, s.script.Response)
		case s.script.ActionModel != "":
			s.runAction(ctx)
		default:
			s.log.Error("Interactive step has nothing to send")
		}
	case models.StepAction:
		if s.script.ActionModel == "" {
			s.log.Warn("Action step without action")
			return
		}
		s.runAction(ctx)
	default:
		s.log.Error("Unsupported step type")
	}
}

func (s *step) request() dispatch.Request {
	return dispatch.Request{
		ProviderID: s.in.ProviderID,
		ContactID:  s.in.Contact.ID,
		ReplyTo:    s.in.Post.WhatsAppMessageID,
		ChatbotID:  s.bot.ID,
		ScriptID:   s.script.ID,
	}
}

func (s *step) sendText(ctx context.Context, text string) {
	if text == "" {
		return
	}
	req := s.request()
	req.Text = text
	res, err := s.e.sender.Send(ctx, req)
	if err != nil {
		s.log.Warn("Chatbot reply failed", zap.Error(err))
		return
	}
	s.reply = text
	s.wamid = wamidOf(res)
}

func (s *step) sendTemplate(ctx context.Context) {
	req := s.request()
	req.TemplateID = *s.script.TemplateID
	req.Record = &dispatch.Record{Model: templates.ModelContacts, ID: s.in.Contact.ID, Value: s.in.Contact}
	res, err := s.e.sender.Send(ctx, req)
	if err != nil {
		s.log.Warn("Chatbot template failed", zap.Error(err))
		return
	}
	s.reply = res.History.Message
	s.wamid = wamidOf(res)
}

func (s *step) runAction(ctx context.Context) {
	if s.script.ActionModel == models.ActionOperators {
		if err := s.e.mirror.AddMembers(ctx, s.in.Thread, s.bot.Operators); err != nil {
			s.log.Error("Hand-off failed", zap.Error(err))
			s.sendText(ctx, fmt.Sprintf("Failed to create record in %s: %s", s.script.ActionModel, err))
			return
		}
		s.handoff = true
		s.sendText(ctx, s.script.Response)
		return
	}

	name := "chatbot - " + s.in.Contact.Name
	record, err := s.e.records.Create(ctx, s.script.ActionModel, s.in.Contact, name)
	if err != nil {
		s.log.Error("Chatbot action failed", zap.String("model", s.script.ActionModel), zap.Error(err))
		s.sendText(ctx, fmt.Sprintf("Failed to create record in %s: %s", s.script.ActionModel, err))
		return
	}
	s.log.Info("Chatbot created record", zap.String("model", record.Model), zap.Uint("record_id", record.ID))
	s.sendText(ctx, s.script.Response)
}

func wamidOf(res *dispatch.Result) string {
	if res == nil || res.History == nil || res.History.MessageID == nil {
		return ""
	}
	return *res.History.MessageID
}

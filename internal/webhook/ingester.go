// Package webhook receives Cloud API notifications for a provider.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/chatbot"
	"whatsapp-suite/internal/contacts"
	"whatsapp-suite/internal/history"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/phone"
	"whatsapp-suite/internal/providers"
	"whatsapp-suite/internal/threads"
	"whatsapp-suite/internal/ws"
	wa "whatsapp-suite/pkg/models"
)

// Options carry per-request choices of the tenant.
type Options struct {
	// Chatbot is the tenant's selected chatbot. It only intercepts messages
	// for its own provider.
	Chatbot *models.Chatbot
}

type Ingester struct {
	contacts  *contacts.Resolver
	providers *providers.Service
	history   *history.Store
	threads   *threads.Service
	bot       *chatbot.Engine
	pub       ws.Publisher
	log       *zap.Logger
}

func NewIngester(
	contacts *contacts.Resolver,
	providers *providers.Service,
	history *history.Store,
	threads *threads.Service,
	bot *chatbot.Engine,
	pub ws.Publisher,
	log *zap.Logger,
) *Ingester {
	if pub == nil {
		pub = ws.Discard{}
	}
	return &Ingester{
		contacts:  contacts,
		providers: providers,
		history:   history,
		threads:   threads,
		bot:       bot,
		pub:       pub,
		log:       log.Named("webhook"),
	}
}

// Verify answers the subscription handshake and returns the challenge to
// echo back.
func (in *Ingester) Verify(provider *models.ProviderConfig, mode, challenge, token string) (string, error) {
	if mode == "" || challenge == "" || token == "" {
		return "", apperr.Payload("Missing parameters")
	}
	if mode != "subscribe" {
		return "", apperr.Payload("Invalid mode")
	}
	if provider.WebhookToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(provider.WebhookToken)) != 1 {
		return "", apperr.Payload("Invalid verify token")
	}
	in.log.Info("Webhook verified", zap.Uint("provider_id", provider.ID))
	return challenge, nil
}

// Process applies one notification body to the provider's history and
// threads.
func (in *Ingester) Process(ctx context.Context, provider *models.ProviderConfig, body []byte, opts Options) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return apperr.Payload("Empty payload")
	}
	var payload wa.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		in.log.Warn("Invalid webhook JSON", zap.Uint("provider_id", provider.ID), zap.Error(err))
		return apperr.Payload("Invalid JSON")
	}

	if opts.Chatbot != nil && opts.Chatbot.ProviderID != provider.ID {
		opts.Chatbot = nil
	}

	// A failing item does not stop the rest of the batch.
	var errs []error
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			value := change.Value
			for i := range value.Messages {
				msg := &value.Messages[i]
				if err := in.message(ctx, provider, value.Contacts, msg, opts); err != nil {
					in.log.Error("Failed to process message", zap.Uint("provider_id", provider.ID), zap.String("wamid", msg.ID), zap.Error(err))
					errs = append(errs, fmt.Errorf("message %s: %w", msg.ID, err))
				}
			}
			for i := range value.Statuses {
				st := &value.Statuses[i]
				if err := in.status(ctx, provider, value.Contacts, st); err != nil {
					in.log.Error("Failed to process status", zap.Uint("provider_id", provider.ID), zap.String("wamid", st.ID), zap.Error(err))
					errs = append(errs, fmt.Errorf("status %s: %w", st.ID, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (in *Ingester) message(ctx context.Context, provider *models.ProviderConfig, senders []wa.WebhookContact, msg *wa.InboundMessage, opts Options) error {
	log := in.log.With(zap.Uint("provider_id", provider.ID), zap.String("wamid", msg.ID), zap.String("type", msg.Type))

	contact, err := in.contacts.Resolve(ctx, msg.From, profileName(senders, msg.From))
	if err != nil {
		return fmt.Errorf("resolve contact %s: %w", msg.From, err)
	}
	operator, err := in.providers.AuthorizedOperator(ctx, provider.ID)
	if err != nil {
		return err
	}
	at := timestamp(msg.Timestamp)

	row := &models.MessageHistory{
		Number:       phone.Digits(msg.From),
		ProviderID:   provider.ID,
		MessageID:    models.RemoteID(msg.ID),
		Status:       models.StatusReceived,
		SendDate:     at,
		ReceivedDate: &at,
	}
	if contact != nil {
		row.ContactID = &contact.ID
	}
	if operator != nil {
		row.OperatorID = &operator.ID
	}
	if msg.Context != nil {
		row.ReplyToMessageID = msg.Context.ID
	}

	if msg.Type == "reaction" && msg.Reaction != nil {
		return in.reaction(ctx, provider, contact, msg, row, log)
	}

	text, understood := content(msg)
	row.Message = text
	created, err := in.history.RecordInbound(ctx, row)
	if err != nil {
		return err
	}
	if !created {
		log.Info("Duplicate message ignored")
		return nil
	}
	log.Info("Message received", zap.String("from", row.Number))

	if contact == nil {
		return nil
	}
	thread, err := in.threads.ChatThread(ctx, provider.ID, contact, operator)
	if err != nil {
		return err
	}
	post := threads.Post{
		AuthorKind:        models.AuthorContact,
		AuthorID:          &contact.ID,
		Body:              text,
		WhatsAppMessageID: msg.ID,
		ReplyTo:           row.ReplyToMessageID,
		AttachmentName:    attachmentName(msg),
		Date:              at,
	}

	if opts.Chatbot != nil && understood && in.bot != nil {
		handled, err := in.bot.Handle(ctx, opts.Chatbot, chatbot.Inbound{
			ProviderID: provider.ID,
			Contact:    contact,
			Thread:     thread,
			HistoryID:  row.ID,
			Text:       text,
			Post:       post,
		})
		if handled || err != nil {
			return err
		}
	}

	_, err = in.threads.Post(ctx, thread, post)
	return err
}

func (in *Ingester) reaction(ctx context.Context, provider *models.ProviderConfig, contact *models.Contact, msg *wa.InboundMessage, row *models.MessageHistory, log *zap.Logger) error {
	emoji := msg.Reaction.Emoji
	if emoji == "" {
		row.Message = "Removed reaction"
	} else {
		row.Message = "Reacted " + emoji
	}
	row.ReplyToMessageID = msg.Reaction.MessageID
	created, err := in.history.RecordInbound(ctx, row)
	if err != nil || !created {
		return err
	}
	if contact == nil {
		return nil
	}
	target, err := in.threads.React(ctx, provider.ID, msg.Reaction.MessageID, contact.ID, emoji)
	if err != nil {
		return err
	}
	if target == nil {
		log.Warn("Reaction to unknown message", zap.String("target", msg.Reaction.MessageID))
	}
	return nil
}

func (in *Ingester) status(ctx context.Context, provider *models.ProviderConfig, senders []wa.WebhookContact, st *wa.StatusUpdate) error {
	u := history.StatusUpdate{
		ProviderID: provider.ID,
		MessageID:  st.ID,
		Status:     coerceStatus(st.Status),
		At:         timestamp(st.Timestamp),
		Number:     phone.Digits(st.RecipientID),
	}
	if st.Conversation != nil {
		u.ConversationID = st.Conversation.ID
	}
	if len(st.Errors) > 0 {
		u.Error = st.Errors[0].Title
	}

	existing, err := in.history.FindByRemoteID(ctx, provider.ID, st.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		contact, err := in.contacts.Resolve(ctx, st.RecipientID, profileName(senders, st.RecipientID))
		if err != nil {
			return fmt.Errorf("resolve contact %s: %w", st.RecipientID, err)
		}
		if contact != nil {
			u.ContactID = &contact.ID
		}
		operator, err := in.providers.AuthorizedOperator(ctx, provider.ID)
		if err != nil {
			return err
		}
		if operator != nil {
			u.OperatorID = &operator.ID
		}
	}

	row, err := in.history.ApplyStatus(ctx, u)
	if err != nil {
		return err
	}
	in.log.Info("Status updated", zap.String("wamid", st.ID), zap.String("status", u.Status))
	in.pub.Publish(ws.EventStatus, row)
	return nil
}

var knownStatuses = map[string]bool{
	models.StatusSent:      true,
	models.StatusDelivered: true,
	models.StatusRead:      true,
	models.StatusFailed:    true,
}

func coerceStatus(s string) string {
	if knownStatuses[s] {
		return s
	}
	return models.StatusFailed
}

// content returns the text stored for an inbound message and whether it is
// text the chatbot can match against.
func content(msg *wa.InboundMessage) (string, bool) {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body, true
		}
	case "button":
		if msg.Button != nil {
			return msg.Button.Text, true
		}
	case "interactive":
		if msg.Interactive != nil {
			if r := msg.Interactive.ButtonReply; r != nil {
				return r.Title, true
			}
			if r := msg.Interactive.ListReply; r != nil {
				return r.Title, true
			}
		}
	}
	return fmt.Sprintf("[%s message]", msg.Type), false
}

func attachmentName(msg *wa.InboundMessage) string {
	if msg.Document != nil {
		return msg.Document.Filename
	}
	return ""
}

func profileName(senders []wa.WebhookContact, from string) string {
	for _, c := range senders {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(senders) > 0 {
		return senders[0].Profile.Name
	}
	return ""
}

// timestamp parses unix seconds, falling back to now.
func timestamp(raw string) time.Time {
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now()
	}
	return time.Unix(secs, 0)
}

package dispatch_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/database"
	"whatsapp-suite/internal/dispatch"
	"whatsapp-suite/internal/history"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/providers"
	"whatsapp-suite/internal/templates"
	"whatsapp-suite/internal/threads"
	"whatsapp-suite/internal/whatsapp"
	"whatsapp-suite/internal/whatsapp/mocks"
	"whatsapp-suite/internal/ws"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)
	return db
}

type fixture struct {
	db       *gorm.DB
	api      *mocks.MockAPI
	d        *dispatch.Dispatcher
	tpl      *templates.Service
	provider models.ProviderConfig
	operator models.Operator
	contact  models.Contact
}

func setup(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{db: newDB(t), api: mocks.NewMockAPI(ctrl)}
	log := zap.NewNop()
	factory := whatsapp.FactoryFunc(func(*models.ProviderConfig) whatsapp.API { return f.api })

	f.operator = models.Operator{Name: "Alice"}
	require.NoError(t, f.db.Create(&f.operator).Error)
	f.provider = models.ProviderConfig{
		Name: "Main", PhoneNumberID: "PHONE", BusinessAccountID: "WABA", AccessToken: "t",
		APIURL: models.DefaultAPIURL, Operators: []models.Operator{f.operator},
	}
	require.NoError(t, f.db.Create(&f.provider).Error)
	f.contact = models.Contact{Name: "Carol", Phone: "+1 555 000 4444", Email: "carol@example.com"}
	require.NoError(t, f.db.Create(&f.contact).Error)

	f.tpl = templates.NewService(f.db, factory, templates.NewDefaultRegistry(), log)
	f.d = dispatch.New(
		f.db, factory, f.tpl,
		providers.NewService(f.db, factory, "http://localhost", log),
		threads.NewService(f.db, ws.Discard{}, log),
		history.NewStore(f.db),
		log,
	)
	return f
}

func sent(id string) *whatsapp.SendResponse {
	resp := &whatsapp.SendResponse{}
	resp.Messages = []struct {
		ID string `json:"id"`
	}{{ID: id}}
	return resp
}

func (f *fixture) historyRows(t *testing.T) []models.MessageHistory {
	var rows []models.MessageHistory
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	return rows
}

func TestDispatcher_PartialSuccess(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg whatsapp.GenericMessage) (*whatsapp.SendResponse, error) {
			assert.Equal(t, "text", msg.Type)
			assert.Equal(t, "15550004444", msg.To)
			return sent("wamid.TEXT"), nil
		})

	res, err := f.d.Send(ctx, dispatch.Request{
		ProviderID: f.provider.ID,
		OperatorID: f.operator.ID,
		ContactID:  f.contact.ID,
		Text:       "Your invoice is attached",
		Attachments: []whatsapp.Attachment{
			{Name: "huge.jpg", MimeType: "image/jpeg", Data: bytes.Repeat([]byte{0}, 6*1024*1024)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "exceeds WhatsApp size limit of 5MB for image media")

	rows := f.historyRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusSent, rows[0].Status)
	assert.Equal(t, "wamid.TEXT", *rows[0].MessageID)
	assert.Equal(t, "15550004444", rows[0].Number)

	var mirrored []models.ThreadMessage
	require.NoError(t, f.db.Find(&mirrored).Error)
	require.Len(t, mirrored, 1)
	assert.Equal(t, "wamid.TEXT", mirrored[0].WhatsAppMessageID)
	assert.Equal(t, models.AuthorOperator, mirrored[0].AuthorKind)
}

func TestDispatcher_StatusCallbackBeforeHistoryRow(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	store := history.NewStore(f.db)
	campaignID, chatbotID, scriptID := uint(9), uint(4), uint(5)

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ whatsapp.GenericMessage) (*whatsapp.SendResponse, error) {
			// The delivery webhook for the wamid wins the race against Send.
			_, err := store.ApplyStatus(ctx, history.StatusUpdate{
				ProviderID:     f.provider.ID,
				MessageID:      "wamid.RACE",
				Status:         models.StatusDelivered,
				ConversationID: "conv-1",
			})
			require.NoError(t, err)
			return sent("wamid.RACE"), nil
		})

	res, err := f.d.Send(ctx, dispatch.Request{
		ProviderID: f.provider.ID,
		OperatorID: f.operator.ID,
		ContactID:  f.contact.ID,
		Text:       "Your order shipped",
		CampaignID: campaignID,
		ChatbotID:  chatbotID,
		ScriptID:   scriptID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, models.StatusDelivered, res.History.Status)

	rows := f.historyRows(t)
	require.Len(t, rows, 1)
	row := rows[0]
	assert.Equal(t, res.History.ID, row.ID)
	assert.Equal(t, "wamid.RACE", *row.MessageID)
	assert.Equal(t, models.StatusDelivered, row.Status)
	assert.Equal(t, "conv-1", row.ConversationID)
	assert.Equal(t, "Your order shipped", row.Message)
	assert.Equal(t, "15550004444", row.Number)
	assert.Equal(t, &f.contact.ID, row.ContactID)
	assert.Equal(t, &f.operator.ID, row.OperatorID)
	assert.Equal(t, &campaignID, row.CampaignID)
	assert.Equal(t, &chatbotID, row.ChatbotID)
	assert.Equal(t, &scriptID, row.ScriptID)
}

func TestDispatcher_AllChannelsFail(t *testing.T) {
	f := setup(t)

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(nil, apperr.Remote(400, `{"error":"bad number"}`, nil))

	res, err := f.d.Send(context.Background(), dispatch.Request{
		ProviderID: f.provider.ID,
		Number:     "+15550009999",
		Text:       "hello",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRemote))
	assert.Zero(t, res.Sent)

	rows := f.historyRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
	assert.Contains(t, rows[0].Error, "bad number")
	assert.Nil(t, rows[0].MessageID)
}

func TestDispatcher_NothingToSend(t *testing.T) {
	f := setup(t)

	_, err := f.d.Send(context.Background(), dispatch.Request{ProviderID: f.provider.ID, ContactID: f.contact.ID})
	assert.EqualError(t, err, "No message, template, or media provided to send.")

	rows := f.historyRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, models.StatusFailed, rows[0].Status)
}

func TestDispatcher_ConfigErrors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.d.Send(ctx, dispatch.Request{ContactID: f.contact.ID, Text: "x"})
	assert.EqualError(t, err, "Configuration or recipient is missing.")
	assert.Len(t, f.historyRows(t), 1, "missing provider is logged")

	noPhone := models.Contact{Name: "Dan"}
	require.NoError(t, f.db.Create(&noPhone).Error)
	_, err = f.d.Send(ctx, dispatch.Request{ProviderID: f.provider.ID, ContactID: noPhone.ID, Text: "x"})
	assert.EqualError(t, err, "Recipient phone number is missing.")

	outsider := models.Operator{Name: "Eve"}
	require.NoError(t, f.db.Create(&outsider).Error)
	_, err = f.d.Send(ctx, dispatch.Request{ProviderID: f.provider.ID, OperatorID: outsider.ID, ContactID: f.contact.ID, Text: "x"})
	assert.EqualError(t, err, "Selected configuration is not allowed for this user.")

	assert.Len(t, f.historyRows(t), 1)
}

func TestDispatcher_TemplateWithRecord(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tpl := &models.Template{
		Name: "invoice_ready", Language: "pt-BR", Category: models.CategoryUtility,
		ProviderID: f.provider.ID, AvailableIn: templates.ModelContacts,
		Components: []models.TemplateComponent{{Type: models.ComponentBody, Text: "Hi {{1}}"}},
		Mappings:   []models.ParameterMapping{{ParameterName: "1", Field: "name"}},
	}
	require.NoError(t, f.tpl.Save(ctx, tpl))

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg whatsapp.GenericMessage) (*whatsapp.SendResponse, error) {
			require.NotNil(t, msg.Template)
			assert.Equal(t, "invoice_ready", msg.Template.Name)
			assert.Equal(t, "pt_BR", msg.Template.Language.Code)
			require.Len(t, msg.Template.Components, 1)
			assert.Equal(t, "Carol", msg.Template.Components[0].Parameters[0].Text)
			return sent("wamid.TPL"), nil
		})

	res, err := f.d.Send(ctx, dispatch.Request{
		ProviderID: f.provider.ID,
		ContactID:  f.contact.ID,
		TemplateID: tpl.ID,
		Record:     &dispatch.Record{Model: templates.ModelContacts, ID: f.contact.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, "Hi Carol", res.History.Message)
	assert.Equal(t, tpl.ID, *res.History.TemplateID)
}

func TestDispatcher_MediaCleanup(t *testing.T) {
	f := setup(t)
	pdf := append([]byte("%PDF-1.4\n"), make([]byte, 128)...)

	gomock.InOrder(
		f.api.EXPECT().UploadMedia(gomock.Any(), pdf, "application/pdf", "invoice.pdf").Return(&whatsapp.MediaResponse{ID: "media-1"}, nil),
		f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, msg whatsapp.GenericMessage) (*whatsapp.SendResponse, error) {
				require.NotNil(t, msg.Document)
				assert.Equal(t, "media-1", msg.Document.ID)
				assert.Equal(t, "invoice.pdf", msg.Document.Filename)
				return sent("wamid.DOC"), nil
			}),
		// Cleanup failures do not fail the send.
		f.api.EXPECT().DeleteMedia(gomock.Any(), "media-1").Return(errors.New("gone")),
	)

	res, err := f.d.Send(context.Background(), dispatch.Request{
		ProviderID:  f.provider.ID,
		ContactID:   f.contact.ID,
		NumberField: dispatch.FieldPhone,
		Attachments: []whatsapp.Attachment{{Name: "invoice.pdf", Data: pdf}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, "invoice.pdf", res.History.AttachmentName)
}

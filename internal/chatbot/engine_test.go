package chatbot_test

import (
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

	"whatsapp-suite/internal/chatbot"
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

type failingCreator struct{}

func (failingCreator) Create(context.Context, string, *models.Contact, string) (*models.LinkedRecord, error) {
	return nil, errors.New("model not installed")
}

type fixture struct {
	db       *gorm.DB
	api      *mocks.MockAPI
	threads  *threads.Service
	history  *history.Store
	provider models.ProviderConfig
	operator models.Operator
	contact  models.Contact
	thread   *models.ChatThread
}

func setup(t *testing.T) *fixture {
	f := &fixture{db: newDB(t), api: mocks.NewMockAPI(gomock.NewController(t))}
	f.operator = models.Operator{Name: "Alice"}
	require.NoError(t, f.db.Create(&f.operator).Error)
	f.provider = models.ProviderConfig{
		Name: "Main", PhoneNumberID: "PHONE", BusinessAccountID: "WABA", AccessToken: "t",
		APIURL: models.DefaultAPIURL, Operators: []models.Operator{f.operator},
	}
	require.NoError(t, f.db.Create(&f.provider).Error)
	f.contact = models.Contact{Name: "Bob", Phone: "+15550001111"}
	require.NoError(t, f.db.Create(&f.contact).Error)

	f.threads = threads.NewService(f.db, ws.Discard{}, zap.NewNop())
	f.history = history.NewStore(f.db)
	var err error
	f.thread, err = f.threads.ChatThread(context.Background(), f.provider.ID, &f.contact, nil)
	require.NoError(t, err)
	return f
}

func (f *fixture) engine(records chatbot.RecordCreator) *chatbot.Engine {
	log := zap.NewNop()
	factory := whatsapp.FactoryFunc(func(*models.ProviderConfig) whatsapp.API { return f.api })
	d := dispatch.New(
		f.db, factory,
		templates.NewService(f.db, factory, templates.NewDefaultRegistry(), log),
		providers.NewService(f.db, factory, "http://localhost", log),
		f.threads, f.history, log,
	)
	return chatbot.NewEngine(d, f.threads, f.history, records, "Acme", log)
}

// inbound stores the received message the way the webhook does.
func (f *fixture) inbound(t *testing.T, text string) chatbot.Inbound {
	wamid := "wamid.IN"
	row := &models.MessageHistory{
		Number: "15550001111", Message: text, Status: models.StatusReceived,
		MessageID: &wamid, ProviderID: f.provider.ID, ContactID: &f.contact.ID,
	}
	_, err := f.history.RecordInbound(context.Background(), row)
	require.NoError(t, err)
	return chatbot.Inbound{
		ProviderID: f.provider.ID,
		Contact:    &f.contact,
		Thread:     f.thread,
		HistoryID:  row.ID,
		Text:       text,
		Post:       threads.Post{AuthorKind: models.AuthorContact, Body: text, WhatsAppMessageID: wamid},
	}
}

func (f *fixture) bodies(t *testing.T) []string {
	msgs, err := f.threads.Messages(context.Background(), f.thread.ID)
	require.NoError(t, err)
	var out []string
	for _, m := range msgs {
		out = append(out, m.Body)
	}
	return out
}

func sent(id string) *whatsapp.SendResponse {
	resp := &whatsapp.SendResponse{}
	resp.Messages = []struct {
		ID string `json:"id"`
	}{{ID: id}}
	return resp
}

func TestMatch(t *testing.T) {
	scripts := []models.ChatbotScript{
		{ID: 3, Sequence: 2, Trigger: "price"},
		{ID: 2, Sequence: 1, Trigger: "HI"},
		{ID: 1, Sequence: 1, Trigger: "hi there"},
		{ID: 4, Sequence: 0, Trigger: ""},
	}
	tests := []struct {
		text string
		want uint
	}{
		{"Hi there", 1},
		{"oh hi", 2},
		{"What is the PRICE?", 3},
		{"", 0},
		{"   ", 0},
		{"goodbye", 0},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := chatbot.Match(scripts, tt.text)
			if tt.want == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestEngine_MessageStep(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	bot := &models.Chatbot{
		Name: "Greeter", ProviderID: f.provider.ID,
		Scripts: []models.ChatbotScript{{Sequence: 1, Trigger: "hi", StepType: models.StepMessage, Response: "Hello!"}},
	}
	require.NoError(t, chatbot.NewStore(f.db).Create(ctx, bot))

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg whatsapp.GenericMessage) (*whatsapp.SendResponse, error) {
			assert.Equal(t, "Hello!", msg.Text.Body)
			require.NotNil(t, msg.Context)
			assert.Equal(t, "wamid.IN", msg.Context.MessageID)
			return sent("wamid.BOT"), nil
		})

	in := f.inbound(t, "Hi there")
	handled, err := f.engine(chatbot.NewDBRecordCreator(f.db)).Handle(ctx, bot, in)
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"Hi there", "Hello!"}, f.bodies(t))

	var rows []models.MessageHistory
	require.NoError(t, f.db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		require.NotNil(t, row.ChatbotID)
		assert.Equal(t, bot.ID, *row.ChatbotID)
		assert.Equal(t, bot.Scripts[0].ID, *row.ScriptID)
	}
	assert.Equal(t, "wamid.BOT", *rows[1].MessageID)
}

func TestEngine_NoMatch(t *testing.T) {
	f := setup(t)
	bot := &models.Chatbot{ID: 1, Scripts: []models.ChatbotScript{{ID: 1, Trigger: "price", StepType: models.StepMessage, Response: "10$"}}}

	handled, err := f.engine(nil).Handle(context.Background(), bot, f.inbound(t, "hello"))
	require.NoError(t, err)
	assert.False(t, handled)
	assert.Empty(t, f.bodies(t))
}

func TestEngine_Handoff(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	agent := models.Operator{Name: "Agent"}
	require.NoError(t, f.db.Create(&agent).Error)
	bot := &models.Chatbot{
		Name: "Support", ProviderID: f.provider.ID, Operators: []models.Operator{agent},
		Scripts: []models.ChatbotScript{{Trigger: "human", StepType: models.StepAction, ActionModel: models.ActionOperators, Response: "Connecting you"}},
	}
	store := chatbot.NewStore(f.db)
	require.NoError(t, store.Create(ctx, bot))
	bot, err := store.Get(ctx, bot.ID)
	require.NoError(t, err)

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(sent("wamid.BOT"), nil)

	handled, err := f.engine(nil).Handle(ctx, bot, f.inbound(t, "I want a human"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"I want a human", "Connecting you", "Now you are talking with the user of Acme."}, f.bodies(t))

	thread, err := f.threads.Get(ctx, f.thread.ID)
	require.NoError(t, err)
	require.Len(t, thread.Members, 1)
	assert.Equal(t, agent.ID, thread.Members[0].ID)
}

func TestEngine_ActionFailure(t *testing.T) {
	f := setup(t)
	bot := &models.Chatbot{ID: 9, Scripts: []models.ChatbotScript{{ID: 4, Trigger: "lead", StepType: models.StepAction, ActionModel: "crm.lead", Response: "Thanks"}}}

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, msg whatsapp.GenericMessage) (*whatsapp.SendResponse, error) {
			assert.Equal(t, "Failed to create record in crm.lead: model not installed", msg.Text.Body)
			return sent("wamid.BOT"), nil
		})

	handled, err := f.engine(failingCreator{}).Handle(context.Background(), bot, f.inbound(t, "new lead please"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Len(t, f.bodies(t), 2)
}

func TestEngine_ActionCreatesRecord(t *testing.T) {
	f := setup(t)
	bot := &models.Chatbot{ID: 9, Scripts: []models.ChatbotScript{{ID: 4, Trigger: "lead", StepType: models.StepAction, ActionModel: "crm.lead", Response: "Thanks"}}}

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(sent("wamid.BOT"), nil)

	_, err := f.engine(chatbot.NewDBRecordCreator(f.db)).Handle(context.Background(), bot, f.inbound(t, "lead"))
	require.NoError(t, err)

	var rec models.LinkedRecord
	require.NoError(t, f.db.First(&rec).Error)
	assert.Equal(t, "crm.lead", rec.Model)
	assert.Equal(t, "chatbot - Bob", rec.Name)
	assert.Equal(t, f.contact.ID, rec.ContactID)
}

func TestEngine_SendFailureStillMirrorsInbound(t *testing.T) {
	f := setup(t)
	bot := &models.Chatbot{ID: 2, Scripts: []models.ChatbotScript{{ID: 1, Trigger: "hi", StepType: models.StepMessage, Response: "Hello!"}}}

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(nil, errors.New("network down"))

	handled, err := f.engine(nil).Handle(context.Background(), bot, f.inbound(t, "hi"))
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []string{"hi"}, f.bodies(t))
}

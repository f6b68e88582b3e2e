package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-suite/internal/api"
	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/campaigns"
	"whatsapp-suite/internal/chatbot"
	"whatsapp-suite/internal/contacts"
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
	db     *gorm.DB
	api    *mocks.MockAPI
	router *gin.Engine
}

func setup(t *testing.T) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{db: newDB(t), api: mocks.NewMockAPI(gomock.NewController(t))}
	log := zap.NewNop()
	factory := whatsapp.FactoryFunc(func(*models.ProviderConfig) whatsapp.API { return f.api })

	prov := providers.NewService(f.db, factory, "https://erp.example.com", log)
	tpl := templates.NewService(f.db, factory, templates.NewDefaultRegistry(), log)
	th := threads.NewService(f.db, ws.Discard{}, log)
	hist := history.NewStore(f.db)
	resolver := contacts.NewResolver(f.db, log)
	d := dispatch.New(f.db, factory, tpl, prov, th, hist, log)

	srv := api.NewServer(api.Deps{
		Providers:  prov,
		Templates:  tpl,
		Dispatcher: d,
		History:    hist,
		Contacts:   resolver,
		Campaigns:  campaigns.NewService(f.db, d, tpl.Registry(), resolver, log),
		Lists:      campaigns.NewLists(f.db),
		Chatbots:   chatbot.NewStore(f.db),
		Threads:    th,
	}, log)
	f.router = gin.New()
	srv.Register(f.router)
	return f
}

func (f *fixture) do(method, target string, body interface{}) *httptest.ResponseRecorder {
	var payload string
	if body != nil {
		raw, _ := json.Marshal(body)
		payload = string(raw)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *fixture) provider(t *testing.T) uint {
	w := f.do(http.MethodPost, "/api/providers", gin.H{
		"name": "Main", "phone_number_id": "PHONE", "business_account_id": "WABA", "access_token": "secret",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	p := decode(t, w)["provider"].(map[string]interface{})
	return uint(p["id"].(float64))
}

func sent(id string) *whatsapp.SendResponse {
	resp := &whatsapp.SendResponse{}
	resp.Messages = []struct {
		ID string `json:"id"`
	}{{ID: id}}
	return resp
}

func TestServer_Providers(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/providers", gin.H{"name": "Incomplete"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	id := f.provider(t)
	w = f.do(http.MethodGet, fmt.Sprintf("/api/providers/%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, fmt.Sprintf("https://erp.example.com/whatsapp/webhook/%d", id), body["webhook_url"])
	p := body["provider"].(map[string]interface{})
	assert.Len(t, p["webhook_token"], 32)
	assert.NotContains(t, p, "access_token")

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/providers/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/providers/abc", nil).Code)

	f.api.EXPECT().GetPhoneNumber(gomock.Any()).Return(nil, apperr.Remote(401, `{"error":"bad token"}`, nil))
	w = f.do(http.MethodPost, fmt.Sprintf("/api/providers/%d/verify", id), nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = f.do(http.MethodGet, fmt.Sprintf("/api/providers/%d", id), nil)
	assert.Equal(t, models.ProviderError, decode(t, w)["provider"].(map[string]interface{})["state"])
}

func TestServer_OperatorsAssignment(t *testing.T) {
	f := setup(t)
	id := f.provider(t)

	w := f.do(http.MethodPost, "/api/operators", gin.H{"name": "Alice"})
	require.Equal(t, http.StatusCreated, w.Code)
	opID := decode(t, w)["id"]

	w = f.do(http.MethodPut, fmt.Sprintf("/api/providers/%d/operators", id), gin.H{"ids": []interface{}{opID}})
	require.Equal(t, http.StatusOK, w.Code)
	var ops []models.Operator
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "Alice", ops[0].Name)
}

func TestServer_SendMessage(t *testing.T) {
	f := setup(t)
	id := f.provider(t)

	w := f.do(http.MethodPost, "/api/contacts", gin.H{"name": "Bob", "mobile": "+1 415 555 2671"})
	require.Equal(t, http.StatusCreated, w.Code)
	contactID := decode(t, w)["id"]

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg whatsapp.GenericMessage) (*whatsapp.SendResponse, error) {
			assert.Equal(t, "14155552671", msg.To)
			return sent("wamid.OUT"), nil
		})
	w = f.do(http.MethodPost, "/api/messages", gin.H{"provider_id": id, "contact_id": contactID, "text": "Hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(1), body["sent"])
	assert.Equal(t, "wamid.OUT", body["history"].(map[string]interface{})["message_id"])

	w = f.do(http.MethodPost, "/api/messages", gin.H{"provider_id": id, "text": "Nobody"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Configuration or recipient is missing.", decode(t, w)["error"])

	f.api.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))
	w = f.do(http.MethodPost, "/api/messages", gin.H{"provider_id": id, "number": "15550001111", "text": "Hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.NotEmpty(t, decode(t, w)["errors"])

	w = f.do(http.MethodGet, fmt.Sprintf("/api/messages?provider_id=%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rows []models.MessageHistory
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 3)

	w = f.do(http.MethodGet, "/api/messages?status=sent", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rows))
	assert.Len(t, rows, 1)
}

func TestServer_Contacts(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/contacts", gin.H{"name": "Ann", "phone": "+1 415 555 2671"})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"]

	w = f.do(http.MethodPost, "/api/contacts", gin.H{"name": "Copy", "phone": "14155552671"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, fmt.Sprintf("/api/contacts/%v", id), gin.H{"name": "Ann B", "phone": "+1 415 555 2671"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ann B", decode(t, w)["name"])

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, fmt.Sprintf("/api/contacts/%v", id), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, fmt.Sprintf("/api/contacts/%v", id), nil).Code)
}

func TestServer_Campaigns(t *testing.T) {
	f := setup(t)

	w := f.do(http.MethodPost, "/api/lists", gin.H{
		"name":    "VIP",
		"entries": []gin.H{{"name": "Cy", "whatsapp_number": "15550002222"}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	listID := decode(t, w)["id"]

	w = f.do(http.MethodPost, "/api/campaigns", gin.H{"name": "Launch", "recipient_source": "list", "messaging_list_id": listID})
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"]
	assert.Equal(t, models.CampaignDraft, decode(t, w)["state"])

	w = f.do(http.MethodPost, fmt.Sprintf("/api/campaigns/%v/queue", id), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please set a provider, template, and recipients before sending.", decode(t, w)["error"])

	w = f.do(http.MethodGet, fmt.Sprintf("/api/campaigns/%v/recipients", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"Cy","number":"15550002222"}]`, w.Body.String())

	w = f.do(http.MethodPost, "/api/campaigns", gin.H{"name": "Bad", "recipient_source": "filter", "filter": `[{"field":"shoe_size","operator":"equals","value":"9"}]`})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, fmt.Sprintf("/api/campaigns/%v/stats", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["total"])

	w = f.do(http.MethodPost, fmt.Sprintf("/api/campaigns/%v/notes", id), gin.H{"body": "check copy"})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = f.do(http.MethodGet, fmt.Sprintf("/api/campaigns/%v", id), nil)
	assert.Len(t, decode(t, w)["notes"], 1)

	w = f.do(http.MethodPost, "/api/campaigns/sweep", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["processed"])

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, fmt.Sprintf("/api/campaigns/%v", id), nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, fmt.Sprintf("/api/campaigns/%v", id), nil).Code)
}

func TestServer_Chatbots(t *testing.T) {
	f := setup(t)
	providerID := f.provider(t)

	w := f.do(http.MethodPost, "/api/chatbots", gin.H{
		"name": "Greeter", "provider_id": providerID,
		"scripts": []gin.H{{"sequence": 1, "trigger": "hi", "step_type": "message", "response": "Hello"}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode(t, w)["id"]
	assert.Len(t, decode(t, w)["scripts"], 1)

	w = f.do(http.MethodPost, fmt.Sprintf("/api/chatbots/%v/scripts", id), gin.H{"trigger": "x", "step_type": "dance"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/chatbots/active", gin.H{"chatbot_id": id})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Greeter", decode(t, w)["chatbot"].(map[string]interface{})["name"])

	w = f.do(http.MethodPut, "/api/chatbots/active", gin.H{"chatbot_id": 999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, fmt.Sprintf("/api/chatbots/%v", id), nil).Code)
	w = f.do(http.MethodGet, "/api/chatbots/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, decode(t, w)["chatbot"])
}

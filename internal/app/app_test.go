package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"whatsapp-suite/internal/app"
	"whatsapp-suite/internal/config"
	"whatsapp-suite/internal/database"
	"whatsapp-suite/internal/middleware"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/whatsapp"
	"whatsapp-suite/internal/whatsapp/mocks"
)

func newApp(t *testing.T) *app.App {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name), zap.NewNop())
	require.NoError(t, err)

	api := mocks.NewMockAPI(gomock.NewController(t))
	factory := whatsapp.FactoryFunc(func(*models.ProviderConfig) whatsapp.API { return api })
	cfg := &config.Config{
		Port:          "0",
		BaseURL:       "https://erp.example.com",
		CompanyName:   "Acme",
		SweepInterval: time.Minute,
		CORSOrigins:   []string{"*"},
	}
	return app.New(cfg, db, factory, zap.NewNop())
}

func TestRouter_WiresEverySurface(t *testing.T) {
	a := newApp(t)
	p := &models.ProviderConfig{Name: "Main", PhoneNumberID: "P", BusinessAccountID: "W", AccessToken: "t"}
	require.NoError(t, a.Providers.Create(context.Background(), p))
	r := a.Router(nil)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/api/providers", http.StatusOK},
		{http.MethodGet, "/api/campaigns", http.StatusOK},
		{http.MethodGet, "/api/chatbots/active", http.StatusOK},
		{http.MethodGet, fmt.Sprintf("/whatsapp/webhook/%d?hub.mode=subscribe&hub.challenge=7&hub.verify_token=%s", p.ID, p.WebhookToken), http.StatusOK},
		{http.MethodOptions, "/api/providers", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
			assert.Equal(t, tc.want, w.Code)
			assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
		})
	}
}

func TestSweepJob_NothingDue(t *testing.T) {
	a := newApp(t)
	assert.NoError(t, a.SweepJob(context.Background()))
}

package templates_test

import (
	"context"
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
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/templates"
	"whatsapp-suite/internal/whatsapp"
	"whatsapp-suite/internal/whatsapp/mocks"
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
	svc      *templates.Service
	provider models.ProviderConfig
}

func setup(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{db: newDB(t), api: mocks.NewMockAPI(ctrl)}
	f.provider = models.ProviderConfig{Name: "Main", PhoneNumberID: "PHONE", BusinessAccountID: "WABA", AccessToken: "t", APIURL: models.DefaultAPIURL}
	require.NoError(t, f.db.Create(&f.provider).Error)
	factory := whatsapp.FactoryFunc(func(*models.ProviderConfig) whatsapp.API { return f.api })
	f.svc = templates.NewService(f.db, factory, templates.NewDefaultRegistry(), zap.NewNop())
	return f
}

func (f *fixture) saved(t *testing.T, status string, components ...models.TemplateComponent) *models.Template {
	t.Helper()
	tpl := &models.Template{
		Name:       "order_update",
		Language:   "en-US",
		Category:   models.CategoryMarketing,
		ProviderID: f.provider.ID,
		Components: components,
	}
	require.NoError(t, f.svc.Save(context.Background(), tpl))
	if status != "" {
		require.NoError(t, f.db.Model(tpl).Updates(map[string]interface{}{"status": status, "remote_id": "111"}).Error)
	}
	return tpl
}

func TestService_CreateUploadsHeaderMedia(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	tpl := f.saved(t, "",
		models.TemplateComponent{Sequence: 1, Type: models.ComponentHeader, Format: models.FormatImage, Media: png, MediaFilename: "banner.png"},
		models.TemplateComponent{Sequence: 2, Type: models.ComponentBody, Text: "Hi {{1}}", Parameters: []models.TemplateParameter{{Name: "1", Example: "Ann"}}},
		models.TemplateComponent{Sequence: 3, Type: models.ComponentButtons, Buttons: []models.TemplateButton{
			{Sequence: 1, Type: models.ButtonURL, Text: "Track", URL: "https://shop.example/{{1}}", Example: "https://shop.example/42"},
		}},
	)

	f.api.EXPECT().UploadMedia(gomock.Any(), png, "image/png", "banner.png").Return(&whatsapp.MediaResponse{ID: "handle-1"}, nil)
	f.api.EXPECT().CreateTemplate(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, rt whatsapp.RemoteTemplate) (*whatsapp.CreateTemplateResponse, error) {
			assert.Equal(t, "en_US", rt.Language)
			assert.Equal(t, models.ParamsPositional, rt.ParameterFormat)
			require.Len(t, rt.Components, 3)
			assert.Equal(t, []string{"handle-1"}, rt.Components[0].Example.HeaderHandle)
			assert.Equal(t, [][]string{{"Ann"}}, rt.Components[1].Example.BodyText)
			assert.Equal(t, []string{"https://shop.example/42"}, rt.Components[2].Buttons[0].Example)
			return &whatsapp.CreateTemplateResponse{ID: "987", Status: models.TemplatePending}, nil
		})

	got, err := f.svc.Create(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, "987", got.RemoteID)
	assert.Equal(t, models.AddStatusAdded, got.AddStatus)
	assert.Equal(t, models.TemplatePending, got.Status)
}

func TestService_ResubmitRequiresReviewedStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	body := models.TemplateComponent{Type: models.ComponentBody, Text: "Sale today"}

	pending := f.saved(t, models.TemplatePending, body)
	_, err := f.svc.Resubmit(ctx, pending.ID)
	require.Error(t, err)
	assert.Equal(t, "Only APPROVED, REJECTED, or PAUSED templates can be edited.", err.Error())
}

func TestService_ResubmitSendsCategoryOnlyAfterRejection(t *testing.T) {
	for _, tc := range []struct {
		status       string
		wantCategory string
	}{
		{models.TemplateApproved, ""},
		{models.TemplateRejected, models.CategoryMarketing},
		{models.TemplatePaused, models.CategoryMarketing},
	} {
		t.Run(tc.status, func(t *testing.T) {
			f := setup(t)
			tpl := f.saved(t, tc.status, models.TemplateComponent{Type: models.ComponentBody, Text: "Sale today"})

			f.api.EXPECT().UpdateTemplate(gomock.Any(), "111", gomock.Any()).DoAndReturn(
				func(_ context.Context, _ string, rt whatsapp.RemoteTemplate) error {
					assert.Equal(t, tc.wantCategory, rt.Category)
					return nil
				})

			got, err := f.svc.Resubmit(context.Background(), tpl.ID)
			require.NoError(t, err)
			assert.Equal(t, models.TemplatePending, got.Status)
		})
	}
}

func TestService_ResubmitMissingRemoteID(t *testing.T) {
	f := setup(t)
	tpl := f.saved(t, "", models.TemplateComponent{Type: models.ComponentBody, Text: "x"})
	require.NoError(t, f.db.Model(tpl).Update("status", models.TemplateApproved).Error)

	_, err := f.svc.Resubmit(context.Background(), tpl.ID)
	assert.EqualError(t, err, "Template ID is missing. Cannot edit the template.")
}

func TestService_Sync(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	remote := []whatsapp.RemoteTemplate{
		{
			ID: "1", Name: "welcome", Language: "en", Category: models.CategoryMarketing, Status: models.TemplateApproved,
			Components: []whatsapp.RemoteComponent{
				{Type: models.ComponentBody, Text: "Hi {{1}}, order {{2}}", Example: &whatsapp.ComponentExample{BodyText: [][]string{{"Ann", "42"}}}},
				{Type: models.ComponentButtons, Buttons: []whatsapp.RemoteButton{{Type: models.ButtonQuickReply, Text: "Stop"}}},
			},
		},
		{
			ID: "2", Name: "login", Language: "es", Category: models.CategoryAuthentication, Status: models.TemplatePending,
			Components: []whatsapp.RemoteComponent{{Type: models.ComponentBody, AddSecurityRecommendation: true}},
		},
	}
	f.api.EXPECT().GetTemplates(gomock.Any()).Return(remote, nil).Times(2)

	n, err := f.svc.Sync(ctx, f.provider.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A second sync rebuilds instead of duplicating.
	_, err = f.svc.Sync(ctx, f.provider.ID)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, f.provider.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	login, welcome := list[0], list[1]
	assert.Equal(t, "en_US", welcome.Language)
	assert.Equal(t, models.ParamsPositional, welcome.ParameterFormat)
	assert.Equal(t, models.AddStatusAdded, welcome.AddStatus)
	assert.Equal(t, "Hi {{1}}, order {{2}}", welcome.Message())
	require.Len(t, welcome.Components, 2)
	require.Len(t, welcome.Components[0].Parameters, 2)
	assert.Equal(t, "2", welcome.Components[0].Parameters[1].Name)
	assert.Equal(t, "42", welcome.Components[0].Parameters[1].Example)
	assert.Len(t, welcome.Components[1].Buttons, 1)

	assert.Equal(t, models.ParamsNamed, login.ParameterFormat)

	var components int64
	f.db.Model(&models.TemplateComponent{}).Count(&components)
	assert.Equal(t, int64(3), components)
}

func TestService_RefreshStatus(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tpl := f.saved(t, models.TemplatePending, models.TemplateComponent{Type: models.ComponentBody, Text: "x"})

	f.api.EXPECT().GetTemplate(gomock.Any(), "111").Return(&whatsapp.RemoteTemplate{ID: "111", Status: models.TemplateApproved}, nil)
	got, err := f.svc.RefreshStatus(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TemplateApproved, got.Status)

	f.api.EXPECT().GetTemplate(gomock.Any(), "111").Return(nil, nil)
	_, err = f.svc.RefreshStatus(ctx, tpl.ID)
	assert.EqualError(t, err, "Template not found on Meta.")
}

func TestService_Remove(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tpl := f.saved(t, models.TemplateApproved, models.TemplateComponent{Type: models.ComponentBody, Text: "x"})

	f.api.EXPECT().DeleteTemplate(gomock.Any(), "order_update").Return(apperr.Remote(400, "in use", nil))
	err := f.svc.Remove(ctx, tpl.ID)
	assert.True(t, apperr.Is(err, apperr.KindRemote))

	f.api.EXPECT().DeleteTemplate(gomock.Any(), "order_update").Return(nil)
	require.NoError(t, f.svc.Remove(ctx, tpl.ID))

	_, err = f.svc.Get(ctx, tpl.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	var components int64
	f.db.Model(&models.TemplateComponent{}).Count(&components)
	assert.Zero(t, components)
}

func TestService_Render(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	tpl := f.saved(t, "", models.TemplateComponent{Type: models.ComponentBody, Text: "Hi {{1}}, we will email {{2}}"})
	require.NoError(t, f.db.Model(tpl).Update("available_in", templates.ModelContacts).Error)

	_, err := f.svc.SetMappings(ctx, tpl.ID, []models.ParameterMapping{{ParameterName: "1", Field: "name"}, {ParameterName: "2", Field: "email"}})
	require.NoError(t, err)
	_, err = f.svc.SetMappings(ctx, tpl.ID, []models.ParameterMapping{{ParameterName: "1", Field: "password"}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	loaded, err := f.svc.Get(ctx, tpl.ID)
	require.NoError(t, err)
	contact := &models.Contact{Name: "Ann", Email: "ann@example.com"}

	out, err := f.svc.Render(loaded, templates.ModelContacts, contact)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ann, we will email ann@example.com", out.Message)
	assert.Equal(t, []whatsapp.Parameter{{Value: "Ann"}, {Value: "ann@example.com"}}, out.Parameters)

	_, err = f.svc.Render(loaded, "orders", contact)
	assert.True(t, apperr.Is(err, apperr.KindConfig))

	_, err = f.svc.Render(loaded, templates.ModelContacts, nil)
	assert.EqualError(t, err, "Record number (ID) is missing for fetching template parameters.")
}

func TestRegistry(t *testing.T) {
	r := templates.NewDefaultRegistry()
	assert.Equal(t, []string{"email", "mobile", "name", "phone", "tags"}, r.Fields(templates.ModelContacts))

	_, err := r.Resolve(templates.ModelContacts, "salary", &models.Contact{})
	assert.EqualError(t, err, `unknown field "salary" on contacts`)

	_, err = r.Resolve(templates.ModelContacts, "name", "not a contact")
	assert.True(t, apperr.Is(err, apperr.KindConfig))
}

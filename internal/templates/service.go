// Package templates keeps the local catalog of WhatsApp message templates in
// step with Meta and renders them for sending.
package templates

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/whatsapp"
)

type Service struct {
	db       *gorm.DB
	clients  whatsapp.Factory
	registry *Registry
	log      *zap.Logger
}

func NewService(db *gorm.DB, clients whatsapp.Factory, registry *Registry, log *zap.Logger) *Service {
	return &Service{db: db, clients: clients, registry: registry, log: log.Named("templates")}
}

func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) preloaded(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Components", func(db *gorm.DB) *gorm.DB { return db.Order("sequence, id") }).
		Preload("Components.Buttons", func(db *gorm.DB) *gorm.DB { return db.Order("sequence, id") }).
		Preload("Components.Buttons.Apps").
		Preload("Components.Parameters").
		Preload("Mappings", func(db *gorm.DB) *gorm.DB { return db.Order("sequence, id") })
}

func (s *Service) Get(ctx context.Context, id uint) (*models.Template, error) {
	var t models.Template
	err := s.preloaded(ctx).First(&t, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("template %d not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns the templates of a provider. Zero lists all.
func (s *Service) List(ctx context.Context, providerID uint) ([]models.Template, error) {
	q := s.preloaded(ctx)
	if providerID != 0 {
		q = q.Where("provider_id = ?", providerID)
	}
	var out []models.Template
	err := q.Order("name, id").Find(&out).Error
	return out, err
}

// Save validates and stores a local template. Components and mappings of
// an existing template are replaced.
func (s *Service) Save(ctx context.Context, t *models.Template) error {
	if t.ParameterFormat == "" {
		t.ParameterFormat = models.ParamsPositional
	}
	if t.AddStatus == "" {
		t.AddStatus = models.AddStatusNew
	}
	if err := Validate(t); err != nil {
		return err
	}
	for _, m := range t.Mappings {
		if t.AvailableIn != "" && !s.registry.Has(t.AvailableIn, m.Field) {
			return apperr.Validation("unknown field %q on %s", m.Field, t.AvailableIn)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if t.ID != 0 {
			if err := deleteChildren(tx, t.ID); err != nil {
				return err
			}
			if err := tx.Where("template_id = ?", t.ID).Delete(&models.ParameterMapping{}).Error; err != nil {
				return err
			}
			clearIDs(t)
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(t).Error
	})
}

// SetMappings replaces the parameter mappings of a template.
func (s *Service) SetMappings(ctx context.Context, id uint, mappings []models.ParameterMapping) (*models.Template, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := validateMappings(mappings); err != nil {
		return nil, err
	}
	for i := range mappings {
		if t.AvailableIn != "" && !s.registry.Has(t.AvailableIn, mappings[i].Field) {
			return nil, apperr.Validation("unknown field %q on %s", mappings[i].Field, t.AvailableIn)
		}
		mappings[i].ID = 0
		mappings[i].TemplateID = id
		if mappings[i].Sequence == 0 {
			mappings[i].Sequence = i + 1
		}
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", id).Delete(&models.ParameterMapping{}).Error; err != nil {
			return err
		}
		if len(mappings) == 0 {
			return nil
		}
		return tx.Create(&mappings).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *Service) api(ctx context.Context, providerID uint) (whatsapp.API, error) {
	var p models.ProviderConfig
	err := s.db.WithContext(ctx).First(&p, providerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Config("WhatsApp configuration %d not found", providerID)
	}
	if err != nil {
		return nil, err
	}
	return s.clients.For(&p), nil
}

// Create submits a local template to Meta for review.
func (s *Service) Create(ctx context.Context, id uint) (*models.Template, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	api, err := s.api(ctx, t.ProviderID)
	if err != nil {
		return nil, err
	}

	components, err := s.remoteComponents(ctx, api, t)
	if err != nil {
		return nil, err
	}
	resp, err := api.CreateTemplate(ctx, whatsapp.RemoteTemplate{
		Name:            t.Name,
		Language:        whatsapp.LanguageCode(t.Language),
		Category:        t.Category,
		ParameterFormat: t.ParameterFormat,
		Components:      components,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "Failed to create template")
	}

	t.RemoteID = resp.ID
	t.Status = resp.Status
	if t.Status == "" {
		t.Status = models.TemplatePending
	}
	t.AddStatus = models.AddStatusAdded
	err = s.db.WithContext(ctx).Model(t).Updates(map[string]interface{}{
		"remote_id":  t.RemoteID,
		"status":     t.Status,
		"add_status": t.AddStatus,
	}).Error
	if err != nil {
		return nil, err
	}
	s.log.Info("Template submitted", zap.Uint("template_id", t.ID), zap.String("remote_id", resp.ID))
	return t, nil
}

// Resubmit sends an edited template back for review. Only reviewed
// templates can be edited; the category may only change after a rejection
// or pause.
func (s *Service) Resubmit(ctx context.Context, id uint) (*models.Template, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case models.TemplateApproved, models.TemplateRejected, models.TemplatePaused:
	default:
		return nil, apperr.Config("Only APPROVED, REJECTED, or PAUSED templates can be edited.")
	}
	if t.RemoteID == "" {
		return nil, apperr.Config("Template ID is missing. Cannot edit the template.")
	}
	if err := Validate(t); err != nil {
		return nil, err
	}
	api, err := s.api(ctx, t.ProviderID)
	if err != nil {
		return nil, err
	}

	components, err := s.remoteComponents(ctx, api, t)
	if err != nil {
		return nil, err
	}
	payload := whatsapp.RemoteTemplate{
		Name:       t.Name,
		Language:   whatsapp.LanguageCode(t.Language),
		Components: components,
	}
	if t.Status == models.TemplateRejected || t.Status == models.TemplatePaused {
		payload.Category = t.Category
	}
	if err := api.UpdateTemplate(ctx, t.RemoteID, payload); err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "Failed to update template")
	}
	t.Status = models.TemplatePending
	if err := s.db.WithContext(ctx).Model(t).Update("status", t.Status).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// RefreshStatus pulls the review status of one template from Meta.
func (s *Service) RefreshStatus(ctx context.Context, id uint) (*models.Template, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.RemoteID == "" {
		return nil, apperr.Config("Template ID is missing. Cannot fetch the template status.")
	}
	api, err := s.api(ctx, t.ProviderID)
	if err != nil {
		return nil, err
	}
	remote, err := api.GetTemplate(ctx, t.RemoteID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindRemote, err, "Failed to fetch template status")
	}
	if remote == nil {
		return nil, apperr.NotFound("Template not found on Meta.")
	}
	t.Status = remote.Status
	if err := s.db.WithContext(ctx).Model(t).Update("status", t.Status).Error; err != nil {
		return nil, err
	}
	return t, nil
}

// Remove deletes the template on Meta (when it was submitted) and locally.
func (s *Service) Remove(ctx context.Context, id uint) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if t.RemoteID != "" {
		api, err := s.api(ctx, t.ProviderID)
		if err != nil {
			return err
		}
		if err := api.DeleteTemplate(ctx, t.Name); err != nil {
			return apperr.Wrap(apperr.KindRemote, err, "Failed to remove template")
		}
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, t.ID); err != nil {
			return err
		}
		if err := tx.Where("template_id = ?", t.ID).Delete(&models.ParameterMapping{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Template{}, t.ID).Error
	})
}

// Sync imports every template of the provider's business account. Local
// rows are matched by remote id and have their components rebuilt.
func (s *Service) Sync(ctx context.Context, providerID uint) (int, error) {
	api, err := s.api(ctx, providerID)
	if err != nil {
		return 0, err
	}
	remote, err := api.GetTemplates(ctx)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindRemote, err, "Failed to fetch templates")
	}

	for _, rt := range remote {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return upsertRemote(tx, providerID, rt)
		})
		if err != nil {
			return 0, err
		}
	}
	s.log.Info("Templates synced", zap.Uint("provider_id", providerID), zap.Int("count", len(remote)))
	return len(remote), nil
}

func upsertRemote(tx *gorm.DB, providerID uint, rt whatsapp.RemoteTemplate) error {
	var t models.Template
	err := tx.Where("remote_id = ? AND provider_id = ?", rt.ID, providerID).First(&t).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if t.ID != 0 {
		if err := deleteChildren(tx, t.ID); err != nil {
			return err
		}
	}

	t.Name = rt.Name
	t.RemoteID = rt.ID
	t.ProviderID = providerID
	t.Language = rt.Language
	if t.Language == "en" {
		t.Language = "en_US"
	}
	t.Category = rt.Category
	t.Status = rt.Status
	t.ParameterFormat = rt.ParameterFormat
	if t.ParameterFormat == "" {
		t.ParameterFormat = models.ParamsNamed
		if rt.Category == models.CategoryMarketing || rt.Category == models.CategoryUtility {
			t.ParameterFormat = models.ParamsPositional
		}
	}
	t.AddStatus = models.AddStatusNew
	if rt.Status != "" {
		t.AddStatus = models.AddStatusAdded
	}
	t.Components = localComponents(rt.Components)

	return tx.Session(&gorm.Session{FullSaveAssociations: true}).Omit("Mappings").Save(&t).Error
}

func localComponents(remote []whatsapp.RemoteComponent) []models.TemplateComponent {
	out := make([]models.TemplateComponent, 0, len(remote))
	for i, rc := range remote {
		c := models.TemplateComponent{
			Sequence:                  i + 1,
			Type:                      rc.Type,
			Format:                    rc.Format,
			Text:                      rc.Text,
			AddSecurityRecommendation: rc.AddSecurityRecommendation,
			CodeExpirationMinutes:     rc.CodeExpirationMinutes,
			Latitude:                  rc.Latitude,
			Longitude:                 rc.Longitude,
			LocationName:              rc.Name,
			LocationAddress:           rc.Address,
			Parameters:                exampleParameters(rc),
		}
		for j, rb := range rc.Buttons {
			b := models.TemplateButton{
				Sequence:     j + 1,
				Type:         rb.Type,
				Text:         rb.Text,
				PhoneNumber:  rb.PhoneNumber,
				URL:          rb.URL,
				OTPType:      rb.OTPType,
				AutofillText: rb.AutofillText,
			}
			if len(rb.Example) > 0 {
				b.Example = rb.Example[0]
			}
			for _, app := range rb.SupportedApps {
				b.Apps = append(b.Apps, models.TemplateButtonApp{
					Platform:      app.ID,
					PackageName:   app.PackageName,
					SignatureHash: app.SignatureHash,
					BundleID:      app.BundleID,
				})
			}
			c.Buttons = append(c.Buttons, b)
		}
		out = append(out, c)
	}
	return out
}

// exampleParameters reads the placeholders of a remote component from its
// examples: positional ones are named "1", "2", ...
func exampleParameters(rc whatsapp.RemoteComponent) []models.TemplateParameter {
	ex := rc.Example
	if ex == nil {
		return nil
	}
	var out []models.TemplateParameter
	positional := func(values []string) {
		for i, v := range values {
			out = append(out, models.TemplateParameter{Name: strconv.Itoa(i + 1), Example: v})
		}
	}
	named := func(values []whatsapp.NamedParam) {
		for _, p := range values {
			out = append(out, models.TemplateParameter{Name: p.ParamName, Example: p.Example})
		}
	}

	switch rc.Type {
	case models.ComponentHeader:
		positional(ex.HeaderText)
		named(ex.HeaderTextNamedParam)
	case models.ComponentBody:
		if len(ex.BodyText) > 0 {
			positional(ex.BodyText[0])
		}
		named(ex.BodyTextNamedParams)
	}
	return out
}

// remoteComponents builds the submission payload. Header media is uploaded
// first and referenced by its handle.
func (s *Service) remoteComponents(ctx context.Context, api whatsapp.API, t *models.Template) ([]whatsapp.RemoteComponent, error) {
	auth := t.Category == models.CategoryAuthentication
	named := t.ParameterFormat == models.ParamsNamed

	components := append([]models.TemplateComponent(nil), t.Components...)
	sort.SliceStable(components, func(i, j int) bool { return components[i].Sequence < components[j].Sequence })

	out := make([]whatsapp.RemoteComponent, 0, len(components))
	for _, c := range components {
		rc := whatsapp.RemoteComponent{Type: c.Type}
		switch c.Type {
		case models.ComponentHeader:
			if auth {
				continue
			}
			rc.Format = c.Format
			switch c.Format {
			case models.FormatText:
				rc.Text = c.Text
				rc.Example = headerExample(c.Parameters, named)
			case models.FormatImage, models.FormatVideo, models.FormatDocument:
				handle, err := s.uploadHeader(ctx, api, &c)
				if err != nil {
					return nil, err
				}
				rc.Example = &whatsapp.ComponentExample{HeaderHandle: []string{handle}}
			case models.FormatLocation:
				rc.Latitude = c.Latitude
				rc.Longitude = c.Longitude
				rc.Name = c.LocationName
				rc.Address = c.LocationAddress
			}
		case models.ComponentBody:
			if auth {
				rc.AddSecurityRecommendation = c.AddSecurityRecommendation
			} else {
				rc.Text = c.Text
				rc.Example = bodyExample(c.Parameters, named)
			}
		case models.ComponentFooter:
			if auth {
				rc.CodeExpirationMinutes = c.CodeExpirationMinutes
			} else {
				rc.Text = c.Text
			}
		case models.ComponentButtons:
			rc.Buttons = remoteButtons(c.Buttons)
		}
		out = append(out, rc)
	}
	return out, nil
}

func (s *Service) uploadHeader(ctx context.Context, api whatsapp.API, c *models.TemplateComponent) (string, error) {
	if len(c.Media) == 0 {
		return "", apperr.Validation("No media file provided for %s format.", c.Format)
	}
	mime := mimetype.Detect(c.Media).String()
	resp, err := api.UploadMedia(ctx, c.Media, mime, c.MediaFilename)
	if err != nil {
		return "", apperr.Wrap(apperr.KindRemote, err, "Failed to upload media")
	}
	if resp.ID == "" {
		return "", apperr.Remote(0, "", errors.New("Media upload failed: No media ID returned."))
	}
	return resp.ID, nil
}

func headerExample(params []models.TemplateParameter, named bool) *whatsapp.ComponentExample {
	if len(params) == 0 {
		return nil
	}
	ex := &whatsapp.ComponentExample{}
	for _, p := range params {
		if named {
			ex.HeaderTextNamedParam = append(ex.HeaderTextNamedParam, whatsapp.NamedParam{ParamName: p.Name, Example: p.Example})
		} else {
			ex.HeaderText = append(ex.HeaderText, p.Example)
		}
	}
	return ex
}

func bodyExample(params []models.TemplateParameter, named bool) *whatsapp.ComponentExample {
	if len(params) == 0 {
		return nil
	}
	ex := &whatsapp.ComponentExample{}
	if named {
		for _, p := range params {
			ex.BodyTextNamedParams = append(ex.BodyTextNamedParams, whatsapp.NamedParam{ParamName: p.Name, Example: p.Example})
		}
		return ex
	}
	row := make([]string, 0, len(params))
	for _, p := range params {
		row = append(row, p.Example)
	}
	ex.BodyText = [][]string{row}
	return ex
}

func remoteButtons(buttons []models.TemplateButton) []whatsapp.RemoteButton {
	out := make([]whatsapp.RemoteButton, 0, len(buttons))
	for _, b := range buttons {
		rb := whatsapp.RemoteButton{Type: b.Type, Text: b.Text}
		switch b.Type {
		case models.ButtonPhoneNumber:
			rb.PhoneNumber = b.PhoneNumber
		case models.ButtonURL:
			rb.URL = b.URL
			if b.Example != "" {
				rb.Example = []string{b.Example}
			}
		case models.ButtonOTP:
			rb.OTPType = b.OTPType
			for _, app := range b.Apps {
				rb.SupportedApps = append(rb.SupportedApps, whatsapp.SupportedApp{
					ID:            app.Platform,
					PackageName:   app.PackageName,
					SignatureHash: app.SignatureHash,
					BundleID:      app.BundleID,
				})
			}
			if b.OTPType == "ONE_TAP" {
				rb.AutofillText = b.AutofillText
			}
		}
		out = append(out, rb)
	}
	return out
}

// deleteChildren removes the components of a template with their buttons,
// apps and parameters. sqlite does not enforce the cascade by default.
func deleteChildren(tx *gorm.DB, templateID uint) error {
	components := func() *gorm.DB {
		return tx.Model(&models.TemplateComponent{}).Select("id").Where("template_id = ?", templateID)
	}
	buttons := tx.Model(&models.TemplateButton{}).Select("id").Where("component_id IN (?)", components())
	if err := tx.Where("button_id IN (?)", buttons).Delete(&models.TemplateButtonApp{}).Error; err != nil {
		return err
	}
	if err := tx.Where("component_id IN (?)", components()).Delete(&models.TemplateButton{}).Error; err != nil {
		return err
	}
	if err := tx.Where("component_id IN (?)", components()).Delete(&models.TemplateParameter{}).Error; err != nil {
		return err
	}
	return tx.Where("template_id = ?", templateID).Delete(&models.TemplateComponent{}).Error
}

func clearIDs(t *models.Template) {
	for i := range t.Components {
		c := &t.Components[i]
		c.ID, c.TemplateID = 0, 0
		for j := range c.Buttons {
			b := &c.Buttons[j]
			b.ID, b.ComponentID = 0, 0
			for k := range b.Apps {
				b.Apps[k].ID, b.Apps[k].ButtonID = 0, 0
			}
		}
		for j := range c.Parameters {
			c.Parameters[j].ID, c.Parameters[j].ComponentID = 0, 0
		}
	}
	for i := range t.Mappings {
		t.Mappings[i].ID, t.Mappings[i].TemplateID = 0, 0
	}
}

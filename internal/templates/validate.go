package templates

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
)

var templateName = regexp.MustCompile(`^[a-z0-9_]+$`)

// Validate checks a template before it is stored or submitted.
func Validate(t *models.Template) error {
	err := validation.ValidateStruct(t,
		validation.Field(&t.Name, validation.Required, validation.Length(1, 512),
			validation.Match(templateName).Error("only lowercase letters, digits and underscores")),
		validation.Field(&t.Language, validation.Required),
		validation.Field(&t.Category, validation.Required,
			validation.In(models.CategoryAuthentication, models.CategoryMarketing, models.CategoryUtility)),
		validation.Field(&t.ParameterFormat, validation.In(models.ParamsPositional, models.ParamsNamed)),
		validation.Field(&t.ProviderID, validation.Required),
	)
	if err != nil {
		return apperr.Validation("%s", err.Error())
	}

	for i := range t.Components {
		if err := validation.Validate(&t.Components[i], validation.By(componentRule(t.Category))); err != nil {
			return apperr.Validation("%s", err.Error())
		}
	}
	return validateMappings(t.Mappings)
}

func componentRule(category string) validation.RuleFunc {
	return func(value interface{}) error {
		c := value.(*models.TemplateComponent)
		switch c.Type {
		case models.ComponentHeader:
			if category == models.CategoryAuthentication {
				return errors.New("HEADER components are not allowed for AUTHENTICATION templates.")
			}
			return headerRule(c)
		case models.ComponentBody:
			if (category == models.CategoryMarketing || category == models.CategoryUtility) && c.Text == "" {
				return errors.New("Text or parameters are required for BODY components in MARKETING or UTILITY templates.")
			}
		case models.ComponentFooter:
			if category == models.CategoryAuthentication && c.CodeExpirationMinutes == 0 {
				return errors.New("Code Expiration Minutes is required for FOOTER components in AUTHENTICATION templates.")
			}
		}
		for i := range c.Buttons {
			if err := validateButton(&c.Buttons[i], category); err != nil {
				return err
			}
		}
		return nil
	}
}

func headerRule(c *models.TemplateComponent) error {
	switch c.Format {
	case models.FormatText:
		if c.Text == "" {
			return errors.New("Text is required for HEADER components with TEXT format.")
		}
	case models.FormatImage, models.FormatVideo, models.FormatDocument:
		if len(c.Media) == 0 {
			return errors.New("Media file is required for HEADER components with " + c.Format + " format.")
		}
	case models.FormatLocation:
		if c.Latitude == "" || c.Longitude == "" {
			return errors.New("Latitude and Longitude are required for HEADER components with LOCATION format.")
		}
	case "":
		if c.Text != "" || len(c.Media) > 0 || c.Latitude != "" || c.Longitude != "" ||
			c.LocationName != "" || c.LocationAddress != "" {
			return errors.New("No format selected for HEADER component, but data fields are filled. Please select a format or clear the fields.")
		}
	}
	return nil
}

func validateButton(b *models.TemplateButton, category string) error {
	if b.Type == models.ButtonOTP {
		if b.OTPType == "" {
			return errors.New("OTP Type is required for OTP buttons.")
		}
		if category != models.CategoryAuthentication {
			return errors.New("OTP buttons are only allowed in AUTHENTICATION templates.")
		}
		if len(b.Apps) == 0 {
			return errors.New("At least one supported app is required for OTP buttons.")
		}
	}
	if b.Text == "" {
		return errors.New("Button Text is required for all buttons.")
	}

	seen := make(map[string]bool, len(b.Apps))
	for i := range b.Apps {
		app := &b.Apps[i]
		err := validation.ValidateStruct(app,
			validation.Field(&app.Platform, validation.Required, validation.In("android", "ios")),
			validation.Field(&app.PackageName, validation.When(app.Platform == "android",
				validation.Required.Error("Package Name is required for Android apps."))),
			validation.Field(&app.SignatureHash, validation.When(app.Platform == "android",
				validation.Required.Error("Signature Hash is required for Android apps."))),
			validation.Field(&app.BundleID, validation.When(app.Platform == "ios",
				validation.Required.Error("Bundle ID is required for iOS apps."))),
		)
		if err != nil {
			return err
		}
		if seen[app.Platform] {
			return errors.New("Each platform can only be specified once per button.")
		}
		seen[app.Platform] = true
	}
	return nil
}

func validateMappings(mappings []models.ParameterMapping) error {
	seen := make(map[string]bool, len(mappings))
	for _, m := range mappings {
		if m.ParameterName == "" || m.Field == "" {
			return apperr.Validation("Parameter name and field are required for every mapping.")
		}
		if seen[m.ParameterName] {
			return apperr.Validation("Parameter name must be unique per template.")
		}
		seen[m.ParameterName] = true
	}
	return nil
}

package templates

import (
	"strings"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/models"
	"whatsapp-suite/internal/whatsapp"
)

// Rendered is a template filled from a record: the text operators see and
// the body parameters sent to Meta.
type Rendered struct {
	Message    string
	Parameters []whatsapp.Parameter
}

// Render resolves the template's parameter mappings against record, which
// must be an instance of model. Without mappings the raw body is returned.
func (s *Service) Render(t *models.Template, model string, record interface{}) (*Rendered, error) {
	if t.AvailableIn != "" && model != "" && t.AvailableIn != model {
		return nil, apperr.Config("Template %s is not applicable to model %s. It applies to %s.", t.Name, model, t.AvailableIn)
	}
	out := &Rendered{Message: t.Message()}
	if len(t.Mappings) == 0 {
		return out, nil
	}
	if record == nil {
		return nil, apperr.Config("Record number (ID) is missing for fetching template parameters.")
	}
	if model == "" {
		model = t.AvailableIn
	}

	named := t.ParameterFormat == models.ParamsNamed
	for _, m := range t.Mappings {
		value, err := s.registry.Resolve(model, m.Field, record)
		if err != nil {
			return nil, err
		}
		out.Message = strings.ReplaceAll(out.Message, "{{"+m.ParameterName+"}}", value)
		p := whatsapp.Parameter{Value: value}
		if named {
			p.Name = m.ParameterName
		}
		out.Parameters = append(out.Parameters, p)
	}
	return out, nil
}

package campaigns

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"whatsapp-suite/internal/apperr"
	"whatsapp-suite/internal/templates"
)

// Filter operators
const (
	OpEquals     = "equals"
	OpNotEquals  = "not_equals"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpRegex      = "regex"
	OpSet        = "set"
	OpNotSet     = "not_set"
)

// Condition is one clause of a recipient filter. All conditions of a
// filter must hold.
type Condition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type filter struct {
	conds    []Condition
	patterns map[int]*regexp.Regexp
	registry *templates.Registry
}

// parseFilter decodes the stored JSON array and checks every condition
// against the contact fields known to the registry.
func parseFilter(raw string, registry *templates.Registry) (*filter, error) {
	var conds []Condition
	if err := json.Unmarshal([]byte(raw), &conds); err != nil {
		return nil, apperr.Validation("invalid filter: %v", err)
	}
	if len(conds) == 0 {
		return nil, apperr.Validation("filter has no conditions")
	}

	f := &filter{conds: conds, patterns: map[int]*regexp.Regexp{}, registry: registry}
	for i := range conds {
		c := &conds[i]
		err := validation.ValidateStruct(c,
			validation.Field(&c.Field, validation.Required, validation.By(func(interface{}) error {
				if !registry.Has(templates.ModelContacts, c.Field) {
					return errors.New("is not a filterable contact field")
				}
				return nil
			})),
			validation.Field(&c.Operator, validation.Required,
				validation.In(OpEquals, OpNotEquals, OpContains, OpStartsWith, OpRegex, OpSet, OpNotSet)),
			validation.Field(&c.Value, validation.When(c.Operator != OpSet && c.Operator != OpNotSet, validation.Required)),
		)
		if err != nil {
			return nil, apperr.Validation("filter condition %d: %v", i+1, err)
		}
		if c.Operator == OpRegex {
			re, err := regexp.Compile("(?i)" + c.Value)
			if err != nil {
				return nil, apperr.Validation("filter condition %d: %v", i+1, err)
			}
			f.patterns[i] = re
		}
	}
	return f, nil
}

func (f *filter) match(record interface{}) (bool, error) {
	for i, c := range f.conds {
		value, err := f.registry.Resolve(templates.ModelContacts, c.Field, record)
		if err != nil {
			return false, err
		}
		if !f.holds(i, c, value) {
			return false, nil
		}
	}
	return true, nil
}

func (f *filter) holds(i int, c Condition, value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	want := strings.ToLower(c.Value)
	switch c.Operator {
	case OpEquals:
		return v == want
	case OpNotEquals:
		return v != want
	case OpContains:
		return strings.Contains(v, want)
	case OpStartsWith:
		return strings.HasPrefix(v, want)
	case OpRegex:
		return f.patterns[i].MatchString(value)
	case OpSet:
		return v != ""
	case OpNotSet:
		return v == ""
	}
	return false
}

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Section selects which parts of the Config a command depends on.
type Section uint8

const (
	SectionBootstrap Section = iota + 1
	SectionOwnership
	SectionAPIKey
	SectionWorkflow
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the logging settings plus the given sections.
func (c Config) Validate(sections ...Section) error {
	parts := []any{c.Log}
	for _, s := range sections {
		switch s {
		case SectionBootstrap:
			parts = append(parts, c.Database, c.Admin, c.Bootstrap, c.Redis)
		case SectionOwnership:
			parts = append(parts, c.Ownership)
		case SectionAPIKey:
			parts = append(parts, c.APIKey)
		case SectionWorkflow:
			parts = append(parts, c.APIKey, c.N8N)
		}
	}

	var msgs []string
	for _, p := range parts {
		if err := validate.Struct(p); err != nil {
			var ve validator.ValidationErrors
			if !errors.As(err, &ve) {
				return fmt.Errorf("validate config: %w", err)
			}
			for _, fe := range ve {
				msgs = append(msgs, fieldError(fe))
			}
		}
	}
	if len(msgs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	if containsSection(sections, SectionBootstrap) && c.Database.IsSQLite() && c.Database.SQLitePath == "" && c.Database.DSN == "" {
		return errors.New("invalid config: database.sqlite_path is required for the sqlite database type")
	}
	return nil
}

func containsSection(sections []Section, want Section) bool {
	for _, s := range sections {
		if s == want {
			return true
		}
	}
	return false
}

func fieldError(fe validator.FieldError) string {
	section, name, ok := strings.Cut(fe.StructNamespace(), ".")
	field := strings.ToLower(name)
	if ok {
		field = strings.ToLower(strings.TrimSuffix(section, "Config")) + "." + field
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "url":
		return field + " must be a URL"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}

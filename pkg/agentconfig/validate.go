package agentconfig

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dukex/agentbundle/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

const (
	shortPromptLength = 10
	longPromptLength  = 10000

	minTimeout = 1
	maxTimeout = 3600
	maxRetries = 10
)

// RequiredFields are the keys every definition must set.
var RequiredFields = []string{"id", "title", "prompt"}

// KnownModels are the model names accepted without a warning.
var KnownModels = []string{
	"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo",
	"claude-3-opus", "claude-3-sonnet", "claude-3-haiku",
}

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	scheduleParser    = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	validate          = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return field.Name
		}

		return name
	})

	_ = v.RegisterValidation("agentid", func(fl validator.FieldLevel) bool {
		return identifierPattern.MatchString(fl.Field().String())
	})

	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		_, err := scheduleParser.Parse(fl.Field().String())

		return err == nil
	})

	return v
}

// Validate checks config and reports blocking errors and advisory warnings.
// It never mutates config.
func Validate(config *models.AgentConfig) ValidationResult {
	var (
		errs     []string
		warnings []string
	)

	failed := structFailures(config)

	for _, field := range RequiredFields {
		if failed[field] == "required" {
			errs = append(errs, "Missing required field: "+field)
		}
	}

	if config.ID != "" {
		if validate.Var(config.ID, "agentid") != nil {
			errs = append(errs, "ID can only contain letters, numbers, hyphens, and underscores")
		}

		if validate.Var(config.ID, "min=3,max=100") != nil {
			errs = append(errs, "ID must be between 3 and 100 characters")
		}
	}

	if failed["title"] == "max" {
		errs = append(errs, "Title must be between 1 and 200 characters")
	}

	if config.Prompt != "" {
		length := utf8.RuneCountInString(config.Prompt)
		if length < shortPromptLength {
			warnings = append(warnings, "Prompt is very short, consider adding more detail")
		}

		if length > longPromptLength {
			warnings = append(warnings, "Prompt is very long, consider shortening for better performance")
		}

		used := PromptVariables(config.Prompt)

		for _, name := range used {
			if _, ok := config.Vars[name]; !ok {
				errs = append(errs, fmt.Sprintf("Variable %q used in prompt but not defined in vars", name))
			}
		}

		for _, name := range sortedKeys(config.Vars) {
			if !slices.Contains(used, name) {
				warnings = append(warnings, fmt.Sprintf("Variable %q defined but not used in prompt", name))
			}
		}
	}

	if _, ok := failed["schedule"]; ok {
		errs = append(errs, "Invalid cron schedule format: "+config.Schedule)
	}

	if config.Bundle != "" && !identifierPattern.MatchString(config.Bundle) {
		warnings = append(warnings, "Bundle name should only contain letters, numbers, hyphens, and underscores")
	}

	if config.Timeout != nil {
		if seconds, ok := config.Timeout.Float(); !ok || seconds < minTimeout || seconds > maxTimeout {
			errs = append(errs, "Timeout must be a number between 1 and 3600 seconds")
		}
	}

	if config.Retries != nil {
		if retries, ok := config.Retries.Int(); !ok || retries < 0 || retries > maxRetries {
			errs = append(errs, "Retries must be a whole number between 0 and 10")
		}
	}

	if config.Model != "" && !slices.Contains(KnownModels, config.Model) {
		warnings = append(warnings, fmt.Sprintf("Model %q may not be supported. Valid models: %s",
			config.Model, strings.Join(KnownModels, ", ")))
	}

	return ValidationResult{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
	}
}

// structFailures maps each failing field to the tag that rejected it.
func structFailures(config *models.AgentConfig) map[string]string {
	failed := map[string]string{}

	err := validate.Struct(config)
	if err == nil {
		return failed
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return failed
	}

	for _, fe := range verrs {
		failed[fe.Field()] = fe.Tag()
	}

	return failed
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

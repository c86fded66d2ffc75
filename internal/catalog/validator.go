package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ovenline/ovenline/internal/models"
)

// FieldError names the form field that blocked submission and why.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, fe := range v {
		parts[i] = fe.Field + ": " + fe.Reason
	}
	return "invalid order: " + strings.Join(parts, "; ")
}

type Validator struct {
	structs *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{structs: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateDraft checks an order-entry draft against the menu and returns the
// parsed prep time. Every violation is reported.
func (v *Validator) ValidateDraft(draft models.Draft, menu *Menu) (int, error) {
	var errs ValidationErrors

	if err := v.structs.Struct(draft); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return 0, fmt.Errorf("failed to validate order: %w", err)
		}
		for _, fe := range fieldErrs {
			errs = append(errs, describe(fe))
		}
	}

	if strings.TrimSpace(draft.Platform) != "" && draft.ResolvedPlatform() == "" {
		errs = append(errs, FieldError{Field: "customPlatform", Reason: "custom platform is required when platform is Other"})
	}
	if strings.TrimSpace(draft.Platform) == "" && !hasField(errs, "platform") {
		errs = append(errs, FieldError{Field: "platform", Reason: "delivery platform is required"})
	}

	prep, prepErr := parsePrepTime(draft.PrepTime)
	if prepErr != nil {
		errs = append(errs, FieldError{Field: "prepTime", Reason: prepErr.Error()})
	}

	for i, item := range draft.Pizzas {
		if strings.TrimSpace(item.PizzaID) == "" {
			continue
		}
		if menuItem, ok := menu.Find(item.PizzaID); !ok {
			errs = append(errs, FieldError{Field: fmt.Sprintf("pizzas[%d].pizzaId", i), Reason: fmt.Sprintf("pizza %s is not on the menu", item.PizzaID)})
		} else if !menuItem.Active {
			errs = append(errs, FieldError{Field: fmt.Sprintf("pizzas[%d].pizzaId", i), Reason: fmt.Sprintf("pizza %s is not available", menuItem.Name)})
		}
	}

	if len(errs) > 0 {
		return 0, errs
	}
	return prep, nil
}

// parsePrepTime accepts an empty value as the default prep time.
func parsePrepTime(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.DefaultPrepMinutes, nil
	}
	prep, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("prep time must be a whole number of minutes")
	}
	if prep <= 0 {
		return 0, fmt.Errorf("prep time must be positive")
	}
	return prep, nil
}

func describe(fe validator.FieldError) FieldError {
	field := jsonFieldPath(fe.Namespace())
	switch {
	case field == "platform":
		return FieldError{Field: field, Reason: "delivery platform is required"}
	case field == "pizzas" && (fe.Tag() == "required" || fe.Tag() == "min"):
		return FieldError{Field: field, Reason: "add at least one pizza"}
	case strings.HasSuffix(field, ".pizzaId"):
		return FieldError{Field: field, Reason: "select a pizza"}
	case strings.HasSuffix(field, ".quantity"):
		return FieldError{Field: field, Reason: "quantity must be at least 1"}
	default:
		return FieldError{Field: field, Reason: fmt.Sprintf("failed %s check", fe.Tag())}
	}
}

// jsonFieldPath turns "Draft.Pizzas[0].PizzaID" into "pizzas[0].pizzaId".
func jsonFieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = lowerFirst(part)
	}
	path := strings.Join(parts, ".")
	return strings.ReplaceAll(path, "pizzaID", "pizzaId")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func hasField(errs ValidationErrors, field string) bool {
	for _, fe := range errs {
		if fe.Field == field {
			return true
		}
	}
	return false
}

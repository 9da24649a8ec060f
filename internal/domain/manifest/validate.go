package manifest

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	extIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*$`)
	validate     = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})

	_ = v.RegisterValidation("extid", func(fl validator.FieldLevel) bool {
		return extIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		return ValidVersion(fl.Field().String())
	})
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		return Permission(fl.Field().String()).Valid()
	})

	return v
}

// ValidID reports whether id is a well-formed extension id.
func ValidID(id string) bool {
	return len(id) <= 128 && extIDPattern.MatchString(id)
}

// ValidationError lists every rule a manifest breaks.
type ValidationError struct {
	ID     string
	Fields []string
}

func (e *ValidationError) Error() string {
	id := e.ID
	if id == "" {
		id = "<unknown>"
	}
	return fmt.Sprintf("invalid manifest %s: %s", id, strings.Join(e.Fields, "; "))
}

// Validate checks a manifest against the schema rules.
func Validate(m *Manifest) error {
	if m == nil {
		return &ValidationError{Fields: []string{"manifest is empty"}}
	}

	err := validate.Struct(m)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{ID: m.ID}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Manifest.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "extid":
		return field + " must be lowercase letters, digits, dots or dashes"
	case "semver":
		return field + " must be a semantic version"
	case "permission":
		return fmt.Sprintf("%s: unknown permission %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

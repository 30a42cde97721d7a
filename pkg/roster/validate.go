package roster

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/stagecrew/crewdesk/pkg/engine"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report yaml field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("capability", func(fl validator.FieldLevel) bool {
		_, err := engine.ParseCapability(fl.Field().String())
		return err == nil
	}); err != nil {
		panic(err)
	}

	return v
}

// validateStruct runs validator tags and folds field errors into one error.
func validateStruct(kind string, s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("invalid %s: %w", kind, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid %s: %s", kind, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	// Drop the root type from the namespace: CrewFile.crew[0].name -> crew[0].name
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required", "required_without":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	case "datetime":
		return fmt.Sprintf("%s must be a YYYY-MM-DD date, got %v", field, fe.Value())
	case "capability":
		return fmt.Sprintf("%s has unknown capability %q (want Y, Y*, N, Exp only or empty)", field, fe.Value())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

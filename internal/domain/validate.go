package domain

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"github.com/angple/kb-engine/internal/common"
)

var alphaNumDashRegex = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("alphanumdash", func(fl validator.FieldLevel) bool {
		return alphaNumDashRegex.MatchString(fl.Field().String())
	})
	return v
}

// Validate runs struct tag validation and maps failures to a ValidationError
func Validate(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return common.FromValidator(err)
	}
	return nil
}

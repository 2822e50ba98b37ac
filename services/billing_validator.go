package services

import (
	"errors"
	"reflect"
	"strings"
	"unicode"

	"github.com/avion-commerce/storefront-backend/models"
	"github.com/go-playground/validator/v10"
)

const minPhoneDigits = 10

// BillingValidator checks the checkout form before any external call.
type BillingValidator struct {
	validate *validator.Validate
}

func NewBillingValidator() *BillingValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("phonedigits", func(fl validator.FieldLevel) bool {
		return countDigits(fl.Field().String()) >= minPhoneDigits
	})
	return &BillingValidator{validate: v}
}

// Validate returns field name to message for every invalid billing field,
// or nil when the form is acceptable.
func (b *BillingValidator) Validate(billing models.BillingDetails) map[string]string {
	billing.FullName = strings.TrimSpace(billing.FullName)
	billing.Email = strings.TrimSpace(billing.Email)
	billing.Address = strings.TrimSpace(billing.Address)

	err := b.validate.Struct(billing)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"billing": err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "phonedigits":
		return "must contain at least 10 digits"
	default:
		return "is invalid"
	}
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}

package dto

import (
	"html"
	"reflect"
	"strings"

	"wallet-service/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		RegisterValidators(v)
	}
}

// RegisterValidators installs the custom tags used by request DTOs.
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("wallet_number", validateWalletNumber)
	_ = v.RegisterValidation("duration_code", validateDurationCode)
	_ = v.RegisterValidation("permission", validatePermission)
}

func validateWalletNumber(fl validator.FieldLevel) bool {
	return domain.IsValidWalletNumber(fl.Field().String())
}

// validateDurationCode accepts exactly 1H, 1D, 1M or 1Y.
func validateDurationCode(fl validator.FieldLevel) bool {
	code := fl.Field().String()
	if code != strings.ToUpper(code) {
		return false
	}
	_, err := domain.ExpiryDuration(code)
	return err == nil
}

func validatePermission(fl validator.FieldLevel) bool {
	_, err := domain.ParsePermission(fl.Field().String())
	return err == nil
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}

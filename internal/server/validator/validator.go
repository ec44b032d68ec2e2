package validator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"github.com/nulzo/route-engine/internal/core/domain"
)

// Validator translates binding errors into field-level messages.
type Validator struct {
	trans ut.Translator
}

// New configures gin's validator engine: json field names in messages,
// english translations and the protocol tag.
func New() *Validator {
	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		_ = en_translations.RegisterDefaultTranslations(v, trans)

		_ = v.RegisterValidation("protocol", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || domain.Protocol(s).Valid()
		})
		_ = v.RegisterTranslation("protocol", trans,
			func(ut ut.Translator) error {
				return ut.Add("protocol", "{0} must be one of [openai, anthropic, google]", true)
			},
			func(ut ut.Translator, fe validator.FieldError) string {
				t, _ := ut.T("protocol", fe.Field())
				return t
			},
		)
	}

	return &Validator{trans: trans}
}

// ParseError converts raw binding errors into a field -> message map.
// Nested fields keep their hierarchical names.
func (v *Validator) ParseError(err error) map[string]string {
	errMap := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, e := range validationErrors {
			ns := e.Namespace()
			if i := strings.Index(ns, "."); i != -1 {
				ns = ns[i+1:]
			}

			msg := e.Translate(v.trans)
			if e.Tag() == "oneof" {
				msg = fmt.Sprintf("must be one of [%s]", strings.ReplaceAll(e.Param(), " ", ", "))
			}

			errMap[ns] = msg
		}
		return errMap
	}

	errMap["body"] = "Invalid request body format. Please fix your payload."
	return errMap
}

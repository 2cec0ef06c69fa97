package server

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	errs "github.com/techagentng/dmchat/errors"
	"github.com/techagentng/dmchat/models"
)

var (
	translatorOnce sync.Once
	translator     ut.Translator
)

// registerTranslations makes gin's validator report json field names with
// English messages.
func registerTranslations() ut.Translator {
	translatorOnce.Do(func() {
		english := en.New()
		translator, _ = ut.New(english, english).GetTranslator("en")

		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = enTranslations.RegisterDefaultTranslations(v, translator)
	})
	return translator
}

// decode binds the JSON body into v and trims fields tagged conform:"trim".
func decode(c *gin.Context, v interface{}) *errs.Error {
	trans := registerTranslations()
	if err := c.ShouldBindJSON(v); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			messages := make([]string, 0, len(validationErrors))
			for _, fieldErr := range validationErrors {
				messages = append(messages, fieldErr.Translate(trans))
			}
			return errs.Validation("%s", strings.Join(messages, "; "))
		}
		return errs.Validation("invalid request body")
	}
	if err := models.TrimWhiteSpaces(v); err != nil {
		return errs.ErrBadRequest
	}
	return nil
}

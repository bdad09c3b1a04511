package validator

import (
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
	zhtranslations "github.com/go-playground/validator/v10/translations/zh"
)

var (
	once  sync.Once
	trans ut.Translator
)

// LazyInitGinValidator 给gin内置的validator挂上翻译器，language取zh或en
func LazyInitGinValidator(language string) {
	once.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		zhLoc := zh.New()
		enLoc := en.New()
		uni := ut.New(enLoc, zhLoc, enLoc)

		switch strings.ToLower(language) {
		case "zh":
			trans, _ = uni.GetTranslator("zh")
			_ = zhtranslations.RegisterDefaultTranslations(v, trans)
		default:
			trans, _ = uni.GetTranslator("en")
			_ = entranslations.RegisterDefaultTranslations(v, trans)
		}
	})
}

// Translate 把校验错误翻译成一条可读信息
func Translate(err error) string {
	if err == nil {
		return ""
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok || trans == nil {
		return err.Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Translate(trans))
	}
	return strings.Join(msgs, "; ")
}

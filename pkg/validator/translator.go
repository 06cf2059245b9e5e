package validator

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	validatorV10 "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// Install replaces gin's validator with CustomValidator, reports field names by their
// json tag, registers the custom tags and returns an en/zh translator set.
// Install 安装自定义校验器并返回 en/zh 翻译器
func Install() (*ut.UniversalTranslator, error) {
	customValidator := NewCustomValidator()
	binding.Validator = customValidator

	validate, ok := customValidator.Engine().(*validatorV10.Validate)
	if !ok {
		return ut.New(en.New(), en.New()), nil
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	RegisterCustom()

	uni := ut.New(en.New(), en.New(), zh.New())

	zhTran, _ := uni.GetTranslator("zh")
	enTran, _ := uni.GetTranslator("en")

	if err := zh_translations.RegisterDefaultTranslations(validate, zhTran); err != nil {
		return nil, err
	}
	if err := en_translations.RegisterDefaultTranslations(validate, enTran); err != nil {
		return nil, err
	}
	if err := registerPhoneTranslation(validate, enTran, "{0} must be a valid phone number"); err != nil {
		return nil, err
	}
	if err := registerPhoneTranslation(validate, zhTran, "{0}必须是有效的手机号码"); err != nil {
		return nil, err
	}

	return uni, nil
}

func registerPhoneTranslation(v *validatorV10.Validate, trans ut.Translator, text string) error {
	return v.RegisterTranslation("phone", trans,
		func(t ut.Translator) error {
			return t.Add("phone", text, true)
		},
		func(t ut.Translator, fe validatorV10.FieldError) string {
			msg, _ := t.T("phone", fe.Field())
			return msg
		},
	)
}

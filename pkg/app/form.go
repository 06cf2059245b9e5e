package app

import (
	"strings"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

// ValidError single field validation failure
// ValidError 单个字段校验错误
type ValidError struct {
	Key     string
	Message string
}

type ValidErrors []*ValidError

func (v *ValidError) Error() string {
	return v.Message
}

func (v ValidErrors) Error() string {
	return strings.Join(v.Errors(), ",")
}

func (v ValidErrors) Errors() []string {
	var errs []string
	for _, err := range v {
		errs = append(errs, err.Error())
	}
	return errs
}

// ErrorsToString joins all messages, used as response details
func (v ValidErrors) ErrorsToString() string {
	return strings.Join(v.Errors(), ",")
}

// MapsToString returns field -> message, used as response data
func (v ValidErrors) MapsToString() map[string]string {
	m := make(map[string]string, len(v))
	for _, err := range v {
		m[err.Key] = err.Message
	}
	return m
}

// BindAndValid binds the request into v and runs the gin validator, translating
// failures with the translator the lang middleware put on the context.
// BindAndValid 绑定参数并校验，使用 lang 中间件注入的翻译器翻译错误信息
func BindAndValid(c *gin.Context, v interface{}) (bool, ValidErrors) {
	var errs ValidErrors
	err := c.ShouldBind(v)
	if err == nil {
		return true, nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		errs = append(errs, &ValidError{Key: "body", Message: err.Error()})
		return false, errs
	}

	trans, hasTrans := c.Value("trans").(ut.Translator)
	for _, fe := range verrs {
		msg := fe.Error()
		if hasTrans {
			msg = fe.Translate(trans)
		}
		errs = append(errs, &ValidError{Key: fe.Field(), Message: msg})
	}
	return false, errs
}

package middleware

import (
	"strings"

	"github.com/haierkeys/contact-identity-service/pkg/app"
	"github.com/haierkeys/contact-identity-service/pkg/code"

	"github.com/gin-gonic/gin"
	ut "github.com/go-playground/universal-translator"
)

// LangWithTranslator 按请求选择语言与校验翻译器
// 语言来源：?lang= 参数，其次 lang 请求头，其次 Accept-Language
func LangWithTranslator(uni *ut.UniversalTranslator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var lang string
		if s, exist := c.GetQuery("lang"); exist {
			lang = s
		} else if s = c.GetHeader("lang"); s != "" {
			lang = s
		} else if s = c.GetHeader("Accept-Language"); s != "" {
			lang, _, _ = strings.Cut(s, ",")
			lang, _, _ = strings.Cut(lang, ";")
		}
		lang = strings.ToLower(strings.ReplaceAll(strings.TrimSpace(lang), "-", "_"))
		if lang == "zh" {
			lang = "zh_cn"
		}

		// 翻译器按语言前缀注册：zh_cn 使用 zh
		base, _, _ := strings.Cut(lang, "_")
		trans, found := uni.GetTranslator(base)
		if !found {
			lang = code.GetGlobalDefaultLang()
			base, _, _ = strings.Cut(lang, "_")
			if trans, found = uni.GetTranslator(base); !found {
				trans = uni.GetFallback()
			}
		}
		c.Set("trans", trans)
		c.Set(app.LangKey, lang)

		c.Next()
	}
}

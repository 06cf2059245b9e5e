package code

import (
	"errors"
	"sync/atomic"
)

// lang type, used to store English and Chinese text
// lang 类型，用来存储英文和中文文本
type lang struct {
	en    string // English // 英文
	zh_cn string // Chinese // 中文
}

// FALLBACK_LNG is used when the requested language is unknown or has no text
const FALLBACK_LNG = "en"

var supportedLanguages = []string{"en", "zh_cn"}

var lng atomic.Value

func init() {
	lng.Store(FALLBACK_LNG)
}

// GetMessage returns the message for the current global language
// GetMessage 根据当前全局语言返回相应的消息
func (l lang) GetMessage() string {
	return l.message(GetGlobalDefaultLang())
}

func (l lang) message(language string) string {
	switch language {
	case "zh_cn":
		if l.zh_cn != "" {
			return l.zh_cn
		}
	case "en":
		if l.en != "" {
			return l.en
		}
	}
	return l.en
}

// GetSupportedLanguages returns all languages supported by the lang type
// GetSupportedLanguages 返回 lang 类型支持的所有语言
func GetSupportedLanguages() []string {
	out := make([]string, len(supportedLanguages))
	copy(out, supportedLanguages)
	return out
}

// SetGlobalDefaultLang sets the global default language
// 设置全局默认语言
func SetGlobalDefaultLang(language string) error {
	for _, l := range supportedLanguages {
		if language == l {
			lng.Store(language)
			return nil
		}
	}
	lng.Store(FALLBACK_LNG)
	return errors.New("unsupported language type, set defaulting to " + FALLBACK_LNG)
}

// GetGlobalDefaultLang gets the global default language
// 获取全局默认语言
func GetGlobalDefaultLang() string {
	if v, ok := lng.Load().(string); ok && v != "" {
		return v
	}
	return FALLBACK_LNG
}

package code

import (
	"fmt"
	"net/http"
)

// Code is a business result code carried in the response envelope.
// Code 业务结果码，随统一响应结构返回
type Code struct {
	// 状态码
	code int
	// 状态
	status bool
	// 错误消息
	Lang lang
	// 数据
	data interface{}
	// 是否含有Data
	haveData bool
	// 错误详细信息
	details []string
	// 是否含有详情
	haveDetails bool
}

var codes = map[int]string{}
var sussCodes = map[int]string{}

// NewError registers a failure code. Codes are unique; a duplicate panics at init.
func NewError(code int, l lang) *Code {
	if _, ok := codes[code]; ok {
		panic(fmt.Sprintf("错误码 %d 已经存在，请更换一个", code))
	}
	codes[code] = l.en
	return &Code{code: code, status: false, Lang: l}
}

// NewSuss registers a success code.
func NewSuss(code int, l lang) *Code {
	if _, ok := sussCodes[code]; ok {
		panic(fmt.Sprintf("成功码 %d 已经存在，请更换一个", code))
	}
	sussCodes[code] = l.en
	return &Code{code: code, status: true, Lang: l}
}

// Clone returns a copy without data or details, so the registered value stays untouched.
// Clone 创建一个新的 Code 副本
func (e *Code) Clone() *Code {
	return &Code{
		code:   e.code,
		status: e.status,
		Lang:   e.Lang,
	}
}

func (e *Code) Error() string {
	return e.Msg()
}

func (e *Code) Code() int {
	return e.code
}

func (e *Code) Status() bool {
	return e.status
}

func (e *Code) Msg() string {
	return e.Lang.GetMessage()
}

// MsgIn returns the message in language, falling back to the global default.
func (e *Code) MsgIn(language string) string {
	if language == "" {
		return e.Msg()
	}
	return e.Lang.message(language)
}

func (e *Code) Details() []string {
	return e.details
}

func (e *Code) Data() interface{} {
	return e.data
}

func (e *Code) HaveDetails() bool {
	return e.haveDetails
}

func (e *Code) HaveData() bool {
	return e.haveData
}

// Is reports codes equal by number, so a clone matches its registered value with errors.Is.
func (e *Code) Is(target error) bool {
	t, ok := target.(*Code)
	if !ok {
		return false
	}
	return t.code == e.code
}

// WithData returns a clone carrying data.
func (e *Code) WithData(data interface{}) *Code {
	c := e.cloneWithPayload()
	c.haveData = true
	c.data = data
	return c
}

// WithDetails returns a clone carrying details.
func (e *Code) WithDetails(details ...string) *Code {
	c := e.cloneWithPayload()
	c.haveDetails = true
	c.details = append([]string{}, details...)
	return c
}

func (e *Code) cloneWithPayload() *Code {
	c := e.Clone()
	c.data, c.haveData = e.data, e.haveData
	c.details, c.haveDetails = e.details, e.haveDetails
	return c
}

// StatusCode is always 200; the business code travels in the body.
func (e *Code) StatusCode() int {
	return http.StatusOK
}

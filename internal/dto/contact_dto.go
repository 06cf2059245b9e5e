package dto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PhoneNumber accepts either a JSON string or a JSON number.
// PhoneNumber 兼容字符串与数字两种 JSON 写法
type PhoneNumber string

// UnmarshalJSON 数字按原样转为字符串，null 保持为空
func (p *PhoneNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = PhoneNumber(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("phoneNumber must be a string or number: %w", err)
	}
	*p = PhoneNumber(n.String())
	return nil
}

// UnmarshalParam 表单/查询参数绑定
func (p *PhoneNumber) UnmarshalParam(param string) error {
	*p = PhoneNumber(param)
	return nil
}

// IdentifyRequest 身份识别请求参数
type IdentifyRequest struct {
	Email       *string      `json:"email" form:"email" binding:"omitempty,max=255,email"`
	PhoneNumber *PhoneNumber `json:"phoneNumber" form:"phoneNumber" binding:"omitempty,phone"`
}

// Normalize 去除首尾空白，空值视为缺失
func (r *IdentifyRequest) Normalize() (email, phone *string) {
	if r.Email != nil {
		if s := strings.TrimSpace(*r.Email); s != "" {
			email = &s
		}
	}
	if r.PhoneNumber != nil {
		if s := strings.TrimSpace(string(*r.PhoneNumber)); s != "" {
			phone = &s
		}
	}
	return email, phone
}

// ContactIdentityRequest 按联系人 id 查询身份
type ContactIdentityRequest struct {
	ID int64 `uri:"id" binding:"required,gt=0"`
}

// IdentityDTO 合并后的身份
type IdentityDTO struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}

// IdentifyResponse 身份识别响应
type IdentifyResponse struct {
	Contact *IdentityDTO `json:"contact"`
}

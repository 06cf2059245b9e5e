package domain

import (
	"errors"
	"time"
)

// ErrContactNotFound 联系人不存在或已删除
var ErrContactNotFound = errors.New("contact not found")

// LinkPrecedence 联系人在身份网络中的角色
type LinkPrecedence string

const (
	LinkPrimary   LinkPrecedence = "primary"
	LinkSecondary LinkPrecedence = "secondary"
)

// Valid reports whether p is one of the two known roles.
func (p LinkPrecedence) Valid() bool {
	return p == LinkPrimary || p == LinkSecondary
}

// Contact 联系人领域模型
// A primary has no LinkedID; a secondary points at the record it is subordinate to.
type Contact struct {
	ID             int64
	Email          *string
	PhoneNumber    *string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// IsPrimary 是否为主记录
func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrimary
}

// IsDeleted 是否已软删除
func (c *Contact) IsDeleted() bool {
	return c.DeletedAt != nil
}

// HasEmail reports whether the contact carries exactly this email.
func (c *Contact) HasEmail(email string) bool {
	return c.Email != nil && *c.Email == email
}

// HasPhone reports whether the contact carries exactly this phone number.
func (c *Contact) HasPhone(phone string) bool {
	return c.PhoneNumber != nil && *c.PhoneNumber == phone
}

// OlderThan orders contacts by CreatedAt, then by ID.
func (c *Contact) OlderThan(o *Contact) bool {
	if !c.CreatedAt.Equal(o.CreatedAt) {
		return c.CreatedAt.Before(o.CreatedAt)
	}
	return c.ID < o.ID
}

// Observation 一次 (email, phone) 观测，两者至少有一个
type Observation struct {
	Email       *string
	PhoneNumber *string
}

// IsEmpty 两个字段都缺失
func (o Observation) IsEmpty() bool {
	return o.Email == nil && o.PhoneNumber == nil
}

package model

import (
	"github.com/haierkeys/contact-identity-service/pkg/timex"
	"gorm.io/gorm"
)

const TableNameContact = "contact"

// Contact mapped from table <contact>
type Contact struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id" form:"id"`
	Email          *string        `gorm:"column:email;size:255" json:"email" form:"email"`
	PhoneNumber    *string        `gorm:"column:phone_number;size:64" json:"phoneNumber" form:"phoneNumber"`
	LinkedID       *int64         `gorm:"column:linked_id" json:"linkedId" form:"linkedId"`
	LinkPrecedence string         `gorm:"column:link_precedence;size:16;not null;default:primary" json:"linkPrecedence" form:"linkPrecedence"`
	CreatedAt      timex.Time     `gorm:"column:created_at;not null;autoCreateTime:false" json:"createdAt" form:"createdAt"`
	UpdatedAt      timex.Time     `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updatedAt" form:"updatedAt"`
	DeletedAt      gorm.DeletedAt `gorm:"column:deleted_at" json:"deletedAt" form:"deletedAt"`
}

// TableName Contact's table name
func (*Contact) TableName() string {
	return TableNameContact
}

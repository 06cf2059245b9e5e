package model

import (
	"gorm.io/gorm"
)

// AutoMigrate 按 key 迁移对应的表
func AutoMigrate(db *gorm.DB, key string) error {
	switch key {
	case "Contact":
		return db.AutoMigrate(&Contact{})
	}
	return nil
}

package upgrade

import (
	"context"
	"fmt"

	"github.com/haierkeys/contact-identity-service/internal/model"

	"gorm.io/gorm"
)

// ContactIndexMigrate 为匹配与闭包查询用到的列建立索引
type ContactIndexMigrate struct{}

func (m *ContactIndexMigrate) Version() string {
	return "0.2.0"
}

func (m *ContactIndexMigrate) Description() string {
	return "add contact lookup indexes (email, phone_number, linked_id, deleted_at)"
}

// contactIndexes index name -> column
var contactIndexes = [][2]string{
	{"idx_contact_email", "email"},
	{"idx_contact_phone_number", "phone_number"},
	{"idx_contact_linked_id", "linked_id"},
	{"idx_contact_deleted_at", "deleted_at"},
}

func (m *ContactIndexMigrate) Up(db *gorm.DB, ctx context.Context) error {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(&model.Contact{}); err != nil {
		return err
	}
	table := stmt.Schema.Table

	migrator := db.WithContext(ctx).Migrator()
	for _, idx := range contactIndexes {
		name, column := idx[0], idx[1]
		if migrator.HasIndex(&model.Contact{}, name) {
			continue
		}
		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			db.Statement.Quote(name), db.Statement.Quote(table), db.Statement.Quote(column))
		if err := db.WithContext(ctx).Exec(sql).Error; err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}

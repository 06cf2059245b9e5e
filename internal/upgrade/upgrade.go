package upgrade

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/model"

	"go.uber.org/zap"
	"golang.org/x/mod/semver"
	"gorm.io/gorm"
)

// SchemaVersion 数据库版本记录表
type SchemaVersion struct {
	ID          int       `gorm:"primaryKey;autoIncrement" json:"id"`
	Version     string    `gorm:"not null;uniqueIndex;type:varchar(64)" json:"version"`
	Description string    `gorm:"type:text" json:"description"`
	AppliedAt   time.Time `gorm:"not null" json:"applied_at"`
}

// TableName 指定表名
func (SchemaVersion) TableName() string {
	return "schema_version"
}

// Migration 定义升级接口
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB, ctx context.Context) error
}

// MigrationManager 升级管理器
type MigrationManager struct {
	db             *gorm.DB
	logger         *zap.Logger
	runningVersion string
	migrations     []Migration
}

// NewMigrationManager 创建升级管理器
// runningVersion 为当前程序版本，高于它的升级脚本不会执行
func NewMigrationManager(db *gorm.DB, logger *zap.Logger, runningVersion string) *MigrationManager {
	return &MigrationManager{
		db:             db,
		logger:         logger,
		runningVersion: canonical(runningVersion),
		migrations: []Migration{
			// 在这里注册所有的升级脚本
			&ContactIndexMigrate{},
		},
	}
}

// canonical 补全 semver 需要的 v 前缀
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// Run 执行升级
func (m *MigrationManager) Run(ctx context.Context) error {
	m.logger.Info("Migration started", zap.String("runningVersion", m.runningVersion))

	if err := model.AutoMigrate(m.db, "Contact"); err != nil {
		return fmt.Errorf("failed to auto migrate contact: %w", err)
	}

	// 确保 schema_version 表存在
	if err := m.db.AutoMigrate(&SchemaVersion{}); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	appliedVersions, err := m.getAppliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied versions: %w", err)
	}

	executed := 0
	for _, migration := range m.migrations {
		scriptVersion := canonical(migration.Version())

		if appliedVersions[scriptVersion] {
			continue
		}

		// 脚本版本高于运行版本时跳过（回滚到旧二进制的情况）
		if semver.IsValid(m.runningVersion) && semver.Compare(scriptVersion, m.runningVersion) > 0 {
			m.logger.Info("skip migration > runningVersion",
				zap.String("scriptVersion", scriptVersion),
				zap.String("runningVersion", m.runningVersion))
			continue
		}

		m.logger.Info("applying migration",
			zap.String("scriptVersion", scriptVersion),
			zap.String("desc", migration.Description()))

		if err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx, ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			record := &SchemaVersion{
				Version:     scriptVersion,
				Description: migration.Description(),
				AppliedAt:   time.Now(),
			}
			if err := tx.Create(record).Error; err != nil {
				return fmt.Errorf("failed to record version: %w", err)
			}
			return nil
		}); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", scriptVersion, err)
		}

		m.logger.Info("migration applied successfully", zap.String("scriptVersion", scriptVersion))
		executed++
	}

	if executed == 0 {
		m.logger.Info("database is already up to date")
	} else {
		m.logger.Info("upgrade completed", zap.Int("migrations_applied", executed))
	}
	return nil
}

// getAppliedVersions 获取已应用的数据库版本
func (m *MigrationManager) getAppliedVersions() (map[string]bool, error) {
	var versions []SchemaVersion
	if err := m.db.Find(&versions).Error; err != nil {
		return nil, err
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[canonical(v.Version)] = true
	}
	return applied, nil
}

// Execute 执行升级(便捷方法)
func Execute(db *gorm.DB, logger *zap.Logger, runningVersion string) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	if logger == nil {
		return fmt.Errorf("logger not initialized")
	}
	return NewMigrationManager(db, logger, runningVersion).Run(context.Background())
}

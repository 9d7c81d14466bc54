package metadata

import (
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSchemaTooNew 表示数据库由更新版本的程序写入，当前程序不能安全地使用它
var ErrSchemaTooNew = errors.New("数据库结构版本高于当前程序支持的版本")

// Migrate 幂等地创建 metadata 表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Metadata{}); err != nil {
		return fmt.Errorf("无法迁移metadata表: %w", err)
	}
	return nil
}

// GetValue 读取一个键的值。键不存在时返回空字符串。
func GetValue(db *gorm.DB, key string) (string, error) {
	var meta Metadata
	err := db.Where("key = ?", key).First(&meta).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return meta.Value, nil
}

// SetValue 以 upsert 方式写入一个键
func SetValue(db *gorm.DB, key, value string) error {
	meta := Metadata{
		Key:   key,
		Value: value,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&meta).Error
}

// GetSchemaVersion 返回已记录的结构版本，从未记录时为0
func GetSchemaVersion(db *gorm.DB) (int, error) {
	valueStr, err := GetValue(db, SchemaVersionKey)
	if err != nil {
		return 0, err
	}
	if valueStr == "" {
		return 0, nil
	}
	version, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("无法解析元数据 '%s' 的值: %w", SchemaVersionKey, err)
	}
	return version, nil
}

// EnsureSchemaVersion 在迁移完成后调用：拒绝更高的已记录版本，否则把记录提升到 version
func EnsureSchemaVersion(db *gorm.DB, version int) error {
	if err := Migrate(db); err != nil {
		return err
	}
	current, err := GetSchemaVersion(db)
	if err != nil {
		return err
	}
	if current > version {
		return fmt.Errorf("%w: 数据库为 %d，程序支持 %d", ErrSchemaTooNew, current, version)
	}
	if current == version {
		return nil
	}
	return SetValue(db, SchemaVersionKey, strconv.Itoa(version))
}

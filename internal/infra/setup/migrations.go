package setup

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// MigrateDB 使用传入的 GORM 实例执行全部建表/迁移。
// users 表用自定义 SQL 创建：password 是 TEXT 列，AutoMigrate
// 在 MySQL 上建索引时对 TEXT/BLOB 列需要显式长度，自定义 SQL 绕开这个坑。
func MigrateDB(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("cannot migrate database with nil DB connection")
	}

	if err := migrateUsersTable(db); err != nil {
		return fmt.Errorf("failed to migrate users table: %w", err)
	}

	// 其余模型交给 AutoMigrate：列类型都是定长的，没有索引长度问题
	err := db.AutoMigrate(
		&domain.Party{},
		&domain.PartyMember{},
		&domain.PartyMessage{},
	)
	if err != nil {
		logrus.Errorf("Failed to auto-migrate party tables: %v", err)
		return fmt.Errorf("failed to auto-migrate tables: %w", err)
	}

	logrus.Info("Database migration completed successfully")
	return nil
}

// migrateUsersTable 按表是否存在分别走创建或更新路径
func migrateUsersTable(db *gorm.DB) error {
	var count int64
	db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = 'users'").Count(&count)

	if count == 0 {
		return createUsersTable(db)
	}
	return updateUsersTable(db)
}

// createUsersTable 使用自定义 SQL 创建 users 表
func createUsersTable(db *gorm.DB) error {
	sql := `
	CREATE TABLE users (
		id BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email VARCHAR(191) NOT NULL, -- 限制长度以匹配索引
		password TEXT NOT NULL,
		display_name VARCHAR(100) NOT NULL,
		vehicle_type VARCHAR(20) NOT NULL DEFAULT 'motorcycle',
		privacy_mode VARCHAR(20) NOT NULL DEFAULT 'visible',
		created_at DATETIME(3),
		updated_at DATETIME(3),
		UNIQUE INDEX idx_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_general_ci;
	`
	if err := db.Exec(sql).Error; err != nil {
		logrus.Errorf("Failed to create users table: %v", err)
		return fmt.Errorf("failed to create users table: %w", err)
	}
	logrus.Info("Users table created successfully")
	return nil
}

// updateUsersTable 对已存在的 users 表做模式校正
func updateUsersTable(db *gorm.DB) error {
	// 确保 email 列类型和索引要求一致
	if err := db.Exec("ALTER TABLE users MODIFY COLUMN email VARCHAR(191) NOT NULL").Error; err != nil {
		logrus.Warnf("Could not modify email column: %v", err)
		// 可能不是严重错误，继续
	}

	// 索引和新增列交给 AutoMigrate 补齐
	if err := db.AutoMigrate(&domain.User{}); err != nil {
		logrus.Errorf("Failed to auto-migrate User table for index updates: %v", err)
		return fmt.Errorf("failed to migrate user indexes: %w", err)
	}

	logrus.Info("Users table schema checked/updated successfully")
	return nil
}

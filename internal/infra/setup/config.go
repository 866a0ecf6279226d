// Package setup 负责进程启动时的基础设施初始化：MySQL、Redis、建表。
// 连接参数由 bootstrap 的配置层传入，这里不读环境变量，
// 返回的实例通过依赖注入传给仓库层，测试时可以替换。
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// InitDB 初始化数据库连接并返回实例。
func InitDB(user, password, host, port, dbName string) (*gorm.DB, error) {
	if user == "" || password == "" {
		// 密码必须显式配置，不提供默认值
		return nil, fmt.Errorf("setup: database user and password must be set")
	}
	if host == "" {
		host = "127.0.0.1" // 本地开发默认值，生产环境应显式设置
	}
	if port == "" {
		port = "3306"
	}
	if dbName == "" {
		dbName = "speedlink_db" // 本地开发默认值
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbName)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("setup: connect to MySQL: %w", err)
	}

	sqlDB, err := db.DB() // 获取底层的 *sql.DB 对象
	if err != nil {
		return nil, fmt.Errorf("setup: get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	logrus.Info("MySQL connected")
	return db, nil
}

// InitRedis 初始化 Redis 连接并返回客户端实例。
// Redis 不可用时直接返回错误让进程退出：位置缓存、在线状态
// 和跨实例广播都依赖它，降级运行没有意义。
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	if addr == "" {
		addr = "127.0.0.1:6379" // 本地开发默认值
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 5,
		MaxConnAge:   30 * time.Minute, // 连接最大存活时间
	})
	if _, err := client.Ping(context.Background()).Result(); err != nil {
		return nil, fmt.Errorf("setup: connect to Redis: %w", err)
	}
	logrus.Info("Redis connected")
	return client, nil
}

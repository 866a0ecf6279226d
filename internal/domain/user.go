// Package domain 定义了应用程序中使用的数据结构 (数据库模型)。
package domain

import "time"

// 车辆类型的合法取值。
const (
	VehicleMotorcycle = "motorcycle"
	VehicleCar        = "car"
	VehicleTruck      = "truck"
	VehicleOther      = "other"
)

// 位置可见性模式。
const (
	PrivacyVisible = "visible"
	PrivacyHidden  = "hidden"
)

// User 表示应用程序中的用户（骑手）。
type User struct {
	ID          uint      `gorm:"primaryKey"`                                       // 用户唯一标识符 (主键)
	Email       string    `gorm:"type:varchar(191);uniqueIndex:idx_email;not null"` // 登录邮箱，必须唯一
	Password    string    `gorm:"type:text;not null"`                               // 存储的是哈希后的密码，不能为空
	DisplayName string    `gorm:"type:varchar(100);not null"`                       // 广播时展示的昵称
	VehicleType string    `gorm:"type:varchar(20);not null;default:motorcycle"`     // 车辆类型 (motorcycle/car/truck/other)
	PrivacyMode string    `gorm:"type:varchar(20);not null;default:visible"`        // 位置可见性 (visible/hidden)
	CreatedAt   time.Time `gorm:"autoCreateTime"`                                   // 用户记录创建时间 (GORM 自动填充)
	UpdatedAt   time.Time `gorm:"autoUpdateTime"`                                   // 用户记录最后更新时间 (GORM 自动填充)
}

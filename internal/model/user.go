package model

import "time"

// UserRole 仅区分两类调用者：买家/汇款人（customer）与后台管理员（admin）。
type UserRole string

const (
	RoleCustomer UserRole = "customer"
	RoleAdmin    UserRole = "admin"
)

// User 调用者档案。认证在网关完成，这里只保留解析"操作人"所需的最小字段。
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string   `gorm:"size:64;not null" json:"name"`
	Role UserRole `gorm:"size:16;not null;default:customer" json:"role"`
}

func (User) TableName() string { return "users" }

// Actor 是显式传入每个引擎操作的操作人。
// 不使用任何全局"当前用户"状态；Name 用于活动日志的可读署名。
type Actor struct {
	ID   uint     `json:"id"`
	Name string   `json:"name"`
	Role UserRole `json:"role"`
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

package model

import "time"

// ActivityLog 只追加的活动日志，是一等审计产物而非调试输出：
// 操作人落可读姓名，描述用面向用户的文案。
type ActivityLog struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	EntityType  string `gorm:"size:32;not null;index:idx_activity_entity" json:"entity_type"`
	EntityID    uint   `gorm:"not null;index:idx_activity_entity" json:"entity_id"`
	Action      string `gorm:"size:64;not null" json:"action"`
	Description string `gorm:"size:255;not null" json:"description"`

	ActorID   uint   `gorm:"not null" json:"actor_id"`
	ActorName string `gorm:"size:64;not null" json:"actor_name"`
	ActorRole string `gorm:"size:16" json:"actor_role"`
}

func (ActivityLog) TableName() string { return "activity_logs" }

package activity

import (
	"context"

	"remit_mall/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recorder 写只追加的活动日志。审计是非关键路径：写失败只记日志，
// 绝不让主迁移失败或回滚。
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// Record 记录一次生命周期动作。actor.Name 是解析好的可读署名。
func (r *Recorder) Record(ctx context.Context, entityType string, entityID uint, action, description string, actor model.Actor) {
	entry := model.ActivityLog{
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Description: description,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		ActorRole:   string(actor.Role),
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		r.log.Warn("写活动日志失败（忽略）",
			zap.String("entity_type", entityType),
			zap.Uint("entity_id", entityID),
			zap.String("action", action),
			zap.Error(err))
	}
}

// List 按实体倒序取活动日志（报表/详情页用）。
func (r *Recorder) List(ctx context.Context, entityType string, entityID uint) ([]model.ActivityLog, error) {
	var out []model.ActivityLog
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("id DESC").
		Find(&out).Error
	return out, err
}

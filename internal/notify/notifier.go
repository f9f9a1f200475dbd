package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event 是发给外部通知协作方的生命周期事件。
// 每次迁移至多发一次；投递方式是 fire-and-forget。
type Event struct {
	EventID    string    `json:"event_id"`
	EntityType string    `json:"entity_type"` // "order" / "remittance"
	EntityID   uint      `json:"entity_id"`
	Transition string    `json:"transition"` // 如 "payment_validated"
	Actor      string    `json:"actor"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier 引擎侧的发布口。实现方必须自行吞掉失败（记日志），
// 任何情况下都不阻塞、不失败调用方的主迁移。
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

// Nop 测试与降级用的空实现。
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// StreamNotifier 把事件原子写入 Redis Stream（出箱），由 Relay 异步转 Kafka。
// XAdd 失败仅记日志：通知丢失可接受，阻塞下单不可接受。
type StreamNotifier struct {
	rdb    *rd.Client
	stream string
	log    *zap.Logger
}

func NewStreamNotifier(rdb *rd.Client, stream string, log *zap.Logger) *StreamNotifier {
	return &StreamNotifier{rdb: rdb, stream: stream, log: log}
}

func (n *StreamNotifier) Publish(ctx context.Context, ev Event) {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}
	err := n.rdb.XAdd(ctx, &rd.XAddArgs{
		Stream: n.stream,
		Values: map[string]any{
			"event_id":    ev.EventID,
			"entity_type": ev.EntityType,
			"entity_id":   int64(ev.EntityID),
			"transition":  ev.Transition,
			"actor":       ev.Actor,
			"occurred_at": ev.OccurredAt.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		n.log.Warn("通知事件入流失败（忽略）",
			zap.String("entity_type", ev.EntityType),
			zap.Uint("entity_id", ev.EntityID),
			zap.String("transition", ev.Transition),
			zap.Error(err))
	}
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer 通知事件的 Kafka 写入器，Kafka 另一侧就是外部通知系统
//（站内信/WhatsApp 等，不在本仓库范围内）。
// - Hash + Key: 同一实体的事件尽量落同一分区，保序。
// - RequireAll: 等 ISR 确认，降低丢消息风险。
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish 同步写一条事件，key = entity_type:entity_id。
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(fmt.Sprintf("%s:%d", ev.EntityType, ev.EntityID)),
		Value: b,
	})
}

// Validate 最小字段校验，防止往外转脏事件。
func (e Event) Validate() error {
	if e.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}
	if e.EntityID == 0 {
		return fmt.Errorf("entity_id is required")
	}
	if e.Transition == "" {
		return fmt.Errorf("transition is required")
	}
	return nil
}

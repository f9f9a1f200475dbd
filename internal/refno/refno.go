package refno

import (
	"fmt"
	"strings"
	"time"
)

// Format 生成人类可读单号：PREFIX-YYYYMMDD-NNNNN，NNNNN 为当日序号。
func Format(prefix string, t time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, t.Format("20060102"), seq)
}

// WithMicroSuffix 唯一冲突时的让位版本：在常规单号后追加微秒后缀。
// 调用方拿着新单号重试插入，冲突不会暴露给外部调用者。
func WithMicroSuffix(prefix string, t time.Time, seq int64) string {
	return fmt.Sprintf("%s-%06d", Format(prefix, t, seq), t.Nanosecond()/1000)
}

// IsUniqueViolation 粗粒度识别唯一约束冲突（sqlite/postgres 文案都覆盖）。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "duplicate")
}
